package doctree

// Table grid operations. The row/column functions are the only mutation
// path for TableData and maintain the rectangular invariant: every row has
// the column count of the first row. Removal that would shrink the grid
// below 1x1 is a no-op, not an error.

// AddTableRow returns a new grid with an empty row appended.
func AddTableRow(data [][]Cell) [][]Cell {
	cols := 1
	if len(data) > 0 {
		cols = len(data[0])
	}
	out := cloneGrid(data)
	return append(out, make([]Cell, cols))
}

// AddTableColumn returns a new grid with an empty cell appended to every row.
func AddTableColumn(data [][]Cell) [][]Cell {
	out := cloneGrid(data)
	for i := range out {
		out[i] = append(out[i], Cell{})
	}
	return out
}

// RemoveTableRow returns a new grid without the given row. Removing the
// last row, or an out-of-range index, is a no-op.
func RemoveTableRow(data [][]Cell, index int) [][]Cell {
	if len(data) <= 1 || index < 0 || index >= len(data) {
		return cloneGrid(data)
	}
	out := cloneGrid(data)
	return append(out[:index], out[index+1:]...)
}

// RemoveTableColumn returns a new grid with the given column removed from
// every row. Removing the last column, or an out-of-range index, is a no-op.
func RemoveTableColumn(data [][]Cell, index int) [][]Cell {
	if len(data) == 0 || len(data[0]) <= 1 || index < 0 || index >= len(data[0]) {
		return cloneGrid(data)
	}
	out := cloneGrid(data)
	for i := range out {
		if index < len(out[i]) {
			out[i] = append(out[i][:index], out[i][index+1:]...)
		}
	}
	return out
}

// SetTableCell returns a new grid with one cell replaced. Out-of-range
// coordinates are a no-op.
func SetTableCell(data [][]Cell, row, col int, cell Cell) [][]Cell {
	out := cloneGrid(data)
	if row < 0 || row >= len(out) || col < 0 || col >= len(out[row]) {
		return out
	}
	out[row][col] = cell
	return out
}

func cloneGrid(data [][]Cell) [][]Cell {
	out := make([][]Cell, len(data))
	for i, row := range data {
		out[i] = append([]Cell(nil), row...)
	}
	return out
}
