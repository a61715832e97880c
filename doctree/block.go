package doctree

// InsertBlock returns a new block list with b appended, or inserted
// immediately after the sibling afterBlockID when given. An unknown
// afterBlockID falls back to append. Media blocks must already reference a
// durably stored asset when they reach this point (two-phase insert: the
// hydration engine stores the payload first).
func InsertBlock(content []Block, b Block, afterBlockID string) []Block {
	out := make([]Block, 0, len(content)+1)
	if afterBlockID == "" {
		out = append(out, content...)
		return append(out, b)
	}
	inserted := false
	for _, existing := range content {
		out = append(out, existing)
		if existing.ID == afterBlockID {
			out = append(out, b)
			inserted = true
		}
	}
	if !inserted {
		out = append(out, b)
	}
	return out
}

// UpdateBlock returns a new block list with the block of matching id
// replaced by b. Unknown ids are a no-op.
func UpdateBlock(content []Block, b Block) []Block {
	out := append([]Block(nil), content...)
	for i := range out {
		if out[i].ID == b.ID {
			out[i] = b
			break
		}
	}
	return out
}

// DeleteBlock returns a new block list without the named block, plus the
// attachment id the block held (empty for non-media blocks) so the caller
// can release it from the blob store. Unknown ids are a no-op.
func DeleteBlock(content []Block, blockID string) ([]Block, string) {
	out := make([]Block, 0, len(content))
	released := ""
	for _, b := range content {
		if b.ID == blockID {
			released = b.AttachmentID
			continue
		}
		out = append(out, b)
	}
	return out, released
}

// MoveBlock returns a new block list with the named block moved to index
// toIndex (clamped to the list bounds). Unknown ids are a no-op.
func MoveBlock(content []Block, blockID string, toIndex int) []Block {
	from := -1
	for i, b := range content {
		if b.ID == blockID {
			from = i
			break
		}
	}
	if from == -1 {
		return append([]Block(nil), content...)
	}
	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex >= len(content) {
		toIndex = len(content) - 1
	}
	out := append([]Block(nil), content...)
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:toIndex], append([]Block{moved}, out[toIndex:]...)...)
	return out
}
