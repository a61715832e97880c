// Package doctree holds the in-memory document model — sections, typed
// content blocks — and the pure operations that edit it.
//
// All operations are total functions over well-formed trees: they perform
// no I/O, never mutate their input, and treat unknown ids as no-ops rather
// than errors. Callers that need a user-facing failure pre-check existence
// with FindSection. The one structural error is ErrLastSection: a document
// must always keep at least one section.
package doctree

import "errors"

// ErrLastSection is returned when a delete would leave the tree empty.
var ErrLastSection = errors.New("doctree: cannot delete the last section")

// FindSection returns the first section with the given id in depth-first
// order, or nil. The returned pointer is a read-only view into the tree.
func FindSection(sections []Section, id string) *Section {
	for i := range sections {
		if sections[i].ID == id {
			return &sections[i]
		}
		if found := FindSection(sections[i].Children, id); found != nil {
			return found
		}
	}
	return nil
}

// InsertSection returns a new tree with sec appended to the root list
// (empty parentID) or to the named parent's children. An unknown parentID
// is a silent no-op; callers pre-validate with FindSection.
func InsertSection(sections []Section, parentID string, sec Section) []Section {
	out := CloneTree(sections)
	if parentID == "" {
		sec.ParentID = ""
		return append(out, sec)
	}
	if parent := findMutable(out, parentID); parent != nil {
		sec.ParentID = parentID
		parent.Children = append(parent.Children, sec)
	}
	return out
}

// DeleteSection removes the section and its entire subtree, returning the
// new tree and every attachment id held by the removed blocks so the
// caller can release them from the blob store. Deleting the last remaining
// section is rejected with ErrLastSection and the tree is returned
// unchanged. An unknown id is a no-op.
func DeleteSection(sections []Section, id string) ([]Section, []string, error) {
	target := FindSection(sections, id)
	if target == nil {
		return sections, nil, nil
	}
	removed := countSubtree(*target)
	if CountSections(sections)-removed < 1 {
		return sections, nil, ErrLastSection
	}

	released := CollectAttachmentIDs([]Section{*target})
	out := removeByID(CloneTree(sections), id)
	return out, released, nil
}

// UpdateSectionTitle returns a new tree with the section's title replaced.
// Unknown ids are a no-op.
func UpdateSectionTitle(sections []Section, id, title string) []Section {
	out := CloneTree(sections)
	if s := findMutable(out, id); s != nil {
		s.Title = title
	}
	return out
}

// ReplaceSectionContent returns a new tree with the section's block list
// replaced. Unknown ids are a no-op.
func ReplaceSectionContent(sections []Section, id string, content []Block) []Section {
	out := CloneTree(sections)
	if s := findMutable(out, id); s != nil {
		s.Content = content
	}
	return out
}

// MoveSection reparents the section under newParentID ("" for root level),
// appending it to the destination's child list. The move is refused
// (returning the tree unchanged and false) when either id is unknown, when
// the destination is the section itself, or when it lies inside the
// section's own subtree.
func MoveSection(sections []Section, id, newParentID string) ([]Section, bool) {
	target := FindSection(sections, id)
	if target == nil || id == newParentID {
		return sections, false
	}
	if newParentID != "" {
		if FindSection(sections, newParentID) == nil {
			return sections, false
		}
		if FindSection(target.Children, newParentID) != nil {
			return sections, false // destination inside own subtree
		}
	}

	node := target.Clone()
	out := removeByID(CloneTree(sections), id)
	node.ParentID = newParentID
	if newParentID == "" {
		return append(out, node), true
	}
	parent := findMutable(out, newParentID)
	parent.Children = append(parent.Children, node)
	return out, true
}

// Flatten linearizes the tree depth-first, parent before children. The
// order defines export navigation (prev/next) and the first entry is the
// default landing section.
func Flatten(sections []Section) []Section {
	var out []Section
	var walk func([]Section)
	walk = func(list []Section) {
		for _, s := range list {
			out = append(out, s)
			walk(s.Children)
		}
	}
	walk(sections)
	return out
}

// CollectAttachmentIDs returns every attachment id referenced by media
// blocks anywhere in the tree, deduplicated, in encounter order.
func CollectAttachmentIDs(sections []Section) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range Flatten(sections) {
		for _, b := range s.Content {
			if b.AttachmentID != "" && !seen[b.AttachmentID] {
				seen[b.AttachmentID] = true
				out = append(out, b.AttachmentID)
			}
		}
	}
	return out
}

// CountSections returns the total number of sections in the tree.
func CountSections(sections []Section) int {
	n := 0
	for _, s := range sections {
		n += countSubtree(s)
	}
	return n
}

func countSubtree(s Section) int {
	n := 1
	for _, c := range s.Children {
		n += countSubtree(c)
	}
	return n
}

// findMutable is FindSection over an owned (already cloned) tree, returning
// a pointer safe to write through.
func findMutable(sections []Section, id string) *Section {
	return FindSection(sections, id)
}

// removeByID strips the first section with the given id from an owned tree.
func removeByID(sections []Section, id string) []Section {
	for i := range sections {
		if sections[i].ID == id {
			return append(sections[:i], sections[i+1:]...)
		}
		sections[i].Children = removeByID(sections[i].Children, id)
	}
	return sections
}
