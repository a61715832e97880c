package doctree

import (
	"time"

	"github.com/skaldworks/skald/idgen"
)

// BlockType identifies the content kind of a Block.
type BlockType string

const (
	BlockParagraph  BlockType = "paragraph"
	BlockH1         BlockType = "h1"
	BlockH2         BlockType = "h2"
	BlockH3         BlockType = "h3"
	BlockImage      BlockType = "image"
	BlockPDF        BlockType = "pdf"
	BlockVideo      BlockType = "video"
	BlockLink       BlockType = "link"
	BlockTable      BlockType = "table"
	BlockBulletList BlockType = "bulletList"
	BlockNavigation BlockType = "navigation"
)

// IsMedia reports whether the block kind carries a blob-store attachment.
func (t BlockType) IsMedia() bool {
	return t == BlockImage || t == BlockPDF || t == BlockVideo
}

// ImageSize is the display width preset of an image block.
type ImageSize string

const (
	SizeSmall  ImageSize = "small"
	SizeMedium ImageSize = "medium"
	SizeLarge  ImageSize = "large"
	SizeFull   ImageSize = "full"
)

// BulletStyle is the list marker of a bulletList block. Decimal renders as
// an ordered list, the rest as unordered.
type BulletStyle string

const (
	BulletDisc    BulletStyle = "disc"
	BulletCircle  BulletStyle = "circle"
	BulletSquare  BulletStyle = "square"
	BulletDecimal BulletStyle = "decimal"
)

// Cell is one table cell. Formatting is an optional presentation hint
// ("bold", "italic") applied as a CSS class at render time.
type Cell struct {
	Content    string `json:"content"`
	Formatting string `json:"formatting,omitempty"`
}

// NavItem is one in-document jump link of a navigation block.
type NavItem struct {
	ID              string `json:"id"`
	Label           string `json:"label"`
	TargetSectionID string `json:"targetSectionId,omitempty"`
}

// Block is one typed unit of content within a section. It is a tagged
// union: Type selects which of the kind-specific fields are meaningful.
//
// AttachmentData is the session-resolved display reference for media
// blocks. It is ephemeral: the hydration engine fills it on load and strips
// it before save. Legacy records may still carry inline data here, which is
// why the field stays on the wire (migration reads it, dehydration clears
// it).
type Block struct {
	ID      string    `json:"id"`
	Type    BlockType `json:"type"`
	Content string    `json:"content,omitempty"`

	AttachmentID   string `json:"attachmentId,omitempty"`
	AttachmentName string `json:"attachmentName,omitempty"`
	AttachmentType string `json:"attachmentType,omitempty"`
	AttachmentData string `json:"attachmentData,omitempty"`

	ImageSize   ImageSize   `json:"imageSize,omitempty"`
	TableData   [][]Cell    `json:"tableData,omitempty"`
	BulletStyle BulletStyle `json:"bulletStyle,omitempty"`
	NavItems    []NavItem   `json:"navItems,omitempty"`
}

// Section is a titled node in the document tree: ordered content blocks
// plus optional child sections. ParentID is empty for root sections.
type Section struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Content  []Block   `json:"content"`
	Children []Section `json:"children,omitempty"`
	ParentID string    `json:"parentId,omitempty"`
}

// DocumentContent wraps the section forest. Kept as its own type so the
// persisted JSON shape ({"sections": [...]}) survives format evolution.
type DocumentContent struct {
	Sections []Section `json:"sections"`
}

// Document is the persistence unit: one owner, one section tree.
type Document struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"ownerId"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Content      DocumentContent `json:"content"`
	LastModified time.Time       `json:"lastModified"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// NewDocument creates a document with a single empty root section, the
// minimum valid tree.
func NewDocument(ownerID, title string) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:      idgen.Prefixed("doc_", idgen.Default)(),
		OwnerID: ownerID,
		Title:   title,
		Content: DocumentContent{
			Sections: []Section{NewSection(title)},
		},
		LastModified: now,
		CreatedAt:    now,
	}
}

// NewSection creates an empty section with a generated id.
func NewSection(title string) Section {
	return Section{
		ID:      idgen.Prefixed("sec_", idgen.Default)(),
		Title:   title,
		Content: []Block{},
	}
}

// NewBlock creates a block of the given kind with a generated id.
// Table and bulletList kinds get their minimal valid shape (1x1 grid,
// disc markers).
func NewBlock(t BlockType) Block {
	b := Block{
		ID:   idgen.Prefixed("blk_", idgen.Default)(),
		Type: t,
	}
	switch t {
	case BlockTable:
		b.TableData = [][]Cell{{{}}}
	case BlockBulletList:
		b.BulletStyle = BulletDisc
	case BlockImage:
		b.ImageSize = SizeMedium
	}
	return b
}

// Clone returns a deep copy of the block.
func (b Block) Clone() Block {
	out := b
	if b.TableData != nil {
		out.TableData = make([][]Cell, len(b.TableData))
		for i, row := range b.TableData {
			out.TableData[i] = append([]Cell(nil), row...)
		}
	}
	if b.NavItems != nil {
		out.NavItems = append([]NavItem(nil), b.NavItems...)
	}
	return out
}

// Clone returns a deep copy of the section subtree.
func (s Section) Clone() Section {
	out := s
	out.Content = make([]Block, len(s.Content))
	for i, b := range s.Content {
		out.Content[i] = b.Clone()
	}
	if s.Children != nil {
		out.Children = make([]Section, len(s.Children))
		for i, c := range s.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// CloneTree returns a deep copy of a section forest.
func CloneTree(sections []Section) []Section {
	out := make([]Section, len(sections))
	for i, s := range sections {
		out[i] = s.Clone()
	}
	return out
}

// Clone returns a deep copy of the document, safe to mutate or persist
// while the original keeps changing (snapshot-by-value saves rely on this).
func (d *Document) Clone() *Document {
	out := *d
	out.Content.Sections = CloneTree(d.Content.Sections)
	return &out
}
