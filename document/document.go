// Package document defines the records that flow through the ingestion
// pipeline: raw documents with hierarchy metadata and the chunks the
// splitter derives from them.
package document

import "time"

// Level identifies one granularity tier of the chunk tree, ordered
// coarse to fine: parent, child, grandchild.
type Level string

const (
	LevelParent     Level = "parent"
	LevelChild      Level = "child"
	LevelGrandchild Level = "grandchild"
)

// Levels returns all levels in coarse-to-fine order.
func Levels() []Level {
	return []Level{LevelParent, LevelChild, LevelGrandchild}
}

// Valid reports whether l names a known level.
func (l Level) Valid() bool {
	switch l {
	case LevelParent, LevelChild, LevelGrandchild:
		return true
	}
	return false
}

// Metadata carries provenance and hierarchy attributes for a document.
// Fields the core does not consume travel in Extra. An empty Subcategory
// means the document has none.
type Metadata struct {
	Source        string
	FileName      string
	FilePath      string
	FileType      string
	FileSizeBytes int64
	ModifiedAt    time.Time
	CreatedAt     time.Time

	Category       string
	Subcategory    string
	HierarchyPath  string
	HierarchyLevel int

	// FolderID is set for cloud-drive documents only.
	FolderID string

	Extra map[string]string
}

// Clone returns a copy of m with its own Extra map, so chunk metadata
// can be extended without touching the source document.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Extra != nil {
		out.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Document is one unit of ingested content. Content is immutable once
// created; pipeline stages only extend Meta.
type Document struct {
	Content string
	Meta    Metadata
}

// Chunk is a contiguous word-window excerpt of a source document at one
// granularity level. Start and End are half-open word indexes into the
// source document's word sequence.
type Chunk struct {
	ID          string
	DocID       string
	Level       Level
	Index       int
	Start       int
	End         int
	TotalChunks int

	// ParentID is the chunk ID of the best-overlapping chunk at the next
	// coarser generated level, a virtual-parent ID when no coarser level
	// was generated, or empty at the coarsest generated level.
	ParentID string

	Content string
	Meta    Metadata
}

// Words returns the number of words the chunk spans.
func (c Chunk) Words() int {
	return c.End - c.Start
}
