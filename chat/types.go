package chat

import (
	"github.com/mlefebvre/ragtree/document"
	"github.com/mlefebvre/ragtree/knowledge"
)

// ChunkResult is one retrieved chunk with its similarity score.
type ChunkResult struct {
	ChunkID       string
	DocID         string
	ParentID      string
	Level         document.Level
	FileName      string
	Category      string
	HierarchyPath string
	Content       string
	Score         float64

	// Merged marks results where sibling chunks were replaced by their
	// shared coarser ancestor.
	Merged bool
}

// Source is a per-document answer citation.
type Source struct {
	DocID         string
	FileName      string
	Category      string
	HierarchyPath string
	Snippet       string
	Score         float64
	Merged        bool
	Insight       knowledge.Insight
}

type Response struct {
	Answer  string
	Sources []Source
}
