// Package splitter implements hierarchical document chunking for
// auto-merging retrieval. A document is split into up to three levels of
// overlapping word windows (parent, child, grandchild); every chunk at a
// finer level links to the coarser chunk whose window overlaps it most.
// Chunk IDs are deterministic functions of the input, so re-running the
// splitter on an unchanged batch produces identical output.
package splitter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/mlefebvre/ragtree/document"
)

// Config holds the per-level window sizes and the shared overlap, all in
// words. Sizes must satisfy parent > child > grandchild.
type Config struct {
	ParentSize     int
	ChildSize      int
	GrandchildSize int
	Overlap        int
}

// DefaultConfig mirrors the sizes the indexing pipeline uses when nothing
// is configured.
func DefaultConfig() Config {
	return Config{
		ParentSize:     2000,
		ChildSize:      500,
		GrandchildSize: 150,
		Overlap:        50,
	}
}

type Splitter struct {
	cfg    Config
	logger *log.Logger
}

// New validates cfg and returns a Splitter. Invalid size ordering is a
// construction error and is never retried.
func New(cfg Config, logger *log.Logger) (*Splitter, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.GrandchildSize <= 0 {
		return nil, fmt.Errorf("grandchild chunk size must be positive, got %d", cfg.GrandchildSize)
	}
	if !(cfg.ParentSize > cfg.ChildSize && cfg.ChildSize > cfg.GrandchildSize) {
		return nil, fmt.Errorf("chunk sizes must follow parent > child > grandchild, got %d/%d/%d",
			cfg.ParentSize, cfg.ChildSize, cfg.GrandchildSize)
	}
	if cfg.Overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", cfg.Overlap)
	}
	return &Splitter{cfg: cfg, logger: logger}, nil
}

// SplitDocuments splits every document in batch order and concatenates the
// per-document chunk lists. Documents are independent; no linkage crosses
// document boundaries. When levels is empty all three levels are produced.
// Empty documents contribute zero chunks and do not fail the batch.
func (s *Splitter) SplitDocuments(docs []document.Document, levels ...document.Level) []document.Chunk {
	requested := normalizeLevels(levels)

	all := make([]document.Chunk, 0)
	for idx, doc := range docs {
		words := strings.Fields(doc.Content)
		if len(words) == 0 {
			name := doc.Meta.FileName
			if name == "" {
				name = "unknown"
			}
			s.logger.Printf("skipping empty document: %s", name)
			continue
		}

		docID := DocID(doc, idx)
		all = append(all, s.splitDocument(words, docID, doc.Meta, requested)...)
	}

	s.logger.Printf("created %d chunks from %d documents", len(all), len(docs))
	return all
}

func (s *Splitter) splitDocument(words []string, docID string, meta document.Metadata, levels []document.Level) []document.Chunk {
	// Documents that fit inside a single grandchild window are not split
	// at all: one grandchild chunk spanning the whole document, no parent.
	if len(words) <= s.cfg.GrandchildSize {
		chunk := buildChunk(words, Interval{Start: 0, End: len(words)}, document.LevelGrandchild, 0, docID, meta)
		chunk.TotalChunks = 1
		return []document.Chunk{chunk}
	}

	generated := make(map[document.Level][]document.Chunk, len(levels))
	out := make([]document.Chunk, 0)

	for _, level := range levels {
		chunks := s.buildLevel(words, level, docID, meta)
		generated[level] = chunks
	}

	// Linkage runs finer to coarser: each level links to the nearest
	// coarser level that was actually generated, falling back past absent
	// levels, and to a virtual parent when nothing coarser exists.
	if chunks, ok := generated[document.LevelChild]; ok {
		if parents, ok := generated[document.LevelParent]; ok && len(parents) > 0 {
			AssignParents(chunks, parents)
		} else {
			assignVirtualParent(chunks, docID)
		}
	}
	if chunks, ok := generated[document.LevelGrandchild]; ok {
		if children, ok := generated[document.LevelChild]; ok && len(children) > 0 {
			AssignParents(chunks, children)
		} else if parents, ok := generated[document.LevelParent]; ok && len(parents) > 0 {
			AssignParents(chunks, parents)
		} else {
			assignVirtualParent(chunks, docID)
		}
	}

	for _, level := range document.Levels() {
		if chunks, ok := generated[level]; ok {
			out = append(out, chunks...)
		}
	}
	return out
}

func (s *Splitter) buildLevel(words []string, level document.Level, docID string, meta document.Metadata) []document.Chunk {
	size := s.sizeFor(level)
	intervals := Windows(len(words), size, s.cfg.Overlap)

	chunks := make([]document.Chunk, 0, len(intervals))
	for i, interval := range intervals {
		chunks = append(chunks, buildChunk(words, interval, level, i, docID, meta))
	}
	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

func (s *Splitter) sizeFor(level document.Level) int {
	switch level {
	case document.LevelParent:
		return s.cfg.ParentSize
	case document.LevelChild:
		return s.cfg.ChildSize
	default:
		return s.cfg.GrandchildSize
	}
}

func buildChunk(words []string, interval Interval, level document.Level, index int, docID string, meta document.Metadata) document.Chunk {
	return document.Chunk{
		ID:      ChunkID(docID, level, index),
		DocID:   docID,
		Level:   level,
		Index:   index,
		Start:   interval.Start,
		End:     interval.End,
		Content: strings.Join(words[interval.Start:interval.End], " "),
		Meta:    meta.Clone(),
	}
}

func assignVirtualParent(chunks []document.Chunk, docID string) {
	id := VirtualParentID(docID)
	for i := range chunks {
		chunks[i].ParentID = id
	}
}

// normalizeLevels filters the requested levels down to known values in
// canonical coarse-to-fine order, defaulting to all three.
func normalizeLevels(levels []document.Level) []document.Level {
	if len(levels) == 0 {
		return document.Levels()
	}
	requested := make(map[document.Level]bool, len(levels))
	for _, level := range levels {
		if level.Valid() {
			requested[level] = true
		}
	}
	out := make([]document.Level, 0, len(requested))
	for _, level := range document.Levels() {
		if requested[level] {
			out = append(out, level)
		}
	}
	if len(out) == 0 {
		return document.Levels()
	}
	return out
}

// Interval is a half-open word-index range [Start, End) into a document's
// word sequence.
type Interval struct {
	Start int
	End   int
}

// Windows generates the window intervals for one level: windows start at
// zero and advance by size-overlap (at least one word) until a window
// reaches the end of the sequence. The final partial window is included
// exactly once.
func Windows(total, size, overlap int) []Interval {
	if total <= 0 || size <= 0 {
		return nil
	}

	step := size - overlap
	if step < 1 {
		step = 1
	}

	intervals := make([]Interval, 0, (total+step-1)/step)
	for start := 0; start < total; start += step {
		end := start + size
		if end > total {
			end = total
		}
		intervals = append(intervals, Interval{Start: start, End: end})
		if end >= total {
			break
		}
	}
	return intervals
}

// AssignParents links each fine chunk to the coarse chunk with the maximum
// word-interval overlap. Ties keep the first coarse chunk seen (strictly
// greater comparison); a fine chunk with zero overlap everywhere keeps its
// current ParentID.
func AssignParents(fine, coarse []document.Chunk) {
	for i := range fine {
		best := -1
		bestOverlap := 0
		for j := range coarse {
			overlap := intervalOverlap(fine[i].Start, fine[i].End, coarse[j].Start, coarse[j].End)
			if overlap > bestOverlap {
				bestOverlap = overlap
				best = j
			}
		}
		if best >= 0 {
			fine[i].ParentID = coarse[best].ID
		}
	}
}

func intervalOverlap(aStart, aEnd, bStart, bEnd int) int {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if end <= start {
		return 0
	}
	return end - start
}

// DocID derives the batch-unique document identifier: the file name when
// present, otherwise a short content digest, disambiguated by the
// document's batch index.
func DocID(doc document.Document, index int) string {
	base := doc.Meta.FileName
	if base == "" {
		sum := sha256.Sum256([]byte(doc.Content))
		base = "doc_" + hex.EncodeToString(sum[:])[:8]
	}
	return fmt.Sprintf("%s_%d", base, index)
}

// ChunkID is deterministic and reproducible from its inputs alone, which
// keeps re-indexing of unchanged documents idempotent.
func ChunkID(docID string, level document.Level, index int) string {
	return fmt.Sprintf("%s_%s_%d", docID, level, index)
}

// VirtualParentID names the synthesized parent used when no coarser level
// was generated for a document.
func VirtualParentID(docID string) string {
	return docID + "_virtual_parent"
}

// IsVirtualParent reports whether id names a synthesized parent rather
// than a stored chunk.
func IsVirtualParent(id string) bool {
	return strings.HasSuffix(id, "_virtual_parent")
}
