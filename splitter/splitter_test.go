package splitter

import (
	"fmt"
	"io"
	"log"
	"reflect"
	"strings"
	"testing"

	"github.com/mlefebvre/ragtree/document"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestSplitter(t *testing.T, cfg Config) *Splitter {
	t.Helper()
	s, err := New(cfg, quietLogger())
	if err != nil {
		t.Fatalf("new splitter: %v", err)
	}
	return s
}

func wordsDocument(n int, fileName string) document.Document {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return document.Document{
		Content: strings.Join(words, " "),
		Meta:    document.Metadata{FileName: fileName, Source: "test"},
	}
}

func TestNewRejectsBadSizeOrdering(t *testing.T) {
	cases := []Config{
		{ParentSize: 500, ChildSize: 500, GrandchildSize: 150, Overlap: 50},
		{ParentSize: 100, ChildSize: 500, GrandchildSize: 150, Overlap: 50},
		{ParentSize: 2000, ChildSize: 100, GrandchildSize: 150, Overlap: 50},
		{ParentSize: 2000, ChildSize: 500, GrandchildSize: 0, Overlap: 50},
		{ParentSize: 2000, ChildSize: 500, GrandchildSize: 150, Overlap: -1},
	}
	for i, cfg := range cases {
		if _, err := New(cfg, quietLogger()); err == nil {
			t.Fatalf("case %d: expected construction error for %+v", i, cfg)
		}
	}
}

func TestWindowsCoverAndTerminate(t *testing.T) {
	cases := []struct {
		total, size, overlap int
	}{
		{1000, 500, 50},
		{1000, 150, 50},
		{3000, 2000, 50},
		{7, 3, 1},
		{150, 150, 50},
		{151, 150, 50},
		{10, 3, 3}, // step clamps to 1
	}

	for _, tc := range cases {
		intervals := Windows(tc.total, tc.size, tc.overlap)
		if len(intervals) == 0 {
			t.Fatalf("Windows(%d,%d,%d): no intervals", tc.total, tc.size, tc.overlap)
		}
		if intervals[0].Start != 0 {
			t.Fatalf("Windows(%d,%d,%d): first interval starts at %d", tc.total, tc.size, tc.overlap, intervals[0].Start)
		}
		last := intervals[len(intervals)-1]
		if last.End != tc.total {
			t.Fatalf("Windows(%d,%d,%d): last interval ends at %d, want %d", tc.total, tc.size, tc.overlap, last.End, tc.total)
		}

		seen := make(map[Interval]bool)
		covered := make([]bool, tc.total)
		prevStart := -1
		for _, iv := range intervals {
			if iv.Start <= prevStart {
				t.Fatalf("Windows(%d,%d,%d): starts not strictly increasing", tc.total, tc.size, tc.overlap)
			}
			prevStart = iv.Start
			if seen[iv] {
				t.Fatalf("Windows(%d,%d,%d): duplicate interval %+v", tc.total, tc.size, tc.overlap, iv)
			}
			seen[iv] = true
			if iv.End-iv.Start > tc.size || iv.End <= iv.Start {
				t.Fatalf("Windows(%d,%d,%d): malformed interval %+v", tc.total, tc.size, tc.overlap, iv)
			}
			for w := iv.Start; w < iv.End; w++ {
				covered[w] = true
			}
		}
		for w, ok := range covered {
			if !ok {
				t.Fatalf("Windows(%d,%d,%d): word %d uncovered", tc.total, tc.size, tc.overlap, w)
			}
		}
	}
}

func TestWindowsDegenerateInputs(t *testing.T) {
	if got := Windows(0, 100, 10); got != nil {
		t.Fatalf("expected no windows for empty sequence, got %v", got)
	}
	if got := Windows(100, 0, 10); got != nil {
		t.Fatalf("expected no windows for zero size, got %v", got)
	}
}

func TestChildOnlyScenario(t *testing.T) {
	// 1000 words, child=500, overlap=50: exactly [0,500) [450,950) [900,1000),
	// each linked to the synthesized virtual parent.
	s := newTestSplitter(t, DefaultConfig())
	doc := wordsDocument(1000, "guide.txt")

	chunks := s.SplitDocuments([]document.Document{doc}, document.LevelChild)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 child chunks, got %d", len(chunks))
	}

	want := []Interval{{0, 500}, {450, 950}, {900, 1000}}
	for i, chunk := range chunks {
		if chunk.Level != document.LevelChild {
			t.Fatalf("chunk %d: level %s, want child", i, chunk.Level)
		}
		if chunk.Start != want[i].Start || chunk.End != want[i].End {
			t.Fatalf("chunk %d: interval [%d,%d), want [%d,%d)", i, chunk.Start, chunk.End, want[i].Start, want[i].End)
		}
		if chunk.TotalChunks != 3 {
			t.Fatalf("chunk %d: total_chunks %d, want 3", i, chunk.TotalChunks)
		}
		if chunk.ParentID != "guide.txt_0_virtual_parent" {
			t.Fatalf("chunk %d: parent %q, want virtual parent", i, chunk.ParentID)
		}
		if !IsVirtualParent(chunk.ParentID) {
			t.Fatalf("chunk %d: parent %q not recognised as virtual", i, chunk.ParentID)
		}
	}
}

func TestDefaultLevelsScenario(t *testing.T) {
	// 3000 words with default sizes: two parent chunks [0,2000) [1950,3000);
	// every finer chunk resolves to one of them through the level chain.
	s := newTestSplitter(t, DefaultConfig())
	doc := wordsDocument(3000, "handbook.md")

	chunks := s.SplitDocuments([]document.Document{doc})

	byLevel := make(map[document.Level][]document.Chunk)
	byID := make(map[string]document.Chunk)
	for _, chunk := range chunks {
		byLevel[chunk.Level] = append(byLevel[chunk.Level], chunk)
		byID[chunk.ID] = chunk
	}

	parents := byLevel[document.LevelParent]
	if len(parents) != 2 {
		t.Fatalf("expected 2 parent chunks, got %d", len(parents))
	}
	if parents[0].Start != 0 || parents[0].End != 2000 || parents[1].Start != 1950 || parents[1].End != 3000 {
		t.Fatalf("unexpected parent intervals: [%d,%d) [%d,%d)",
			parents[0].Start, parents[0].End, parents[1].Start, parents[1].End)
	}
	for _, parent := range parents {
		if parent.ParentID != "" {
			t.Fatalf("parent chunk %s has non-empty parent %q", parent.ID, parent.ParentID)
		}
	}

	for _, child := range byLevel[document.LevelChild] {
		parent, ok := byID[child.ParentID]
		if !ok || parent.Level != document.LevelParent {
			t.Fatalf("child %s: parent %q does not resolve to a parent chunk", child.ID, child.ParentID)
		}
	}
	for _, grandchild := range byLevel[document.LevelGrandchild] {
		parent, ok := byID[grandchild.ParentID]
		if !ok || parent.Level != document.LevelChild {
			t.Fatalf("grandchild %s: parent %q does not resolve to a child chunk", grandchild.ID, grandchild.ParentID)
		}
	}

	// Output order is parent, then child, then grandchild.
	lastRank := 0
	rank := map[document.Level]int{document.LevelParent: 1, document.LevelChild: 2, document.LevelGrandchild: 3}
	for _, chunk := range chunks {
		if rank[chunk.Level] < lastRank {
			t.Fatalf("chunk %s out of level order", chunk.ID)
		}
		lastRank = rank[chunk.Level]
	}
}

func TestGrandchildFallsBackToParent(t *testing.T) {
	s := newTestSplitter(t, DefaultConfig())
	doc := wordsDocument(3000, "notes.txt")

	chunks := s.SplitDocuments([]document.Document{doc}, document.LevelParent, document.LevelGrandchild)

	byID := make(map[string]document.Chunk)
	for _, chunk := range chunks {
		byID[chunk.ID] = chunk
	}
	for _, chunk := range chunks {
		switch chunk.Level {
		case document.LevelParent:
			if chunk.ParentID != "" {
				t.Fatalf("parent chunk %s should have no parent", chunk.ID)
			}
		case document.LevelGrandchild:
			parent, ok := byID[chunk.ParentID]
			if !ok || parent.Level != document.LevelParent {
				t.Fatalf("grandchild %s: expected a parent-level ancestor, got %q", chunk.ID, chunk.ParentID)
			}
		default:
			t.Fatalf("unexpected level %s in output", chunk.Level)
		}
	}
}

func TestSmallDocumentSingleGrandchild(t *testing.T) {
	s := newTestSplitter(t, DefaultConfig())
	doc := wordsDocument(120, "tiny.txt")

	chunks := s.SplitDocuments([]document.Document{doc})
	if len(chunks) != 1 {
		t.Fatalf("expected a single chunk, got %d", len(chunks))
	}
	chunk := chunks[0]
	if chunk.Level != document.LevelGrandchild {
		t.Fatalf("expected grandchild level, got %s", chunk.Level)
	}
	if chunk.Start != 0 || chunk.End != 120 || chunk.TotalChunks != 1 {
		t.Fatalf("unexpected chunk shape: start=%d end=%d total=%d", chunk.Start, chunk.End, chunk.TotalChunks)
	}
	if chunk.ParentID != "" {
		t.Fatalf("small-document chunk should have no parent, got %q", chunk.ParentID)
	}
}

func TestEmptyDocumentSkipped(t *testing.T) {
	s := newTestSplitter(t, DefaultConfig())
	docs := []document.Document{
		{Content: "   \n\t  ", Meta: document.Metadata{FileName: "blank.txt"}},
		wordsDocument(120, "tiny.txt"),
	}

	chunks := s.SplitDocuments(docs)
	if len(chunks) != 1 {
		t.Fatalf("expected only the non-empty document to produce chunks, got %d", len(chunks))
	}
	// Batch index still counts the skipped document.
	if chunks[0].DocID != "tiny.txt_1" {
		t.Fatalf("doc id %q does not reflect global batch position", chunks[0].DocID)
	}
}

func TestSplitIsIdempotent(t *testing.T) {
	s := newTestSplitter(t, DefaultConfig())
	docs := []document.Document{
		wordsDocument(3000, "a.md"),
		wordsDocument(700, ""),
		wordsDocument(90, "c.md"),
	}

	first := s.SplitDocuments(docs)
	second := s.SplitDocuments(docs)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("two runs over identical input produced different chunks")
	}
}

func TestDocIDDisambiguation(t *testing.T) {
	named := wordsDocument(10, "same.txt")
	if got := DocID(named, 3); got != "same.txt_3" {
		t.Fatalf("named doc id: %q", got)
	}

	anon := wordsDocument(10, "")
	got := DocID(anon, 0)
	if !strings.HasPrefix(got, "doc_") || !strings.HasSuffix(got, "_0") {
		t.Fatalf("anonymous doc id: %q", got)
	}
	if len(got) != len("doc_")+8+len("_0") {
		t.Fatalf("anonymous doc id should embed an 8-hex digest: %q", got)
	}
	if again := DocID(anon, 0); again != got {
		t.Fatalf("content hash not deterministic: %q vs %q", got, again)
	}
}

func TestAssignParentsMaxOverlapFirstWins(t *testing.T) {
	coarse := []document.Chunk{
		{ID: "p0", Start: 0, End: 100},
		{ID: "p1", Start: 100, End: 200},
	}

	fine := []document.Chunk{
		{ID: "f0", Start: 10, End: 40},   // inside p0
		{ID: "f1", Start: 90, End: 120},  // 10 words in p0, 20 in p1
		{ID: "f2", Start: 50, End: 150},  // exact tie: 50 in each, first wins
		{ID: "f3", Start: 300, End: 320}, // no overlap anywhere
	}

	AssignParents(fine, coarse)

	want := []string{"p0", "p1", "p0", ""}
	for i, chunk := range fine {
		if chunk.ParentID != want[i] {
			t.Fatalf("%s: parent %q, want %q", chunk.ID, chunk.ParentID, want[i])
		}
	}
}

func TestChunkContentPreservesTokenBoundaries(t *testing.T) {
	s := newTestSplitter(t, Config{ParentSize: 20, ChildSize: 8, GrandchildSize: 4, Overlap: 2})
	doc := document.Document{
		Content: "one  two\tthree\nfour five six seven eight nine ten",
		Meta:    document.Metadata{FileName: "ws.txt"},
	}

	chunks := s.SplitDocuments([]document.Document{doc}, document.LevelGrandchild)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	first := chunks[0]
	if first.Content != "one two three four" {
		t.Fatalf("chunk content %q should be the space-joined word slice", first.Content)
	}
	if got := first.Words(); got != 4 {
		t.Fatalf("expected 4 words, got %d", got)
	}
}

func TestChunkMetadataIsCopied(t *testing.T) {
	s := newTestSplitter(t, DefaultConfig())
	doc := wordsDocument(400, "meta.txt")
	doc.Meta.Category = "ops"
	doc.Meta.Extra = map[string]string{"repo": "acme/infra"}

	chunks := s.SplitDocuments([]document.Document{doc})
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	chunks[0].Meta.Extra["repo"] = "mutated"
	if doc.Meta.Extra["repo"] != "acme/infra" {
		t.Fatal("chunk metadata shares the source document's Extra map")
	}
	for _, chunk := range chunks {
		if chunk.Meta.Category != "ops" {
			t.Fatalf("chunk %s lost source metadata", chunk.ID)
		}
	}
}
