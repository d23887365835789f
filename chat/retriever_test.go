package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/mlefebvre/ragtree/document"
)

type stubVectorStore struct {
	similar    []ChunkResult
	similarErr error
	byID       map[string]ChunkResult
	byIDErr    error

	lastLevel document.Level
	lastIDs   []string
}

func (s *stubVectorStore) SimilarChunks(_ context.Context, _ []float32, _ int, level document.Level) ([]ChunkResult, error) {
	s.lastLevel = level
	return s.similar, s.similarErr
}

func (s *stubVectorStore) ChunksByID(_ context.Context, ids []string) (map[string]ChunkResult, error) {
	s.lastIDs = ids
	if s.byIDErr != nil {
		return nil, s.byIDErr
	}
	return s.byID, nil
}

func TestRetrieveMergesSiblingsIntoParent(t *testing.T) {
	store := &stubVectorStore{
		similar: []ChunkResult{
			{ChunkID: "doc_0_grandchild_0", DocID: "doc_0", ParentID: "doc_0_child_0", Score: 0.9},
			{ChunkID: "doc_0_grandchild_1", DocID: "doc_0", ParentID: "doc_0_child_0", Score: 0.7},
			{ChunkID: "doc_0_grandchild_5", DocID: "doc_0", ParentID: "doc_0_child_2", Score: 0.6},
		},
		byID: map[string]ChunkResult{
			"doc_0_child_0": {ChunkID: "doc_0_child_0", DocID: "doc_0", Level: document.LevelChild, Content: "merged parent text"},
		},
	}

	retriever := NewRetriever(store, nil)
	results, err := retriever.Retrieve(context.Background(), []float32{0.1}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.lastLevel != document.LevelGrandchild {
		t.Errorf("expected search at grandchild level, got %q", store.lastLevel)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results after merge, got %d", len(results))
	}

	parent := results[0]
	if parent.ChunkID != "doc_0_child_0" {
		t.Errorf("expected merged parent first, got %q", parent.ChunkID)
	}
	if !parent.Merged {
		t.Error("expected merged chunk to be flagged")
	}
	if parent.Score != 0.9 {
		t.Errorf("expected parent to take the best sibling score 0.9, got %v", parent.Score)
	}
	if results[1].ChunkID != "doc_0_grandchild_5" {
		t.Errorf("expected lone sibling to stay as-is, got %q", results[1].ChunkID)
	}
}

func TestRetrieveDoesNotMergeBelowThreshold(t *testing.T) {
	store := &stubVectorStore{
		similar: []ChunkResult{
			{ChunkID: "doc_0_grandchild_0", DocID: "doc_0", ParentID: "doc_0_child_0", Score: 0.9},
			{ChunkID: "doc_0_grandchild_4", DocID: "doc_0", ParentID: "doc_0_child_1", Score: 0.8},
		},
	}

	retriever := NewRetriever(store, nil)
	results, err := retriever.Retrieve(context.Background(), []float32{0.1}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 unmerged results, got %d", len(results))
	}
	for _, chunk := range results {
		if chunk.Merged {
			t.Errorf("chunk %q should not be merged", chunk.ChunkID)
		}
	}
	if store.lastIDs != nil {
		t.Errorf("no parent expansion expected, got lookup for %v", store.lastIDs)
	}
}

func TestRetrieveSkipsVirtualParents(t *testing.T) {
	store := &stubVectorStore{
		similar: []ChunkResult{
			{ChunkID: "tiny.txt_0_grandchild_0", DocID: "tiny.txt_0", ParentID: "tiny.txt_0_virtual_parent", Score: 0.9},
			{ChunkID: "tiny.txt_0_grandchild_1", DocID: "tiny.txt_0", ParentID: "tiny.txt_0_virtual_parent", Score: 0.8},
			{ChunkID: "small.md_1_grandchild_0", DocID: "small.md_1", ParentID: "", Score: 0.7},
		},
	}

	retriever := NewRetriever(store, nil)
	results, err := retriever.Retrieve(context.Background(), []float32{0.1}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected all 3 fine chunks, got %d", len(results))
	}
	if store.lastIDs != nil {
		t.Errorf("virtual parents must never trigger expansion, got %v", store.lastIDs)
	}
}

func TestRetrieveFallsBackWhenExpansionFails(t *testing.T) {
	store := &stubVectorStore{
		similar: []ChunkResult{
			{ChunkID: "doc_0_grandchild_0", DocID: "doc_0", ParentID: "doc_0_child_0", Score: 0.9},
			{ChunkID: "doc_0_grandchild_1", DocID: "doc_0", ParentID: "doc_0_child_0", Score: 0.8},
		},
		byIDErr: errors.New("connection reset"),
	}

	retriever := NewRetriever(store, nil)
	results, err := retriever.Retrieve(context.Background(), []float32{0.1}, 2)
	if err != nil {
		t.Fatalf("expected graceful fallback, got error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 fine chunks on fallback, got %d", len(results))
	}
}

func TestRetrieveEmptyResults(t *testing.T) {
	retriever := NewRetriever(&stubVectorStore{}, nil)
	results, err := retriever.Retrieve(context.Background(), []float32{0.1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestRetrieveSearchError(t *testing.T) {
	store := &stubVectorStore{similarErr: errors.New("index offline")}
	retriever := NewRetriever(store, nil)
	if _, err := retriever.Retrieve(context.Background(), []float32{0.1}, 5); err == nil {
		t.Fatal("expected error from vector search")
	}
}
