package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaEmbedderBatches(t *testing.T) {
	var gotInput []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotInput = req.Input

		vectors := make([][]float32, len(req.Input))
		for i := range vectors {
			vectors[i] = []float32{1, 2, 3}
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: vectors})
	}))
	defer server.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: server.URL, Model: "test-embed", Dimension: 3})
	vectors, err := embedder.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if len(gotInput) != 2 || gotInput[0] != "alpha" {
		t.Fatalf("texts not sent as one batch: %v", gotInput)
	}
}

func TestOllamaEmbedderDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 2}}})
	}))
	defer server.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: server.URL, Model: "test-embed", Dimension: 3})
	if _, err := embedder.Embed(context.Background(), []string{"alpha"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestOllamaEmbedderEmptyInput(t *testing.T) {
	embedder := NewOllamaEmbedder(Options{OllamaHost: "http://localhost:0", Model: "test-embed"})
	vectors, err := embedder.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vectors != nil {
		t.Fatalf("expected no vectors, got %v", vectors)
	}
}
