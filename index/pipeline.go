// Package index drives the indexing pipeline: hierarchical splitting,
// batched embedding, transactional chunk persistence, and hierarchy graph
// sync.
package index

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/mlefebvre/ragtree/document"
	"github.com/mlefebvre/ragtree/embeddings"
	"github.com/mlefebvre/ragtree/knowledge"
	"github.com/mlefebvre/ragtree/splitter"
)

const defaultEmbedBatchSize = 32

type Pipeline struct {
	store     Store
	driver    neo4j.DriverWithContext
	embedder  embeddings.Embedder
	splitter  *splitter.Splitter
	logger    *log.Logger
	dimension int
	batchSize int
}

type Stats struct {
	Documents     int
	ChunksCreated int
	ChunksWritten int
}

// NewPipeline wires the pipeline. driver may be nil, in which case graph
// sync is skipped.
func NewPipeline(store Store, driver neo4j.DriverWithContext, embedder embeddings.Embedder, split *splitter.Splitter, logger *log.Logger, dimension int) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		store:     store,
		driver:    driver,
		embedder:  embedder,
		splitter:  split,
		logger:    logger,
		dimension: dimension,
		batchSize: defaultEmbedBatchSize,
	}
}

// IndexDocuments splits docs into a chunk tree, embeds every chunk, and
// upserts the result. Passing levels restricts which tiers are generated;
// the default is all three.
func (p *Pipeline) IndexDocuments(ctx context.Context, docs []document.Document, levels ...document.Level) (Stats, error) {
	stats := Stats{Documents: len(docs)}
	if p.embedder == nil {
		return stats, fmt.Errorf("embedder not configured")
	}
	if p.store == nil {
		return stats, fmt.Errorf("store not configured")
	}
	if len(docs) == 0 {
		return stats, nil
	}

	startedAt := time.Now()

	chunks := p.splitter.SplitDocuments(docs, levels...)
	stats.ChunksCreated = len(chunks)
	if len(chunks) == 0 {
		p.logger.Printf("no chunks produced from %d documents", len(docs))
		return stats, nil
	}

	vectors, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return stats, err
	}

	if err := p.store.EnsureSchema(ctx, p.dimension); err != nil {
		return stats, fmt.Errorf("ensure schema: %w", err)
	}

	written, err := p.store.UpsertChunks(ctx, chunks, vectors)
	if err != nil {
		return stats, fmt.Errorf("write chunks: %w", err)
	}
	stats.ChunksWritten = written

	if p.driver != nil {
		p.syncGraph(ctx, chunks)
	}

	run := Run{
		ID:         uuid.New(),
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Documents:  len(docs),
		Chunks:     written,
	}
	if err := p.store.RecordRun(ctx, run); err != nil {
		// The data is already committed; a missing audit row is not fatal.
		p.logger.Printf("record run %s: %v", run.ID, err)
	}

	p.logger.Printf("run %s: indexed %d chunks from %d documents", run.ID, written, len(docs))
	return stats, nil
}

func (p *Pipeline) embedChunks(ctx context.Context, chunks []document.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))

	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Content)
		}

		batch, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(batch))
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// syncGraph mirrors each source document into the hierarchy graph once,
// using the per-document chunk counts. Graph failures degrade to log
// lines; the vector store already holds the data.
func (p *Pipeline) syncGraph(ctx context.Context, chunks []document.Chunk) {
	type docEntry struct {
		doc   knowledge.Document
		order int
	}
	docs := make(map[string]*docEntry)
	order := 0

	for _, chunk := range chunks {
		entry, ok := docs[chunk.DocID]
		if !ok {
			entry = &docEntry{
				doc: knowledge.Document{
					DocID:          chunk.DocID,
					FileName:       chunk.Meta.FileName,
					Source:         chunk.Meta.Source,
					Category:       chunk.Meta.Category,
					Subcategory:    chunk.Meta.Subcategory,
					HierarchyPath:  chunk.Meta.HierarchyPath,
					HierarchyLevel: chunk.Meta.HierarchyLevel,
				},
				order: order,
			}
			docs[chunk.DocID] = entry
			order++
		}
		entry.doc.ChunkCount++
	}

	ordered := make([]*docEntry, len(docs))
	for _, entry := range docs {
		ordered[entry.order] = entry
	}

	for _, entry := range ordered {
		if err := knowledge.SyncDocument(ctx, p.driver, entry.doc); err != nil {
			p.logger.Printf("graph sync failed for %s: %v", entry.doc.DocID, err)
		}
	}
}
