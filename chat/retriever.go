package chat

import (
	"context"
	"fmt"
	"log"

	"github.com/mlefebvre/ragtree/document"
	"github.com/mlefebvre/ragtree/splitter"
)

const defaultMergeThreshold = 2

// Retriever implements auto-merging retrieval: similarity search runs at
// the finest chunk level, and when enough sibling hits share the same
// coarser ancestor, the ancestor replaces them to hand the model fuller
// context.
type Retriever struct {
	vectors        VectorStore
	logger         *log.Logger
	mergeThreshold int
}

func NewRetriever(vectors VectorStore, logger *log.Logger) *Retriever {
	if logger == nil {
		logger = log.Default()
	}
	return &Retriever{
		vectors:        vectors,
		logger:         logger,
		mergeThreshold: defaultMergeThreshold,
	}
}

// Retrieve returns the context chunks for one query embedding, merged
// upward where siblings agree. Result order follows the similarity
// ranking; a merged ancestor takes the rank of its best sibling.
func (r *Retriever) Retrieve(ctx context.Context, embedding []float32, limit int) ([]ChunkResult, error) {
	if r.vectors == nil {
		return nil, fmt.Errorf("vector store is not configured")
	}

	fine, err := r.vectors.SimilarChunks(ctx, embedding, limit, document.LevelGrandchild)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(fine) == 0 {
		return nil, nil
	}

	// Count sibling hits per real ancestor. Virtual parents name no stored
	// chunk and never merge.
	siblings := make(map[string]int)
	for _, chunk := range fine {
		if chunk.ParentID == "" || splitter.IsVirtualParent(chunk.ParentID) {
			continue
		}
		siblings[chunk.ParentID]++
	}

	mergeIDs := make([]string, 0)
	for parentID, count := range siblings {
		if count >= r.mergeThreshold {
			mergeIDs = append(mergeIDs, parentID)
		}
	}
	if len(mergeIDs) == 0 {
		return fine, nil
	}

	parents, err := r.vectors.ChunksByID(ctx, mergeIDs)
	if err != nil {
		// Retrieval still works without expansion; fall back to the fine
		// chunks rather than failing the query.
		r.logger.Printf("parent expansion failed, using fine chunks: %v", err)
		return fine, nil
	}

	merged := make([]ChunkResult, 0, len(fine))
	emitted := make(map[string]bool)
	for _, chunk := range fine {
		parent, mergeable := parents[chunk.ParentID]
		if !mergeable || siblings[chunk.ParentID] < r.mergeThreshold {
			merged = append(merged, chunk)
			continue
		}
		if emitted[chunk.ParentID] {
			continue
		}
		emitted[chunk.ParentID] = true

		parent.Score = bestSiblingScore(fine, chunk.ParentID)
		parent.Merged = true
		merged = append(merged, parent)
	}

	r.logger.Printf("auto-merge: %d fine chunks -> %d context chunks (%d ancestors)",
		len(fine), len(merged), len(emitted))
	return merged, nil
}

func bestSiblingScore(chunks []ChunkResult, parentID string) float64 {
	best := 0.0
	for _, chunk := range chunks {
		if chunk.ParentID == parentID && chunk.Score > best {
			best = chunk.Score
		}
	}
	return best
}
