package chat

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/mlefebvre/ragtree/document"
)

type VectorStore interface {
	// SimilarChunks returns the closest chunks at one hierarchy level.
	SimilarChunks(ctx context.Context, embedding []float32, limit int, level document.Level) ([]ChunkResult, error)
	// ChunksByID fetches specific chunks, used to expand fine results to
	// their coarser ancestors.
	ChunksByID(ctx context.Context, ids []string) (map[string]ChunkResult, error)
}

type PostgresVectorStore struct {
	pool *pgxpool.Pool
}

func NewPostgresVectorStore(pool *pgxpool.Pool) *PostgresVectorStore {
	return &PostgresVectorStore{pool: pool}
}

const chunkColumns = `
	chunk_id,
	doc_id,
	COALESCE(parent_id, ''),
	chunk_level,
	COALESCE(file_name, ''),
	COALESCE(category, ''),
	COALESCE(hierarchy_path, ''),
	content
`

func (s *PostgresVectorStore) SimilarChunks(ctx context.Context, embedding []float32, limit int, level document.Level) ([]ChunkResult, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}
	if limit <= 0 {
		limit = 5
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	probes := limit * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := conn.Query(ctx, fmt.Sprintf(`
		SELECT %s, (embedding <-> $1::vector) AS distance
		FROM chunks
		WHERE chunk_level = $2
		ORDER BY embedding <-> $1::vector
		LIMIT $3
	`, chunkColumns), pgvector.NewVector(embedding), string(level), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	results := make([]ChunkResult, 0, limit)
	for rows.Next() {
		var item ChunkResult
		var levelRaw string
		var distance float64
		if scanErr := rows.Scan(&item.ChunkID, &item.DocID, &item.ParentID, &levelRaw,
			&item.FileName, &item.Category, &item.HierarchyPath, &item.Content, &distance); scanErr != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", scanErr)
		}
		item.Level = document.Level(levelRaw)
		item.Score = 1 / (1 + distance)
		results = append(results, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return results, nil
}

func (s *PostgresVectorStore) ChunksByID(ctx context.Context, ids []string) (map[string]ChunkResult, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(ids) == 0 {
		return map[string]ChunkResult{}, nil
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM chunks
		WHERE chunk_id = ANY($1)
	`, chunkColumns), ids)
	if err != nil {
		return nil, fmt.Errorf("query chunks by id: %w", err)
	}
	defer rows.Close()

	results := make(map[string]ChunkResult, len(ids))
	for rows.Next() {
		var item ChunkResult
		var levelRaw string
		if scanErr := rows.Scan(&item.ChunkID, &item.DocID, &item.ParentID, &levelRaw,
			&item.FileName, &item.Category, &item.HierarchyPath, &item.Content); scanErr != nil {
			return nil, fmt.Errorf("scan chunk: %w", scanErr)
		}
		item.Level = document.Level(levelRaw)
		results[item.ChunkID] = item
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return results, nil
}

var _ VectorStore = (*PostgresVectorStore)(nil)
