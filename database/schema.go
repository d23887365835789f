package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the chunk store tables when missing. Chunks are
// keyed by their deterministic chunk_id, which makes re-indexing an
// upsert rather than a duplicate insert.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			chunk_id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			chunk_level TEXT NOT NULL,
			chunk_index INT NOT NULL,
			word_start INT NOT NULL,
			word_end INT NOT NULL,
			total_chunks INT NOT NULL,
			parent_id TEXT,
			source TEXT,
			file_name TEXT,
			file_path TEXT,
			category TEXT,
			subcategory TEXT,
			hierarchy_path TEXT,
			hierarchy_level INT,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimension),
		`CREATE TABLE IF NOT EXISTS index_runs (
			id UUID PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			documents INT NOT NULL,
			chunks INT NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_parent ON chunks(parent_id)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_level ON chunks(chunk_level)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_category ON chunks(category)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_l2_ops)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
