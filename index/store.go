package index

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/mlefebvre/ragtree/database"
	"github.com/mlefebvre/ragtree/document"
)

// Store persists chunk trees. The pipeline only needs these three
// operations, so tests can stub them without a live database.
type Store interface {
	EnsureSchema(ctx context.Context, dimension int) error
	UpsertChunks(ctx context.Context, chunks []document.Chunk, vectors [][]float32) (int, error)
	RecordRun(ctx context.Context, run Run) error
}

// Run is one indexing invocation, recorded for audit.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Documents  int
	Chunks     int
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context, dimension int) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	return database.EnsureSchema(ctx, s.pool, dimension)
}

// UpsertChunks writes all chunks in a single transaction. Deterministic
// chunk IDs make this idempotent: re-indexing an unchanged document
// rewrites the same rows in place.
func (s *PostgresStore) UpsertChunks(ctx context.Context, chunks []document.Chunk, vectors [][]float32) (written int, err error) {
	if s.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for i, chunk := range chunks {
		var parentID *string
		if chunk.ParentID != "" {
			parentID = &chunk.ParentID
		}
		var subcategory *string
		if chunk.Meta.Subcategory != "" {
			subcategory = &chunk.Meta.Subcategory
		}

		if _, err = tx.Exec(ctx, `
			INSERT INTO chunks (
				chunk_id, doc_id, chunk_level, chunk_index,
				word_start, word_end, total_chunks, parent_id,
				source, file_name, file_path,
				category, subcategory, hierarchy_path, hierarchy_level,
				content, embedding, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
			ON CONFLICT (chunk_id) DO UPDATE SET
				doc_id = EXCLUDED.doc_id,
				chunk_level = EXCLUDED.chunk_level,
				chunk_index = EXCLUDED.chunk_index,
				word_start = EXCLUDED.word_start,
				word_end = EXCLUDED.word_end,
				total_chunks = EXCLUDED.total_chunks,
				parent_id = EXCLUDED.parent_id,
				source = EXCLUDED.source,
				file_name = EXCLUDED.file_name,
				file_path = EXCLUDED.file_path,
				category = EXCLUDED.category,
				subcategory = EXCLUDED.subcategory,
				hierarchy_path = EXCLUDED.hierarchy_path,
				hierarchy_level = EXCLUDED.hierarchy_level,
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				updated_at = NOW()
		`,
			chunk.ID, chunk.DocID, string(chunk.Level), chunk.Index,
			chunk.Start, chunk.End, chunk.TotalChunks, parentID,
			chunk.Meta.Source, chunk.Meta.FileName, chunk.Meta.FilePath,
			chunk.Meta.Category, subcategory, chunk.Meta.HierarchyPath, chunk.Meta.HierarchyLevel,
			chunk.Content, pgvector.NewVector(vectors[i]),
		); err != nil {
			return 0, fmt.Errorf("upsert chunk %s: %w", chunk.ID, err)
		}
		written++
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit chunk upserts: %w", err)
	}
	return written, nil
}

func (s *PostgresStore) RecordRun(ctx context.Context, run Run) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO index_runs (id, started_at, finished_at, documents, chunks)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID, run.StartedAt, run.FinishedAt, run.Documents, run.Chunks); err != nil {
		return fmt.Errorf("record index run: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
