package pgvector

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/hackrx/docqa/internal/vector"
)

// Config for a Postgres/pgvector-backed repository.
type Config struct {
	DSN       string
	Table     string // defaults to "chunks"; non-identifier characters folded
	Dimension int    // defaults to 1536
	BatchSize int    // rows per upsert transaction, defaults to vector.DefaultBatchSize
}

// Store implements vector.Repository on Postgres with the pgvector
// extension. One row per chunk, cosine distance.
type Store struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
	batchSize int
}

// New connects to Postgres and prepares the schema: the vector extension,
// the chunk table, an ivfflat cosine index and a document_id filter index.
func New(ctx context.Context, cfg Config) (*Store, error) {
	table := identifier(cfg.Table)
	if table == "" {
		table = "chunks"
	}
	dim := cfg.Dimension
	if dim <= 0 {
		dim = 1536
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = vector.DefaultBatchSize
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}

	s := &Store{pool: pool, table: table, dimension: dim, batchSize: batchSize}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return err
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT,
			embedding vector(%d)
		)`, s.table, s.dimension)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return err
	}

	createVectorIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`, s.table, s.table)
	if _, err := s.pool.Exec(ctx, createVectorIndex); err != nil {
		return err
	}

	createFilterIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_document_id_idx
		ON %s (document_id)`, s.table, s.table)
	_, err := s.pool.Exec(ctx, createFilterIndex)
	return err
}

func (s *Store) Upsert(ctx context.Context, docID string, chunks []vector.Chunk) error {
	for _, c := range chunks {
		if len(c.Vector) != s.dimension {
			return &vector.DimensionMismatchError{Got: len(c.Vector), Want: s.dimension}
		}
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`, s.table)

	for start, batch := 0, 0; start < len(chunks); start, batch = start+s.batchSize, batch+1 {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		if err := s.writeBatch(ctx, stmt, docID, chunks[start:end]); err != nil {
			return &vector.IndexWriteError{Batch: batch, Err: err}
		}
	}
	return nil
}

// writeBatch inserts one batch inside a transaction so a failed batch leaves
// no partial rows behind.
func (s *Store) writeBatch(ctx context.Context, stmt, docID string, chunks []vector.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, c := range chunks {
		content := vector.SanitizeUTF8(vector.TruncateForPayload(c.Text))
		_, err := tx.Exec(ctx, stmt,
			vector.PointID(docID, c.Index),
			docID,
			c.Index,
			content,
			pgv.NewVector(c.Vector),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Exists(ctx context.Context, docID string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE document_id = $1)", s.table)

	var exists bool
	if err := s.pool.QueryRow(ctx, query, docID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) Query(ctx context.Context, vec []float32, docID string, topK int) ([]vector.SearchResult, error) {
	if topK <= 0 {
		topK = 8
	}
	query := fmt.Sprintf(`
		SELECT content, chunk_index, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE document_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`, s.table)

	rows, err := s.pool.Query(ctx, query, pgv.NewVector(vec), docID, topK)
	if err != nil {
		return nil, &vector.IndexQueryError{Err: err}
	}
	defer rows.Close()

	var results []vector.SearchResult
	for rows.Next() {
		var (
			text  string
			index int
			score float64
		)
		if err := rows.Scan(&text, &index, &score); err != nil {
			return nil, &vector.IndexQueryError{Err: err}
		}
		results = append(results, vector.SearchResult{
			Text:  text,
			Score: float32(score),
			Index: index,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &vector.IndexQueryError{Err: err}
	}
	return results, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// identifier folds a configured name to a legal SQL identifier; collection
// names like "hackrx-documents" carry hyphens.
func identifier(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

var _ vector.Repository = (*Store)(nil)
