// Package ingest turns a document URL into indexed, searchable chunks.
package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hackrx/docqa/internal/llm"
	"github.com/hackrx/docqa/internal/observability"
	"github.com/hackrx/docqa/internal/vector"
)

// ExistsPolicy controls how a failing index probe is handled.
type ExistsPolicy string

const (
	// ExistsProceed treats a failed probe as "not indexed" and re-ingests.
	// Re-ingesting an already indexed document is safe because point IDs
	// are deterministic, so the upsert overwrites in place.
	ExistsProceed ExistsPolicy = "proceed"
	// ExistsStrict aborts ingestion when the probe fails.
	ExistsStrict ExistsPolicy = "strict"
)

// Fetcher downloads a document to a local file. The cleanup function removes
// the file and must be called once the path is no longer needed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (path string, cleanup func(), err error)
}

// Extractor pulls plain text from a downloaded document.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Chunker splits extracted text into overlapping chunks.
type Chunker interface {
	Chunk(text string) ([]string, error)
}

// Config wires the pipeline's collaborators.
type Config struct {
	Fetcher   Fetcher
	Extractor Extractor
	Chunker   Chunker
	Embedder  llm.Provider
	Store     vector.Repository

	// ExistsPolicy defaults to ExistsProceed.
	ExistsPolicy ExistsPolicy
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Pipeline ingests documents: fetch, extract, chunk, embed, index.
type Pipeline struct {
	fetcher   Fetcher
	extractor Extractor
	chunker   Chunker
	embedder  llm.Provider
	store     vector.Repository
	policy    ExistsPolicy
	logger    *slog.Logger
}

// New creates a Pipeline. All collaborators except the policy and logger are
// required.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("ingest: fetcher is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("ingest: extractor is required")
	}
	if cfg.Chunker == nil {
		return nil, fmt.Errorf("ingest: chunker is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("ingest: embedder is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("ingest: store is required")
	}

	policy := cfg.ExistsPolicy
	if policy == "" {
		policy = ExistsProceed
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		fetcher:   cfg.Fetcher,
		extractor: cfg.Extractor,
		chunker:   cfg.Chunker,
		embedder:  cfg.Embedder,
		store:     cfg.Store,
		policy:    policy,
		logger:    logger,
	}, nil
}

// DocumentID derives the stable identifier for a document URL. The same URL
// always maps to the same ID, which is what makes re-ingestion idempotent.
func DocumentID(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// IngestionError reports which stage of the pipeline failed for a URL.
type IngestionError struct {
	URL   string
	Stage string
	Err   error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.URL, e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Ingest processes one document URL and returns its document ID. If the
// document is already indexed the expensive stages are skipped and the ID is
// returned immediately.
func (p *Pipeline) Ingest(ctx context.Context, url string) (string, error) {
	start := time.Now()
	docID := DocumentID(url)
	logger := p.logger.With("document_id", docID)

	ctx, span := observability.StartIngestSpan(ctx, docID)
	defer span.End()

	indexed, err := p.store.Exists(ctx, docID)
	if err != nil {
		if p.policy == ExistsStrict {
			ingErr := &IngestionError{URL: url, Stage: "probe", Err: err}
			observability.RecordError(span, ingErr)
			observability.Metrics().RecordIngest(observability.OutcomeFailed, time.Since(start), 0)
			return "", ingErr
		}
		logger.Warn("index probe failed, re-ingesting", "error", err)
		indexed = false
	}
	if indexed {
		logger.Info("document already indexed, skipping ingestion")
		observability.RecordIngestResult(span, 0, true)
		observability.Metrics().RecordIngest(observability.OutcomeReused, time.Since(start), 0)
		observability.Audit().LogIngestComplete(ctx, docID, 0, time.Since(start), true)
		return docID, nil
	}

	observability.Audit().LogIngestStart(ctx, docID, url)

	chunkCount, err := p.ingest(ctx, docID, url, logger)
	if err != nil {
		observability.RecordError(span, err)
		observability.Metrics().RecordIngest(observability.OutcomeFailed, time.Since(start), 0)
		observability.Audit().LogIngestError(ctx, docID, err)
		return "", err
	}

	observability.RecordIngestResult(span, chunkCount, false)
	observability.Metrics().RecordIngest(observability.OutcomeIndexed, time.Since(start), chunkCount)
	observability.Audit().LogIngestComplete(ctx, docID, chunkCount, time.Since(start), false)
	logger.Info("document ingested", "chunks", chunkCount, "duration", time.Since(start))
	return docID, nil
}

// ingest runs the fetch-to-index stages and returns the number of chunks
// written.
func (p *Pipeline) ingest(ctx context.Context, docID, url string, logger *slog.Logger) (int, error) {
	path, cleanup, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return 0, &IngestionError{URL: url, Stage: "fetch", Err: err}
	}
	defer cleanup()

	text, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return 0, &IngestionError{URL: url, Stage: "extract", Err: err}
	}

	chunks, err := p.chunker.Chunk(text)
	if err != nil {
		return 0, &IngestionError{URL: url, Stage: "chunk", Err: err}
	}
	if len(chunks) == 0 {
		logger.Warn("document produced no chunks, nothing to index")
		return 0, nil
	}

	vectors, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, &IngestionError{URL: url, Stage: "embed", Err: err}
	}
	if len(vectors) != len(chunks) {
		return 0, &IngestionError{URL: url, Stage: "embed",
			Err: fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(chunks))}
	}

	points := make([]vector.Chunk, len(chunks))
	for i, text := range chunks {
		points[i] = vector.Chunk{
			DocumentID: docID,
			Index:      i,
			Text:       text,
			Vector:     vectors[i],
		}
	}
	if err := p.store.Upsert(ctx, docID, points); err != nil {
		return 0, &IngestionError{URL: url, Stage: "index", Err: err}
	}
	return len(points), nil
}
