package vector

import (
	"context"
	"fmt"
	"unicode/utf8"
)

const (
	// MetadataTextLimit caps how much chunk text is stored alongside each
	// vector entry.
	MetadataTextLimit = 1000
	// DefaultBatchSize is how many entries are written per upsert request.
	DefaultBatchSize = 100
)

// Chunk is one embeddable segment of a document.
type Chunk struct {
	DocumentID string
	Index      int
	Text       string
	Vector     []float32
}

// SearchResult is a single match from a similarity search.
type SearchResult struct {
	Text  string
	Score float32
	Index int
}

// Repository provides vector storage and document-scoped similarity search.
type Repository interface {
	// Upsert writes one entry per chunk, keyed by PointID(docID, chunk index).
	Upsert(ctx context.Context, docID string, chunks []Chunk) error
	// Exists reports whether at least one entry is stored for docID.
	Exists(ctx context.Context, docID string) (bool, error)
	// Query finds the topK most similar chunks of docID, descending score.
	Query(ctx context.Context, vec []float32, docID string, topK int) ([]SearchResult, error)
	// Close releases resources.
	Close() error
}

// Config selects and sizes a vector store backend.
type Config struct {
	Driver         string // "qdrant", "pgvector", "memory", "none"
	FallbackDriver string // tried when Driver fails to connect
	URL            string // qdrant gRPC address, host:port
	APIKey         string
	Collection     string
	Dimension      int
	PostgresDSN    string
	BatchSize      int // entries per upsert request, DefaultBatchSize when unset
}

// EffectiveBatchSize returns the configured upsert batch size, falling back
// to DefaultBatchSize for zero or negative values.
func (c Config) EffectiveBatchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return DefaultBatchSize
}

// PointID is the composite key for one stored chunk.
func PointID(docID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, index)
}

// TruncateForPayload bounds chunk text stored as entry metadata without
// splitting a UTF-8 sequence.
func TruncateForPayload(text string) string {
	if len(text) <= MetadataTextLimit {
		return text
	}
	cut := MetadataTextLimit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// SanitizeUTF8 drops invalid byte sequences and NUL bytes so the text is
// storable in any backend (protobuf string fields and Postgres TEXT both
// reject them).
func SanitizeUTF8(s string) string {
	valid := utf8.ValidString(s)
	hasNUL := false
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			hasNUL = true
			break
		}
	}
	if valid && !hasNUL {
		return s
	}

	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == 0 {
			continue
		}
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}

// IndexWriteError reports a failed upsert batch.
type IndexWriteError struct {
	Batch int
	Err   error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("vector write (batch %d): %v", e.Batch, e.Err)
}

func (e *IndexWriteError) Unwrap() error { return e.Err }

// IndexQueryError reports a failed similarity query.
type IndexQueryError struct {
	Err error
}

func (e *IndexQueryError) Error() string {
	return fmt.Sprintf("vector query: %v", e.Err)
}

func (e *IndexQueryError) Unwrap() error { return e.Err }

// DimensionMismatchError reports a vector whose length differs from the
// index's configured dimension.
type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: got %d, want %d", e.Got, e.Want)
}
