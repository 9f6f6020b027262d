package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/hackrx/docqa/internal/vector"
)

type entry struct {
	docID string
	index int
	text  string
	vec   []float32
}

// Store is an in-memory vector repository using brute-force cosine
// similarity. It backs tests and the "none"/"memory" driver configuration.
type Store struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]entry // keyed by vector.PointID
}

// New creates an empty store. A dimension of 0 disables dimension checking.
func New(dimension int) *Store {
	return &Store{
		dimension: dimension,
		entries:   make(map[string]entry),
	}
}

func (s *Store) Upsert(ctx context.Context, docID string, chunks []vector.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if s.dimension > 0 && len(c.Vector) != s.dimension {
			return &vector.DimensionMismatchError{Got: len(c.Vector), Want: s.dimension}
		}
	}
	for _, c := range chunks {
		s.entries[vector.PointID(docID, c.Index)] = entry{
			docID: docID,
			index: c.Index,
			text:  vector.TruncateForPayload(c.Text),
			vec:   c.Vector,
		}
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, docID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.docID == docID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Query(ctx context.Context, vec []float32, docID string, topK int) ([]vector.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 {
		topK = 8
	}

	var results []vector.SearchResult
	for _, e := range s.entries {
		if e.docID != docID {
			continue
		}
		results = append(results, vector.SearchResult{
			Text:  e.text,
			Score: cosine(vec, e.vec),
			Index: e.index,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Store) Close() error { return nil }

// Len reports how many entries are stored, across all documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

var _ vector.Repository = (*Store)(nil)
