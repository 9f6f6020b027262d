package document

import (
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize bounds each chunk's length in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is how many trailing characters of one chunk may
	// reappear at the start of the next.
	DefaultChunkOverlap = 200
)

// chunkSeparators orders the split points the chunker prefers: paragraph,
// then line, then word, then single characters as a last resort.
var chunkSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits extracted text into overlapping segments sized for
// embedding. Splitting is deterministic for a fixed (text, size, overlap).
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// NewChunker creates a chunker. Non-positive size or negative overlap fall
// back to the defaults.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(chunkSeparators),
		),
	}
}

// Chunk splits text. Empty input yields zero chunks.
func (c *Chunker) Chunk(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	return c.splitter.SplitText(text)
}
