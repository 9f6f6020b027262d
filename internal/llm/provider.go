package llm

import "context"

// Provider is the interface all LLM backends must implement. The QA pipeline
// uses Complete for answer generation and Embed for chunk and question
// vectors; both retrieval paths must run against the same embedding model so
// stored and query vectors stay comparable.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Embed returns embedding vectors for the given texts, one per input, in
	// input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "gemini", "openai").
	Name() string
}
