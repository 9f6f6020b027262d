package llm

// RequestOptions tunes a single completion call. Nil fields fall back to the
// provider's defaults, so callers only set what they need.
type RequestOptions struct {
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	TopK        *int // sampling pool size; ignored by providers without top-k
	StopSeqs    []string
}
