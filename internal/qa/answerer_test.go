package qa

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hackrx/docqa/internal/llm"
	"github.com/hackrx/docqa/internal/vector"
)

func TestNewAnswerer_RequiresCollaborators(t *testing.T) {
	provider := &mockProvider{}
	store := &mockStore{}

	cases := []struct {
		name string
		cfg  AnswererConfig
	}{
		{"missing provider", AnswererConfig{Embedder: provider, Store: store}},
		{"missing embedder", AnswererConfig{Provider: provider, Store: store}},
		{"missing store", AnswererConfig{Provider: provider, Embedder: provider}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewAnswerer(tc.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestAnswer_GeneratesFromContext(t *testing.T) {
	provider := &mockProvider{content: "  The grace period is 30 days.\n"}
	store := &mockStore{results: []vector.SearchResult{
		{Text: "lower scored chunk", Score: 0.45, Index: 3},
		{Text: "best matching chunk", Score: 0.91, Index: 0},
	}}

	a := mustAnswerer(t, AnswererConfig{Provider: provider, Embedder: provider, Store: store})

	answer, err := a.Answer(context.Background(), "What is the grace period?", "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "The grace period is 30 days." {
		t.Fatalf("expected trimmed answer, got %q", answer)
	}

	prompt := provider.lastPrompt
	if prompt == nil {
		t.Fatal("expected completion call")
	}
	if prompt.SystemPrompt != SystemPrompt {
		t.Error("expected fixed system prompt")
	}
	content := prompt.Messages[0].Content
	if !strings.HasPrefix(content, "Context from the document:\n") {
		t.Errorf("unexpected prompt prefix: %q", content)
	}
	if !strings.HasSuffix(content, "\n\nQuestion: What is the grace period?\n\nAnswer:") {
		t.Errorf("unexpected prompt suffix: %q", content)
	}
	// Higher scored chunk must come first in the context
	best := strings.Index(content, "best matching chunk")
	lower := strings.Index(content, "lower scored chunk")
	if best == -1 || lower == -1 || best > lower {
		t.Errorf("expected chunks ordered by score in context: %q", content)
	}
}

func TestAnswer_FallbackWithoutLLMCall(t *testing.T) {
	provider := &mockProvider{content: "should never be used"}
	store := &mockStore{} // no results

	a := mustAnswerer(t, AnswererConfig{Provider: provider, Embedder: provider, Store: store})

	answer, err := a.Answer(context.Background(), "Anything?", "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != FallbackAnswer {
		t.Fatalf("expected fallback answer, got %q", answer)
	}
	if provider.completeCalls != 0 {
		t.Error("expected no LLM call when retrieval is empty")
	}
}

func TestAnswer_PassesSamplingOptions(t *testing.T) {
	provider := &mockProvider{content: "ok"}
	store := &mockStore{results: []vector.SearchResult{{Text: "chunk", Score: 0.8}}}

	a := mustAnswerer(t, AnswererConfig{Provider: provider, Embedder: provider, Store: store})

	if _, err := a.Answer(context.Background(), "Q?", "doc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	opts := provider.lastOpts
	if opts == nil {
		t.Fatal("expected request options")
	}
	if opts.MaxTokens == nil || *opts.MaxTokens != DefaultMaxAnswerTokens {
		t.Errorf("unexpected max tokens: %v", opts.MaxTokens)
	}
	if opts.Temperature == nil || *opts.Temperature != 0.1 {
		t.Errorf("unexpected temperature: %v", opts.Temperature)
	}
	if opts.TopP == nil || *opts.TopP != 1.0 {
		t.Errorf("unexpected top_p: %v", opts.TopP)
	}
	if opts.TopK == nil || *opts.TopK != 1 {
		t.Errorf("unexpected top_k: %v", opts.TopK)
	}
}

func TestAnswer_QueryUsesConfiguredTopK(t *testing.T) {
	provider := &mockProvider{content: "ok"}
	store := &mockStore{results: []vector.SearchResult{{Text: "chunk", Score: 0.8}}}

	a := mustAnswerer(t, AnswererConfig{
		Provider: provider, Embedder: provider, Store: store, TopK: 5,
	})

	if _, err := a.Answer(context.Background(), "Q?", "doc-42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastTopK != 5 {
		t.Errorf("expected top-k 5, got %d", store.lastTopK)
	}
	if store.lastDocID != "doc-42" {
		t.Errorf("expected document filter, got %q", store.lastDocID)
	}
	if len(store.lastVector) == 0 {
		t.Error("expected question embedding passed to query")
	}
}

func TestAnswer_EmbedError(t *testing.T) {
	provider := &mockProvider{embedErr: errors.New("quota exceeded")}
	store := &mockStore{}

	a := mustAnswerer(t, AnswererConfig{Provider: provider, Embedder: provider, Store: store})

	_, err := a.Answer(context.Background(), "Q?", "doc-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "embed question") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAnswer_QueryError(t *testing.T) {
	provider := &mockProvider{content: "ok"}
	store := &mockStore{queryErr: errors.New("connection lost")}

	a := mustAnswerer(t, AnswererConfig{Provider: provider, Embedder: provider, Store: store})

	_, err := a.Answer(context.Background(), "Q?", "doc-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "search chunks") {
		t.Errorf("unexpected error: %v", err)
	}
	if provider.completeCalls != 0 {
		t.Error("expected no LLM call after query failure")
	}
}

func TestAnswer_LLMError(t *testing.T) {
	provider := &mockProvider{completeErr: errors.New("503 overloaded")}
	store := &mockStore{results: []vector.SearchResult{{Text: "chunk", Score: 0.8}}}

	a := mustAnswerer(t, AnswererConfig{Provider: provider, Embedder: provider, Store: store})

	_, err := a.Answer(context.Background(), "Q?", "doc-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "generate answer") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAnswer_StripsThinkingTags(t *testing.T) {
	provider := &mockProvider{content: "<think>checking clause 4</think>Coverage starts after 30 days."}
	store := &mockStore{results: []vector.SearchResult{{Text: "chunk", Score: 0.8}}}

	a := mustAnswerer(t, AnswererConfig{Provider: provider, Embedder: provider, Store: store})

	answer, err := a.Answer(context.Background(), "Q?", "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "Coverage starts after 30 days." {
		t.Fatalf("expected reasoning stripped, got %q", answer)
	}
}

func TestBuildPrompt_Layout(t *testing.T) {
	results := []vector.SearchResult{
		{Text: "second", Score: 0.5},
		{Text: "first", Score: 0.9},
	}

	prompt := BuildPrompt("What applies?", results)
	if prompt.SystemPrompt != SystemPrompt {
		t.Error("expected fixed system prompt")
	}
	if len(prompt.Messages) != 1 || prompt.Messages[0].Role != llm.RoleUser {
		t.Fatalf("expected single user message, got %+v", prompt.Messages)
	}

	want := "Context from the document:\nfirst\n\nsecond\n\nQuestion: What applies?\n\nAnswer:"
	if prompt.Messages[0].Content != want {
		t.Fatalf("unexpected prompt layout:\ngot:  %q\nwant: %q", prompt.Messages[0].Content, want)
	}
}

func TestBuildPrompt_DoesNotMutateResults(t *testing.T) {
	results := []vector.SearchResult{
		{Text: "low", Score: 0.1},
		{Text: "high", Score: 0.9},
	}

	BuildPrompt("Q?", results)

	if results[0].Text != "low" || results[1].Text != "high" {
		t.Fatal("expected input slice order unchanged")
	}
}

func mustAnswerer(t *testing.T, cfg AnswererConfig) *Answerer {
	t.Helper()
	a, err := NewAnswerer(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return a
}

// mockProvider is a hand-rolled llm.Provider for answerer tests.
type mockProvider struct {
	content       string
	completeErr   error
	embedErr      error
	completeCalls int
	lastPrompt    *llm.Prompt
	lastOpts      *llm.RequestOptions
}

func (m *mockProvider) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	m.completeCalls++
	m.lastPrompt = prompt
	m.lastOpts = opts
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	return &llm.Response{
		Content:      m.content,
		Model:        "mock-model",
		InputTokens:  100,
		OutputTokens: 20,
	}, nil
}

func (m *mockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (m *mockProvider) Name() string { return "mock" }

// mockStore is a hand-rolled vector.Repository for answerer tests.
type mockStore struct {
	results    []vector.SearchResult
	queryErr   error
	lastVector []float32
	lastDocID  string
	lastTopK   int
}

func (m *mockStore) Upsert(ctx context.Context, docID string, chunks []vector.Chunk) error {
	return nil
}

func (m *mockStore) Exists(ctx context.Context, docID string) (bool, error) {
	return false, nil
}

func (m *mockStore) Query(ctx context.Context, vec []float32, docID string, topK int) ([]vector.SearchResult, error) {
	m.lastVector = vec
	m.lastDocID = docID
	m.lastTopK = topK
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.results, nil
}

func (m *mockStore) Close() error { return nil }
