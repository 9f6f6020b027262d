// Package qa answers questions against indexed documents.
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hackrx/docqa/internal/llm"
	"github.com/hackrx/docqa/internal/observability"
	"github.com/hackrx/docqa/internal/vector"
)

const (
	// FallbackAnswer is returned when retrieval finds no chunks for a
	// question. The LLM is not called in that case.
	FallbackAnswer = "The information is not available in the provided document."

	// DefaultTopK bounds how many chunks feed the prompt context.
	DefaultTopK = 8

	// DefaultMaxAnswerTokens bounds the generated answer length.
	DefaultMaxAnswerTokens = 1000
)

// SystemPrompt holds the fixed answering instructions sent with every
// completion call.
const SystemPrompt = `You are an expert assistant that answers questions based on the provided context from insurance policy documents.

Instructions:
1. Use ONLY the information provided in the context to answer questions
2. If the answer is not found in the context, respond with "The information is not available in the provided document"
3. Be precise and specific in your answers
4. Include relevant details like numbers, percentages, time periods, and conditions
5. If there are multiple parts to a question, address each part
6. Maintain a professional and clear tone
7. Do not make assumptions or add information not present in the context`

// AnswererConfig wires an Answerer's collaborators.
type AnswererConfig struct {
	// Provider generates answers.
	Provider llm.Provider
	// Embedder embeds questions. Must be the same model family that embedded
	// the document chunks or scores are meaningless.
	Embedder llm.Provider
	// Store is the vector repository queried for context.
	Store vector.Repository

	// Model is used for span attribution only.
	Model string
	// TopK defaults to DefaultTopK.
	TopK int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Answerer retrieves context for a question and generates an answer.
type Answerer struct {
	provider llm.Provider
	embedder llm.Provider
	store    vector.Repository
	model    string
	topK     int
	logger   *slog.Logger
}

// NewAnswerer creates an Answerer.
func NewAnswerer(cfg AnswererConfig) (*Answerer, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("qa: provider is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("qa: embedder is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("qa: store is required")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Answerer{
		provider: cfg.Provider,
		embedder: cfg.Embedder,
		store:    cfg.Store,
		model:    cfg.Model,
		topK:     topK,
		logger:   logger,
	}, nil
}

// Answer embeds the question, retrieves matching chunks and asks the LLM.
// When nothing matches it returns FallbackAnswer without an LLM call.
func (a *Answerer) Answer(ctx context.Context, question, docID string) (string, error) {
	start := time.Now()
	reqID := observability.RequestIDFrom(ctx)

	ctx, span := observability.StartAnswerSpan(ctx, docID)
	defer span.End()

	qVecs, err := a.embedder.Embed(ctx, []string{question})
	if err != nil {
		observability.RecordError(span, err)
		observability.Metrics().RecordQuestion(observability.OutcomeFailed, 0)
		observability.Audit().LogAnswerError(ctx, reqID, docID, err)
		return "", fmt.Errorf("embed question: %w", err)
	}
	if len(qVecs) != 1 {
		err := fmt.Errorf("embedding count mismatch: got %d, want 1", len(qVecs))
		observability.RecordError(span, err)
		observability.Metrics().RecordQuestion(observability.OutcomeFailed, 0)
		observability.Audit().LogAnswerError(ctx, reqID, docID, err)
		return "", err
	}

	results, retrievalDur, err := a.retrieve(ctx, qVecs[0], docID)
	if err != nil {
		observability.RecordError(span, err)
		observability.Metrics().RecordQuestion(observability.OutcomeFailed, retrievalDur)
		observability.Audit().LogAnswerError(ctx, reqID, docID, err)
		return "", fmt.Errorf("search chunks: %w", err)
	}
	observability.Audit().LogQuestion(ctx, reqID, docID, len(results))
	if len(results) == 0 {
		a.logger.Info("no chunks matched question", "document_id", docID)
		observability.Metrics().RecordQuestion(observability.OutcomeFallback, retrievalDur)
		observability.Audit().LogAnswer(ctx, reqID, docID, time.Since(start), true)
		return FallbackAnswer, nil
	}

	answer, err := a.generate(ctx, question, results)
	if err != nil {
		observability.RecordError(span, err)
		observability.Metrics().RecordQuestion(observability.OutcomeFailed, retrievalDur)
		observability.Audit().LogAnswerError(ctx, reqID, docID, err)
		return "", err
	}

	observability.Metrics().RecordQuestion(observability.OutcomeAnswered, retrievalDur)
	observability.Audit().LogAnswer(ctx, reqID, docID, time.Since(start), false)
	return answer, nil
}

// retrieve queries the vector store for the question's best chunks.
func (a *Answerer) retrieve(ctx context.Context, queryVec []float32, docID string) ([]vector.SearchResult, time.Duration, error) {
	ctx, span := observability.StartRetrievalSpan(ctx, docID, a.topK)
	defer span.End()

	start := time.Now()
	results, err := a.store.Query(ctx, queryVec, docID, a.topK)
	dur := time.Since(start)
	if err != nil {
		observability.RecordError(span, err)
		return nil, dur, err
	}

	topScore := 0.0
	if len(results) > 0 {
		topScore = float64(results[0].Score)
	}
	observability.RecordRetrievalResult(span, len(results), topScore)
	return results, dur, nil
}

// generate builds the prompt and runs the completion.
func (a *Answerer) generate(ctx context.Context, question string, results []vector.SearchResult) (string, error) {
	prompt := BuildPrompt(question, results)

	ctx, span := observability.StartLLMSpan(ctx, a.provider.Name(), a.model)
	defer span.End()

	observability.Audit().LogLLMRequest(ctx, a.provider.Name(), a.model)
	start := time.Now()
	resp, err := a.provider.Complete(ctx, prompt, answerOptions())
	dur := time.Since(start)
	if err != nil {
		observability.RecordError(span, err)
		observability.Metrics().RecordLLMRequest(a.provider.Name(), dur, 0, 0, err)
		observability.Audit().LogLLMError(ctx, a.provider.Name(), a.model, err)
		return "", fmt.Errorf("generate answer: %w", err)
	}

	observability.RecordLLMMetrics(span, resp.InputTokens, resp.OutputTokens, dur)
	observability.Metrics().RecordLLMRequest(a.provider.Name(), dur, resp.InputTokens, resp.OutputTokens, nil)
	observability.Audit().LogLLMResponse(ctx, a.provider.Name(), a.model, dur, resp.InputTokens, resp.OutputTokens)

	return strings.TrimSpace(llm.StripThinkingTags(resp.Content)), nil
}

// BuildPrompt assembles the completion prompt for a question. Chunk texts are
// ordered by descending score and joined by blank lines.
func BuildPrompt(question string, results []vector.SearchResult) *llm.Prompt {
	sorted := make([]vector.SearchResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	texts := make([]string, len(sorted))
	for i, r := range sorted {
		texts[i] = r.Text
	}

	var b strings.Builder
	b.WriteString("Context from the document:\n")
	b.WriteString(strings.Join(texts, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")

	return &llm.Prompt{
		SystemPrompt: SystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
	}
}

// answerOptions returns the near-deterministic sampling settings used for
// every answer.
func answerOptions() *llm.RequestOptions {
	maxTokens := DefaultMaxAnswerTokens
	temperature := 0.1
	topP := 1.0
	topK := 1
	return &llm.RequestOptions{
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		TopP:        &topP,
		TopK:        &topK,
	}
}
