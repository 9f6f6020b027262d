// Package e2e exercises the full question answering flow with real pipeline
// components. Only the edges are stubbed: document download and PDF parsing
// are replaced with plain text plumbing, and the embedding and completion
// providers are deterministic fakes. Everything between the fetch and the
// final answer is the production code path.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hackrx/docqa/internal/document"
	"github.com/hackrx/docqa/internal/ingest"
	"github.com/hackrx/docqa/internal/llm"
	"github.com/hackrx/docqa/internal/observability"
	"github.com/hackrx/docqa/internal/qa"
	"github.com/hackrx/docqa/internal/server"
	"github.com/hackrx/docqa/internal/vector/memory"
)

const embedDim = 128

// docFetcher writes a fixed document body to a temp file, standing in for the
// HTTP download stage.
type docFetcher struct {
	body    string
	fetches atomic.Int64
}

func (f *docFetcher) Fetch(ctx context.Context, url string) (string, func(), error) {
	f.fetches.Add(1)
	tmp, err := os.CreateTemp("", "docqa-e2e-*.txt")
	if err != nil {
		return "", nil, err
	}
	if _, err := tmp.WriteString(f.body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

// textExtractor reads the fetched file verbatim, standing in for PDF parsing.
type textExtractor struct{}

func (textExtractor) Extract(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// hashEmbedder maps each word to a dimension by FNV hash and counts
// occurrences. Texts that share vocabulary get high cosine similarity, which
// makes retrieval ranking deterministic without a real embedding model.
type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, embedDim)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			word = strings.Trim(word, ".,;:()\"'")
			if word == "" {
				continue
			}
			h := fnv.New32a()
			h.Write([]byte(word))
			vec[h.Sum32()%embedDim]++
		}
		out[i] = vec
	}
	return out, nil
}

func (hashEmbedder) Complete(context.Context, *llm.Prompt, *llm.RequestOptions) (*llm.Response, error) {
	return nil, fmt.Errorf("hash embedder does not complete")
}

func (hashEmbedder) Name() string { return "hash-embedder" }

// scriptedLLM builds its completion from the prompt with a caller-provided
// function and counts how often it is called.
type scriptedLLM struct {
	reply func(prompt *llm.Prompt) string
	calls atomic.Int64
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	s.calls.Add(1)
	return &llm.Response{Content: s.reply(prompt), InputTokens: 10, OutputTokens: 5}, nil
}

func (s *scriptedLLM) Embed(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("scripted llm does not embed")
}

func (s *scriptedLLM) Name() string { return "scripted" }

// contextEcho returns the full user prompt, so the answer visibly contains
// whatever chunks retrieval put into the context.
func contextEcho() *scriptedLLM {
	return &scriptedLLM{reply: func(p *llm.Prompt) string {
		return p.Messages[len(p.Messages)-1].Content
	}}
}

// questionEcho answers with the question extracted from the prompt, which
// lets tests verify that answers line up with their questions.
func questionEcho() *scriptedLLM {
	return &scriptedLLM{reply: func(p *llm.Prompt) string {
		content := p.Messages[len(p.Messages)-1].Content
		_, rest, ok := strings.Cut(content, "\n\nQuestion: ")
		if !ok {
			return "no question found"
		}
		question, _, _ := strings.Cut(rest, "\n\nAnswer:")
		return "Asked about: " + question
	}}
}

// policyDocument builds a multi-page insurance policy in the page-marked
// format the extractor produces. Each page covers one distinct topic so that
// retrieval has something unambiguous to rank.
func policyDocument() string {
	pages := []string{
		`SECTION 1. DEFINITIONS. In this policy the following terms have the meanings
given below. "Insured Person" means a person named in the schedule as covered
under this policy. "Hospital" means an institution established for inpatient
care and day care treatment with at least ten inpatient beds, qualified
nursing staff under its employment round the clock, and a fully equipped
operation theatre of its own. "Day Care Treatment" means medical treatment or
a surgical procedure undertaken under general or local anaesthesia in a
hospital in less than twenty four hours because of technological advancement.
"Room Rent" means the amount charged by a hospital towards room and boarding
expenses and shall include the associated medical expenses.`,
		`SECTION 2. GRACE PERIOD. A grace period of thirty days is provided for the
settlement of each renewal premium. If the renewal premium is settled within
the grace period, coverage continues without a break and accrued continuity
benefits are preserved. If the renewal premium remains unsettled when the
grace period expires, the policy lapses and all benefits cease. No claim is
admissible for any treatment taken during the grace period before the renewal
premium is actually received. The grace period applies to every renewal of
the policy regardless of the mode the policyholder has chosen.`,
		`SECTION 3. EXCLUSIONS AND EXCLUSION DURATIONS. Expenses arising from any
pre-existing disease and its direct complications are excluded until
thirty-six months of continuous coverage have elapsed since the first policy
inception. Expenses related to the treatment of any illness contracted within
the first thirty days from the commencement date are excluded, except claims
arising due to an accident. Specified surgeries including cataract, hernia
and joint replacement are excluded for twenty-four months of continuous
coverage. These exclusion durations reduce to the extent of prior continuous
coverage under any ported policy.`,
		`SECTION 4. MATERNITY BENEFIT. Medical treatment expenses traceable to
childbirth, including complicated deliveries and caesarean sections incurred
during hospitalisation, are covered once the female insured person has been
continuously covered for twenty-four months. The maternity benefit is limited
to two deliveries or terminations during the lifetime of the policy. Expenses
towards lawful medical termination of pregnancy are payable under the same
limit. Pre-natal and post-natal expenses are payable only when they lead to
hospitalisation. Newborn cover begins from day one when the maternity benefit
has been exercised.`,
	}

	var b strings.Builder
	for i, page := range pages {
		b.WriteString(document.PageMarker(i + 1))
		b.WriteString(page)
	}
	return b.String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildPipeline wires real ingestion and answering over the in-memory store.
func buildPipeline(t *testing.T, answerLLM *scriptedLLM) (*ingest.Pipeline, *qa.Answerer, *memory.Store, *docFetcher) {
	t.Helper()

	fetcher := &docFetcher{body: policyDocument()}
	store := memory.New(embedDim)

	pipeline, err := ingest.New(ingest.Config{
		Fetcher:   fetcher,
		Extractor: textExtractor{},
		Chunker:   document.NewChunker(document.DefaultChunkSize, document.DefaultChunkOverlap),
		Embedder:  hashEmbedder{},
		Store:     store,
		Logger:    quietLogger(),
	})
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}

	answerer, err := qa.NewAnswerer(qa.AnswererConfig{
		Provider: answerLLM,
		Embedder: hashEmbedder{},
		Store:    store,
		Model:    "scripted",
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("qa.NewAnswerer: %v", err)
	}

	return pipeline, answerer, store, fetcher
}

func TestE2E_IngestThenAnswer(t *testing.T) {
	ctx := context.Background()
	url := "https://example.com/policies/health.pdf"

	answerLLM := contextEcho()
	pipeline, answerer, store, _ := buildPipeline(t, answerLLM)

	// 1. Ingest: fetch, extract, chunk, embed, index.
	docID, err := pipeline.Ingest(ctx, url)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if docID != ingest.DocumentID(url) {
		t.Errorf("docID = %q, want %q", docID, ingest.DocumentID(url))
	}
	if store.Len() == 0 {
		t.Fatal("ingest stored no chunks")
	}
	indexed, err := store.Exists(ctx, docID)
	if err != nil {
		t.Fatalf("exists probe failed: %v", err)
	}
	if !indexed {
		t.Error("document not reported as indexed after ingest")
	}

	// 2. Retrieval ranks the chunk that actually holds the answer first.
	question := "What is the grace period for settlement of the renewal premium?"
	qVecs, err := hashEmbedder{}.Embed(ctx, []string{question})
	if err != nil {
		t.Fatalf("embed question: %v", err)
	}
	results, err := store.Query(ctx, qVecs[0], docID, qa.DefaultTopK)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("query returned no results")
	}
	if len(results) > qa.DefaultTopK {
		t.Errorf("query returned %d results, top_k is %d", len(results), qa.DefaultTopK)
	}
	if !strings.Contains(results[0].Text, "grace period of thirty days") {
		t.Errorf("top ranked chunk does not hold the answer:\n%s", results[0].Text)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted by score at %d: %f > %f", i, results[i].Score, results[i-1].Score)
		}
	}

	// 3. The answer is generated from a context that contains that chunk.
	answer, err := answerer.Answer(ctx, question, docID)
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if !strings.Contains(answer, "grace period of thirty days") {
		t.Error("answer context is missing the grace period chunk")
	}
	if !strings.Contains(answer, question) {
		t.Error("answer context is missing the question")
	}
	if got := answerLLM.calls.Load(); got != 1 {
		t.Errorf("LLM called %d times, want 1", got)
	}
}

func TestE2E_ReingestSkipsPipeline(t *testing.T) {
	ctx := context.Background()
	url := "https://example.com/policies/health.pdf"

	pipeline, _, store, fetcher := buildPipeline(t, contextEcho())

	first, err := pipeline.Ingest(ctx, url)
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	stored := store.Len()

	second, err := pipeline.Ingest(ctx, url)
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if first != second {
		t.Errorf("document ID changed across ingests: %q vs %q", first, second)
	}
	if got := fetcher.fetches.Load(); got != 1 {
		t.Errorf("document fetched %d times, want 1", got)
	}
	if store.Len() != stored {
		t.Errorf("stored chunk count changed from %d to %d", stored, store.Len())
	}
}

func TestE2E_UnknownDocumentFallsBack(t *testing.T) {
	ctx := context.Background()

	answerLLM := contextEcho()
	pipeline, answerer, _, _ := buildPipeline(t, answerLLM)

	if _, err := pipeline.Ingest(ctx, "https://example.com/policies/health.pdf"); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	// A document that was never ingested matches nothing, so the fallback is
	// returned and the LLM stays untouched.
	answer, err := answerer.Answer(ctx, "What is covered?", ingest.DocumentID("https://example.com/other.pdf"))
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if answer != qa.FallbackAnswer {
		t.Errorf("answer = %q, want fallback", answer)
	}
	if got := answerLLM.calls.Load(); got != 0 {
		t.Errorf("LLM called %d times for empty retrieval, want 0", got)
	}
}

func TestE2E_ServiceAnswersInOrder(t *testing.T) {
	ctx := context.Background()

	answerLLM := questionEcho()
	pipeline, answerer, _, _ := buildPipeline(t, answerLLM)

	service, err := qa.NewService(qa.ServiceConfig{
		Ingestor:    pipeline,
		Answerer:    answerer,
		Concurrency: 4,
		Logger:      quietLogger(),
	})
	if err != nil {
		t.Fatalf("qa.NewService: %v", err)
	}

	questions := []string{
		"What is the grace period for settlement of the renewal premium?",
		"What is the exclusion duration for pre-existing diseases?",
		"How many deliveries does the maternity benefit cover?",
		"How many inpatient beds must a hospital have?",
		"Which surgeries are excluded for twenty-four months?",
	}
	answers, err := service.Run(ctx, "https://example.com/policies/health.pdf", questions)
	if err != nil {
		t.Fatalf("service run failed: %v", err)
	}
	if len(answers) != len(questions) {
		t.Fatalf("got %d answers for %d questions", len(answers), len(questions))
	}
	for i, answer := range answers {
		if !strings.Contains(answer, questions[i]) {
			t.Errorf("answer %d does not correspond to its question: %q", i, answer)
		}
	}
	if got := answerLLM.calls.Load(); got != int64(len(questions)) {
		t.Errorf("LLM called %d times, want %d", got, len(questions))
	}
}

func TestE2E_HTTPRun(t *testing.T) {
	pipeline, answerer, store, _ := buildPipeline(t, questionEcho())

	service, err := qa.NewService(qa.ServiceConfig{
		Ingestor: pipeline,
		Answerer: answerer,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("qa.NewService: %v", err)
	}

	health := server.NewHealthRegistry()
	health.RegisterCheck("vector_store", server.VectorHealthChecker(store))
	srv := server.New(service, health, server.Config{
		APIKey:  "e2e-key",
		Metrics: observability.NewServiceMetrics(),
		Logger:  quietLogger(),
	})

	body, _ := json.Marshal(map[string]any{
		"documents": "https://example.com/policies/health.pdf",
		"questions": []string{"What is the grace period for settlement of the renewal premium?"},
	})

	// Authorized request runs the whole pipeline behind the handler.
	req := httptest.NewRequest(http.MethodPost, "/hackrx/run", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer e2e-key")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Answers []string `json:"answers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(resp.Answers))
	}
	if !strings.Contains(resp.Answers[0], "grace period") {
		t.Errorf("answer does not reference the question: %q", resp.Answers[0])
	}

	// The same request without credentials never reaches the pipeline.
	req = httptest.NewRequest(http.MethodPost, "/hackrx/run", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	// Health reflects the live store.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}
