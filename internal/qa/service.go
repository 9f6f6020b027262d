package qa

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Ingestor makes a document searchable and returns its ID.
type Ingestor interface {
	Ingest(ctx context.Context, url string) (string, error)
}

// QuestionAnswerer answers one question against an indexed document.
type QuestionAnswerer interface {
	Answer(ctx context.Context, question, docID string) (string, error)
}

// ServiceConfig wires the orchestrator.
type ServiceConfig struct {
	Ingestor Ingestor
	Answerer QuestionAnswerer

	// Concurrency bounds the question fan-out. Defaults to 1, which keeps
	// questions sequential and LLM rate-limit pressure minimal.
	Concurrency int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Service runs the full request flow: ingest a document once, then answer
// every question against it.
type Service struct {
	ingestor    Ingestor
	answerer    QuestionAnswerer
	concurrency int
	logger      *slog.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Ingestor == nil {
		return nil, fmt.Errorf("qa: ingestor is required")
	}
	if cfg.Answerer == nil {
		return nil, fmt.Errorf("qa: answerer is required")
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		ingestor:    cfg.Ingestor,
		answerer:    cfg.Answerer,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Run ingests the document and answers every question. The answers slice
// always matches the questions slice in length and order. A failed question
// becomes an inline error answer; only ingestion failure aborts the request.
func (s *Service) Run(ctx context.Context, url string, questions []string) ([]string, error) {
	docID, err := s.ingestor.Ingest(ctx, url)
	if err != nil {
		return nil, err
	}

	answers := make([]string, len(questions))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, question := range questions {
		g.Go(func() error {
			answer, err := s.answerer.Answer(ctx, question, docID)
			if err != nil {
				s.logger.Error("question failed", "document_id", docID, "index", i, "error", err)
				answers[i] = fmt.Sprintf("Error processing question: %v", err)
				return nil
			}
			answers[i] = answer
			return nil
		})
	}
	// Workers never return errors, they report failures inline.
	_ = g.Wait()

	return answers, nil
}
