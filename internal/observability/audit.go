package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventRunStart       AuditEventType = "run.start"
	AuditEventRunEnd         AuditEventType = "run.end"
	AuditEventIngestStart    AuditEventType = "ingest.start"
	AuditEventIngestComplete AuditEventType = "ingest.complete"
	AuditEventIngestError    AuditEventType = "ingest.error"
	AuditEventQuestion       AuditEventType = "qa.question"
	AuditEventAnswer         AuditEventType = "qa.answer"
	AuditEventAnswerError    AuditEventType = "qa.error"
	AuditEventLLMRequest     AuditEventType = "llm.request"
	AuditEventLLMResponse    AuditEventType = "llm.response"
	AuditEventLLMError       AuditEventType = "llm.error"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   AuditEventType         `json:"event_type"`
	SessionID   string                 `json:"session_id"`
	RequestID   string                 `json:"request_id,omitempty"`
	DocumentID  string                 `json:"document_id,omitempty"`
	Success     bool                   `json:"success"`
	Duration    time.Duration          `json:"duration_ms,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	ErrorDetail string                 `json:"error_detail,omitempty"`
}

type requestIDKey struct{}

// WithRequestID tags ctx with the request identifier that audit events for
// the same run report.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request identifier carried by ctx, or "" when
// the work runs outside a tagged request (CLI commands, tests).
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// AuditLogger handles audit event logging.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}

	return &AuditLogger{
		writer:    writer,
		sessionID: sessionID,
		enabled:   config.Enabled,
	}, nil
}

// Log writes an audit event as one JSON line.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Fill in defaults
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogRunStart logs the start of a QA run request.
func (l *AuditLogger) LogRunStart(ctx context.Context, requestID, documentID string, questionCount int) {
	l.Log(&AuditEvent{
		EventType:  AuditEventRunStart,
		RequestID:  requestID,
		DocumentID: documentID,
		Success:    true,
		Message:    fmt.Sprintf("Run started with %d questions", questionCount),
		Details: map[string]interface{}{
			"question_count": questionCount,
		},
	})
}

// LogRunEnd logs the completion of a QA run request.
func (l *AuditLogger) LogRunEnd(ctx context.Context, requestID, documentID string, success bool, duration time.Duration, answered int) {
	l.Log(&AuditEvent{
		EventType:  AuditEventRunEnd,
		RequestID:  requestID,
		DocumentID: documentID,
		Success:    success,
		Duration:   duration,
		Message:    fmt.Sprintf("Run completed: %d answers", answered),
		Details: map[string]interface{}{
			"answer_count": answered,
		},
	})
}

// LogIngestStart logs the start of a document ingestion.
func (l *AuditLogger) LogIngestStart(ctx context.Context, documentID, url string) {
	l.Log(&AuditEvent{
		EventType:  AuditEventIngestStart,
		DocumentID: documentID,
		Success:    true,
		Message:    "Ingestion started",
		Details: map[string]interface{}{
			"url": url,
		},
	})
}

// LogIngestComplete logs a completed document ingestion.
func (l *AuditLogger) LogIngestComplete(ctx context.Context, documentID string, chunkCount int, duration time.Duration, reused bool) {
	msg := fmt.Sprintf("Ingested %d chunks", chunkCount)
	if reused {
		msg = "Document already indexed"
	}
	l.Log(&AuditEvent{
		EventType:  AuditEventIngestComplete,
		DocumentID: documentID,
		Success:    true,
		Duration:   duration,
		Message:    msg,
		Details: map[string]interface{}{
			"chunk_count": chunkCount,
			"reused":      reused,
		},
	})
}

// LogIngestError logs a failed document ingestion.
func (l *AuditLogger) LogIngestError(ctx context.Context, documentID string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventIngestError,
		DocumentID:  documentID,
		Success:     false,
		Message:     "Ingestion failed",
		ErrorDetail: err.Error(),
	})
}

// LogQuestion logs a retrieval for one question.
func (l *AuditLogger) LogQuestion(ctx context.Context, requestID, documentID string, matchCount int) {
	l.Log(&AuditEvent{
		EventType:  AuditEventQuestion,
		RequestID:  requestID,
		DocumentID: documentID,
		Success:    true,
		Message:    fmt.Sprintf("Retrieved %d chunks", matchCount),
		Details: map[string]interface{}{
			"match_count": matchCount,
		},
	})
}

// LogAnswer logs a generated answer.
func (l *AuditLogger) LogAnswer(ctx context.Context, requestID, documentID string, duration time.Duration, fallback bool) {
	l.Log(&AuditEvent{
		EventType:  AuditEventAnswer,
		RequestID:  requestID,
		DocumentID: documentID,
		Success:    true,
		Duration:   duration,
		Message:    "Answer generated",
		Details: map[string]interface{}{
			"fallback": fallback,
		},
	})
}

// LogAnswerError logs a failed answer attempt.
func (l *AuditLogger) LogAnswerError(ctx context.Context, requestID, documentID string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventAnswerError,
		RequestID:   requestID,
		DocumentID:  documentID,
		Success:     false,
		Message:     "Answer generation failed",
		ErrorDetail: err.Error(),
	})
}

// LogLLMRequest logs an LLM request event. Token counts are only known once
// the response arrives; LogLLMResponse carries them.
func (l *AuditLogger) LogLLMRequest(ctx context.Context, provider, model string) {
	l.Log(&AuditEvent{
		EventType: AuditEventLLMRequest,
		RequestID: RequestIDFrom(ctx),
		Success:   true,
		Message:   fmt.Sprintf("LLM request to %s/%s", provider, model),
		Details: map[string]interface{}{
			"provider": provider,
			"model":    model,
		},
	})
}

// LogLLMResponse logs an LLM response event.
func (l *AuditLogger) LogLLMResponse(ctx context.Context, provider, model string, duration time.Duration, inputTokens, outputTokens int) {
	l.Log(&AuditEvent{
		EventType: AuditEventLLMResponse,
		RequestID: RequestIDFrom(ctx),
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("LLM response from %s/%s", provider, model),
		Details: map[string]interface{}{
			"provider":      provider,
			"model":         model,
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
			"total_tokens":  inputTokens + outputTokens,
		},
	})
}

// LogLLMError logs an LLM error event.
func (l *AuditLogger) LogLLMError(ctx context.Context, provider, model string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventLLMError,
		RequestID:   RequestIDFrom(ctx),
		Success:     false,
		Message:     fmt.Sprintf("LLM error from %s/%s", provider, model),
		ErrorDetail: err.Error(),
		Details: map[string]interface{}{
			"provider": provider,
			"model":    model,
		},
	})
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}

// Global audit logger instance
var globalAuditLogger *AuditLogger
var auditOnce sync.Once

// InitGlobalAuditLogger initializes the global audit logger.
func InitGlobalAuditLogger(config *AuditConfig) error {
	var err error
	auditOnce.Do(func() {
		globalAuditLogger, err = NewAuditLogger(config)
	})
	return err
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if globalAuditLogger == nil {
		// Return a disabled logger if not initialized
		return &AuditLogger{enabled: false}
	}
	return globalAuditLogger
}
