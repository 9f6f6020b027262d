package tui

import (
	"context"
	"time"
)

// MessageStatus represents the answer state of a chat exchange
type MessageStatus int

const (
	MessagePending MessageStatus = iota
	MessageAnswered
	MessageFailed
)

// String returns the string representation of MessageStatus
func (s MessageStatus) String() string {
	switch s {
	case MessagePending:
		return "pending"
	case MessageAnswered:
		return "answered"
	case MessageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ChatMessage represents one question and its answer
type ChatMessage struct {
	Question string
	Answer   string
	Err      string
	Duration time.Duration
	Status   MessageStatus
	AskedAt  time.Time
}

// ChatSession holds the exchanges of one interactive session against a
// single document
type ChatSession struct {
	DocumentURL string
	DocumentID  string
	Messages    []*ChatMessage
	CreatedAt   time.Time
}

// NewChatSession creates an empty session for the given document URL
func NewChatSession(url string) *ChatSession {
	return &ChatSession{
		DocumentURL: url,
		Messages:    make([]*ChatMessage, 0),
		CreatedAt:   time.Now(),
	}
}

// Ask appends a pending exchange and returns its index
func (s *ChatSession) Ask(question string) int {
	s.Messages = append(s.Messages, &ChatMessage{
		Question: question,
		Status:   MessagePending,
		AskedAt:  time.Now(),
	})
	return len(s.Messages) - 1
}

// Resolve records a successful answer for the exchange at index
func (s *ChatSession) Resolve(index int, answer string, took time.Duration) {
	if index < 0 || index >= len(s.Messages) {
		return
	}
	msg := s.Messages[index]
	msg.Answer = answer
	msg.Duration = took
	msg.Status = MessageAnswered
}

// Fail records a failed exchange at index
func (s *ChatSession) Fail(index int, err error, took time.Duration) {
	if index < 0 || index >= len(s.Messages) {
		return
	}
	msg := s.Messages[index]
	msg.Err = err.Error()
	msg.Duration = took
	msg.Status = MessageFailed
}

// Stats counts exchanges by status
func (s *ChatSession) Stats() (answered, failed, pending int) {
	for _, msg := range s.Messages {
		switch msg.Status {
		case MessageAnswered:
			answered++
		case MessageFailed:
			failed++
		case MessagePending:
			pending++
		}
	}
	return answered, failed, pending
}

// Ingestor indexes a document URL and returns its document ID
type Ingestor interface {
	Ingest(ctx context.Context, url string) (string, error)
}

// Answerer answers one question against an indexed document
type Answerer interface {
	Answer(ctx context.Context, question string, docID string) (string, error)
}
