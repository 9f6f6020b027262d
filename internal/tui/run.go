package tui

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// RunChat starts the interactive chat program against one document.
// When the user quits, a summary screen is shown if any questions were
// asked. Returns the final ChatSession with all exchanges.
func RunChat(session *ChatSession, ingestor Ingestor, answerer Answerer) (*ChatSession, error) {
	chatModel := NewChatModel(session, ingestor, answerer)
	p := tea.NewProgram(chatModel, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("TUI error: %w", err)
	}

	// Extract session from final model
	final := finalModel.(ChatModel)

	if len(final.session.Messages) > 0 {
		summaryModel := NewSummaryModel(final.session)
		sp := tea.NewProgram(summaryModel, tea.WithAltScreen())
		if _, err := sp.Run(); err != nil {
			return nil, fmt.Errorf("summary error: %w", err)
		}
	}

	return final.session, nil
}

// ChatReport represents the JSON structure for the session transcript
type ChatReport struct {
	Timestamp   string            `json:"timestamp"`
	DocumentURL string            `json:"document_url"`
	DocumentID  string            `json:"document_id"`
	Exchanges   []ChatReportEntry `json:"exchanges"`
	Summary     ChatReportSummary `json:"summary"`
}

// ChatReportEntry represents a single exchange in the transcript
type ChatReportEntry struct {
	Question   string `json:"question"`
	Answer     string `json:"answer,omitempty"`
	Error      string `json:"error,omitempty"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
}

// ChatReportSummary represents the summary statistics
type ChatReportSummary struct {
	Total    int `json:"total"`
	Answered int `json:"answered"`
	Failed   int `json:"failed"`
}

// SaveTranscript writes a JSON transcript of the chat session.
func SaveTranscript(session *ChatSession, outputPath string) error {
	answered, failed, _ := session.Stats()

	entries := make([]ChatReportEntry, 0, len(session.Messages))
	for _, msg := range session.Messages {
		entries = append(entries, ChatReportEntry{
			Question:   msg.Question,
			Answer:     msg.Answer,
			Error:      msg.Err,
			Status:     msg.Status.String(),
			DurationMS: msg.Duration.Milliseconds(),
		})
	}

	report := ChatReport{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		DocumentURL: session.DocumentURL,
		DocumentID:  session.DocumentID,
		Exchanges:   entries,
		Summary: ChatReportSummary{
			Total:    len(session.Messages),
			Answered: answered,
			Failed:   failed,
		},
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}

	return nil
}
