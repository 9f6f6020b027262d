package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SummaryModel displays the session summary after the chat ends
type SummaryModel struct {
	session  *ChatSession
	styles   *Styles
	width    int
	height   int
	quitting bool
}

// NewSummaryModel creates a new summary screen
func NewSummaryModel(session *ChatSession) SummaryModel {
	return SummaryModel{
		session: session,
		styles:  DefaultStyles(),
	}
}

// Init implements tea.Model
func (m SummaryModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m SummaryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "enter":
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model
func (m SummaryModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	title := m.styles.Title.Render("Session Summary")
	b.WriteString(title)
	b.WriteString("\n\n")

	b.WriteString(m.styles.Subtitle.Render(truncate(m.session.DocumentURL, 70)))
	b.WriteString("\n\n")

	answered, failed, pending := m.session.Stats()
	total := len(m.session.Messages)

	b.WriteString(m.renderStatsTable(total, answered, failed, pending))
	b.WriteString("\n")

	// List failed questions
	if failed > 0 {
		b.WriteString(m.styles.Subtitle.Render("Failed Questions:"))
		b.WriteString("\n\n")

		for _, msg := range m.session.Messages {
			if msg.Status == MessageFailed {
				b.WriteString(m.renderFailedDetail(msg))
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	help := m.styles.Help.Render("Press enter to exit")
	b.WriteString(help)

	return b.String()
}

// renderStatsTable creates a formatted stats table
func (m SummaryModel) renderStatsTable(total, answered, failed, pending int) string {
	var b strings.Builder

	b.WriteString(m.styles.Subtitle.Render("Statistics"))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("  Questions asked:       %d\n", total))

	answeredStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGreen)).Bold(true)
	b.WriteString(fmt.Sprintf("  Answered:              %s\n", answeredStyle.Render(fmt.Sprintf("%d", answered))))

	failedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)).Bold(true)
	b.WriteString(fmt.Sprintf("  Failed:                %s\n", failedStyle.Render(fmt.Sprintf("%d", failed))))

	pendingStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray))
	b.WriteString(fmt.Sprintf("  Unanswered:            %s\n", pendingStyle.Render(fmt.Sprintf("%d", pending))))

	return b.String()
}

// renderFailedDetail renders a single failed exchange
func (m SummaryModel) renderFailedDetail(msg *ChatMessage) string {
	var b strings.Builder

	b.WriteString(m.styles.Subtitle.Render(truncate(msg.Question, 60)))
	b.WriteString(" ")
	b.WriteString(m.styles.StatusFailed.Render("FAILED"))
	b.WriteString("\n  ")
	b.WriteString(m.styles.ErrorText.Render(truncate(msg.Err, 70)))
	b.WriteString("\n")

	return b.String()
}
