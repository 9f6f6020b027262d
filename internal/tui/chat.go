package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type chatState int

const (
	stateIngesting chatState = iota
	stateReady
	stateThinking
	stateFailed
)

type ingestDoneMsg struct {
	docID string
	err   error
}

type answerMsg struct {
	index  int
	answer string
	err    error
	took   time.Duration
}

type ChatModel struct {
	session  *ChatSession
	ingestor Ingestor
	answerer Answerer
	ctx      context.Context

	styles    *Styles
	state     chatState
	viewport  viewport.Model
	textInput textinput.Model
	spinner   spinner.Model
	help      help.Model
	keys      keyMap
	width     int
	height    int
	ingestErr string
	quitting  bool
}

type keyMap struct {
	Submit     key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	Quit       key.Binding
}

func (km keyMap) ShortHelp() []key.Binding {
	return []key.Binding{km.Submit, km.ScrollUp, km.ScrollDown, km.Quit}
}

func (km keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{km.Submit},
		{km.ScrollUp, km.ScrollDown},
		{km.Quit},
	}
}

func newKeyMap() keyMap {
	return keyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "ask"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		ScrollDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
	}
}

func NewChatModel(session *ChatSession, ingestor Ingestor, answerer Answerer) ChatModel {
	styles := DefaultStyles()

	ti := textinput.New()
	ti.Placeholder = "Ask a question about the document..."
	ti.CharLimit = 500
	ti.Width = 70

	vp := viewport.New(0, 0)
	vp.Style = lipgloss.NewStyle()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	return ChatModel{
		session:   session,
		ingestor:  ingestor,
		answerer:  answerer,
		ctx:       context.Background(),
		styles:    styles,
		state:     stateIngesting,
		viewport:  vp,
		textInput: ti,
		spinner:   sp,
		help:      help.New(),
		keys:      newKeyMap(),
		width:     80,
		height:    24,
	}
}

func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.ingestCmd())
}

func (m ChatModel) ingestCmd() tea.Cmd {
	return func() tea.Msg {
		docID, err := m.ingestor.Ingest(m.ctx, m.session.DocumentURL)
		return ingestDoneMsg{docID: docID, err: err}
	}
}

func (m ChatModel) answerCmd(index int, question string) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		answer, err := m.answerer.Answer(m.ctx, question, m.session.DocumentID)
		return answerMsg{index: index, answer: answer, err: err, took: time.Since(start)}
	}
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 9
		if m.viewport.Height < 3 {
			m.viewport.Height = 3
		}
		m.textInput.Width = msg.Width - 8
		m.refreshTranscript()
		return m, nil

	case spinner.TickMsg:
		if m.state == stateIngesting || m.state == stateThinking {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case ingestDoneMsg:
		if msg.err != nil {
			m.state = stateFailed
			m.ingestErr = msg.err.Error()
			return m, nil
		}
		m.session.DocumentID = msg.docID
		m.state = stateReady
		m.textInput.Focus()
		return m, textinput.Blink

	case answerMsg:
		if msg.err != nil {
			m.session.Fail(msg.index, msg.err, msg.took)
		} else {
			m.session.Resolve(msg.index, msg.answer, msg.took)
		}
		m.state = stateReady
		m.refreshTranscript()
		m.viewport.GotoBottom()
		m.textInput.Focus()
		return m, textinput.Blink

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			if m.state != stateReady {
				return m, nil
			}
			question := strings.TrimSpace(m.textInput.Value())
			if question == "" {
				return m, nil
			}
			idx := m.session.Ask(question)
			m.textInput.SetValue("")
			m.textInput.Blur()
			m.state = stateThinking
			m.refreshTranscript()
			m.viewport.GotoBottom()
			return m, tea.Batch(m.spinner.Tick, m.answerCmd(idx, question))

		case "pgup", "pgdown":
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd

		default:
			if m.state == stateReady {
				m.textInput, cmd = m.textInput.Update(msg)
				return m, cmd
			}
			return m, nil
		}
	}

	return m, nil
}

func (m ChatModel) View() string {
	if m.quitting {
		return ""
	}

	var sections []string
	sections = append(sections, m.renderHeader())

	switch m.state {
	case stateIngesting:
		sections = append(sections,
			m.styles.Subtitle.Render(m.spinner.View()+" Fetching and indexing document..."))

	case stateFailed:
		sections = append(sections,
			m.styles.ErrorText.Render("Indexing failed: "+m.ingestErr),
			"",
			m.styles.Help.Render("Press esc to exit"))

	default:
		sections = append(sections,
			m.viewport.View(),
			m.renderPromptLine(),
			m.styles.Help.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m ChatModel) renderHeader() string {
	title := m.styles.Title.Render("Document Chat")
	doc := m.styles.Subtitle.Render(truncate(m.session.DocumentURL, m.width-4))
	return lipgloss.JoinVertical(lipgloss.Left, title, doc)
}

func (m ChatModel) renderPromptLine() string {
	if m.state == stateThinking {
		return m.styles.Subtitle.Render(m.spinner.View() + " Thinking...")
	}
	return m.textInput.View()
}

// refreshTranscript rebuilds the viewport content from the session.
func (m *ChatModel) refreshTranscript() {
	width := m.viewport.Width
	if width <= 0 {
		width = 76
	}

	var b strings.Builder
	for i, msg := range m.session.Messages {
		if i > 0 {
			b.WriteString("\n")
		}

		b.WriteString(m.styles.UserLabel.Render("You"))
		b.WriteString(" ")
		b.WriteString(msg.Question)
		b.WriteString("\n")

		switch msg.Status {
		case MessagePending:
			b.WriteString(m.styles.AssistantLabel.Render("docqa"))
			b.WriteString(" ...")
		case MessageFailed:
			b.WriteString(m.styles.AssistantLabel.Render("docqa"))
			b.WriteString(" ")
			b.WriteString(m.styles.ErrorText.Render(msg.Err))
		default:
			b.WriteString(m.styles.AssistantLabel.Render("docqa"))
			b.WriteString("\n")
			b.WriteString(m.styles.AnswerBlock.Width(width - 2).Render(msg.Answer))
			b.WriteString("\n")
			b.WriteString(m.styles.Help.Render(fmt.Sprintf("%.1fs", msg.Duration.Seconds())))
		}
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
}

func truncate(s string, maxWidth int) string {
	if maxWidth < 4 {
		maxWidth = 4
	}
	if len(s) <= maxWidth {
		return s
	}
	return s[:maxWidth-3] + "..."
}
