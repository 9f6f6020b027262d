package tui

import "github.com/charmbracelet/lipgloss"

// Color constants matching the dark dashboard theme
const (
	ColorBg     = "#0d1117"
	ColorCard   = "#161b22"
	ColorBorder = "#30363d"
	ColorBlue   = "#58a6ff"
	ColorGreen  = "#3fb950"
	ColorRed    = "#f85149"
	ColorYellow = "#d29922"
	ColorGray   = "#8b949e"
	ColorText   = "#c9d1d9"
	ColorBright = "#f0f6fc"
)

// Styles holds all lipgloss styles for the TUI
type Styles struct {
	// Text styles
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Help     lipgloss.Style

	// Status badges
	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusPending lipgloss.Style

	// Chat transcript
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	AnswerBlock    lipgloss.Style
	ErrorText      lipgloss.Style

	// Borders
	Border       lipgloss.Style
	ActiveBorder lipgloss.Style

	// Spinner
	Spinner lipgloss.Style
}

// DefaultStyles creates the default style set
func DefaultStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorBright)).
			MarginBottom(1),

		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorText)).
			MarginBottom(1),

		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)).
			Italic(true),

		StatusSuccess: lipgloss.NewStyle().
			Background(lipgloss.Color(ColorGreen)).
			Foreground(lipgloss.Color(ColorBg)).
			Padding(0, 1).
			Bold(true),

		StatusFailed: lipgloss.NewStyle().
			Background(lipgloss.Color(ColorRed)).
			Foreground(lipgloss.Color(ColorBg)).
			Padding(0, 1).
			Bold(true),

		StatusPending: lipgloss.NewStyle().
			Background(lipgloss.Color(ColorGray)).
			Foreground(lipgloss.Color(ColorBg)).
			Padding(0, 1).
			Bold(true),

		UserLabel: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBlue)).
			Bold(true),

		AssistantLabel: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGreen)).
			Bold(true),

		AnswerBlock: lipgloss.NewStyle().
			Background(lipgloss.Color(ColorCard)).
			Foreground(lipgloss.Color(ColorText)).
			Padding(0, 1),

		ErrorText: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorRed)),

		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(1, 2),

		ActiveBorder: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBlue)).
			Padding(1, 2),

		Spinner: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBlue)),
	}
}
