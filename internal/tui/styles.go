package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/loglink/internal/model"
)

var (
	ColorNavy   = lipgloss.Color("#1B2A4A")
	ColorBlue   = lipgloss.Color("#4C8DFF")
	ColorWhite  = lipgloss.Color("#E6E6E6")
	ColorGray   = lipgloss.Color("#7A7A7A")
	ColorGreen  = lipgloss.Color("#49E209")
	ColorYellow = lipgloss.Color("#FFAA00")
	ColorRed    = lipgloss.Color("#FF4444")
)

var (
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorNavy)

	activePaneStyle = paneStyle.BorderForeground(ColorBlue)

	paneTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorWhite)

	tabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(ColorGray)

	activeTabStyle = tabStyle.
			Foreground(ColorWhite).
			Background(ColorBlue).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Background(ColorNavy).
			Foreground(ColorWhite)

	promotedStyle = lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)
	helpStyle     = lipgloss.NewStyle().Foreground(ColorGray)
	errorStyle    = lipgloss.NewStyle().Foreground(ColorRed)
	cursorStyle   = lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)
)

// levelColor returns the display color of a message verbosity.
func levelColor(v model.Verbosity) lipgloss.Color {
	switch {
	case v <= model.VerbosityError:
		return ColorRed
	case v == model.VerbosityWarning:
		return ColorYellow
	case v == model.VerbosityInfo:
		return ColorWhite
	case v >= model.VerbosityTrace:
		return lipgloss.Color("240")
	default:
		return lipgloss.Color("244")
	}
}
