package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	accentColor  = lipgloss.Color("#5FD7FF")
	successColor = lipgloss.Color("#5FFF87")
	warnColor    = lipgloss.Color("#FFD75F")
	failColor    = lipgloss.Color("#FF5F5F")
	dimColor     = lipgloss.Color("#808080")

	titleStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(0, 1)

	statLabelStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	statValueStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor)

	warnStyle = lipgloss.NewStyle().
			Foreground(warnColor)

	failStyle = lipgloss.NewStyle().
			Foreground(failColor)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Padding(1, 0, 0, 1)
)

// levelStyle maps log levels to their render style
func levelStyle(level string) lipgloss.Style {
	switch level {
	case "ERROR":
		return failStyle
	case "WARN":
		return warnStyle
	case "SUCCESS":
		return successStyle
	default:
		return dimStyle
	}
}
