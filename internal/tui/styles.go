package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/orchestra-dev/orchestra/internal/state"
)

// Status colors follow the usual traffic-light reading: green for done,
// yellow for waiting, red for trouble.
var (
	colorRunning   = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}
	colorPending   = lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#F9E2AF"}
	colorCompleted = lipgloss.AdaptiveColor{Light: "#40A02B", Dark: "#A6E3A1"}
	colorFailed    = lipgloss.AdaptiveColor{Light: "#D20F39", Dark: "#F38BA8"}
	colorStale     = lipgloss.AdaptiveColor{Light: "#FE640B", Dark: "#FAB387"}
	colorCancelled = lipgloss.AdaptiveColor{Light: "#6C6F85", Dark: "#6C7086"}
	colorMuted     = lipgloss.AdaptiveColor{Light: "#8C8FA1", Dark: "#585B70"}
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	taskIDStyle = lipgloss.NewStyle().
			Bold(true)

	branchStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	outputStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			PaddingLeft(4)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)
)

// statusColor maps a task status to its display color.
func statusColor(s state.Status) lipgloss.AdaptiveColor {
	switch s {
	case state.StatusRunning:
		return colorRunning
	case state.StatusPending:
		return colorPending
	case state.StatusCompleted:
		return colorCompleted
	case state.StatusFailed:
		return colorFailed
	case state.StatusStale:
		return colorStale
	case state.StatusCancelled:
		return colorCancelled
	default:
		return colorMuted
	}
}

// statusDot renders the colored status indicator.
func statusDot(s state.Status) string {
	return lipgloss.NewStyle().Foreground(statusColor(s)).Render("●")
}

// statusLabel renders the status name in its color.
func statusLabel(s state.Status) string {
	return lipgloss.NewStyle().Foreground(statusColor(s)).Render(s.String())
}
