// Package tui provides Bubble Tea views for the magnetmeta CLI: the live
// batch progress bar, the batch summary, and the archived outcome browser.
//
// Views render the same payloads as the non-TUI output. They never feed
// back into a running batch except through the interrupt callback.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/magnetmeta/types"
)

// Adaptive colors pick the light or dark variant from the terminal
// background.
var (
	accentColor = lipgloss.AdaptiveColor{Light: "#5B21B6", Dark: "#A78BFA"}
	textColor   = lipgloss.AdaptiveColor{Light: "#111827", Dark: "#F9FAFB"}
	dimColor    = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	totalColor  = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	resolvedHue = lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"}
	failedHue   = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	timedOutHue = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
)

// statusColors maps each terminal status to its hue.
var statusColors = map[types.Status]lipgloss.TerminalColor{
	types.StatusResolved: resolvedHue,
	types.StatusFailed:   failedHue,
	types.StatusTimedOut: timedOutHue,
}

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginBottom(1)
	LabelStyle   = lipgloss.NewStyle().Foreground(dimColor).Width(16)
	ValueStyle   = lipgloss.NewStyle().Foreground(textColor)
	SuccessStyle = lipgloss.NewStyle().Foreground(resolvedHue)
	WarningStyle = lipgloss.NewStyle().Foreground(timedOutHue)
	ErrorStyle   = lipgloss.NewStyle().Foreground(failedHue)
	HelpStyle    = lipgloss.NewStyle().Foreground(dimColor).MarginTop(1)

	// BoxStyle frames the summary and the outcome browser.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(1, 2)

	// StatBoxStyle, StatValueStyle and StatLabelStyle build the count
	// tiles at the top of the summary.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(18).
			Align(lipgloss.Center)
	StatValueStyle = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center)
	StatLabelStyle = lipgloss.NewStyle().Foreground(dimColor).Align(lipgloss.Center)
)

// StatusStyle returns the style for an outcome status.
func StatusStyle(status types.Status) lipgloss.Style {
	if c, ok := statusColors[status]; ok {
		return lipgloss.NewStyle().Foreground(c)
	}
	return ValueStyle
}
