package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/magnetmeta/report"
	"github.com/pithecene-io/magnetmeta/types"
)

// RenderSummary renders a batch summary as stat boxes followed by the
// report and workspace details.
func RenderSummary(s *report.Summary) string {
	if s == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Batch " + s.BatchID))
	b.WriteString("\n")

	boxes := []string{
		renderStatBox("Total", s.Total, totalColor),
		renderStatBox("Resolved", s.Resolved, statusColors[types.StatusResolved]),
		renderStatBox("Failed", s.Failed, statusColors[types.StatusFailed]),
		renderStatBox("Timed out", s.TimedOut, statusColors[types.StatusTimedOut]),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	rows := [][2]string{
		{"Report", s.ReportPath},
		{"Records", fmt.Sprintf("%d", s.Records)},
		{"Mode", s.Mode},
		{"Duration", (time.Duration(s.DurationMs) * time.Millisecond).String()},
	}
	if s.Workspace != nil {
		clean := fmt.Sprintf("%d removed", len(s.Workspace.Removed))
		if s.Workspace.Missing {
			clean = "nothing to clean"
		}
		if n := len(s.Workspace.Failures); n > 0 {
			clean += fmt.Sprintf(", %d failed", n)
		}
		rows = append(rows, [2]string{"Workspace", clean})
	}
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]+":"), ValueStyle.Render(row[1])))
	}

	if s.Canceled {
		b.WriteString(WarningStyle.Render("batch was canceled"))
		b.WriteString("\n")
	}

	return BoxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func renderStatBox(label string, value int, color lipgloss.TerminalColor) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}
