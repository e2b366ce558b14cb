package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/magnetmeta/types"
)

// defaultPageSize is used until the terminal reports its height.
const defaultPageSize = 20

// OutcomesModel is a scrollable list of archived outcomes.
type OutcomesModel struct {
	title    string
	outcomes []types.Outcome
	offset   int
	height   int
	quitting bool
}

// NewOutcomesModel creates an outcome browser.
func NewOutcomesModel(title string, outcomes []types.Outcome) OutcomesModel {
	return OutcomesModel{title: title, outcomes: outcomes, height: defaultPageSize}
}

// Init implements tea.Model.
func (m OutcomesModel) Init() tea.Cmd {
	return nil
}

func (m OutcomesModel) pageSize() int {
	// Title, header, help and box border.
	return max(m.height-8, 1)
}

// Update implements tea.Model.
func (m OutcomesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.offset > 0 {
				m.offset--
			}
		case key.Matches(msg, keys.Down):
			if m.offset < len(m.outcomes)-m.pageSize() {
				m.offset++
			}
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m OutcomesModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("%s (%d outcomes)", m.title, len(m.outcomes))))
	b.WriteString("\n")

	if len(m.outcomes) == 0 {
		b.WriteString(LabelStyle.UnsetWidth().Render("(no results)"))
	}

	end := min(m.offset+m.pageSize(), len(m.outcomes))
	for _, o := range m.outcomes[m.offset:end] {
		status := StatusStyle(o.Status).Width(10).Render(string(o.Status))
		var detail string
		if o.OK() {
			detail = ValueStyle.Render(o.Metadata.Name) + " " + LabelStyle.UnsetWidth().Render(o.Metadata.Fingerprint)
		} else {
			detail = ValueStyle.Render(o.Identifier.String()) + " " + ErrorStyle.Render(o.Cause())
		}
		b.WriteString(fmt.Sprintf("%4d %s %s\n", o.Index, status, detail))
	}

	help := HelpStyle.Render("↑/↓ scroll, q to quit")
	return lipgloss.JoinVertical(lipgloss.Left, BoxStyle.Render(strings.TrimRight(b.String(), "\n")), help)
}

// RunOutcomesTUI runs the outcome browser full screen.
func RunOutcomesTUI(title string, outcomes []types.Outcome) error {
	p := tea.NewProgram(NewOutcomesModel(title, outcomes), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
