package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	bprogress "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/magnetmeta/progress"
)

// maxBarWidth caps the progress bar width on wide terminals.
const maxBarWidth = 60

// stateMsg carries a progress snapshot into the program.
type stateMsg progress.State

// ProgressModel is a Bubble Tea model for a running batch.
type ProgressModel struct {
	title       string
	state       progress.State
	bar         bprogress.Model
	onInterrupt func()
	interrupted bool
}

// NewProgressModel creates a progress model. onInterrupt is called once when
// the user presses ctrl+c; the view keeps running until the batch reports
// done.
func NewProgressModel(title string, total int, onInterrupt func()) ProgressModel {
	return ProgressModel{
		title:       title,
		state:       progress.State{Total: total},
		bar:         bprogress.New(bprogress.WithDefaultGradient(), bprogress.WithWidth(40)),
		onInterrupt: onInterrupt,
	}
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = max(min(msg.Width-12, maxBarWidth), 10)
		return m, nil

	case stateMsg:
		m.state = progress.State(msg)
		if m.state.Done {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Interrupt) && !m.interrupted {
			m.interrupted = true
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.state.Fraction()))
	b.WriteString(" ")
	b.WriteString(ValueStyle.Render(fmt.Sprintf("%d/%d", m.state.Completed, m.state.Total)))
	b.WriteString("\n")

	last := m.state.LastEvent
	switch {
	case m.state.Done:
		last = "done"
	case last == "":
		last = "starting"
	}
	if last == progress.ErrorEncountered {
		b.WriteString(ErrorStyle.Render(last))
	} else {
		b.WriteString(LabelStyle.UnsetWidth().Render(last))
	}

	if m.interrupted && !m.state.Done {
		b.WriteString("\n")
		b.WriteString(WarningStyle.Render("canceling, waiting for in-flight attempts..."))
	} else if !m.state.Done {
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("ctrl+c to cancel the batch"))
	}
	return b.String() + "\n"
}

// ProgressProgram runs a ProgressModel and implements progress.Renderer.
//
// Render never blocks: states are coalesced into a one-slot mailbox and a
// forwarding goroutine delivers the latest one to the program.
type ProgressProgram struct {
	program *tea.Program
	updates chan progress.State
	exited  chan struct{}
	err     error
}

// NewProgressProgram creates a program drawing to out. Extra options are
// passed to tea.NewProgram.
func NewProgressProgram(title string, total int, out io.Writer, onInterrupt func(), opts ...tea.ProgramOption) *ProgressProgram {
	opts = append([]tea.ProgramOption{tea.WithOutput(out), tea.WithoutSignalHandler()}, opts...)
	return &ProgressProgram{
		program: tea.NewProgram(NewProgressModel(title, total, onInterrupt), opts...),
		updates: make(chan progress.State, 1),
		exited:  make(chan struct{}),
	}
}

// Start runs the program and the forwarder in the background.
func (p *ProgressProgram) Start() {
	go func() {
		defer close(p.exited)
		_, p.err = p.program.Run()
	}()
	go func() {
		for {
			select {
			case s := <-p.updates:
				p.program.Send(stateMsg(s))
				if s.Done {
					return
				}
			case <-p.exited:
				return
			}
		}
	}()
}

// Render implements progress.Renderer.
func (p *ProgressProgram) Render(s progress.State) {
	select {
	case p.updates <- s:
		return
	default:
	}
	// Mailbox full: replace the stale state.
	select {
	case <-p.updates:
	default:
	}
	select {
	case p.updates <- s:
	default:
	}
}

// Wait blocks until the program exits and returns its error.
func (p *ProgressProgram) Wait() error {
	<-p.exited
	return p.err
}

var _ progress.Renderer = (*ProgressProgram)(nil)
