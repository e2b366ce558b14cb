// Package progress tracks batch progress for display.
//
// The Reporter is an orchestrator observer. It owns the only mutable
// progress state; renderers receive copies and never feed back into
// orchestration.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/pithecene-io/magnetmeta/types"
)

// ErrorEncountered is the LastEvent text for a failed outcome.
const ErrorEncountered = "error encountered"

// State is a point-in-time view of batch progress.
type State struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	LastEvent string `json:"last_event"`
	Done      bool   `json:"done"`
}

// Fraction returns Completed/Total, or 1 for an empty batch.
func (s State) Fraction() float64 {
	if s.Total <= 0 {
		return 1
	}
	return float64(s.Completed) / float64(s.Total)
}

// Renderer displays progress. Calls for one reporter are serialized and
// must not block.
type Renderer interface {
	Render(s State)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(s State)

// Render calls f.
func (f RendererFunc) Render(s State) { f(s) }

// Reporter maintains progress state from orchestrator events.
type Reporter struct {
	mu        sync.Mutex
	state     State
	renderers []Renderer
}

// NewReporter creates a reporter for a batch of total identifiers.
func NewReporter(total int, renderers ...Renderer) *Reporter {
	return &Reporter{
		state:     State{Total: total},
		renderers: renderers,
	}
}

// Start renders the initial state.
func (r *Reporter) Start() {
	r.update(func(*State) {})
}

// OnDispatch records that an identifier is being processed.
func (r *Reporter) OnDispatch(ev types.Event) {
	r.update(func(s *State) {
		s.LastEvent = "processing " + ev.Identifier.String()
	})
}

// OnComplete advances the counter by one.
func (r *Reporter) OnComplete(ev types.Event) {
	r.update(func(s *State) {
		s.Completed++
		if ev.Outcome != nil && ev.Outcome.OK() {
			s.LastEvent = "fetched:" + ev.Outcome.Metadata.Fingerprint
		} else {
			s.LastEvent = ErrorEncountered
		}
	})
}

// Finish marks the batch done and renders the final state.
func (r *Reporter) Finish() {
	r.update(func(s *State) { s.Done = true })
}

// Snapshot returns the current state.
func (r *Reporter) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reporter) update(fn func(s *State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.state)
	for _, rd := range r.renderers {
		rd.Render(r.state)
	}
}

// LineRenderer writes one line per state change. Used when the output is
// not a terminal.
type LineRenderer struct {
	w io.Writer
}

// NewLineRenderer creates a LineRenderer writing to w.
func NewLineRenderer(w io.Writer) *LineRenderer {
	return &LineRenderer{w: w}
}

// Render writes "[completed/total] last_event".
func (l *LineRenderer) Render(s State) {
	if s.LastEvent == "" && !s.Done {
		fmt.Fprintf(l.w, "[%d/%d] starting\n", s.Completed, s.Total)
		return
	}
	if s.Done {
		fmt.Fprintf(l.w, "[%d/%d] done\n", s.Completed, s.Total)
		return
	}
	fmt.Fprintf(l.w, "[%d/%d] %s\n", s.Completed, s.Total, s.LastEvent)
}
