// Package runtime runs batches of metadata resolutions.
//
// The Orchestrator dispatches identifiers to a bounded pool, turns every
// attempt into exactly one types.Outcome, and pushes dispatch/completion
// events to observers. Batch wraps an Orchestrator with the batch lifecycle:
// workspace preparation, report writing and teardown.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/magnetmeta/log"
	"github.com/pithecene-io/magnetmeta/metrics"
	"github.com/pithecene-io/magnetmeta/resolver"
	"github.com/pithecene-io/magnetmeta/types"
)

// Mode selects how identifiers are handed to the pool.
type Mode string

const (
	// ModePipelined keeps at most Concurrency attempts in flight and
	// dispatches the next identifier as soon as a slot frees.
	ModePipelined Mode = "pipelined"
	// ModeFanOut dispatches every identifier up front into the pool queue.
	// Execution is still capped by Concurrency.
	ModeFanOut Mode = "fanout"
)

// ParseMode parses a mode name. Empty selects ModePipelined.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePipelined:
		return ModePipelined, nil
	case ModeFanOut:
		return ModeFanOut, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be %s or %s", s, ModePipelined, ModeFanOut)
	}
}

var (
	// ErrInvalidConcurrency is returned when Concurrency is below 1.
	ErrInvalidConcurrency = errors.New("concurrency must be >= 1")
	// ErrAlreadyRun is returned by a second Run on the same Orchestrator.
	ErrAlreadyRun = errors.New("orchestrator has already run")
	// ErrNilResolver is returned when no resolver is supplied.
	ErrNilResolver = errors.New("resolver is required")
)

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	// Concurrency is the pool size. Required, must be >= 1.
	Concurrency int
	// Mode selects pipelined or fan-out dispatch. Empty means pipelined.
	Mode Mode
	// AttemptTimeout bounds a single resolve call. Zero means no deadline.
	AttemptTimeout time.Duration
	// BatchID is stamped onto every event. Optional.
	BatchID string
	// Logger receives dispatch and completion logs. Nil disables logging.
	Logger *log.Logger
	// Collector receives attempt counters. Nil disables metrics.
	Collector *metrics.Collector
}

// Observer receives orchestrator events.
//
// Both methods are called from a single goroutine, in emission order, before
// the corresponding outcome is delivered on the Run channel. Implementations
// must not block for long: a slow observer delays outcome delivery.
type Observer interface {
	OnDispatch(ev types.Event)
	OnComplete(ev types.Event)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Dispatch func(ev types.Event)
	Complete func(ev types.Event)
}

// OnDispatch calls f.Dispatch if set.
func (f ObserverFuncs) OnDispatch(ev types.Event) {
	if f.Dispatch != nil {
		f.Dispatch(ev)
	}
}

// OnComplete calls f.Complete if set.
func (f ObserverFuncs) OnComplete(ev types.Event) {
	if f.Complete != nil {
		f.Complete(ev)
	}
}

// task is one identifier in flight.
type task struct {
	index int
	id    types.Identifier
}

// Orchestrator runs one batch of resolutions. It is single-use.
type Orchestrator struct {
	config    OrchestratorConfig
	resolver  resolver.Resolver
	observers []Observer
	logger    *log.Logger
	started   atomic.Bool
}

// NewOrchestrator validates cfg and creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig, r resolver.Resolver, observers ...Observer) (*Orchestrator, error) {
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, cfg.Concurrency)
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if cfg.AttemptTimeout < 0 {
		return nil, fmt.Errorf("attempt timeout must be >= 0, got %s", cfg.AttemptTimeout)
	}
	if r == nil {
		return nil, ErrNilResolver
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	obs := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			obs = append(obs, o)
		}
	}

	return &Orchestrator{
		config:    cfg,
		resolver:  r,
		observers: obs,
		logger:    logger.Named("orchestrator"),
	}, nil
}

// Run starts the batch and returns the outcome stream.
//
// The channel yields exactly len(ids) outcomes in completion order and is
// then closed. Callers must drain it. Canceling ctx cancels in-flight
// attempts; identifiers not yet attempted are emitted as canceled failures
// without calling the resolver.
func (o *Orchestrator) Run(ctx context.Context, ids []types.Identifier) (<-chan types.Outcome, error) {
	if !o.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	ids = append([]types.Identifier(nil), ids...)
	out := make(chan types.Outcome)
	// Sized so that producers never block on the collector.
	events := make(chan types.Event, 2*len(ids))

	go o.collect(events, out)
	go func() {
		defer close(events)
		switch o.config.Mode {
		case ModeFanOut:
			o.runFanOut(ctx, ids, events)
		default:
			o.runPipelined(ctx, ids, events)
		}
	}()

	return out, nil
}

// collect is the single goroutine that sequences events, notifies observers
// and forwards outcomes.
func (o *Orchestrator) collect(events <-chan types.Event, out chan<- types.Outcome) {
	defer close(out)

	var seq int64
	for ev := range events {
		seq++
		ev.Seq = seq
		ev.BatchID = o.config.BatchID

		switch ev.Kind {
		case types.EventDispatched:
			o.config.Collector.IncDispatched()
			o.logger.Debug("dispatched", map[string]any{
				"index":      ev.Index,
				"identifier": ev.Identifier.String(),
			})
			for _, obs := range o.observers {
				obs.OnDispatch(ev)
			}

		case types.EventCompleted:
			outcome := *ev.Outcome
			o.record(outcome)
			for _, obs := range o.observers {
				obs.OnComplete(ev)
			}
			out <- outcome
		}
	}
}

func (o *Orchestrator) record(outcome types.Outcome) {
	fields := map[string]any{
		"index":       outcome.Index,
		"identifier":  outcome.Identifier.String(),
		"status":      string(outcome.Status),
		"duration_ms": outcome.Duration.Milliseconds(),
	}

	switch outcome.Status {
	case types.StatusResolved:
		o.config.Collector.IncResolved()
		fields["name"] = outcome.Metadata.Name
		fields["fingerprint"] = outcome.Metadata.Fingerprint
		o.logger.Info("resolved", fields)
	case types.StatusTimedOut:
		o.config.Collector.IncTimedOut()
		fields["error"] = outcome.Failure.Message
		o.logger.Warn("attempt timed out", fields)
	default:
		o.config.Collector.IncFailed(string(outcome.Failure.Kind))
		fields["kind"] = string(outcome.Failure.Kind)
		fields["error"] = outcome.Failure.Message
		o.logger.Warn("attempt failed", fields)
	}
}

// attempt resolves one identifier and emits its completion event.
// It never returns an error: every failure mode becomes an outcome.
func (o *Orchestrator) attempt(ctx context.Context, t task, events chan<- types.Event) {
	if err := ctx.Err(); err != nil {
		events <- completed(types.Failed(t.index, t.id, types.FailureCanceled,
			"batch canceled before attempt: "+err.Error(), 0))
		return
	}

	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if o.config.AttemptTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, o.config.AttemptTimeout)
	}
	defer cancel()

	start := time.Now()
	md, err := o.call(attemptCtx, t.id)
	elapsed := time.Since(start)

	if err == nil {
		events <- completed(types.Resolved(t.index, t.id, md, elapsed))
		return
	}
	events <- completed(o.failure(ctx, attemptCtx, t, err, elapsed))
}

func (o *Orchestrator) failure(parent, attemptCtx context.Context, t task, err error, elapsed time.Duration) types.Outcome {
	var pe *panicError
	switch {
	case errors.As(err, &pe):
		return types.Failed(t.index, t.id, types.FailurePanic, err.Error(), elapsed)
	case parent.Err() != nil:
		return types.Failed(t.index, t.id, types.FailureCanceled, "batch canceled: "+err.Error(), elapsed)
	case o.config.AttemptTimeout > 0 && errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		return types.TimedOut(t.index, t.id,
			fmt.Sprintf("no metadata within %s", o.config.AttemptTimeout), elapsed)
	default:
		// Only the configured deadline above times an attempt out. A timeout
		// the resolver hit on its own transport is a network failure.
		kind := resolver.Classify(err)
		if kind == types.FailureTimeout {
			kind = types.FailureNetwork
		}
		return types.Failed(t.index, t.id, kind, err.Error(), elapsed)
	}
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("resolver panicked: %v", e.value)
}

// call runs the resolver, converting a panic into an error. It returns early
// when ctx is done even if the resolver ignores its context; the abandoned
// call finishes in the background.
func (o *Orchestrator) call(ctx context.Context, id types.Identifier) (types.Metadata, error) {
	type result struct {
		md  types.Metadata
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &panicError{value: r}}
			}
		}()
		md, err := o.resolver.Resolve(ctx, id)
		done <- result{md: md, err: err}
	}()

	select {
	case r := <-done:
		return r.md, r.err
	case <-ctx.Done():
		return types.Metadata{}, ctx.Err()
	}
}

func dispatched(t task) types.Event {
	return types.NewEvent(types.EventDispatched, t.index, t.id)
}

func completed(outcome types.Outcome) types.Event {
	ev := types.NewEvent(types.EventCompleted, outcome.Index, outcome.Identifier)
	ev.Outcome = &outcome
	return ev
}
