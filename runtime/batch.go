package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/magnetmeta/log"
	"github.com/pithecene-io/magnetmeta/metrics"
	"github.com/pithecene-io/magnetmeta/report"
	"github.com/pithecene-io/magnetmeta/resolver"
	"github.com/pithecene-io/magnetmeta/types"
	"github.com/pithecene-io/magnetmeta/workspace"
)

// BatchConfig configures a Batch.
type BatchConfig struct {
	// Meta identifies the batch. Required.
	Meta *types.BatchMeta
	// Orchestrator configures the pool. BatchID, Logger and Collector are
	// filled from the batch when empty.
	Orchestrator OrchestratorConfig
	// Resolver resolves identifiers. The batch owns it: if it implements
	// io.Closer it is closed after the last outcome, before teardown.
	Resolver resolver.Resolver
	// Workspace is the scratch directory. Required.
	Workspace *workspace.Manager
	// ReportDir is the report directory. Empty means report.DefaultDir.
	ReportDir string
	// ReportStyle selects the record format. Empty means basic.
	ReportStyle report.Style
	// Sinks receive every outcome after the report. Their failures are
	// logged and never fail the batch.
	Sinks []report.Sink
	// Observers receive orchestrator events.
	Observers []Observer
	// QuietClean suppresses per-entry removal logs during teardown.
	QuietClean bool
	// Logger is the batch logger. Nil discards output.
	Logger *log.Logger
	// Collector receives batch counters. Nil disables metrics.
	Collector *metrics.Collector
}

// BatchResult describes a drained batch.
type BatchResult struct {
	Meta *types.BatchMeta
	// Outcomes are in emission order, which is also report order.
	Outcomes []types.Outcome
	Resolved int
	Failed   int
	TimedOut int
	// Canceled is true when the batch context was canceled before drain.
	Canceled bool

	ReportPath  string
	ReportStyle report.Style
	Records     int

	Clean    workspace.CleanResult
	Duration time.Duration
}

// Batch runs one BatchRun: prepare the workspace, open the report, drain the
// orchestrator into the sinks, and tear the workspace down exactly once.
type Batch struct {
	config       BatchConfig
	orchestrator *Orchestrator
	sinks        report.Sink
	logger       *log.Logger

	started      atomic.Bool
	teardownOnce sync.Once
	cleanResult  workspace.CleanResult
}

// NewBatch validates cfg and creates a Batch.
func NewBatch(cfg BatchConfig) (*Batch, error) {
	if err := cfg.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch metadata: %w", err)
	}
	if cfg.Workspace == nil {
		return nil, errors.New("workspace is required")
	}
	if cfg.ReportStyle == "" {
		cfg.ReportStyle = report.StyleBasic
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}

	oc := cfg.Orchestrator
	if oc.BatchID == "" {
		oc.BatchID = cfg.Meta.BatchID
	}
	if oc.Logger == nil {
		oc.Logger = cfg.Logger
	}
	if oc.Collector == nil {
		oc.Collector = cfg.Collector
	}
	orch, err := NewOrchestrator(oc, cfg.Resolver, cfg.Observers...)
	if err != nil {
		return nil, err
	}

	var sinks report.Sink
	if len(cfg.Sinks) > 0 {
		sinks = report.Multi(cfg.Sinks...)
	}

	return &Batch{
		config:       cfg,
		orchestrator: orch,
		sinks:        sinks,
		logger:       cfg.Logger.Named("batch"),
	}, nil
}

// Run resolves ids and returns once every outcome is written and the
// workspace is torn down. The returned error is non-nil only for fatal
// conditions: the workspace or report could not be prepared, or a report
// record could not be written. Per-identifier failures are outcomes.
func (b *Batch) Run(ctx context.Context, ids []types.Identifier) (*BatchResult, error) {
	if !b.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	start := time.Now()
	b.config.Meta.Total = len(ids)
	result := &BatchResult{
		Meta:        b.config.Meta,
		ReportStyle: b.config.ReportStyle,
	}
	b.config.Collector.IncBatchStarted()
	b.logger.Info("batch started", map[string]any{
		"links":     len(ids),
		"mode":      string(b.orchestrator.config.Mode),
		"workspace": b.config.Workspace.Path(),
	})

	finish := func() {
		b.closeResolver()
		result.Clean = b.teardown()
		result.Canceled = ctx.Err() != nil
		result.Duration = time.Since(start)
	}

	if err := b.config.Workspace.Ensure(); err != nil {
		finish()
		return result, err
	}

	w, err := report.Open(b.config.ReportDir, b.config.Meta.StartedAt, b.config.ReportStyle)
	if err != nil {
		finish()
		return result, err
	}
	result.ReportPath = w.Path()

	outcomes, err := b.orchestrator.Run(ctx, ids)
	if err != nil {
		_ = w.Close()
		finish()
		return result, err
	}

	// Sinks keep receiving canceled outcomes after SIGINT.
	sinkCtx := context.WithoutCancel(ctx)
	var writeErr error
	for o := range outcomes {
		result.Outcomes = append(result.Outcomes, o)
		switch o.Status {
		case types.StatusResolved:
			result.Resolved++
		case types.StatusTimedOut:
			result.TimedOut++
		default:
			result.Failed++
		}

		if err := w.Write(o); err != nil {
			b.config.Collector.IncRecordWriteFailure()
			b.logger.Error("report write failed", map[string]any{
				"index": o.Index,
				"error": err.Error(),
			})
			writeErr = errors.Join(writeErr, err)
		} else {
			b.config.Collector.IncRecordWritten()
		}

		if b.sinks != nil {
			if err := b.sinks.WriteOutcome(sinkCtx, o); err != nil {
				b.logger.Warn("sink write failed", map[string]any{
					"index": o.Index,
					"error": err.Error(),
				})
			}
		}
	}

	if err := w.Close(); err != nil {
		writeErr = errors.Join(writeErr, err)
	}
	result.Records = w.Records()
	if b.sinks != nil {
		if err := b.sinks.Close(); err != nil {
			b.logger.Warn("sink close failed", map[string]any{"error": err.Error()})
		}
	}

	finish()
	b.config.Collector.IncBatchCompleted()
	b.logger.Info("batch drained", map[string]any{
		"resolved":    result.Resolved,
		"failed":      result.Failed,
		"timed_out":   result.TimedOut,
		"report":      result.ReportPath,
		"duration_ms": result.Duration.Milliseconds(),
	})

	if writeErr != nil {
		return result, fmt.Errorf("report %s is incomplete: %w", result.ReportPath, writeErr)
	}
	return result, nil
}

func (b *Batch) closeResolver() {
	c, ok := b.config.Resolver.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		b.logger.Warn("resolver close failed", map[string]any{"error": err.Error()})
	}
}

// teardown cleans the workspace exactly once.
func (b *Batch) teardown() workspace.CleanResult {
	b.teardownOnce.Do(func() {
		b.cleanResult = b.config.Workspace.Clean(b.config.QuietClean)
		b.config.Collector.AddWorkspaceClean(len(b.cleanResult.Removed), len(b.cleanResult.Failures))
	})
	return b.cleanResult
}
