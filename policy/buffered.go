package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/magnetmeta/log"
	"github.com/pithecene-io/magnetmeta/types"
)

// DefaultFlushRecords is the buffered flush threshold when none is set.
const DefaultFlushRecords = 100

// ErrBufferFull is returned when an outcome arrives while the buffer is at
// capacity and earlier flushes have failed. The outcome is dropped.
var ErrBufferFull = errors.New("archive buffer full: outcome dropped")

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid buffered policy config")

// BufferedConfig configures BufferedPolicy.
type BufferedConfig struct {
	// FlushRecords triggers a flush once this many outcomes are held.
	// Zero means DefaultFlushRecords.
	FlushRecords int
	// MaxRecords caps the buffer while the target is failing.
	// Zero means four times FlushRecords.
	MaxRecords int
	// FlushInterval, when set, also flushes on a timer.
	FlushInterval time.Duration
	// Logger receives flush failures and drops. Nil discards them.
	Logger *log.Logger
}

// BufferedPolicy groups outcomes and writes them in one target call.
//
// Flushes happen when FlushRecords is reached, on each FlushInterval tick,
// and on Close. A failed flush keeps the buffer for the next attempt, so
// the target sees every outcome at least once. Outcomes stay in arrival
// order.
type BufferedPolicy struct {
	target Target
	config BufferedConfig
	logger *log.Logger

	flushMu sync.Mutex // serializes target writes

	mu     sync.Mutex // guards buffer and stats
	buffer []types.Outcome
	stats  statsRecorder

	stopCh    chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
}

// NewBufferedPolicy creates a buffered policy and starts its interval
// loop when FlushInterval is set.
func NewBufferedPolicy(target Target, config BufferedConfig) (*BufferedPolicy, error) {
	if config.FlushRecords < 0 || config.MaxRecords < 0 || config.FlushInterval < 0 {
		return nil, fmt.Errorf("%w: limits must not be negative", ErrInvalidConfig)
	}
	if config.FlushRecords == 0 {
		config.FlushRecords = DefaultFlushRecords
	}
	if config.MaxRecords == 0 {
		config.MaxRecords = 4 * config.FlushRecords
	}
	if config.MaxRecords < config.FlushRecords {
		return nil, fmt.Errorf("%w: max records %d is below flush records %d",
			ErrInvalidConfig, config.MaxRecords, config.FlushRecords)
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	p := &BufferedPolicy{
		target:   target,
		config:   config,
		logger:   logger,
		buffer:   make([]types.Outcome, 0, config.FlushRecords),
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	if config.FlushInterval > 0 {
		go p.intervalLoop()
	} else {
		close(p.loopDone)
	}
	return p, nil
}

// WriteOutcome implements report.Sink. It returns the flush error when
// this outcome triggered a flush that failed; the outcome stays buffered.
func (p *BufferedPolicy) WriteOutcome(ctx context.Context, o types.Outcome) error {
	p.mu.Lock()
	p.stats.incReceivedLocked()

	if len(p.buffer) >= p.config.MaxRecords {
		p.stats.incDroppedLocked()
		p.mu.Unlock()
		p.logger.Warn("archive buffer full, dropping outcome", map[string]any{
			"index":      o.Index,
			"identifier": string(o.Identifier),
		})
		return ErrBufferFull
	}

	p.buffer = append(p.buffer, o)
	p.stats.setBufferedLocked(len(p.buffer))
	shouldFlush := len(p.buffer) >= p.config.FlushRecords
	p.mu.Unlock()

	if shouldFlush {
		return p.Flush(ctx)
	}
	return nil
}

// Flush writes all currently buffered outcomes in one target call.
// Outcomes added during the write are kept for the next flush.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	p.stats.incFlushesLocked()
	pending := make([]types.Outcome, len(p.buffer))
	copy(pending, p.buffer)
	p.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	if err := p.target.WriteOutcomes(ctx, pending); err != nil {
		p.mu.Lock()
		p.stats.incErrorsLocked()
		p.mu.Unlock()
		p.logger.Error("archive flush failed", map[string]any{
			"records": len(pending),
			"error":   err.Error(),
		})
		return err
	}

	p.mu.Lock()
	p.buffer = append(p.buffer[:0], p.buffer[len(pending):]...)
	p.stats.addPersistedLocked(int64(len(pending)))
	p.stats.setBufferedLocked(len(p.buffer))
	p.mu.Unlock()

	p.logger.Debug("archive flushed", map[string]any{"records": len(pending)})
	return nil
}

// Close stops the interval loop, flushes what remains, and closes the
// target. Safe to call more than once; later calls return nil.
func (p *BufferedPolicy) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.stopCh)
		<-p.loopDone
		err = errors.Join(p.Flush(context.Background()), p.target.Close())
	})
	return err
}

// Stats implements Policy.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked()
}

func (p *BufferedPolicy) intervalLoop() {
	defer close(p.loopDone)

	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			hasData := len(p.buffer) > 0
			p.mu.Unlock()
			if hasData {
				// Errors are logged by Flush; the next tick retries.
				_ = p.Flush(context.Background())
			}
		case <-p.stopCh:
			return
		}
	}
}

var _ Policy = (*BufferedPolicy)(nil)
