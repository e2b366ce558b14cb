// Package policy controls how outcomes reach the archive.
//
// A strict policy writes each outcome as it arrives. A buffered policy
// collects outcomes and writes them in groups, so a batch of N links costs
// far fewer archive snapshots than N. Both satisfy report.Sink.
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/pithecene-io/magnetmeta/report"
	"github.com/pithecene-io/magnetmeta/types"
)

// Target persists groups of outcomes. lode.Archive is the production target.
type Target interface {
	// WriteOutcomes persists outcomes in order as a single write.
	WriteOutcomes(ctx context.Context, outcomes []types.Outcome) error
	Close() error
}

// Policy is a report.Sink with explicit flushing.
type Policy interface {
	report.Sink

	// Flush writes anything still buffered.
	Flush(ctx context.Context) error

	// Stats returns a consistent snapshot of the policy counters.
	Stats() Stats
}

// Name identifies a policy in flags and config.
type Name string

const (
	// NameStrict writes through.
	NameStrict Name = "strict"
	// NameBuffered groups writes.
	NameBuffered Name = "buffered"
)

// ParseName validates a policy name. Empty means strict.
func ParseName(s string) (Name, error) {
	switch Name(s) {
	case "", NameStrict:
		return NameStrict, nil
	case NameBuffered:
		return NameBuffered, nil
	default:
		return "", fmt.Errorf("unknown archive policy %q (must be strict or buffered)", s)
	}
}

// Stats are policy observability counters.
type Stats struct {
	// Received is the number of outcomes handed to the policy.
	Received int64
	// Persisted is the number of outcomes the target accepted.
	Persisted int64
	// Dropped is the number of outcomes discarded because the buffer
	// could not drain.
	Dropped int64
	// Buffered is the number of outcomes currently held.
	Buffered int64
	// Flushes counts flush attempts, successful or not.
	Flushes int64
	// Errors counts failed target writes.
	Errors int64
}

// statsRecorder guards Stats. BufferedPolicy uses the Locked variants
// while holding its own mutex so buffer state and counters agree.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func (r *statsRecorder) incReceived() {
	r.mu.Lock()
	r.stats.Received++
	r.mu.Unlock()
}

func (r *statsRecorder) addPersisted(n int64) {
	r.mu.Lock()
	r.stats.Persisted += n
	r.mu.Unlock()
}

func (r *statsRecorder) incFlushes() {
	r.mu.Lock()
	r.stats.Flushes++
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *statsRecorder) incReceivedLocked() { r.stats.Received++ }
func (r *statsRecorder) addPersistedLocked(n int64) { r.stats.Persisted += n }
func (r *statsRecorder) incDroppedLocked() { r.stats.Dropped++ }
func (r *statsRecorder) setBufferedLocked(n int) { r.stats.Buffered = int64(n) }
func (r *statsRecorder) incFlushesLocked() { r.stats.Flushes++ }
func (r *statsRecorder) incErrorsLocked() { r.stats.Errors++ }
func (r *statsRecorder) snapshotLocked() Stats { return r.stats }
