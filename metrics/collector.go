// Package metrics provides per-batch counters.
//
// The Collector accumulates counters during a single batch. It is a leaf
// package with no internal dependencies so that every layer (orchestrator,
// report sinks, workspace, adapters) can record into it.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of the batch counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Batch lifecycle
	BatchesStarted   int64 `json:"batches_started"`
	BatchesCompleted int64 `json:"batches_completed"`

	// Resolution attempts
	AttemptsDispatched int64            `json:"attempts_dispatched"`
	AttemptsResolved   int64            `json:"attempts_resolved"`
	AttemptsFailed     int64            `json:"attempts_failed"`
	AttemptsTimedOut   int64            `json:"attempts_timed_out"`
	FailuresByKind     map[string]int64 `json:"failures_by_kind"`

	// Report
	RecordsWritten      int64 `json:"records_written"`
	RecordWriteFailures int64 `json:"record_write_failures"`

	// Archive
	ArchiveWriteSuccess int64 `json:"archive_write_success"`
	ArchiveWriteFailure int64 `json:"archive_write_failure"`

	// Workspace teardown
	WorkspaceEntriesRemoved int64 `json:"workspace_entries_removed"`
	WorkspaceEntriesFailed  int64 `json:"workspace_entries_failed"`

	// Notifications
	NotifySuccess int64 `json:"notify_success"`
	NotifyFailure int64 `json:"notify_failure"`

	// Dimensions (informational, set at construction)
	Mode           string `json:"mode"`
	Concurrency    int    `json:"concurrency"`
	ArchiveBackend string `json:"archive_backend"`
	BatchID        string `json:"batch_id"`
}

// Collector accumulates metrics during a single batch.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
// archiveBackend is empty when no archive is configured.
func NewCollector(mode string, concurrency int, archiveBackend, batchID string) *Collector {
	return &Collector{
		s: Snapshot{
			FailuresByKind: make(map[string]int64),
			Mode:           mode,
			Concurrency:    concurrency,
			ArchiveBackend: archiveBackend,
			BatchID:        batchID,
		},
	}
}

func (c *Collector) add(fn func(s *Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn(&c.s)
	c.mu.Unlock()
}

// --- Batch lifecycle ---

// IncBatchStarted records a batch start.
func (c *Collector) IncBatchStarted() { c.add(func(s *Snapshot) { s.BatchesStarted++ }) }

// IncBatchCompleted records a drained batch.
func (c *Collector) IncBatchCompleted() { c.add(func(s *Snapshot) { s.BatchesCompleted++ }) }

// --- Resolution attempts ---

// IncDispatched records an attempt handed to the pool.
func (c *Collector) IncDispatched() { c.add(func(s *Snapshot) { s.AttemptsDispatched++ }) }

// IncResolved records a successful attempt.
func (c *Collector) IncResolved() { c.add(func(s *Snapshot) { s.AttemptsResolved++ }) }

// IncFailed records a failed attempt under its cause kind.
func (c *Collector) IncFailed(kind string) {
	c.add(func(s *Snapshot) {
		s.AttemptsFailed++
		s.FailuresByKind[kind]++
	})
}

// IncTimedOut records an attempt that exceeded its deadline.
func (c *Collector) IncTimedOut() {
	c.add(func(s *Snapshot) {
		s.AttemptsTimedOut++
		s.FailuresByKind["timeout"]++
	})
}

// --- Report ---

// IncRecordWritten records a report line appended.
func (c *Collector) IncRecordWritten() { c.add(func(s *Snapshot) { s.RecordsWritten++ }) }

// IncRecordWriteFailure records a report append that failed.
func (c *Collector) IncRecordWriteFailure() { c.add(func(s *Snapshot) { s.RecordWriteFailures++ }) }

// --- Archive ---
// Archive counters are per-call. One archive write per outcome.

// IncArchiveWriteSuccess records a successful archive write.
func (c *Collector) IncArchiveWriteSuccess() { c.add(func(s *Snapshot) { s.ArchiveWriteSuccess++ }) }

// IncArchiveWriteFailure records a failed archive write.
func (c *Collector) IncArchiveWriteFailure() { c.add(func(s *Snapshot) { s.ArchiveWriteFailure++ }) }

// --- Workspace ---

// AddWorkspaceClean records the result of one teardown.
func (c *Collector) AddWorkspaceClean(removed, failed int) {
	c.add(func(s *Snapshot) {
		s.WorkspaceEntriesRemoved += int64(removed)
		s.WorkspaceEntriesFailed += int64(failed)
	})
}

// --- Notifications ---

// IncNotifySuccess records a delivered batch-completed notification.
func (c *Collector) IncNotifySuccess() { c.add(func(s *Snapshot) { s.NotifySuccess++ }) }

// IncNotifyFailure records a failed batch-completed notification.
func (c *Collector) IncNotifyFailure() { c.add(func(s *Snapshot) { s.NotifyFailure++ }) }

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.s
	snap.FailuresByKind = make(map[string]int64, len(c.s.FailuresByKind))
	for k, v := range c.s.FailuresByKind {
		snap.FailuresByKind[k] = v
	}
	return snap
}
