// Package adapter defines the batch notification boundary.
//
// Adapters publish a batch-completed event to a downstream system once a
// batch has drained. Publishing is best-effort: a failed notification never
// changes the batch exit code.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/magnetmeta/report"
	"github.com/pithecene-io/magnetmeta/types"
)

// EventTypeBatchCompleted is the event_type of every published event.
const EventTypeBatchCompleted = "batch_completed"

// BatchCompletedEvent is the payload published when a batch drains.
type BatchCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "batch_completed"
	BatchID         string `json:"batch_id"`
	Day             string `json:"day"`
	Total           int    `json:"total"`
	Resolved        int    `json:"resolved"`
	Failed          int    `json:"failed"`
	TimedOut        int    `json:"timed_out"`
	Canceled        bool   `json:"canceled"`
	ReportPath      string `json:"report_path"`
	ArchivePath     string `json:"archive_path,omitempty"`
	Timestamp       string `json:"timestamp"` // RFC 3339
	DurationMs      int64  `json:"duration_ms"`
}

// NewBatchCompletedEvent builds the event from a batch summary.
// archivePath is empty when no archive is configured.
func NewBatchCompletedEvent(s *report.Summary, day, archivePath string) *BatchCompletedEvent {
	return &BatchCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       EventTypeBatchCompleted,
		BatchID:         s.BatchID,
		Day:             day,
		Total:           s.Total,
		Resolved:        s.Resolved,
		Failed:          s.Failed,
		TimedOut:        s.TimedOut,
		Canceled:        s.Canceled,
		ReportPath:      s.ReportPath,
		ArchivePath:     archivePath,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		DurationMs:      s.DurationMs,
	}
}

// Adapter publishes batch-completed events to a downstream system.
type Adapter interface {
	// Publish sends the event. Must respect context cancellation.
	Publish(ctx context.Context, event *BatchCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry. It doubles per retry.
var BaseBackoff = 500 * time.Millisecond

// Retry calls attempt up to 1+retries times with exponential backoff
// between calls. It stops early when attempt succeeds, when permanent
// reports the error as non-retriable, or when ctx is done. name prefixes
// returned errors.
func Retry(ctx context.Context, name string, retries int, permanent func(error) bool, attempt func(ctx context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
