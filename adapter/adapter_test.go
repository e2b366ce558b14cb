package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/magnetmeta/report"
)

func TestNewBatchCompletedEvent(t *testing.T) {
	s := &report.Summary{
		BatchID:    "b-1",
		Total:      3,
		Resolved:   2,
		Failed:     1,
		ReportPath: "metadata/file_x",
		DurationMs: 1200,
	}
	ev := NewBatchCompletedEvent(s, "2026-02-07", "magnetmeta/day=2026-02-07/batch_id=b-1")

	if ev.EventType != EventTypeBatchCompleted {
		t.Errorf("EventType = %q", ev.EventType)
	}
	if ev.BatchID != "b-1" || ev.Total != 3 || ev.Resolved != 2 || ev.Failed != 1 {
		t.Errorf("counts not copied: %+v", ev)
	}
	if ev.Day != "2026-02-07" || ev.ArchivePath == "" || ev.Timestamp == "" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestRetry(t *testing.T) {
	prev := BaseBackoff
	BaseBackoff = time.Millisecond
	t.Cleanup(func() { BaseBackoff = prev })

	errFlaky := errors.New("flaky")
	errFatal := errors.New("fatal")

	tests := []struct {
		name      string
		failures  int
		fail      error
		retries   int
		wantCalls int
		wantErr   string
	}{
		{"first try", 0, nil, 3, 1, ""},
		{"recovers", 2, errFlaky, 3, 3, ""},
		{"exhausts", 10, errFlaky, 2, 3, "failed after 3 attempts"},
		{"permanent stops", 10, errFatal, 5, 1, "non-retriable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(t.Context(), "test", tt.retries,
				func(err error) bool { return errors.Is(err, errFatal) },
				func(context.Context) error {
					calls++
					if calls <= tt.failures {
						return tt.fail
					}
					return nil
				})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == "" && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	called := false
	err := Retry(ctx, "test", 3, nil, func(context.Context) error {
		called = true
		return nil
	})
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("attempt should not run on a canceled context")
	}
}
