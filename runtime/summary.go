package runtime

import (
	"time"

	"github.com/pithecene-io/magnetmeta/metrics"
	"github.com/pithecene-io/magnetmeta/report"
)

// BuildSummary composes a report.Summary from a BatchResult and a metrics
// snapshot. exitCode is the process exit code that will be returned.
func BuildSummary(result *BatchResult, mode Mode, snap metrics.Snapshot, exitCode int) *report.Summary {
	s := &report.Summary{
		Mode:        string(mode),
		Total:       len(result.Outcomes),
		Resolved:    result.Resolved,
		Failed:      result.Failed,
		TimedOut:    result.TimedOut,
		Canceled:    result.Canceled,
		ExitCode:    exitCode,
		DurationMs:  result.Duration.Milliseconds(),
		ReportPath:  result.ReportPath,
		ReportStyle: result.ReportStyle,
		Records:     result.Records,
		Metrics:     &snap,
	}

	if result.Meta != nil {
		s.BatchID = result.Meta.BatchID
		s.StartedAt = result.Meta.StartedAt.UTC().Format(time.RFC3339)
		s.Total = result.Meta.Total
	}

	clean := result.Clean
	s.Workspace = &clean

	return s
}
