package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/magnetmeta/metrics"
	"github.com/pithecene-io/magnetmeta/workspace"
)

// Summary is the structured JSON companion of a report file.
type Summary struct {
	BatchID    string `json:"batch_id"`
	StartedAt  string `json:"started_at"`
	Mode       string `json:"mode"`
	Total      int    `json:"total"`
	Resolved   int    `json:"resolved"`
	Failed     int    `json:"failed"`
	TimedOut   int    `json:"timed_out"`
	Canceled   bool   `json:"canceled"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`

	ReportPath  string `json:"report_path"`
	ReportStyle Style  `json:"report_style"`
	Records     int    `json:"records"`

	Workspace *workspace.CleanResult `json:"workspace"`
	Metrics   *metrics.Snapshot      `json:"metrics"`
}

// WriteSummary writes the summary as JSON to path.
// If path is "-", writes to stderr.
func WriteSummary(s *Summary, path string) error {
	if path == "" {
		return errors.New("summary path must not be empty")
	}

	if path == "-" {
		if err := writeSummaryTo(s, os.Stderr); err != nil {
			return fmt.Errorf("failed to write summary to stderr: %w", err)
		}
		return nil
	}

	data, err := marshalSummary(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary to %s: %w", path, err)
	}
	return nil
}

// SummaryPath returns the conventional summary path next to a report file.
func SummaryPath(reportPath string) string {
	return reportPath + ".summary.json"
}

func writeSummaryTo(s *Summary, w io.Writer) error {
	data, err := marshalSummary(s)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func marshalSummary(s *Summary) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return append(data, '\n'), nil
}
