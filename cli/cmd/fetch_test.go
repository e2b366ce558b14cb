package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/magnetmeta/adapter"
	"github.com/pithecene-io/magnetmeta/report"
	"github.com/pithecene-io/magnetmeta/resolver"
	"github.com/pithecene-io/magnetmeta/runtime"
	"github.com/pithecene-io/magnetmeta/types"
)

const (
	magnet1 = "magnet:?xt=urn:btih:1111111111111111111111111111111111111111&dn=one"
	magnet2 = "magnet:?xt=urn:btih:2222222222222222222222222222222222222222&dn=two"
	magnet3 = "magnet:?xt=urn:btih:3333333333333333333333333333333333333333&dn=three"
)

// testApp is a cli.App wired with every command, capturing output.
type testApp struct {
	*cli.App
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// newTestApp creates a cli.App with all commands wired up and ExitErrHandler
// suppressed so errors are returned instead of calling os.Exit.
func newTestApp() *testApp {
	a := &testApp{App: cli.NewApp()}
	a.Commands = []*cli.Command{
		FetchCommand(),
		ScrapeCommand(),
		CleanCommand(),
		InspectCommand(),
		EventsCommand(),
		VersionCommand("test"),
	}
	a.Writer = &a.stdout
	a.ErrWriter = &a.stderr
	a.Reader = strings.NewReader("")
	a.ExitErrHandler = func(*cli.Context, error) {}
	return a
}

// stubResolver replaces the torrent resolver for the test. id2 fails with
// "peer unreachable"; the rest resolve to their dn parameter.
func stubResolver(t *testing.T) *[]resolver.TorrentConfig {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []resolver.TorrentConfig
	)
	prev := newResolver
	newResolver = func(cfg resolver.TorrentConfig) resolver.Resolver {
		mu.Lock()
		seen = append(seen, cfg)
		mu.Unlock()
		return resolver.Func(func(_ context.Context, id types.Identifier) (types.Metadata, error) {
			if id == magnet2 {
				return types.Metadata{}, errors.New("peer unreachable")
			}
			_, name, _ := strings.Cut(string(id), "&dn=")
			hash := strings.TrimPrefix(strings.Split(string(id), "&")[0], "magnet:?xt=urn:btih:")
			return types.Metadata{Name: name, Fingerprint: hash}, nil
		})
	}
	prevTTY := isTerminal
	isTerminal = func(*os.File) bool { return false }
	t.Cleanup(func() {
		newResolver = prev
		isTerminal = prevTTY
	})
	return &seen
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exitErr cli.ExitCoder
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected cli.ExitCoder, got %T: %v", err, err)
	}
	return exitErr.ExitCode()
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// readReport returns the lines of the single report file in dir.
func readReport(t *testing.T, dir string) (string, []string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "file_*"))
	if err != nil {
		t.Fatal(err)
	}
	var reports []string
	for _, m := range matches {
		if !strings.HasSuffix(m, ".summary.json") {
			reports = append(reports, m)
		}
	}
	if len(reports) != 1 {
		t.Fatalf("expected one report in %s, found %v", dir, matches)
	}
	data, err := os.ReadFile(reports[0])
	if err != nil {
		t.Fatal(err)
	}
	return reports[0], strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestFetch_MissingConcurrency(t *testing.T) {
	stubResolver(t)
	t.Chdir(t.TempDir())
	app := newTestApp()

	err := app.Run([]string{"magnetmeta", "fetch", magnet1})
	if got := exitCode(t, err); got != exitInvalidInput {
		t.Fatalf("exit code = %d, want %d", got, exitInvalidInput)
	}
	if !strings.Contains(err.Error(), "--concurrency is required") {
		t.Errorf("error should be actionable, got: %v", err)
	}
}

func TestFetch_InvalidInput(t *testing.T) {
	stubResolver(t)
	dir := t.TempDir()
	list := writeFile(t, filepath.Join(dir, "links.txt"), magnet1+"\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no source", []string{"-c", "2"}, "no identifiers"},
		{"ambiguous source", []string{"-c", "2", "--file", list, magnet1}, "exactly one input source"},
		{"bad mode", []string{"-c", "2", "--mode", "burst", magnet1}, "invalid mode"},
		{"bad style", []string{"-c", "2", "--report-style", "fancy", magnet1}, "fancy"},
		{"negative concurrency", []string{"-c", "-1", magnet1}, "must be >= 1"},
		{"missing list file", []string{"-c", "2", "--file", filepath.Join(dir, "nope.txt")}, "nope.txt"},
		{"missing config", []string{"-c", "2", "--config", filepath.Join(dir, "nope.yaml"), magnet1}, "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp()
			args := append([]string{"magnetmeta", "fetch", "--workspace", filepath.Join(dir, "ws"), "--report-dir", filepath.Join(dir, "out")}, tt.args...)
			err := app.Run(args)
			if got := exitCode(t, err); got != exitInvalidInput {
				t.Fatalf("exit code = %d, want %d (err: %v)", got, exitInvalidInput, err)
			}
			if !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(tt.want)) {
				t.Errorf("error %q should mention %q", err.Error(), tt.want)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(dir, "out")); !os.IsNotExist(err) {
		t.Error("no report directory should be created for invalid input")
	}
}

func TestFetch_ListMode(t *testing.T) {
	seen := stubResolver(t)
	dir := t.TempDir()
	ws := filepath.Join(dir, "ws")
	outDir := filepath.Join(dir, "metadata")
	list := writeFile(t, filepath.Join(dir, "links.txt"), magnet1+"\n\n  "+magnet2+"  \n"+magnet3+"\n")
	eventsPath := filepath.Join(dir, "events.bin")

	// Stale workspace content is removed by teardown.
	writeFile(t, filepath.Join(ws, "stale", "piece.bin"), "x")

	app := newTestApp()
	err := app.Run([]string{"magnetmeta", "fetch",
		"--concurrency", "2",
		"--file", list,
		"--workspace", ws,
		"--report-dir", outDir,
		"--summary", "auto",
		"--events-log", eventsPath,
		"--log-level", "error",
	})
	if got := exitCode(t, err); got != exitSuccess {
		t.Fatalf("exit code = %d, want 0 (err: %v)", got, err)
	}

	reportPath, lines := readReport(t, outDir)
	if len(lines) != 3 {
		t.Fatalf("report has %d records, want 3: %q", len(lines), lines)
	}
	failures := 0
	for _, line := range lines {
		if strings.HasPrefix(line, magnet2+": failed with ") {
			failures++
			if !strings.Contains(line, "peer unreachable") {
				t.Errorf("failure record should carry the cause: %q", line)
			}
		}
	}
	if failures != 1 {
		t.Errorf("expected exactly one failure record, got %d in %q", failures, lines)
	}

	var summary report.Summary
	data, err := os.ReadFile(report.SummaryPath(reportPath))
	if err != nil {
		t.Fatalf("summary not written: %v", err)
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Total != 3 || summary.Resolved != 2 || summary.Failed != 1 || summary.ExitCode != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	entries, err := os.ReadDir(ws)
	if err != nil {
		t.Fatalf("workspace dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace should be empty after teardown, has %d entries", len(entries))
	}

	if len(*seen) != 1 || (*seen)[0].DataDir != ws {
		t.Errorf("resolver should use the workspace as its data dir: %+v", *seen)
	}

	if !strings.Contains(app.stderr.String(), "[3/3]") {
		t.Errorf("expected line progress on stderr, got:\n%s", app.stderr.String())
	}
	if app.stdout.Len() != 0 {
		t.Errorf("list mode should not print to stdout, got %q", app.stdout.String())
	}

	// The events log round-trips through the events command.
	app = newTestApp()
	if err := app.Run([]string{"magnetmeta", "events", "--format", "json", "--kind", "completed", eventsPath}); err != nil {
		t.Fatalf("events: %v", err)
	}
	var rows []eventRow
	if err := json.Unmarshal(app.stdout.Bytes(), &rows); err != nil {
		t.Fatalf("events output: %v\n%s", err, app.stdout.String())
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 completed events, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Seq <= rows[i-1].Seq {
			t.Errorf("events out of order: %d after %d", rows[i].Seq, rows[i-1].Seq)
		}
	}
}

func TestFetch_SingleMode(t *testing.T) {
	stubResolver(t)
	dir := t.TempDir()

	app := newTestApp()
	err := app.Run([]string{"magnetmeta", "fetch",
		"-c", "1",
		"--workspace", filepath.Join(dir, "ws"),
		"--report-dir", filepath.Join(dir, "metadata"),
		"--log-level", "error",
		magnet1,
	})
	if got := exitCode(t, err); got != exitSuccess {
		t.Fatalf("exit code = %d, want 0 (err: %v)", got, err)
	}
	if got := app.stdout.String(); got != "one\n" {
		t.Errorf("stdout = %q, want the resolved name", got)
	}
	if strings.Contains(app.stderr.String(), "[1/1]") {
		t.Error("single mode should not render progress")
	}

	_, lines := readReport(t, filepath.Join(dir, "metadata"))
	if len(lines) != 1 || lines[0] != "one, 1111111111111111111111111111111111111111" {
		t.Errorf("report = %q", lines)
	}
}

func TestFetch_SingleModeFailure(t *testing.T) {
	stubResolver(t)
	dir := t.TempDir()

	app := newTestApp()
	err := app.Run([]string{"magnetmeta", "fetch",
		"-c", "1",
		"--workspace", filepath.Join(dir, "ws"),
		"--report-dir", filepath.Join(dir, "metadata"),
		"--log-level", "error",
		magnet2,
	})
	// A failed link is a record, not a fatal error.
	if got := exitCode(t, err); got != exitSuccess {
		t.Fatalf("exit code = %d, want 0", got)
	}
	if app.stdout.Len() != 0 {
		t.Errorf("stdout = %q, want empty", app.stdout.String())
	}
	if !strings.Contains(app.stderr.String(), "peer unreachable") {
		t.Errorf("stderr should explain the failure, got %q", app.stderr.String())
	}
}

func TestFetch_ConfigProvidesSettings(t *testing.T) {
	stubResolver(t)
	dir := t.TempDir()
	t.Chdir(dir)

	writeFile(t, filepath.Join(dir, "magnetmeta.yaml"), `concurrency: 2
mode: fanout
workspace: ./scratch
report_dir: ./reports
report_style: rich
`)
	list := writeFile(t, filepath.Join(dir, "links.json"), `[{"magnet": "`+magnet1+`"}, {"magnet": "`+magnet3+`"}]`)

	app := newTestApp()
	err := app.Run([]string{"magnetmeta", "fetch", "--quiet", "--log-level", "error", "--links-json", list})
	if got := exitCode(t, err); got != exitSuccess {
		t.Fatalf("exit code = %d, want 0 (err: %v)", got, err)
	}

	_, lines := readReport(t, filepath.Join(dir, "reports"))
	if len(lines) != 2 {
		t.Fatalf("report = %q", lines)
	}
	for _, line := range lines {
		if !strings.HasSuffix(line, magnet1) && !strings.HasSuffix(line, magnet3) {
			t.Errorf("rich style should end with the identifier: %q", line)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "scratch")); err != nil {
		t.Errorf("configured workspace not used: %v", err)
	}
	if app.stderr.Len() != 0 {
		t.Errorf("--quiet should suppress progress, got %q", app.stderr.String())
	}
}

func TestFetch_ReportOpenFailureIsFatal(t *testing.T) {
	stubResolver(t)
	dir := t.TempDir()
	// A file where the report directory should be.
	blocker := writeFile(t, filepath.Join(dir, "metadata"), "not a dir")

	app := newTestApp()
	err := app.Run([]string{"magnetmeta", "fetch",
		"-c", "1", "--quiet", "--log-level", "error",
		"--workspace", filepath.Join(dir, "ws"),
		"--report-dir", blocker,
		magnet1,
	})
	if got := exitCode(t, err); got != exitFatal {
		t.Fatalf("exit code = %d, want %d (err: %v)", got, exitFatal, err)
	}
}

func TestFetch_ArchiveAndWebhook(t *testing.T) {
	stubResolver(t)
	dir := t.TempDir()
	archiveDir := filepath.Join(dir, "archive")
	list := writeFile(t, filepath.Join(dir, "links.txt"), strings.Join([]string{magnet1, magnet2, magnet3}, "\n"))

	var (
		mu       sync.Mutex
		received []adapter.BatchCompletedEvent
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var ev adapter.BatchCompletedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			t.Errorf("webhook body: %v", err)
		}
		if r.Header.Get("X-Token") != "secret" {
			t.Errorf("missing custom header")
		}
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	app := newTestApp()
	err := app.Run([]string{"magnetmeta", "fetch",
		"-c", "3", "--quiet", "--log-level", "error",
		"--file", list,
		"--workspace", filepath.Join(dir, "ws"),
		"--report-dir", filepath.Join(dir, "metadata"),
		"--archive-path", archiveDir,
		"--archive-policy", "buffered",
		"--archive-flush-records", "2",
		"--adapter", "webhook",
		"--adapter-url", srv.URL,
		"--adapter-header", "X-Token=secret",
	})
	if got := exitCode(t, err); got != exitSuccess {
		t.Fatalf("exit code = %d, want 0 (err: %v)", got, err)
	}

	mu.Lock()
	if len(received) != 1 {
		t.Fatalf("expected one webhook call, got %d", len(received))
	}
	ev := received[0]
	mu.Unlock()
	if ev.EventType != adapter.EventTypeBatchCompleted || ev.Total != 3 || ev.Resolved != 2 || ev.Failed != 1 {
		t.Errorf("unexpected event: %+v", ev)
	}
	if !strings.HasPrefix(ev.ArchivePath, archiveDir) || !strings.Contains(ev.ArchivePath, "batch_id="+ev.BatchID) {
		t.Errorf("archive path = %q", ev.ArchivePath)
	}

	// Outcomes are queryable through inspect.
	app = newTestApp()
	if err := app.Run([]string{"magnetmeta", "inspect", "outcomes", "--format", "json",
		"--archive-path", archiveDir, "--status", "failed"}); err != nil {
		t.Fatalf("inspect outcomes: %v", err)
	}
	var records []struct {
		Identifier string `json:"identifier"`
		Status     string `json:"status"`
		BatchID    string `json:"batch_id"`
	}
	if err := json.Unmarshal(app.stdout.Bytes(), &records); err != nil {
		t.Fatalf("inspect output: %v\n%s", err, app.stdout.String())
	}
	if len(records) != 1 || records[0].Identifier != magnet2 || records[0].BatchID != ev.BatchID {
		t.Errorf("failed records = %+v", records)
	}

	app = newTestApp()
	if err := app.Run([]string{"magnetmeta", "inspect", "summary", "--format", "json",
		"--archive-path", archiveDir, "--batch-id", ev.BatchID}); err != nil {
		t.Fatalf("inspect summary: %v", err)
	}
	var summary report.Summary
	if err := json.Unmarshal(app.stdout.Bytes(), &summary); err != nil {
		t.Fatalf("summary output: %v\n%s", err, app.stdout.String())
	}
	if summary.BatchID != ev.BatchID || summary.Total != 3 {
		t.Errorf("archived summary = %+v", summary)
	}
}

func TestBatchExitCode(t *testing.T) {
	tests := []struct {
		name   string
		cancel bool
		err    error
		want   int
	}{
		{"drained", false, nil, exitSuccess},
		{"interrupted", true, nil, exitInterrupted},
		{"fatal wins over cancel", true, errors.New("report write failed"), exitFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &runtime.BatchResult{Canceled: tt.cancel}
			if got := batchExitCode(res, tt.err); got != tt.want {
				t.Errorf("batchExitCode = %d, want %d", got, tt.want)
			}
		})
	}
}
