package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pithecene-io/magnetmeta/discover"
	"github.com/pithecene-io/magnetmeta/types"
	"github.com/pithecene-io/magnetmeta/workspace"
)

func TestScrape_WritesLinksDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, `<a href="%s">1</a><a href="%s">3</a><a href="%s">again</a>`, magnet1, magnet3, magnet1)
	}))
	defer srv.Close()

	outDir := filepath.Join(t.TempDir(), "links")
	app := newTestApp()
	if err := app.Run([]string{"magnetmeta", "scrape", "--format", "json", "--output-dir", outDir, srv.URL}); err != nil {
		t.Fatalf("scrape: %v", err)
	}

	var res discover.Result
	if err := json.Unmarshal(app.stdout.Bytes(), &res); err != nil {
		t.Fatalf("scrape output: %v\n%s", err, app.stdout.String())
	}
	if len(res.Links) != 2 || res.Links[0] != magnet1 || res.Links[1] != magnet3 {
		t.Errorf("links = %v", res.Links)
	}
	if filepath.Dir(res.Path) != outDir {
		t.Errorf("document path = %q, want under %q", res.Path, outDir)
	}

	// The document feeds straight into fetch --links-json.
	stubResolver(t)
	dir := t.TempDir()
	app = newTestApp()
	err := app.Run([]string{"magnetmeta", "fetch", "-c", "2", "--quiet", "--log-level", "error",
		"--workspace", filepath.Join(dir, "ws"),
		"--report-dir", filepath.Join(dir, "metadata"),
		"--links-json", res.Path,
	})
	if got := exitCode(t, err); got != exitSuccess {
		t.Fatalf("fetch exit code = %d (err: %v)", got, err)
	}
	if _, lines := readReport(t, filepath.Join(dir, "metadata")); len(lines) != 2 {
		t.Errorf("report = %q", lines)
	}
}

func TestScrape_ThroughConfiguredProxyPool(t *testing.T) {
	var proxied []string
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxied = append(proxied, r.URL.String())
		_, _ = fmt.Fprint(w, magnet2)
	}))
	defer proxySrv.Close()

	dir := t.TempDir()
	cfgPath := writeFile(t, filepath.Join(dir, "magnetmeta.yaml"), fmt.Sprintf(`scrape:
  output_dir: %s
  proxy: crawl
  proxies:
    crawl:
      strategy: round_robin
      endpoints:
        - http://%s
`, filepath.Join(dir, "links"), proxySrv.Listener.Addr().String()))

	app := newTestApp()
	if err := app.Run([]string{"magnetmeta", "scrape", "--format", "json", "--config", cfgPath, "http://tracker.invalid/top"}); err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(proxied) != 1 || proxied[0] != "http://tracker.invalid/top" {
		t.Errorf("proxied = %v", proxied)
	}

	var res discover.Result
	if err := json.Unmarshal(app.stdout.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Links) != 1 || res.Links[0] != types.Identifier(magnet2) {
		t.Errorf("links = %v", res.Links)
	}
}

func TestScrape_InvalidInput(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, filepath.Join(dir, "magnetmeta.yaml"), "scrape:\n  proxy: missing\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no seed", nil, "exactly one seed URL"},
		{"relative seed", []string{"example.com/page"}, "absolute http(s) URL"},
		{"undefined pool", []string{"--config", cfgPath, "http://example.com"}, `proxy pool "missing"`},
		{"tui unsupported", []string{"--tui", "http://example.com"}, "--tui is not supported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp()
			err := app.Run(append([]string{"magnetmeta", "scrape"}, tt.args...))
			if got := exitCode(t, err); got != exitInvalidInput {
				t.Fatalf("exit code = %d, want %d (err: %v)", got, exitInvalidInput, err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestClean(t *testing.T) {
	ws := filepath.Join(t.TempDir(), "ws")
	writeFile(t, filepath.Join(ws, "a.torrent"), "x")
	writeFile(t, filepath.Join(ws, "sub", "piece"), "y")

	app := newTestApp()
	if err := app.Run([]string{"magnetmeta", "clean", "--format", "json", "--workspace", ws}); err != nil {
		t.Fatalf("clean: %v", err)
	}
	var res workspace.CleanResult
	if err := json.Unmarshal(app.stdout.Bytes(), &res); err != nil {
		t.Fatalf("clean output: %v\n%s", err, app.stdout.String())
	}
	if res.Missing || len(res.Removed) != 2 {
		t.Errorf("clean result = %+v", res)
	}
	if entries, _ := os.ReadDir(ws); len(entries) != 0 {
		t.Errorf("workspace still has %d entries", len(entries))
	}

	// Cleaning a missing workspace is not an error.
	app = newTestApp()
	if err := app.Run([]string{"magnetmeta", "clean", "--format", "json", "--workspace", filepath.Join(ws, "nope")}); err != nil {
		t.Fatalf("clean missing: %v", err)
	}
	res = workspace.CleanResult{}
	if err := json.Unmarshal(app.stdout.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Missing {
		t.Errorf("expected missing=true, got %+v", res)
	}
}

func TestInspect_RequiresArchivePath(t *testing.T) {
	app := newTestApp()
	err := app.Run([]string{"magnetmeta", "inspect", "outcomes", "--format", "json"})
	if got := exitCode(t, err); got != exitInvalidInput {
		t.Fatalf("exit code = %d, want %d", got, exitInvalidInput)
	}
	if !strings.Contains(err.Error(), "--archive-path is required") {
		t.Errorf("unexpected error: %v", err)
	}

	app = newTestApp()
	err = app.Run([]string{"magnetmeta", "inspect", "outcomes", "--archive-path", t.TempDir(), "--status", "lost"})
	if got := exitCode(t, err); got != exitInvalidInput {
		t.Fatalf("exit code = %d, want %d for bad status", got, exitInvalidInput)
	}
}

func TestInspect_SummaryNotFound(t *testing.T) {
	app := newTestApp()
	err := app.Run([]string{"magnetmeta", "inspect", "summary", "--format", "json", "--archive-path", t.TempDir()})
	if got := exitCode(t, err); got != exitFatal {
		t.Fatalf("exit code = %d, want %d (err: %v)", got, exitFatal, err)
	}
}

func TestEvents_Errors(t *testing.T) {
	app := newTestApp()
	if got := exitCode(t, app.Run([]string{"magnetmeta", "events"})); got != exitInvalidInput {
		t.Errorf("missing path: exit code = %d", got)
	}

	app = newTestApp()
	if got := exitCode(t, app.Run([]string{"magnetmeta", "events", "--kind", "paused", "x"})); got != exitInvalidInput {
		t.Errorf("bad kind: exit code = %d", got)
	}

	// A truncated frame prefix is corruption, not a skipped event.
	corrupt := writeFile(t, filepath.Join(t.TempDir(), "events.bin"), "\x00\x00")
	app = newTestApp()
	if got := exitCode(t, app.Run([]string{"magnetmeta", "events", "--format", "json", corrupt})); got != exitFatal {
		t.Errorf("corrupt log: exit code = %d, want %d", got, exitFatal)
	}
}

func TestVersion(t *testing.T) {
	app := newTestApp()
	if err := app.Run([]string{"magnetmeta", "version", "--format", "json"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	var resp VersionResponse
	if err := json.Unmarshal(app.stdout.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Version != types.Version || resp.Commit != "test" || !strings.HasPrefix(resp.GoVersion, "go") {
		t.Errorf("version = %+v", resp)
	}

	app = newTestApp()
	if got := exitCode(t, app.Run([]string{"magnetmeta", "version", "--tui"})); got != exitInvalidInput {
		t.Errorf("--tui exit code = %d, want %d", got, exitInvalidInput)
	}
}

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	hasTUI := false
	for _, f := range ReadOnlyFlags() {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}
	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}
