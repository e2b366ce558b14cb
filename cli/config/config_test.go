package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/magnetmeta/types"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `workspace: /var/tmp/mm
report_dir: ./out
report_style: rich
concurrency: 8
mode: fanout
attempt_timeout: 2m
summary: auto
events_log: ./out/events.bin

torrent:
  listen_port: 42069
  no_dht: true

archive:
  dataset: magnets
  backend: s3
  path: my-bucket/prefix
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true

adapter:
  type: webhook
  url: https://hooks.example.com/magnetmeta
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3

scrape:
  output_dir: ./found
  render: true
  timeout: 45s
  proxy: pool_a
  proxies:
    pool_a:
      strategy: round_robin
      endpoints:
        - protocol: https
          host: proxy.example.com
          port: 8080
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "workspace", cfg.Workspace, "/var/tmp/mm")
	assertEqual(t, "report_dir", cfg.ReportDir, "./out")
	assertEqual(t, "report_style", cfg.ReportStyle, "rich")
	assertEqual(t, "mode", cfg.Mode, "fanout")
	assertEqual(t, "summary", cfg.Summary, "auto")
	assertEqual(t, "events_log", cfg.EventsLog, "./out/events.bin")
	if cfg.Concurrency != 8 {
		t.Errorf("expected concurrency=8, got %d", cfg.Concurrency)
	}
	if cfg.AttemptTimeout.Duration != 2*time.Minute {
		t.Errorf("expected attempt_timeout=2m, got %v", cfg.AttemptTimeout.Duration)
	}

	if cfg.Torrent.ListenPort != 42069 || !cfg.Torrent.NoDHT || cfg.Torrent.DisableIPv6 {
		t.Errorf("unexpected torrent config: %+v", cfg.Torrent)
	}

	assertEqual(t, "archive.dataset", cfg.Archive.Dataset, "magnets")
	assertEqual(t, "archive.backend", cfg.Archive.Backend, "s3")
	assertEqual(t, "archive.path", cfg.Archive.Path, "my-bucket/prefix")
	assertEqual(t, "archive.region", cfg.Archive.Region, "us-east-1")
	assertEqual(t, "archive.endpoint", cfg.Archive.Endpoint, "https://example.com")
	if !cfg.Archive.S3PathStyle {
		t.Error("expected archive.s3_path_style=true")
	}

	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/magnetmeta")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("expected adapter.timeout=10s, got %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("expected adapter.retries=3")
	}
	if cfg.Adapter.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("expected Authorization header")
	}

	assertEqual(t, "scrape.output_dir", cfg.Scrape.OutputDir, "./found")
	assertEqual(t, "scrape.proxy", cfg.Scrape.Proxy, "pool_a")
	if !cfg.Scrape.Render {
		t.Error("expected scrape.render=true")
	}
	if cfg.Scrape.Timeout.Duration != 45*time.Second {
		t.Errorf("expected scrape.timeout=45s, got %v", cfg.Scrape.Timeout.Duration)
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	for name, content := range map[string]string{
		"empty":      "",
		"whitespace": "   \n  \n  \n",
		"comments":   "# This is a comment\n# Another comment\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Concurrency != 0 || cfg.Workspace != "" {
				t.Errorf("expected zero config, got %+v", cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/magnetmeta.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error should say not found, got: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTemp(t, "{{invalid yaml")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		key  string
	}{
		{"top level", "workspace: ./w\nbogus_key: should_fail\n", "bogus_key"},
		{"nested", "archive:\n  backend: fs\n  path: ./data\n  unknown_field: bad\n", "unknown_field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error for unknown key, got nil")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error should mention the unknown key, got: %v", err)
			}
		})
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("MM_HOOK_URL", "https://hooks.example.com/x")

	cfg, err := Load(writeTemp(t, "adapter:\n  type: webhook\n  url: ${MM_HOOK_URL}\nworkspace: ${MM_UNSET_WS:-./.scratch}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/x")
	assertEqual(t, "workspace", cfg.Workspace, "./.scratch")
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	cfg, err := Load(writeTemp(t, "adapter:\n  type: webhook\n  url: http://x\n  retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 0 {
		t.Error("expected explicit retries=0")
	}

	cfg, err = Load(writeTemp(t, "adapter:\n  type: webhook\n  url: http://x\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Error("expected nil retries when omitted")
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	_, err := Load(writeTemp(t, "attempt_timeout: soon\n"))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestProxyPools_Conversion(t *testing.T) {
	yaml := `scrape:
  proxies:
    zeta:
      strategy: random
      endpoints:
        - http://z.example.com:3128
    alpha:
      strategy: sticky
      sticky:
        scope: domain
        ttl: 1m
      endpoints:
        - protocol: socks5
          host: a.example.com
          port: 1080
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	pools := cfg.ProxyPools()
	if len(pools) != 2 {
		t.Fatalf("expected 2 pools, got %d", len(pools))
	}
	if pools[0].Name != "alpha" || pools[1].Name != "zeta" {
		t.Errorf("pools not sorted by name: %q, %q", pools[0].Name, pools[1].Name)
	}
	if pools[0].Sticky == nil || pools[0].Sticky.Scope != types.ProxyStickyDomain || pools[0].Sticky.TTL != "1m" {
		t.Errorf("unexpected sticky config: %+v", pools[0].Sticky)
	}
	if ep := pools[1].Endpoints[0]; ep.Host != "z.example.com" || ep.Port != 3128 {
		t.Errorf("unexpected endpoint: %+v", pools[1].Endpoints[0])
	}
	for _, p := range pools {
		if err := p.Validate(); err != nil {
			t.Errorf("pool %q should validate: %v", p.Name, err)
		}
	}

	if (&Config{}).ProxyPools() != nil {
		t.Error("expected nil pools for empty config")
	}
}

func TestLoadOptional(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadOptional("")
	if err != nil {
		t.Fatalf("LoadOptional without default file: %v", err)
	}
	if cfg == nil || cfg.Concurrency != 0 {
		t.Errorf("expected empty config, got %+v", cfg)
	}

	if err := os.WriteFile(DefaultFile, []byte("concurrency: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional("")
	if err != nil {
		t.Fatalf("LoadOptional with default file: %v", err)
	}
	if cfg.Concurrency != 3 {
		t.Errorf("expected concurrency=3 from default file, got %d", cfg.Concurrency)
	}

	if _, err := LoadOptional("missing.yaml"); err == nil {
		t.Error("explicit missing path should fail")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "magnetmeta.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
