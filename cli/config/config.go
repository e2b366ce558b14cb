package config

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/magnetmeta/types"
)

// DefaultFile is the config file looked up when --config is not given.
const DefaultFile = "magnetmeta.yaml"

// Config represents a magnetmeta.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Workspace      string   `yaml:"workspace"`
	ReportDir      string   `yaml:"report_dir"`
	ReportStyle    string   `yaml:"report_style"`
	Concurrency    int      `yaml:"concurrency"`
	Mode           string   `yaml:"mode"`
	AttemptTimeout Duration `yaml:"attempt_timeout"`
	// Summary is the batch summary destination: a path, "-" for stderr,
	// or "auto" for a file next to the report.
	Summary   string        `yaml:"summary"`
	EventsLog string        `yaml:"events_log"`
	Torrent   TorrentConfig `yaml:"torrent"`
	Archive   ArchiveConfig `yaml:"archive"`
	Adapter   AdapterConfig `yaml:"adapter"`
	Scrape    ScrapeConfig  `yaml:"scrape"`
}

// TorrentConfig holds BitTorrent client defaults.
type TorrentConfig struct {
	ListenPort  int  `yaml:"listen_port"`
	NoDHT       bool `yaml:"no_dht"`
	DisableIPv6 bool `yaml:"disable_ipv6"`
}

// ArchiveConfig holds outcome archive defaults.
type ArchiveConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	Profile     string `yaml:"profile"`
	MaxAttempts int    `yaml:"max_attempts"`
	// Policy is strict or buffered.
	Policy        string   `yaml:"policy"`
	FlushRecords  int      `yaml:"flush_records"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Secret  string            `yaml:"secret,omitempty"`
	Retain  Duration          `yaml:"retain,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// ScrapeConfig holds defaults for the scrape command.
type ScrapeConfig struct {
	OutputDir string                     `yaml:"output_dir"`
	Render    bool                       `yaml:"render"`
	Timeout   Duration                   `yaml:"timeout"`
	UserAgent string                     `yaml:"user_agent"`
	Proxies   map[string]ProxyPoolConfig `yaml:"proxies"`
	// Proxy names the pool in Proxies to route requests through.
	Proxy string `yaml:"proxy"`
}

// ProxyPoolConfig is a proxy pool definition within the config file.
// Name is derived from the map key, not stored in the struct.
type ProxyPoolConfig struct {
	Strategy  types.ProxyStrategy   `yaml:"strategy"`
	Endpoints []types.ProxyEndpoint `yaml:"endpoints"`
	Sticky    *types.ProxySticky    `yaml:"sticky,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("10s",
// "5m30s") in YAML. An empty string leaves it zero.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string", node.Line)
	}
	if node.Value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, node.Value, err)
	}
	d.Duration = parsed
	return nil
}

// ProxyPools returns the scrape pools named by their map keys, in name
// order.
func (c *Config) ProxyPools() []types.ProxyPool {
	var pools []types.ProxyPool
	for _, name := range slices.Sorted(maps.Keys(c.Scrape.Proxies)) {
		pc := c.Scrape.Proxies[name]
		pools = append(pools, types.ProxyPool{
			Name:      name,
			Strategy:  pc.Strategy,
			Endpoints: pc.Endpoints,
			Sticky:    pc.Sticky,
		})
	}
	return pools
}
