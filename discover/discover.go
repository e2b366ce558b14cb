package discover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pithecene-io/magnetmeta/iox"
	"github.com/pithecene-io/magnetmeta/log"
	"github.com/pithecene-io/magnetmeta/types"
)

// DefaultOutputDir is where links documents are written.
const DefaultOutputDir = "./links"

// magnetPattern matches a magnet URI up to whitespace, a quote or an angle
// bracket.
var magnetPattern = regexp.MustCompile(`magnet:\?[^\s"'<>]+`)

// Link is one entry of a links document.
type Link struct {
	Magnet string `json:"magnet" yaml:"magnet"`
}

// Extract returns the magnet identifiers in text, deduplicated in
// first-seen order. HTML entities inside a match are decoded.
func Extract(text string) []types.Identifier {
	matches := magnetPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	ids := make([]types.Identifier, 0, len(matches))
	for _, m := range matches {
		m = html.UnescapeString(m)
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		ids = append(ids, types.Identifier(m))
	}
	return ids
}

// DocumentName returns the links document file name for t.
func DocumentName(t time.Time) string {
	return t.Format("20060102_150405") + "-magnet_links.json"
}

// WriteDocument writes ids as a JSON array of {"magnet": ...} objects to
// dir/DocumentName(t), creating dir and overwriting any existing file.
// Returns the file path.
func WriteDocument(dir string, t time.Time, ids []types.Identifier) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create links dir: %w", err)
	}

	links := make([]Link, len(ids))
	for i, id := range ids {
		links[i] = Link{Magnet: id.String()}
	}

	data, err := json.MarshalIndent(links, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal links: %w", err)
	}

	path := filepath.Join(dir, DocumentName(t))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create links document: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write links document: %w", err)
	}
	if err := iox.SyncClose(f); err != nil {
		return "", fmt.Errorf("close links document: %w", err)
	}
	return path, nil
}

// Result reports one scrape.
type Result struct {
	Seed  string             `json:"seed"`
	Links []types.Identifier `json:"links"`
	Path  string             `json:"path"`
}

// Scraper fetches a seed page, extracts identifiers and writes the links
// document.
type Scraper struct {
	fetcher   Fetcher
	outputDir string
	logger    *log.Logger
	now       func() time.Time
}

// NewScraper creates a Scraper. Empty outputDir selects DefaultOutputDir.
func NewScraper(fetcher Fetcher, outputDir string, logger *log.Logger) *Scraper {
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Scraper{
		fetcher:   fetcher,
		outputDir: outputDir,
		logger:    logger.Named("discover"),
		now:       time.Now,
	}
}

// Scrape fetches seed and writes every discovered identifier. A page with
// no identifiers still produces an empty document.
func (s *Scraper) Scrape(ctx context.Context, seed string) (*Result, error) {
	if seed == "" {
		return nil, errors.New("seed URL is required")
	}

	started := s.now()
	body, err := s.fetcher.Fetch(ctx, seed)
	if err != nil {
		s.logger.Error("fetch failed", map[string]any{"seed": seed, "error": err.Error()})
		return nil, fmt.Errorf("fetch %s: %w", seed, err)
	}

	ids := Extract(body)
	path, err := WriteDocument(s.outputDir, started, ids)
	if err != nil {
		return nil, err
	}

	s.logger.Info("links written", map[string]any{
		"seed":  seed,
		"count": len(ids),
		"path":  path,
	})
	return &Result{Seed: seed, Links: ids, Path: path}, nil
}
