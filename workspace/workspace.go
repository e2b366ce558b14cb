// Package workspace manages the scratch directory used by the resolver
// during a batch.
//
// The directory is created idempotently before a batch and emptied after it.
// Teardown is best-effort: each entry is removed independently and failures
// are collected and logged, never returned.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pithecene-io/magnetmeta/log"
)

// DefaultPath is the scratch directory used when none is configured.
const DefaultPath = "./.temp"

// EntryFailure records one entry that could not be removed.
type EntryFailure struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// CleanResult summarizes one teardown.
type CleanResult struct {
	// Path is the scratch directory that was cleaned.
	Path string `json:"path"`
	// Missing is true when the directory did not exist (nothing to clean).
	Missing bool `json:"missing"`
	// Removed lists the entries that were deleted.
	Removed []string `json:"removed"`
	// Failures lists the entries that could not be deleted.
	Failures []EntryFailure `json:"failures,omitempty"`
}

// OK reports whether every entry was removed.
func (r CleanResult) OK() bool { return len(r.Failures) == 0 }

// Manager owns one scratch directory.
type Manager struct {
	path   string
	logger *log.Logger

	// remove deletes a single entry. Replaced in tests.
	remove func(path string, dir bool) error
}

// New creates a manager for path. A nil logger discards output.
func New(path string, logger *log.Logger) *Manager {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Manager{
		path:   path,
		logger: logger.Named("workspace"),
		remove: removeEntry,
	}
}

// Path returns the scratch directory path.
func (m *Manager) Path() string { return m.path }

// Ensure creates the scratch directory and any missing parents.
// It is a no-op if the directory already exists.
func (m *Manager) Ensure() error {
	if err := os.MkdirAll(m.path, 0o755); err != nil {
		return fmt.Errorf("create workspace %s: %w", m.path, err)
	}
	return nil
}

// Clean removes every entry directly under the scratch directory.
//
// A failure on one entry does not stop the others. Removals are logged
// unless quiet; failures and the "nothing to clean" case are always logged.
// The directory itself is kept.
func (m *Manager) Clean(quiet bool) CleanResult {
	result := CleanResult{Path: m.path}

	entries, err := os.ReadDir(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			result.Missing = true
			m.logger.Info("nothing to clean", map[string]any{
				"path": m.path,
			})
			return result
		}
		result.Failures = append(result.Failures, EntryFailure{Path: m.path, Err: err.Error()})
		m.logger.Warn("failed to list workspace", map[string]any{
			"path":  m.path,
			"error": err.Error(),
		})
		return result
	}

	for _, entry := range entries {
		path := filepath.Join(m.path, entry.Name())
		if err := m.remove(path, entry.IsDir()); err != nil {
			result.Failures = append(result.Failures, EntryFailure{Path: path, Err: err.Error()})
			m.logger.Warn("failed to delete workspace entry", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		result.Removed = append(result.Removed, path)
		if !quiet {
			m.logger.Info("removed workspace entry", map[string]any{
				"path": path,
				"dir":  entry.IsDir(),
			})
		}
	}

	return result
}

// removeEntry deletes a file, symlink or directory subtree.
// Symlinks are removed without following them.
func removeEntry(path string, dir bool) error {
	if dir {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}
