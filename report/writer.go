// Package report writes batch outcomes.
//
// The Writer appends one text record per outcome to a timestamped file. It is
// the primary Sink of a batch; additional sinks (such as the Lode archive)
// are combined with Multi. Summary is the JSON companion written after the
// batch drains.
package report

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/magnetmeta/iox"
	"github.com/pithecene-io/magnetmeta/types"
)

// DefaultDir is the report directory used when none is configured.
const DefaultDir = "./metadata"

// fileLayout is the timestamp layout of report file names.
const fileLayout = "20060102_150405"

// Style selects the record format.
type Style string

const (
	// StyleBasic writes "name, fingerprint" and "identifier: failed with cause".
	StyleBasic Style = "basic"
	// StyleRich writes "name, fingerprint, identifier" and
	// "Error fetching metadata for link identifier: cause".
	StyleRich Style = "rich"
)

// ParseStyle parses a style name. Empty selects StyleBasic.
func ParseStyle(s string) (Style, error) {
	switch Style(s) {
	case "", StyleBasic:
		return StyleBasic, nil
	case StyleRich:
		return StyleRich, nil
	default:
		return "", fmt.Errorf("invalid report style %q: must be %s or %s", s, StyleBasic, StyleRich)
	}
}

// oneLine escapes line breaks so a field never splits its record.
var oneLine = strings.NewReplacer("\r", `\r`, "\n", `\n`)

// Format renders one outcome as a single record, without the trailing newline.
// Carriage returns and newlines inside fields are written as \r and \n.
func Format(o types.Outcome, style Style) string {
	id := oneLine.Replace(o.Identifier.String())
	if o.OK() {
		name := oneLine.Replace(o.Metadata.Name)
		fingerprint := oneLine.Replace(o.Metadata.Fingerprint)
		if style == StyleRich {
			return fmt.Sprintf("%s, %s, %s", name, fingerprint, id)
		}
		return fmt.Sprintf("%s, %s", name, fingerprint)
	}
	cause := oneLine.Replace(o.Cause())
	if style == StyleRich {
		return fmt.Sprintf("Error fetching metadata for link %s: %s", id, cause)
	}
	return fmt.Sprintf("%s: failed with %s", id, cause)
}

// FileName returns the report file name for a batch started at t.
func FileName(t time.Time) string {
	return "file_" + t.Format(fileLayout)
}

// Writer appends outcome records to a report file.
// Safe for concurrent use; records are never interleaved.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	path    string
	style   Style
	records int
	closed  bool
}

// Open creates dir if needed and opens the report file for a batch started
// at startedAt. An existing file with the same name is truncated.
func Open(dir string, startedAt time.Time, style Style) (*Writer, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if style == "" {
		style = StyleBasic
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, FileName(startedAt))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open report %s: %w", path, err)
	}

	return &Writer{
		file:  f,
		buf:   bufio.NewWriter(f),
		path:  path,
		style: style,
	}, nil
}

// Write appends one record and flushes it to the file.
func (w *Writer) Write(o types.Outcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New("report writer is closed")
	}
	if _, err := w.buf.WriteString(Format(o, w.style) + "\n"); err != nil {
		return fmt.Errorf("write report record: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush report record: %w", err)
	}
	w.records++
	return nil
}

// WriteOutcome implements Sink.
func (w *Writer) WriteOutcome(_ context.Context, o types.Outcome) error {
	return w.Write(o)
}

// Close flushes, syncs and closes the file. Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	flushErr := w.buf.Flush()
	return errors.Join(flushErr, iox.SyncClose(w.file))
}

// Path returns the report file path.
func (w *Writer) Path() string { return w.path }

// Records returns the number of records written.
func (w *Writer) Records() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// Style returns the record style.
func (w *Writer) Style() Style { return w.style }

// Verify Writer implements Sink.
var _ Sink = (*Writer)(nil)
