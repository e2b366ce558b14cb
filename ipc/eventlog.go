package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pithecene-io/magnetmeta/iox"
	"github.com/pithecene-io/magnetmeta/log"
	"github.com/pithecene-io/magnetmeta/types"
)

// EventLog appends every orchestrator event to a frame file.
// It implements runtime.Observer. Write failures are logged once and
// disable the log; they never affect the batch.
type EventLog struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	frames  *Writer
	logger  *log.Logger
	written int
	err     error
}

// CreateEventLog creates (or truncates) an event log at path.
// A nil logger discards output.
func CreateEventLog(path string, logger *log.Logger) (*EventLog, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create event log directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create event log %s: %w", path, err)
	}
	buf := bufio.NewWriter(f)
	return &EventLog{
		file:   f,
		buf:    buf,
		frames: NewWriter(buf),
		logger: logger.Named("eventlog"),
	}, nil
}

// OnDispatch appends a dispatch event.
func (l *EventLog) OnDispatch(ev types.Event) { l.append(&ev) }

// OnComplete appends a completion event.
func (l *EventLog) OnComplete(ev types.Event) { l.append(&ev) }

func (l *EventLog) append(ev *types.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return
	}
	err := l.frames.WriteEvent(ev)
	if err == nil {
		err = l.buf.Flush()
	}
	if err != nil {
		l.err = err
		l.logger.Warn("event log disabled after write failure", map[string]any{
			"seq":   ev.Seq,
			"error": err.Error(),
		})
		return
	}
	l.written++
}

// Written returns the number of frames written.
func (l *EventLog) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Err returns the write error that disabled the log, if any.
func (l *EventLog) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close flushes and closes the file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	flushErr := l.buf.Flush()
	closeErr := iox.SyncClose(l.file)
	l.file = nil
	return errors.Join(flushErr, closeErr)
}

// ReadEvents decodes every event from r and calls fn for each, in order.
// Frames that fail to decode are skipped and counted. Truncated or
// oversized frames stop reading.
func ReadEvents(r io.Reader, fn func(ev *types.Event) error) (skipped int, err error) {
	frames := NewReader(r)
	for {
		ev, err := frames.ReadEvent()
		switch {
		case err == io.EOF:
			return skipped, nil
		case Fatal(err):
			return skipped, err
		case err != nil:
			skipped++
			continue
		}
		if err := fn(ev); err != nil {
			return skipped, err
		}
	}
}
