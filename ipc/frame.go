// Package ipc stores batch events as length-prefixed msgpack frames.
//
// A frame is a 4-byte big-endian payload length followed by the payload.
// The event log written during fetch is a plain sequence of frames, so the
// events command can read it while the batch is still running.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/magnetmeta/types"
)

const (
	prefixLen = 4
	// MaxPayload keeps a whole frame within 1 MiB.
	MaxPayload = 1<<20 - prefixLen
)

var (
	// ErrTruncated is a frame cut short by the end of the stream.
	ErrTruncated = errors.New("truncated frame")
	// ErrTooLarge is a length prefix above MaxPayload.
	ErrTooLarge = errors.New("frame too large")
	// ErrUndecodable is a complete frame whose payload is not an event.
	ErrUndecodable = errors.New("undecodable event")
)

// Fatal reports whether a reader has lost frame alignment after err.
// Undecodable payloads are not fatal; the next frame is still readable.
func Fatal(err error) bool {
	return errors.Is(err, ErrTruncated) || errors.Is(err, ErrTooLarge)
}

// Writer frames payloads onto w. Not safe for concurrent use.
type Writer struct {
	w   io.Writer
	buf []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes payload as one frame with a single Write call.
func (w *Writer) WriteFrame(payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(payload), MaxPayload)
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf[:0], uint32(len(payload)))
	w.buf = append(w.buf, payload...)
	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WriteEvent encodes ev with msgpack and frames it.
func (w *Writer) WriteEvent(ev *types.Event) error {
	payload, err := msgpack.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %d: %w", ev.Seq, err)
	}
	return w.WriteFrame(payload)
}

// Reader reads frames from r.
type Reader struct {
	r   io.Reader
	buf []byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame returns the next payload, valid until the next call. A stream
// that ends between frames returns io.EOF.
func (r *Reader) ReadFrame() ([]byte, error) {
	var prefix [prefixLen]byte
	switch _, err := io.ReadFull(r.r, prefix[:]); {
	case err == io.EOF:
		return nil, io.EOF
	case err != nil:
		return nil, fmt.Errorf("%w: length prefix: %w", ErrTruncated, err)
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, n, MaxPayload)
	}
	if cap(r.buf) < int(n) {
		r.buf = make([]byte, n)
	}
	r.buf = r.buf[:n]
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		return nil, fmt.Errorf("%w: payload of %d bytes: %w", ErrTruncated, n, err)
	}
	return r.buf, nil
}

// ReadEvent reads the next frame and decodes it as an event.
func (r *Reader) ReadEvent() (*types.Event, error) {
	payload, err := r.ReadFrame()
	if err != nil {
		return nil, err
	}
	return decodeEvent(payload)
}

func decodeEvent(payload []byte) (*types.Event, error) {
	var ev types.Event
	if err := msgpack.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	return &ev, nil
}
