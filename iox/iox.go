// Package iox provides small I/O helpers for closing files, sinks and clients.
package iox

import (
	"errors"
	"io"
	"os"
)

// DiscardClose closes c and drops the error. For defers where nothing can be done:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc adapts c for t.Cleanup:
//
//	t.Cleanup(iox.CloseFunc(w))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// CloseAll closes every closer, even after a failure, and joins the errors.
// Nil closers are skipped.
func CloseAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SyncClose fsyncs f and closes it. The close is attempted even if the sync fails.
func SyncClose(f *os.File) error {
	syncErr := f.Sync()
	closeErr := f.Close()
	return errors.Join(syncErr, closeErr)
}
