// Package resolver defines the metadata resolver boundary.
//
// A Resolver turns one identifier into a name and fingerprint. There is no
// latency contract: Resolve may block until its context is done, or forever
// if the context never ends. Errors are classified into types.FailureKind so
// that failed outcomes carry a cause category instead of free text only.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"syscall"

	"github.com/pithecene-io/magnetmeta/types"
)

// Resolver resolves identifiers into metadata.
// Implementations must be safe for concurrent use.
type Resolver interface {
	Resolve(ctx context.Context, id types.Identifier) (types.Metadata, error)
}

// Func adapts a function to the Resolver interface.
type Func func(ctx context.Context, id types.Identifier) (types.Metadata, error)

// Resolve calls f.
func (f Func) Resolve(ctx context.Context, id types.Identifier) (types.Metadata, error) {
	return f(ctx, id)
}

// ResolveError wraps an underlying error with a cause classification.
type ResolveError struct {
	// Kind is the cause classification.
	Kind types.FailureKind
	// Err is the underlying error.
	Err error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ResolveError) Unwrap() error { return e.Err }

// NewResolveError creates a classified resolver error.
func NewResolveError(kind types.FailureKind, err error) *ResolveError {
	return &ResolveError{Kind: kind, Err: err}
}

// Classify returns the failure kind for err.
//
// Explicit ResolveError kinds win. Context errors, net errors and filesystem
// errors are recognised by type; anything else falls back to message patterns
// and finally FailureUnknown. Classify(nil) returns "".
func Classify(err error) types.FailureKind {
	if err == nil {
		return ""
	}

	var re *ResolveError
	if errors.As(err, &re) && re.Kind != "" {
		return re.Kind
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.FailureTimeout
	case errors.Is(err, context.Canceled):
		return types.FailureCanceled
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return types.FailureLocalIO
	}
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EROFS) {
		return types.FailureLocalIO
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return types.FailureTimeout
		}
		return types.FailureNetwork
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return types.FailureNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timed out", "timeout", "deadline exceeded"):
		return types.FailureTimeout
	case containsAny(msg, "connection refused", "unreachable", "no route to host",
		"connection reset", "dial tcp", "dial udp", "dns", "peer"):
		return types.FailureNetwork
	case containsAny(msg, "magnet", "infohash", "info hash", "bencode", "metainfo", "invalid uri", "handshake"):
		return types.FailureProtocol
	case containsAny(msg, "no space left", "permission denied", "read-only file system", "no such file"):
		return types.FailureLocalIO
	default:
		return types.FailureUnknown
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
