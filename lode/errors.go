package lode

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/aws/smithy-go"
)

// Storage error kinds. Match with errors.Is on any error returned from
// this package.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrDiskFull         = errors.New("no space left on device")
	ErrTimeout          = errors.New("operation timed out")
	ErrThrottled        = errors.New("rate limited")
	ErrAuth             = errors.New("authentication failed")
	// ErrAccessDenied is a valid identity without permission on the bucket.
	ErrAccessDenied = errors.New("access denied")
	ErrNetwork      = errors.New("network error")
	ErrUnclassified = errors.New("storage error")
)

// StorageError is an archive failure tagged with its kind.
type StorageError struct {
	Kind error
	Op   string // write, read or init
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		b.WriteString(" " + e.Path)
	}
	fmt.Fprintf(&b, ": %v: %v", e.Kind, e.Err)
	return b.String()
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is matches the kind as well as the wrapped chain.
func (e *StorageError) Is(target error) bool { return e.Kind == target }

// WrapWriteError tags err from a write. Nil stays nil.
func WrapWriteError(err error, path string) error { return wrap("write", path, err) }

// WrapReadError tags err from a read. Nil stays nil.
func WrapReadError(err error, path string) error { return wrap("read", path, err) }

// WrapInitError tags err from opening a dataset. Nil stays nil.
func WrapInitError(err error, dataset string) error { return wrap("init", dataset, err) }

func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Kind: classifyError(err), Op: op, Path: path, Err: err}
}

// s3Codes maps S3 API error codes onto kinds.
var s3Codes = map[string]error{
	"AccessDenied":          ErrAccessDenied,
	"AllAccessDisabled":     ErrAccessDenied,
	"NoSuchKey":             ErrNotFound,
	"NoSuchBucket":          ErrNotFound,
	"NotFound":              ErrNotFound,
	"SlowDown":              ErrThrottled,
	"Throttling":            ErrThrottled,
	"RequestLimitExceeded":  ErrThrottled,
	"InvalidAccessKeyId":    ErrAuth,
	"SignatureDoesNotMatch": ErrAuth,
	"ExpiredToken":          ErrAuth,
	"InvalidToken":          ErrAuth,
	"RequestTimeout":        ErrTimeout,
}

// httpStatuses is the fallback when only a status code is known.
var httpStatuses = map[int]error{
	http.StatusUnauthorized:       ErrAuth,
	http.StatusForbidden:          ErrAccessDenied,
	http.StatusNotFound:           ErrNotFound,
	http.StatusRequestTimeout:     ErrTimeout,
	http.StatusTooManyRequests:    ErrThrottled,
	http.StatusServiceUnavailable: ErrThrottled,
}

// messagePatterns catch errors that carry no type information, such as
// ones flattened to strings by the storage layer.
var messagePatterns = []struct {
	kind    error
	substrs []string
}{
	{ErrAccessDenied, []string{"accessdenied", "forbidden", "403"}},
	{ErrPermissionDenied, []string{"permission denied", "eacces"}},
	{ErrNotFound, []string{"no such file", "does not exist", "nosuchkey", "404"}},
	{ErrDiskFull, []string{"no space left", "enospc", "quota exceeded"}},
	{ErrTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{ErrThrottled, []string{"slowdown", "throttl", "429"}},
	{ErrAuth, []string{"nocredentialproviders", "expiredtoken", "invalidaccesskeyid", "401"}},
	{ErrNetwork, []string{"connection refused", "no route to host", "network unreachable", "dial tcp"}},
}

// classifyError checks typed errors first, then S3 codes and HTTP
// statuses, then message text.
func classifyError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, syscall.ENOSPC):
		return ErrDiskFull
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return ErrTimeout
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := s3Codes[apiErr.ErrorCode()]; ok {
			return kind
		}
	}
	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		if kind, ok := httpStatuses[status.HTTPStatusCode()]; ok {
			return kind
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		for _, s := range p.substrs {
			if strings.Contains(msg, s) {
				return p.kind
			}
		}
	}
	return ErrUnclassified
}
