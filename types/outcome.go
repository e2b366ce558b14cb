// Package types defines core domain types for magnetmeta.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"time"
)

// Identifier is an opaque magnet-style locator.
// It is passed through untouched; nothing in the core validates its syntax.
type Identifier string

// String returns the identifier text.
func (id Identifier) String() string { return string(id) }

// Metadata is what a resolver produces for one identifier.
type Metadata struct {
	// Name is the human-readable resource name.
	Name string `msgpack:"name" json:"name"`
	// Fingerprint is the content-derived hash (info hash, hex).
	Fingerprint string `msgpack:"fingerprint" json:"fingerprint"`
}

// Status is the terminal status of one resolution attempt.
type Status string

const (
	// StatusResolved indicates the resolver produced metadata.
	StatusResolved Status = "resolved"
	// StatusFailed indicates the resolver errored, panicked, or was canceled.
	StatusFailed Status = "failed"
	// StatusTimedOut indicates a configured per-attempt deadline elapsed.
	// Never produced when no deadline is configured.
	StatusTimedOut Status = "timed_out"
)

// FailureKind classifies why an attempt did not resolve.
type FailureKind string

const (
	// FailureNetwork is an unreachable peer, tracker or DHT node.
	FailureNetwork FailureKind = "network"
	// FailureProtocol is a malformed link or metadata exchange error.
	FailureProtocol FailureKind = "protocol"
	// FailureLocalIO is a workspace read or write error.
	FailureLocalIO FailureKind = "local_io"
	// FailureTimeout is the configured per-attempt deadline elapsing.
	// Only TimedOut outcomes carry it.
	FailureTimeout FailureKind = "timeout"
	// FailureCanceled is the batch being canceled before or during the attempt.
	FailureCanceled FailureKind = "canceled"
	// FailurePanic is a resolver panic recovered by the orchestrator.
	FailurePanic FailureKind = "panic"
	// FailureUnknown is any error that fits no other kind.
	FailureUnknown FailureKind = "unknown"
)

// Failure describes a failed or timed-out attempt.
type Failure struct {
	// Kind is the cause classification.
	Kind FailureKind `msgpack:"kind" json:"kind"`
	// Message is the human-readable cause.
	Message string `msgpack:"message" json:"message"`
}

// Outcome is the terminal result of one resolution attempt.
// Exactly one Outcome is produced per identifier in a batch.
type Outcome struct {
	// Index is the identifier's position in the submitted batch.
	Index int `msgpack:"index" json:"index"`
	// Identifier is the identifier that was resolved.
	Identifier Identifier `msgpack:"identifier" json:"identifier"`
	// Status discriminates the variant.
	Status Status `msgpack:"status" json:"status"`
	// Metadata is set when Status is StatusResolved.
	Metadata *Metadata `msgpack:"metadata,omitempty" json:"metadata,omitempty"`
	// Failure is set when Status is StatusFailed or StatusTimedOut.
	Failure *Failure `msgpack:"failure,omitempty" json:"failure,omitempty"`
	// Duration is the wall time of the attempt (zero if never dispatched).
	Duration time.Duration `msgpack:"duration_ns" json:"duration_ns"`
}

// Resolved builds a success outcome.
func Resolved(index int, id Identifier, md Metadata, d time.Duration) Outcome {
	return Outcome{
		Index:      index,
		Identifier: id,
		Status:     StatusResolved,
		Metadata:   &md,
		Duration:   d,
	}
}

// Failed builds a failure outcome. The status is always StatusFailed,
// whatever the kind: a resolver's own timeouts are failures.
func Failed(index int, id Identifier, kind FailureKind, msg string, d time.Duration) Outcome {
	return Outcome{
		Index:      index,
		Identifier: id,
		Status:     StatusFailed,
		Failure:    &Failure{Kind: kind, Message: msg},
		Duration:   d,
	}
}

// TimedOut builds the outcome of an attempt that outlived its configured
// deadline.
func TimedOut(index int, id Identifier, msg string, d time.Duration) Outcome {
	return Outcome{
		Index:      index,
		Identifier: id,
		Status:     StatusTimedOut,
		Failure:    &Failure{Kind: FailureTimeout, Message: msg},
		Duration:   d,
	}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool { return o.Status == StatusResolved && o.Metadata != nil }

// Cause returns the failure message, or empty for successes.
func (o Outcome) Cause() string {
	if o.Failure == nil {
		return ""
	}
	return o.Failure.Message
}

// String renders a compact description, used in logs and debug output.
func (o Outcome) String() string {
	if o.OK() {
		return fmt.Sprintf("#%d %s: %s (%s)", o.Index, o.Status, o.Metadata.Name, o.Metadata.Fingerprint)
	}
	if o.Failure != nil {
		return fmt.Sprintf("#%d %s: %s: %s", o.Index, o.Status, o.Failure.Kind, o.Failure.Message)
	}
	return fmt.Sprintf("#%d %s", o.Index, o.Status)
}
