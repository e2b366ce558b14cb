package lode

import (
	"github.com/pithecene-io/magnetmeta/report"
	"github.com/pithecene-io/magnetmeta/types"
)

// RecordKind discriminator values. Also the record_kind partition value.
const (
	RecordKindOutcome = "outcome"
	RecordKindSummary = "summary"
)

// OutcomeRecord is the storage format of one resolution outcome.
type OutcomeRecord struct {
	// Record discriminator
	RecordKind string `json:"record_kind"`

	ContractVersion string `json:"contract_version"`
	Index           int    `json:"index"`
	Identifier      string `json:"identifier"`
	Status          string `json:"status"`
	Name            string `json:"name,omitempty"`
	Fingerprint     string `json:"fingerprint,omitempty"`
	FailureKind     string `json:"failure_kind,omitempty"`
	FailureMessage  string `json:"failure_message,omitempty"`
	DurationMs      int64  `json:"duration_ms"`

	// Partition keys (used by Lode HiveLayout)
	Day     string `json:"day"`
	BatchID string `json:"batch_id"`
}

// Outcome converts the record back to a types.Outcome.
func (r OutcomeRecord) Outcome() types.Outcome {
	o := types.Outcome{
		Index:      r.Index,
		Identifier: types.Identifier(r.Identifier),
		Status:     types.Status(r.Status),
	}
	if o.Status == types.StatusResolved {
		o.Metadata = &types.Metadata{Name: r.Name, Fingerprint: r.Fingerprint}
	} else {
		o.Failure = &types.Failure{Kind: types.FailureKind(r.FailureKind), Message: r.FailureMessage}
	}
	return o
}

// SummaryRecord is the storage format of a batch summary.
type SummaryRecord struct {
	// Record discriminator
	RecordKind string `json:"record_kind"`

	ContractVersion string          `json:"contract_version"`
	Summary         *report.Summary `json:"summary"`

	// Partition keys
	Day     string `json:"day"`
	BatchID string `json:"batch_id"`
}

func toOutcomeRecordMap(o types.Outcome, cfg Config) map[string]any {
	m := map[string]any{
		"record_kind":      RecordKindOutcome,
		"contract_version": types.ContractVersion,
		"index":            o.Index,
		"identifier":       string(o.Identifier),
		"status":           string(o.Status),
		"duration_ms":      o.Duration.Milliseconds(),
		"day":              cfg.Day,
		"batch_id":         cfg.BatchID,
	}
	if o.Metadata != nil {
		m["name"] = o.Metadata.Name
		m["fingerprint"] = o.Metadata.Fingerprint
	}
	if o.Failure != nil {
		m["failure_kind"] = string(o.Failure.Kind)
		m["failure_message"] = o.Failure.Message
	}
	return m
}

func toSummaryRecordMap(s *report.Summary, cfg Config) map[string]any {
	return map[string]any{
		"record_kind":      RecordKindSummary,
		"contract_version": types.ContractVersion,
		"summary":          s,
		"day":              cfg.Day,
		"batch_id":         cfg.BatchID,
	}
}
