package lode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrNoSummaryFound is returned when no summary record matches.
var ErrNoSummaryFound = errors.New("no summary records found")

// NewReadDataset creates a Dataset for reading with the write-path layout.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := newDataset(dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return ds, nil
}

// NewReadDatasetFS creates a read Dataset with filesystem storage.
func NewReadDatasetFS(dataset, root string) (lode.Dataset, error) {
	return NewReadDataset(dataset, lode.NewFSFactory(root))
}

// NewReadDatasetS3 creates a read Dataset with S3 storage.
func NewReadDatasetS3(ctx context.Context, dataset string, s3cfg S3Config) (lode.Dataset, error) {
	factory, err := newS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewReadDataset(dataset, factory)
}

// Filter narrows archive queries. Empty fields match everything.
type Filter struct {
	BatchID string
	Day     string
	Status  string
}

// QueryOutcomes returns archived outcome records in write order.
func QueryOutcomes(ctx context.Context, ds lode.Dataset, f Filter) ([]OutcomeRecord, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	var out []OutcomeRecord
	for _, snap := range snapshots {
		if !snapshotMatches(snap, RecordKindOutcome, f) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			var rec OutcomeRecord
			if !decodeRecord(item, RecordKindOutcome, &rec) {
				continue
			}
			if !fieldMatches(rec.BatchID, f.BatchID) || !fieldMatches(rec.Day, f.Day) || !fieldMatches(rec.Status, f.Status) {
				continue
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// QueryLatestSummary returns the most recent summary record matching f.
// Status is ignored.
func QueryLatestSummary(ctx context.Context, ds lode.Dataset, f Filter) (*SummaryRecord, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}
	f.Status = ""

	// Snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, RecordKindSummary, f) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for j := len(data) - 1; j >= 0; j-- {
			var rec SummaryRecord
			if !decodeRecord(data[j], RecordKindSummary, &rec) {
				continue
			}
			if !fieldMatches(rec.BatchID, f.BatchID) || !fieldMatches(rec.Day, f.Day) {
				continue
			}
			return &rec, nil
		}
	}
	return nil, ErrNoSummaryFound
}

// decodeRecord converts a raw JSONL record into dst when its record_kind
// matches kind.
func decodeRecord(item any, kind string, dst any) bool {
	raw, ok := item.(map[string]any)
	if !ok || raw["record_kind"] != kind {
		return false
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func fieldMatches(got, want string) bool {
	return want == "" || got == want
}

// snapshotMatches is a coarse pre-filter on manifest paths. Record fields
// are authoritative.
func snapshotMatches(snap *lode.Snapshot, kind string, f Filter) bool {
	return snapshotHasPartition(snap, "record_kind", kind) &&
		snapshotHasPartition(snap, "batch_id", f.BatchID) &&
		snapshotHasPartition(snap, "day", f.Day)
}

func snapshotHasPartition(snap *lode.Snapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, file := range snap.Manifest.Files {
		if matchesPartitionValue(file.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue reports whether a Hive path has an exact key=value
// segment, so batch_id=b-1 does not match batch_id=b-10.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
