// Package lode archives batch outcomes to a Lode dataset.
//
// Records are JSONL, Hive-partitioned by day, batch_id and record_kind, on
// the local filesystem or S3. The archive is an optional report.Sink; its
// failures never fail a batch.
package lode

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/magnetmeta/metrics"
	"github.com/pithecene-io/magnetmeta/report"
	"github.com/pithecene-io/magnetmeta/types"
)

// DefaultDataset is the Lode dataset ID used by magnetmeta.
const DefaultDataset = "magnetmeta"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"day", "batch_id", "record_kind"}

// Config holds archive configuration.
type Config struct {
	// Dataset is the Lode dataset ID. Empty means DefaultDataset.
	Dataset string
	// Day is the partition day derived from the batch start (YYYY-MM-DD UTC).
	Day string
	// BatchID is the batch partition key.
	BatchID string
}

// ConfigFor derives an archive config from batch metadata.
func ConfigFor(meta *types.BatchMeta) Config {
	return Config{
		Dataset: DefaultDataset,
		Day:     meta.Day(),
		BatchID: meta.BatchID,
	}
}

// Validate checks that the partition keys are set.
func (c *Config) Validate() error {
	if c.Day == "" {
		return errors.New("archive day is required")
	}
	if c.BatchID == "" {
		return errors.New("archive batch_id is required")
	}
	return nil
}

func (c *Config) path() string {
	return fmt.Sprintf("%s/day=%s/batch_id=%s", c.Dataset, c.Day, c.BatchID)
}

// Archive writes outcomes to a Lode dataset.
// Each WriteOutcome or WriteOutcomes call is one Lode write (one snapshot).
// Safe for concurrent use.
type Archive struct {
	dataset   lode.Dataset
	config    Config
	collector *metrics.Collector

	mu     sync.Mutex
	closed bool
}

// NewArchive creates an archive over a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewArchive(cfg Config, factory lode.StoreFactory, collector *metrics.Collector) (*Archive, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}

	return &Archive{
		dataset:   ds,
		config:    cfg,
		collector: collector,
	}, nil
}

// NewFSArchive creates an archive rooted at a local directory.
func NewFSArchive(cfg Config, root string, collector *metrics.Collector) (*Archive, error) {
	return NewArchive(cfg, lode.NewFSFactory(root), collector)
}

// NewS3Archive creates an archive in an S3 bucket.
// Uses the AWS SDK default credential chain.
func NewS3Archive(ctx context.Context, cfg Config, s3cfg S3Config, collector *metrics.Collector) (*Archive, error) {
	factory, err := newS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewArchive(cfg, factory, collector)
}

func newDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteOutcome implements report.Sink.
func (a *Archive) WriteOutcome(ctx context.Context, o types.Outcome) error {
	return a.write(ctx, []any{toOutcomeRecordMap(o, a.config)})
}

// WriteOutcomes archives outcomes in order as a single write.
// It is the target for the buffered archive policy.
func (a *Archive) WriteOutcomes(ctx context.Context, outcomes []types.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	records := make([]any, len(outcomes))
	for i, o := range outcomes {
		records[i] = toOutcomeRecordMap(o, a.config)
	}
	return a.write(ctx, records)
}

// WriteSummary archives the batch summary.
func (a *Archive) WriteSummary(ctx context.Context, s *report.Summary) error {
	if s == nil {
		return errors.New("summary is required")
	}
	return a.write(ctx, []any{toSummaryRecordMap(s, a.config)})
}

func (a *Archive) write(ctx context.Context, records []any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errors.New("archive is closed")
	}

	_, err := a.dataset.Write(ctx, records, lode.Metadata{})
	if err != nil {
		a.collector.IncArchiveWriteFailure()
		return WrapWriteError(err, a.config.path())
	}
	a.collector.IncArchiveWriteSuccess()
	return nil
}

// Close stops further writes. The dataset itself holds no open resources.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// Verify Archive implements report.Sink.
var _ report.Sink = (*Archive)(nil)
