package cmd

import (
	"context"
	"fmt"
	"time"

	lodelib "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/magnetmeta/cli/config"
	"github.com/pithecene-io/magnetmeta/lode"
	"github.com/pithecene-io/magnetmeta/log"
	"github.com/pithecene-io/magnetmeta/metrics"
	"github.com/pithecene-io/magnetmeta/policy"
	"github.com/pithecene-io/magnetmeta/types"
)

// archiveChoice holds resolved archive settings.
type archiveChoice struct {
	backend     string // "fs" or "s3"
	path        string // fs: directory, s3: bucket/prefix
	dataset     string
	region      string
	endpoint    string
	s3PathStyle bool
	profile     string
	maxAttempts int
}

// enabled reports whether an archive location is configured.
func (a archiveChoice) enabled() bool {
	return a.path != ""
}

func resolveArchiveChoice(c *cli.Context, cfg *config.Config) (archiveChoice, error) {
	a := archiveChoice{
		backend:     resolveString(c, "archive-backend", configVal(cfg, func(c *config.Config) string { return c.Archive.Backend })),
		path:        resolveString(c, "archive-path", configVal(cfg, func(c *config.Config) string { return c.Archive.Path })),
		dataset:     resolveString(c, "archive-dataset", configVal(cfg, func(c *config.Config) string { return c.Archive.Dataset })),
		region:      resolveString(c, "archive-region", configVal(cfg, func(c *config.Config) string { return c.Archive.Region })),
		endpoint:    resolveString(c, "archive-endpoint", configVal(cfg, func(c *config.Config) string { return c.Archive.Endpoint })),
		s3PathStyle: resolveBool(c, "archive-s3-path-style", configVal(cfg, func(c *config.Config) bool { return c.Archive.S3PathStyle })),
		profile:     resolveString(c, "archive-profile", configVal(cfg, func(c *config.Config) string { return c.Archive.Profile })),
		maxAttempts: resolveInt(c, "archive-max-attempts", configVal(cfg, func(c *config.Config) int { return c.Archive.MaxAttempts })),
	}
	switch a.backend {
	case "fs", "s3":
	default:
		return a, fmt.Errorf("unknown --archive-backend %q (must be fs or s3)", a.backend)
	}
	if a.dataset == "" {
		a.dataset = lode.DefaultDataset
	}
	return a, nil
}

func (a archiveChoice) s3Config() lode.S3Config {
	bucket, prefix := lode.ParseS3Path(a.path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       a.region,
		Profile:      a.profile,
		Endpoint:     a.endpoint,
		UsePathStyle: a.s3PathStyle,
		MaxAttempts:  a.maxAttempts,
	}
}

// location renders the archive root for events and logs.
func (a archiveChoice) location(meta *types.BatchMeta) string {
	root := a.path
	if a.backend == "s3" {
		root = "s3://" + a.path
	}
	return fmt.Sprintf("%s/%s/day=%s/batch_id=%s", root, a.dataset, meta.Day(), meta.BatchID)
}

// openArchive opens the write-path archive for one batch.
func openArchive(ctx context.Context, a archiveChoice, meta *types.BatchMeta, collector *metrics.Collector) (*lode.Archive, error) {
	cfg := lode.ConfigFor(meta)
	cfg.Dataset = a.dataset

	if a.backend == "s3" {
		return lode.NewS3Archive(ctx, cfg, a.s3Config(), collector)
	}
	return lode.NewFSArchive(cfg, a.path, collector)
}

// archivePolicyFlags control how fetch groups archive writes.
func archivePolicyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "archive-policy",
			Usage: "Archive write policy: strict (one write per outcome) or buffered",
			Value: string(policy.NameStrict),
		},
		&cli.IntFlag{
			Name:  "archive-flush-records",
			Usage: "Buffered policy: flush after this many outcomes",
			Value: policy.DefaultFlushRecords,
		},
		&cli.DurationFlag{
			Name:  "archive-flush-interval",
			Usage: "Buffered policy: also flush on this interval",
		},
	}
}

// policyChoice holds resolved archive write policy settings.
type policyChoice struct {
	name          policy.Name
	flushRecords  int
	flushInterval time.Duration
}

func resolvePolicyChoice(c *cli.Context, cfg *config.Config) (policyChoice, error) {
	name, err := policy.ParseName(resolveString(c, "archive-policy", configVal(cfg, func(c *config.Config) string { return c.Archive.Policy })))
	if err != nil {
		return policyChoice{}, err
	}
	pc := policyChoice{
		name:          name,
		flushRecords:  resolveInt(c, "archive-flush-records", configVal(cfg, func(c *config.Config) int { return c.Archive.FlushRecords })),
		flushInterval: resolveDuration(c, "archive-flush-interval", configVal(cfg, func(c *config.Config) time.Duration { return c.Archive.FlushInterval.Duration })),
	}
	if pc.flushRecords < 1 {
		return pc, fmt.Errorf("--archive-flush-records must be >= 1, got %d", pc.flushRecords)
	}
	if pc.flushInterval < 0 {
		return pc, fmt.Errorf("--archive-flush-interval must not be negative, got %s", pc.flushInterval)
	}
	return pc, nil
}

// openTarget leaves the archive open when the policy closes, so the
// summary can still be written after the batch drains.
type openTarget struct {
	*lode.Archive
}

func (openTarget) Close() error { return nil }

// newArchivePolicy wraps the archive in the chosen write policy.
func newArchivePolicy(pc policyChoice, archive *lode.Archive, logger *log.Logger) (policy.Policy, error) {
	target := openTarget{archive}
	if pc.name != policy.NameBuffered {
		return policy.NewStrictPolicy(target), nil
	}
	p, err := policy.NewBufferedPolicy(target, policy.BufferedConfig{
		FlushRecords:  pc.flushRecords,
		FlushInterval: pc.flushInterval,
		Logger:        logger.Named("archive"),
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

type lodeDataset = lodelib.Dataset

// openReadDataset opens the archive for queries.
func openReadDataset(ctx context.Context, a archiveChoice) (lodeDataset, error) {
	if a.backend == "s3" {
		return lode.NewReadDatasetS3(ctx, a.dataset, a.s3Config())
	}
	return lode.NewReadDatasetFS(a.dataset, a.path)
}
