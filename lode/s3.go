package lode

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Config locates the archive in S3 or an S3-compatible store.
// Credentials come from the AWS default chain (env, shared files, IMDS).
type S3Config struct {
	Bucket string
	// Prefix is an optional key prefix inside the bucket.
	Prefix string
	// Region overrides the region from the default chain.
	Region string
	// Profile selects a shared-config profile.
	Profile string
	// Endpoint points at MinIO, R2 and similar stores.
	Endpoint string
	// UsePathStyle is usually needed together with Endpoint.
	UsePathStyle bool
	// MaxAttempts caps SDK retries per request. Zero keeps the SDK default.
	MaxAttempts int
}

// Validate checks the bucket, endpoint and retry settings.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("S3 endpoint must be an absolute URL, got %q", c.Endpoint)
		}
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("S3 max attempts must be >= 0, got %d", c.MaxAttempts)
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" (or just "bucket"). A leading
// s3:// is accepted.
func ParseS3Path(path string) (bucket, prefix string) {
	path = strings.TrimPrefix(path, "s3://")
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, strings.Trim(prefix, "/")
}

func (c *S3Config) loadOptions() []func(*config.LoadOptions) error {
	var opts []func(*config.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, config.WithRegion(c.Region))
	}
	if c.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(c.Profile))
	}
	if c.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(c.MaxAttempts))
	}
	return opts
}

func (c *S3Config) clientOptions(o *s3.Options) {
	if c.Endpoint != "" {
		endpoint := c.Endpoint
		o.BaseEndpoint = &endpoint
	}
	o.UsePathStyle = c.UsePathStyle
}

// newS3Factory builds a Lode store factory sharing one S3 client.
func newS3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, s3cfg.loadOptions()...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, s3cfg.clientOptions)

	storeCfg := lodes3.Config{Bucket: s3cfg.Bucket, Prefix: s3cfg.Prefix}
	return func() (lode.Store, error) {
		return lodes3.New(client, storeCfg)
	}, nil
}
