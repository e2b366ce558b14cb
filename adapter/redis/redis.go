// Package redis announces completed batches on a Redis pub/sub channel.
//
// Pub/sub is fire-and-forget, so a consumer that was offline misses the
// message. With Retain set, the event is also stored under
// <KeyPrefix><batch_id> for that long, letting late consumers look it up.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/magnetmeta/adapter"
)

const (
	// DefaultChannel is the pub/sub channel when none is configured.
	DefaultChannel = "magnetmeta:batch_completed"
	// DefaultKeyPrefix prefixes retained event keys.
	DefaultKeyPrefix = "magnetmeta:batch:"
	// DefaultTimeout bounds one publish round trip.
	DefaultTimeout = 5 * time.Second
)

// Config configures the Redis adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db] (required).
	URL string
	// Channel defaults to DefaultChannel.
	Channel string
	// Retain keeps a copy of the event for this long. Zero disables it.
	Retain time.Duration
	// KeyPrefix defaults to DefaultKeyPrefix.
	KeyPrefix string
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	// Retries is how many times a failed publish is repeated.
	Retries int
}

// Adapter publishes batch-completed events.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New validates cfg and creates the client. No connection is made until
// the first publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Retain < 0 {
		return nil, fmt.Errorf("retain must not be negative, got %s", cfg.Retain)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Key returns the retained-event key for a batch.
func (a *Adapter) Key(batchID string) string {
	return a.config.KeyPrefix + batchID
}

// Publish sends the event, and stores it when retention is on, in one
// pipelined round trip.
func (a *Adapter) Publish(ctx context.Context, event *adapter.BatchCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.config.Retries, nil, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()

		_, err := a.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
			if a.config.Retain > 0 {
				p.Set(ctx, a.Key(event.BatchID), body, a.config.Retain)
			}
			p.Publish(ctx, a.config.Channel, body)
			return nil
		})
		return err
	})
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
