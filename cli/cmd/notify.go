package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/magnetmeta/adapter"
	"github.com/pithecene-io/magnetmeta/adapter/redis"
	"github.com/pithecene-io/magnetmeta/adapter/webhook"
	"github.com/pithecene-io/magnetmeta/cli/config"
	"github.com/pithecene-io/magnetmeta/log"
	"github.com/pithecene-io/magnetmeta/metrics"
)

// adapterFlags configure the batch-completed notification.
func adapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Notify on batch completion: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Webhook endpoint or Redis URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel (default " + redis.DefaultChannel + ")",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header as Key=Value (repeatable)",
		},
		&cli.StringFlag{
			Name:    "adapter-secret",
			Usage:   "Webhook HMAC-SHA256 signing secret",
			EnvVars: []string{"MAGNETMETA_ADAPTER_SECRET"},
		},
		&cli.DurationFlag{
			Name:  "adapter-retain",
			Usage: "Redis: keep the event under a per-batch key for this long",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-attempt notification timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Notification retry attempts",
			Value: 3,
		},
	}
}

// adapterChoice holds resolved adapter settings.
type adapterChoice struct {
	kind    string
	url     string
	channel string
	headers map[string]string
	secret  string
	retain  time.Duration
	timeout time.Duration
	retries int
}

func parseAdapterConfig(c *cli.Context, cfg *config.Config) (adapterChoice, error) {
	a := adapterChoice{
		kind:    resolveString(c, "adapter", configVal(cfg, func(c *config.Config) string { return c.Adapter.Type })),
		url:     resolveString(c, "adapter-url", configVal(cfg, func(c *config.Config) string { return c.Adapter.URL })),
		channel: resolveString(c, "adapter-channel", configVal(cfg, func(c *config.Config) string { return c.Adapter.Channel })),
		secret:  resolveString(c, "adapter-secret", configVal(cfg, func(c *config.Config) string { return c.Adapter.Secret })),
		retain:  resolveDuration(c, "adapter-retain", configVal(cfg, func(c *config.Config) time.Duration { return c.Adapter.Retain.Duration })),
		timeout: resolveDuration(c, "adapter-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Adapter.Timeout.Duration })),
		retries: c.Int("adapter-retries"),
	}
	// retries: 0 in the config is meaningful, so nil-vs-zero decides.
	if !c.IsSet("adapter-retries") {
		if r := configVal(cfg, func(c *config.Config) *int { return c.Adapter.Retries }); r != nil {
			a.retries = *r
		}
	}

	a.headers = make(map[string]string)
	for k, v := range configVal(cfg, func(c *config.Config) map[string]string { return c.Adapter.Headers }) {
		a.headers[k] = v
	}
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || k == "" {
			return a, fmt.Errorf("invalid --adapter-header %q (want Key=Value)", h)
		}
		a.headers[k] = v
	}

	switch a.kind {
	case "":
		return a, nil
	case "webhook", "redis":
		if a.url == "" {
			return a, fmt.Errorf("--adapter-url is required for the %s adapter", a.kind)
		}
	default:
		return a, fmt.Errorf("unknown --adapter %q (must be webhook or redis)", a.kind)
	}
	if a.retries < 0 {
		return a, fmt.Errorf("--adapter-retries must be >= 0, got %d", a.retries)
	}
	return a, nil
}

// buildAdapter returns nil when no adapter is configured.
func buildAdapter(a adapterChoice) (adapter.Adapter, error) {
	switch a.kind {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     a.url,
			Headers: a.headers,
			Secret:  a.secret,
			Timeout: a.timeout,
			Retries: a.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     a.url,
			Channel: a.channel,
			Retain:  a.retain,
			Timeout: a.timeout,
			Retries: a.retries,
		})
	default:
		return nil, nil
	}
}

// publish sends the event. Failures are logged and counted; they never
// change the exit code.
func publish(ctx context.Context, ad adapter.Adapter, event *adapter.BatchCompletedEvent, logger *log.Logger, collector *metrics.Collector) {
	defer func() {
		if err := ad.Close(); err != nil {
			logger.Warn("adapter close failed", map[string]any{"error": err.Error()})
		}
	}()

	if err := ad.Publish(ctx, event); err != nil {
		collector.IncNotifyFailure()
		logger.Error("batch notification failed", map[string]any{"error": err.Error()})
		return
	}
	collector.IncNotifySuccess()
	logger.Info("batch notification sent", map[string]any{"event_type": event.EventType})
}
