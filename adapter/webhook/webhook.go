// Package webhook delivers batch-completed events as signed JSON POSTs.
//
// Every delivery carries the event type and batch ID as headers so a
// receiver can route or deduplicate without parsing the body. When a
// secret is configured, the body is signed with HMAC-SHA256.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pithecene-io/magnetmeta/adapter"
	"github.com/pithecene-io/magnetmeta/iox"
)

const (
	// DefaultTimeout bounds one delivery attempt.
	DefaultTimeout = 10 * time.Second

	// HeaderEvent names the event type of the delivery.
	HeaderEvent = "X-Magnetmeta-Event"
	// HeaderBatchID carries the batch ID; repeated deliveries reuse it.
	HeaderBatchID = "X-Magnetmeta-Batch-Id"
	// HeaderSignature is "sha256=<hex hmac of the body>".
	HeaderSignature = "X-Magnetmeta-Signature"
)

// Config configures the webhook adapter.
type Config struct {
	// URL is the absolute http(s) endpoint (required).
	URL string
	// Headers are added to every delivery. They cannot override the
	// event, batch and signature headers.
	Headers map[string]string
	// Secret enables body signing when non-empty.
	Secret string
	// Timeout bounds one attempt. Zero means DefaultTimeout.
	Timeout time.Duration
	// Retries is how many times a failed delivery is repeated.
	Retries int
}

// Adapter delivers events to one endpoint.
type Adapter struct {
	config Config
	client *http.Client
}

// New validates cfg and builds an adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("webhook URL must be absolute http(s), got %q", cfg.URL)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Publish delivers the event, retrying server errors, timeouts and rate
// limiting. Other 4xx responses fail at once.
func (a *Adapter) Publish(ctx context.Context, event *adapter.BatchCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	header := a.header(event, body)

	return adapter.Retry(ctx, "webhook", a.config.Retries, permanent, func(ctx context.Context) error {
		return a.deliver(ctx, header, body)
	})
}

// header builds the per-event header set once so retries are identical.
func (a *Adapter) header(event *adapter.BatchCompletedEvent, body []byte) http.Header {
	h := make(http.Header, len(a.config.Headers)+4)
	for k, v := range a.config.Headers {
		h.Set(k, v)
	}
	h.Set("Content-Type", "application/json")
	h.Set(HeaderEvent, event.EventType)
	h.Set(HeaderBatchID, event.BatchID)
	if a.config.Secret != "" {
		h.Set(HeaderSignature, Sign(a.config.Secret, body))
	}
	return h
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// permanent reports 4xx responses other than 408 and 429.
func permanent(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return se.Code >= 400 && se.Code < 500
}

func (a *Adapter) deliver(ctx context.Context, header http.Header, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = header.Clone()

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
