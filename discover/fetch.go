// Package discover finds magnet identifiers on a seed page and writes them
// as a links document that the fetch command can read back.
package discover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/pithecene-io/magnetmeta/iox"
)

// DefaultTimeout bounds a single page fetch.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is sent by the HTTP fetcher.
const DefaultUserAgent = "magnetmeta-scrape/1"

// MaxBodySize caps the bytes read from a seed page (8 MiB).
const MaxBodySize = 8 << 20

// Fetcher retrieves the text of a page.
type Fetcher interface {
	Fetch(ctx context.Context, seed string) (string, error)
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// HTTPConfig configures the plain HTTP fetcher.
type HTTPConfig struct {
	// Timeout is the per-request timeout (default 30s).
	Timeout time.Duration
	// UserAgent overrides DefaultUserAgent.
	UserAgent string
	// Proxy picks the proxy for each request. Nil uses the environment.
	Proxy func(*http.Request) (*url.URL, error)
}

// HTTPFetcher fetches a page with net/http.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates an HTTP fetcher.
func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != nil {
		transport.Proxy = cfg.Proxy
	}

	return &HTTPFetcher{
		client:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		userAgent: cfg.UserAgent,
	}
}

// Fetch GETs seed and returns the body as text.
func (f *HTTPFetcher) Fetch(ctx context.Context, seed string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seed, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// RenderConfig configures the headless browser fetcher.
type RenderConfig struct {
	// Timeout bounds navigation plus rendering (default 30s).
	Timeout time.Duration
	// ProxyServer is passed to the browser as --proxy-server. Optional.
	ProxyServer string
	// Settle is an extra wait after the document is ready, for pages that
	// insert links from script.
	Settle time.Duration
}

// RenderFetcher loads the page in headless Chrome and returns the rendered
// document, so links inserted by script are visible.
type RenderFetcher struct {
	cfg RenderConfig
}

// NewRenderFetcher creates a browser-backed fetcher. Chrome is started per
// Fetch call and shut down when it returns.
func NewRenderFetcher(cfg RenderConfig) *RenderFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &RenderFetcher{cfg: cfg}
}

// Fetch navigates to seed and returns the outer HTML of the document.
func (f *RenderFetcher) Fetch(ctx context.Context, seed string) (string, error) {
	if seed == "" {
		return "", errors.New("seed URL is required")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if f.cfg.ProxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(f.cfg.ProxyServer))
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	actions := []chromedp.Action{
		chromedp.Navigate(seed),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if f.cfg.Settle > 0 {
		actions = append(actions, chromedp.Sleep(f.cfg.Settle))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return "", fmt.Errorf("render %s: %w", seed, err)
	}
	return html, nil
}
