package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/magnetmeta/cli/config"
	"github.com/pithecene-io/magnetmeta/cli/render"
	"github.com/pithecene-io/magnetmeta/discover"
	"github.com/pithecene-io/magnetmeta/log"
	"github.com/pithecene-io/magnetmeta/proxy"
)

// ScrapeCommand returns the scrape command.
// Scrape writes a links document that fetch --links-json reads back.
func ScrapeCommand() *cli.Command {
	flags := append([]cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:    "output-dir",
			Aliases: []string{"o"},
			Usage:   "Directory for the links document",
			Value:   discover.DefaultOutputDir,
		},
		&cli.BoolFlag{
			Name:  "render",
			Usage: "Load the page in headless Chrome so script-inserted links are found",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Page fetch timeout",
			Value: discover.DefaultTimeout,
		},
		&cli.DurationFlag{
			Name:  "settle",
			Usage: "Extra wait after the rendered page is ready (--render only)",
		},
		&cli.StringFlag{
			Name:  "user-agent",
			Usage: "User-Agent for plain HTTP fetches",
			Value: discover.DefaultUserAgent,
		},
		&cli.StringFlag{
			Name:  "proxy",
			Usage: "Proxy pool name from the config file",
		},
	}, ReadOnlyFlags()...)

	return &cli.Command{
		Name:      "scrape",
		Usage:     "Collect magnet links from a web page into a links document",
		ArgsUsage: "<seed-url>",
		Flags:     flags,
		Action:    scrapeAction,
	}
}

// scrapeChoice holds resolved scrape settings.
type scrapeChoice struct {
	seed      string
	outputDir string
	render    bool
	timeout   time.Duration
	settle    time.Duration
	userAgent string
	pool      string
}

func parseScrapeChoice(c *cli.Context, cfg *config.Config) (scrapeChoice, error) {
	if c.NArg() != 1 {
		return scrapeChoice{}, fmt.Errorf("scrape takes exactly one seed URL, got %d", c.NArg())
	}
	sc := scrapeChoice{
		seed:      c.Args().First(),
		outputDir: resolveString(c, "output-dir", configVal(cfg, func(c *config.Config) string { return c.Scrape.OutputDir })),
		render:    resolveBool(c, "render", configVal(cfg, func(c *config.Config) bool { return c.Scrape.Render })),
		timeout:   resolveDuration(c, "timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Scrape.Timeout.Duration })),
		settle:    c.Duration("settle"),
		userAgent: resolveString(c, "user-agent", configVal(cfg, func(c *config.Config) string { return c.Scrape.UserAgent })),
		pool:      resolveString(c, "proxy", configVal(cfg, func(c *config.Config) string { return c.Scrape.Proxy })),
	}

	u, err := url.Parse(sc.seed)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return sc, fmt.Errorf("seed must be an absolute http(s) URL, got %q", sc.seed)
	}
	return sc, nil
}

func scrapeAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for scrape", exitInvalidInput)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	sc, err := parseScrapeChoice(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	logger := log.New(c.App.ErrWriter, zapcore.InfoLevel, nil)
	defer logger.Sync()

	var selector *proxy.Selector
	if sc.pool != "" {
		selector, err = buildSelector(cfg, sc.pool, logger)
		if err != nil {
			return cli.Exit(err.Error(), exitInvalidInput)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fetcher, err := newFetcher(sc, selector)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	if cl, ok := fetcher.(interface{ Close() error }); ok {
		defer func() { _ = cl.Close() }()
	}

	res, err := discover.NewScraper(fetcher, sc.outputDir, logger).Scrape(ctx, sc.seed)
	if err != nil {
		return cli.Exit(fmt.Sprintf("scrape failed: %v", err), exitFatal)
	}
	return r.Render(res)
}

// buildSelector registers every configured pool and checks that name exists.
func buildSelector(cfg *config.Config, name string, logger *log.Logger) (*proxy.Selector, error) {
	pools := configVal(cfg, (*config.Config).ProxyPools)
	sel := proxy.NewSelector(logger)
	found := false
	for i := range pools {
		if err := sel.RegisterPool(&pools[i]); err != nil {
			return nil, fmt.Errorf("proxy pool %q: %w", pools[i].Name, err)
		}
		if pools[i].Name == name {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("proxy pool %q is not defined under scrape.proxies", name)
	}
	return sel, nil
}

// newFetcher builds the HTTP or browser fetcher, routed through the
// selected pool when one is configured.
func newFetcher(sc scrapeChoice, selector *proxy.Selector) (discover.Fetcher, error) {
	if !sc.render {
		cfg := discover.HTTPConfig{Timeout: sc.timeout, UserAgent: sc.userAgent}
		if selector != nil {
			cfg.Proxy = selector.ProxyFunc(sc.pool)
		}
		return discover.NewHTTPFetcher(cfg), nil
	}

	rc := discover.RenderConfig{Timeout: sc.timeout, Settle: sc.settle}
	if selector != nil {
		// The browser keeps one proxy for the whole page load.
		u, err := url.Parse(sc.seed)
		if err != nil {
			return nil, err
		}
		ep, err := selector.Select(proxy.SelectRequest{
			Pool:   sc.pool,
			Domain: u.Hostname(),
			Origin: u.Scheme + "://" + u.Host,
			Commit: true,
		})
		if err != nil {
			return nil, fmt.Errorf("proxy selection failed: %w", err)
		}
		server := ep.URL()
		server.User = nil
		rc.ProxyServer = server.String()
	}
	return discover.NewRenderFetcher(rc), nil
}
