package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/magnetmeta/adapter"
	"github.com/pithecene-io/magnetmeta/cli/config"
	"github.com/pithecene-io/magnetmeta/cli/reader"
	"github.com/pithecene-io/magnetmeta/cli/render"
	"github.com/pithecene-io/magnetmeta/cli/tui"
	"github.com/pithecene-io/magnetmeta/ipc"
	"github.com/pithecene-io/magnetmeta/lode"
	"github.com/pithecene-io/magnetmeta/log"
	"github.com/pithecene-io/magnetmeta/metrics"
	"github.com/pithecene-io/magnetmeta/policy"
	"github.com/pithecene-io/magnetmeta/progress"
	"github.com/pithecene-io/magnetmeta/report"
	"github.com/pithecene-io/magnetmeta/resolver"
	"github.com/pithecene-io/magnetmeta/runtime"
	"github.com/pithecene-io/magnetmeta/types"
	"github.com/pithecene-io/magnetmeta/workspace"
)

// newResolver builds the batch resolver. Replaced in tests.
var newResolver = func(cfg resolver.TorrentConfig) resolver.Resolver {
	return resolver.NewTorrentResolver(cfg)
}

// isTerminal reports whether f is an interactive terminal. Replaced in tests.
var isTerminal = render.IsTTY

// FetchCommand returns the fetch command.
// Fetch is the only command that contacts the network for metadata.
func FetchCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		// Input flags
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"l"},
			Usage:   "Newline-delimited file of magnet links (- for stdin)",
		},
		&cli.StringFlag{
			Name:  "links-json",
			Usage: "JSON or YAML document of {\"magnet\": ...} objects (- for stdin)",
		},
		&cli.StringFlag{
			Name:  "field",
			Usage: "Document field holding the magnet link",
			Value: reader.DefaultField,
		},
		// Batch flags
		&cli.IntFlag{
			Name:    "concurrency",
			Aliases: []string{"c"},
			Usage:   "Concurrent resolutions (required here or in the config file)",
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Dispatch mode: pipelined or fanout",
			Value: string(runtime.ModePipelined),
		},
		&cli.DurationFlag{
			Name:  "attempt-timeout",
			Usage: "Per-link deadline, e.g. 2m (default none)",
		},
		&cli.StringFlag{
			Name:  "workspace",
			Usage: "Scratch directory, emptied after the batch",
			Value: workspace.DefaultPath,
		},
		&cli.StringFlag{
			Name:  "report-dir",
			Usage: "Directory for the report file",
			Value: report.DefaultDir,
		},
		&cli.StringFlag{
			Name:  "report-style",
			Usage: "Report record style: basic or rich",
			Value: string(report.StyleBasic),
		},
		&cli.StringFlag{
			Name:  "summary",
			Usage: "Write the batch summary JSON to a path, - for stderr, or auto for next to the report",
		},
		&cli.StringFlag{
			Name:  "events-log",
			Usage: "Append dispatch and completion events to this file",
		},
		// Torrent client flags
		&cli.IntFlag{
			Name:  "listen-port",
			Usage: "BitTorrent listen port (0 picks a free port)",
		},
		&cli.BoolFlag{
			Name:  "no-dht",
			Usage: "Disable DHT lookups",
		},
		&cli.BoolFlag{
			Name:  "disable-ipv6",
			Usage: "Disable IPv6 peer connections",
		},
		// Output flags
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Suppress progress and summary output",
		},
		&cli.BoolFlag{
			Name:  "no-tui",
			Usage: "Print progress lines even on a terminal",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
			Value: "info",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "Write JSON logs to this file (default stderr; discarded while the TUI is active)",
		},
	}
	flags = append(flags, archiveFlags()...)
	flags = append(flags, archivePolicyFlags()...)
	flags = append(flags, adapterFlags()...)

	return &cli.Command{
		Name:      "fetch",
		Usage:     "Resolve magnet links into names and info hashes",
		ArgsUsage: "[magnet-link]",
		Flags:     flags,
		Action:    fetchAction,
	}
}

// fetchChoice holds resolved fetch settings.
type fetchChoice struct {
	input          reader.Options
	concurrency    int
	mode           runtime.Mode
	attemptTimeout time.Duration
	workspace      string
	reportDir      string
	reportStyle    report.Style
	summary        string
	eventsLog      string
	torrent        resolver.TorrentConfig
	archive        archiveChoice
	archivePolicy  policyChoice
	adapter        adapterChoice
	quiet          bool
	logLevel       zapcore.Level
	logFile        string
}

func parseFetchChoice(c *cli.Context, cfg *config.Config) (*fetchChoice, error) {
	if c.NArg() > 1 {
		return nil, fmt.Errorf("fetch takes at most one magnet link argument, got %d", c.NArg())
	}

	fc := &fetchChoice{
		input: reader.Options{
			Arg:      c.Args().First(),
			ListFile: c.String("file"),
			Document: c.String("links-json"),
			Field:    c.String("field"),
			Stdin:    c.App.Reader,
		},
		concurrency:    resolveInt(c, "concurrency", configVal(cfg, func(c *config.Config) int { return c.Concurrency })),
		attemptTimeout: resolveDuration(c, "attempt-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.AttemptTimeout.Duration })),
		workspace:      resolveString(c, "workspace", configVal(cfg, func(c *config.Config) string { return c.Workspace })),
		reportDir:      resolveString(c, "report-dir", configVal(cfg, func(c *config.Config) string { return c.ReportDir })),
		summary:        resolveString(c, "summary", configVal(cfg, func(c *config.Config) string { return c.Summary })),
		eventsLog:      resolveString(c, "events-log", configVal(cfg, func(c *config.Config) string { return c.EventsLog })),
		torrent: resolver.TorrentConfig{
			ListenPort:  resolveInt(c, "listen-port", configVal(cfg, func(c *config.Config) int { return c.Torrent.ListenPort })),
			NoDHT:       resolveBool(c, "no-dht", configVal(cfg, func(c *config.Config) bool { return c.Torrent.NoDHT })),
			DisableIPv6: resolveBool(c, "disable-ipv6", configVal(cfg, func(c *config.Config) bool { return c.Torrent.DisableIPv6 })),
		},
		quiet:   c.Bool("quiet"),
		logFile: c.String("log-file"),
	}

	if fc.concurrency == 0 {
		return nil, errors.New("--concurrency is required (or set concurrency in the config file)")
	}
	if fc.concurrency < 0 {
		return nil, fmt.Errorf("--concurrency must be >= 1, got %d", fc.concurrency)
	}
	if fc.attemptTimeout < 0 {
		return nil, fmt.Errorf("--attempt-timeout must not be negative, got %s", fc.attemptTimeout)
	}

	var err error
	if fc.mode, err = runtime.ParseMode(resolveString(c, "mode", configVal(cfg, func(c *config.Config) string { return c.Mode }))); err != nil {
		return nil, err
	}
	if fc.reportStyle, err = report.ParseStyle(resolveString(c, "report-style", configVal(cfg, func(c *config.Config) string { return c.ReportStyle }))); err != nil {
		return nil, err
	}
	if fc.logLevel, err = zapcore.ParseLevel(c.String("log-level")); err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	if fc.archive, err = resolveArchiveChoice(c, cfg); err != nil {
		return nil, err
	}
	if fc.archivePolicy, err = resolvePolicyChoice(c, cfg); err != nil {
		return nil, err
	}
	if fc.adapter, err = parseAdapterConfig(c, cfg); err != nil {
		return nil, err
	}
	return fc, nil
}

func fetchAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	fc, err := parseFetchChoice(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	ids, err := reader.Load(fc.input)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot read magnet links: %v", err), exitInvalidInput)
	}
	single := fc.input.Single()

	// Signal handling cancels the batch; undispatched links become canceled outcomes.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	meta := types.NewBatchMeta(len(ids))
	useTUI := !single && !fc.quiet && !c.Bool("no-tui") && isTerminal(os.Stderr)

	logger, closeLog, err := newBatchLogger(meta, fc, useTUI)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	defer closeLog()
	defer logger.Sync()

	archiveBackend := ""
	if fc.archive.enabled() {
		archiveBackend = fc.archive.backend
	}
	collector := metrics.NewCollector(string(fc.mode), fc.concurrency, archiveBackend, meta.BatchID)

	ad, err := buildAdapter(fc.adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("adapter: %v", err), exitInvalidInput)
	}

	batchCfg := runtime.BatchConfig{
		Meta: meta,
		Orchestrator: runtime.OrchestratorConfig{
			Concurrency:    fc.concurrency,
			Mode:           fc.mode,
			AttemptTimeout: fc.attemptTimeout,
		},
		Workspace:   workspace.New(fc.workspace, logger),
		ReportDir:   fc.reportDir,
		ReportStyle: fc.reportStyle,
		QuietClean:  single,
		Logger:      logger,
		Collector:   collector,
	}

	var (
		archive       *lode.Archive
		archivePolicy policy.Policy
	)
	if fc.archive.enabled() {
		archive, err = openArchive(ctx, fc.archive, meta, collector)
		if err != nil {
			return cli.Exit(fmt.Sprintf("archive: %v", err), exitFatal)
		}
		defer func() { _ = archive.Close() }()
		if archivePolicy, err = newArchivePolicy(fc.archivePolicy, archive, logger); err != nil {
			return cli.Exit(fmt.Sprintf("archive policy: %v", err), exitInvalidInput)
		}
		batchCfg.Sinks = append(batchCfg.Sinks, archivePolicy)
	}

	var events *ipc.EventLog
	if fc.eventsLog != "" {
		events, err = ipc.CreateEventLog(fc.eventsLog, logger)
		if err != nil {
			return cli.Exit(fmt.Sprintf("events log: %v", err), exitFatal)
		}
		batchCfg.Observers = append(batchCfg.Observers, events)
	}

	var (
		reporter *progress.Reporter
		program  *tui.ProgressProgram
	)
	switch {
	case useTUI:
		program = tui.NewProgressProgram("Resolving magnet links", len(ids), c.App.ErrWriter, cancel)
		reporter = progress.NewReporter(len(ids), program)
	case !single && !fc.quiet:
		reporter = progress.NewReporter(len(ids), progress.NewLineRenderer(c.App.ErrWriter))
	}
	if reporter != nil {
		batchCfg.Observers = append(batchCfg.Observers, reporter)
	}

	batchCfg.Resolver = newResolver(resolverConfig(fc.torrent, fc.workspace))
	batch, err := runtime.NewBatch(batchCfg)
	if err != nil {
		if events != nil {
			_ = events.Close()
		}
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	if program != nil {
		program.Start()
	}
	if reporter != nil {
		reporter.Start()
	}

	result, runErr := batch.Run(ctx, ids)

	if reporter != nil {
		reporter.Finish()
	}
	if program != nil {
		if err := program.Wait(); err != nil {
			logger.Warn("progress view failed", map[string]any{"error": err.Error()})
		}
	}
	if events != nil {
		if err := events.Close(); err != nil {
			logger.Warn("events log close failed", map[string]any{"error": err.Error()})
		}
	}

	if archivePolicy != nil {
		st := archivePolicy.Stats()
		logger.Info("archive policy drained", map[string]any{
			"policy":    string(fc.archivePolicy.name),
			"persisted": st.Persisted,
			"dropped":   st.Dropped,
			"flushes":   st.Flushes,
			"errors":    st.Errors,
		})
	}

	exitCode := batchExitCode(result, runErr)
	summary := runtime.BuildSummary(result, fc.mode, collector.Snapshot(), exitCode)

	// Summary and notification run even after SIGINT.
	finishCtx := context.WithoutCancel(ctx)
	if fc.summary != "" {
		path := fc.summary
		if path == "auto" {
			path = report.SummaryPath(result.ReportPath)
		}
		if err := report.WriteSummary(summary, path); err != nil {
			logger.Warn("summary write failed", map[string]any{"path": path, "error": err.Error()})
		}
	}

	archivePath := ""
	if archive != nil {
		archivePath = fc.archive.location(meta)
		if err := archive.WriteSummary(finishCtx, summary); err != nil {
			logger.Warn("summary archive failed", map[string]any{"error": err.Error()})
		}
	}

	if ad != nil {
		publish(finishCtx, ad, adapter.NewBatchCompletedEvent(summary, meta.Day(), archivePath), logger, collector)
	}

	switch {
	case single:
		printSingle(c, result)
	case !fc.quiet && useTUI:
		fmt.Fprintln(c.App.ErrWriter, tui.RenderSummary(summary))
	case !fc.quiet:
		fmt.Fprintf(c.App.ErrWriter, "resolved %d, failed %d, timed out %d of %d; report %s\n",
			summary.Resolved, summary.Failed, summary.TimedOut, summary.Total, summary.ReportPath)
	}

	if runErr != nil {
		return cli.Exit(fmt.Sprintf("batch failed: %v", runErr), exitCode)
	}
	return cli.Exit("", exitCode)
}

// batchExitCode maps a batch result to the process exit code. Failed
// outcomes never change the code: a drained batch exits 0.
func batchExitCode(result *runtime.BatchResult, runErr error) int {
	switch {
	case runErr != nil:
		return exitFatal
	case result != nil && result.Canceled:
		return exitInterrupted
	default:
		return exitSuccess
	}
}

// printSingle prints the resolved name on stdout, or the failure on stderr.
func printSingle(c *cli.Context, result *runtime.BatchResult) {
	if result == nil || len(result.Outcomes) == 0 {
		return
	}
	o := result.Outcomes[0]
	if o.OK() {
		fmt.Fprintln(c.App.Writer, o.Metadata.Name)
		return
	}
	fmt.Fprintf(c.App.ErrWriter, "%s: failed with %s\n", o.Identifier, o.Cause())
}

// resolverConfig points the torrent client at the workspace so teardown
// removes everything it wrote.
func resolverConfig(tc resolver.TorrentConfig, dir string) resolver.TorrentConfig {
	tc.DataDir = dir
	return tc
}

// newBatchLogger opens the batch logger. The returned func closes the log
// file, if any.
func newBatchLogger(meta *types.BatchMeta, fc *fetchChoice, tuiActive bool) (*log.Logger, func(), error) {
	if fc.logFile != "" {
		f, err := os.OpenFile(fc.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot open --log-file: %w", err)
		}
		return log.New(f, fc.logLevel, meta), func() { _ = f.Close() }, nil
	}
	if tuiActive {
		return log.NewNopLogger(), func() {}, nil
	}
	return log.New(os.Stderr, fc.logLevel, meta), func() {}, nil
}

