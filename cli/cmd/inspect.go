package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/magnetmeta/cli/render"
	"github.com/pithecene-io/magnetmeta/cli/tui"
	"github.com/pithecene-io/magnetmeta/lode"
	"github.com/pithecene-io/magnetmeta/types"
)

// InspectCommand returns the inspect command with subcommands.
// Inspect reads the outcome archive written by fetch --archive-path.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Query archived outcomes and batch summaries",
		Subcommands: []*cli.Command{
			inspectOutcomesCommand(),
			inspectSummaryCommand(),
		},
	}
}

func inspectFlags() []cli.Flag {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "batch-id",
			Usage: "Only records of this batch",
		},
		&cli.StringFlag{
			Name:  "day",
			Usage: "Only records of this partition day (YYYY-MM-DD, UTC)",
		},
	}
	flags = append(flags, archiveFlags()...)
	return append(flags, ReadOnlyFlags()...)
}

func inspectOutcomesCommand() *cli.Command {
	return &cli.Command{
		Name:  "outcomes",
		Usage: "List archived outcomes",
		Flags: append(inspectFlags(), &cli.StringFlag{
			Name:  "status",
			Usage: "Only outcomes with this status: resolved, failed, timed_out",
		}),
		Action: inspectOutcomesAction,
	}
}

func inspectSummaryCommand() *cli.Command {
	return &cli.Command{
		Name:   "summary",
		Usage:  "Show the most recent archived batch summary",
		Flags:  inspectFlags(),
		Action: inspectSummaryAction,
	}
}

// openInspectDataset resolves archive settings and opens the read path.
func openInspectDataset(c *cli.Context) (lodeDataset, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	a, err := resolveArchiveChoice(c, cfg)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitInvalidInput)
	}
	if !a.enabled() {
		return nil, cli.Exit("--archive-path is required (or set archive.path in the config file)", exitInvalidInput)
	}
	ds, err := openReadDataset(c.Context, a)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("cannot open archive: %v", err), exitFatal)
	}
	return ds, nil
}

func inspectOutcomesAction(c *cli.Context) error {
	status := types.Status(c.String("status"))
	switch status {
	case "", types.StatusResolved, types.StatusFailed, types.StatusTimedOut:
	default:
		return cli.Exit(fmt.Sprintf("invalid --status %q", status), exitInvalidInput)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	ds, err := openInspectDataset(c)
	if err != nil {
		return err
	}

	records, err := lode.QueryOutcomes(c.Context, ds, lode.Filter{
		BatchID: c.String("batch-id"),
		Day:     c.String("day"),
		Status:  string(status),
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("query failed: %v", err), exitFatal)
	}

	if c.Bool("tui") {
		outcomes := make([]types.Outcome, len(records))
		for i, rec := range records {
			outcomes[i] = rec.Outcome()
		}
		return tui.RunOutcomesTUI(fmt.Sprintf("Archived outcomes (%d)", len(outcomes)), outcomes)
	}

	if records == nil {
		records = []lode.OutcomeRecord{}
	}
	return r.Render(records)
}

func inspectSummaryAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for inspect summary", exitInvalidInput)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	ds, err := openInspectDataset(c)
	if err != nil {
		return err
	}

	rec, err := lode.QueryLatestSummary(c.Context, ds, lode.Filter{
		BatchID: c.String("batch-id"),
		Day:     c.String("day"),
	})
	if errors.Is(err, lode.ErrNoSummaryFound) {
		return cli.Exit("no archived summary matches", exitFatal)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("query failed: %v", err), exitFatal)
	}
	return r.Render(rec.Summary)
}
