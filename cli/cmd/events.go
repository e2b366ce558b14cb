package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/magnetmeta/cli/render"
	"github.com/pithecene-io/magnetmeta/ipc"
	"github.com/pithecene-io/magnetmeta/iox"
	"github.com/pithecene-io/magnetmeta/types"
)

// EventsCommand returns the events command.
// Events decodes a log written by fetch --events-log.
func EventsCommand() *cli.Command {
	return &cli.Command{
		Name:      "events",
		Usage:     "Print the events recorded by fetch --events-log",
		ArgsUsage: "<events-log>",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "kind",
				Usage: "Only show events of this kind: dispatched or completed",
			},
		}, ReadOnlyFlags()...),
		Action: eventsAction,
	}
}

// eventRow is the table view of one event.
type eventRow struct {
	Seq        int64  `json:"seq"`
	Kind       string `json:"kind"`
	Index      int    `json:"index"`
	Status     string `json:"status,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Identifier string `json:"identifier"`
	Ts         string `json:"ts"`
}

func toEventRow(ev *types.Event) eventRow {
	row := eventRow{
		Seq:        ev.Seq,
		Kind:       string(ev.Kind),
		Index:      ev.Index,
		Identifier: ev.Identifier.String(),
		Ts:         ev.Ts,
	}
	if o := ev.Outcome; o != nil {
		row.Status = string(o.Status)
		if o.OK() {
			row.Detail = o.Metadata.Fingerprint
		} else {
			row.Detail = o.Cause()
		}
	}
	return row
}

func eventsAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for events", exitInvalidInput)
	}
	if c.NArg() != 1 {
		return cli.Exit("events log path required", exitInvalidInput)
	}
	kind := types.EventKind(c.String("kind"))
	switch kind {
	case "", types.EventDispatched, types.EventCompleted:
	default:
		return cli.Exit(fmt.Sprintf("invalid --kind %q (must be dispatched or completed)", kind), exitInvalidInput)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open events log: %v", err), exitInvalidInput)
	}
	defer iox.DiscardClose(f)

	rows := []eventRow{}
	skipped, err := ipc.ReadEvents(f, func(ev *types.Event) error {
		if kind == "" || ev.Kind == kind {
			rows = append(rows, toEventRow(ev))
		}
		return nil
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("events log is corrupt after %d events: %v", len(rows), err), exitFatal)
	}
	if skipped > 0 {
		fmt.Fprintf(c.App.ErrWriter, "skipped %d undecodable events\n", skipped)
	}
	return r.Render(rows)
}
