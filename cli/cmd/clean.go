package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/magnetmeta/cli/config"
	"github.com/pithecene-io/magnetmeta/cli/render"
	"github.com/pithecene-io/magnetmeta/log"
	"github.com/pithecene-io/magnetmeta/workspace"
)

// CleanCommand returns the clean command.
// Clean empties a workspace left behind by an interrupted or crashed fetch.
func CleanCommand() *cli.Command {
	return &cli.Command{
		Name:  "clean",
		Usage: "Remove everything under the scratch workspace",
		Flags: append([]cli.Flag{
			ConfigFlag,
			&cli.StringFlag{
				Name:  "workspace",
				Usage: "Scratch directory to empty",
				Value: workspace.DefaultPath,
			},
		}, ReadOnlyFlags()...),
		Action: cleanAction,
	}
}

func cleanAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for clean", exitInvalidInput)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	path := resolveString(c, "workspace", configVal(cfg, func(c *config.Config) string { return c.Workspace }))
	result := workspace.New(path, log.NewNopLogger()).Clean(true)

	if err := r.Render(result); err != nil {
		return err
	}
	if !result.OK() {
		return cli.Exit(fmt.Sprintf("%d entries could not be removed", len(result.Failures)), exitFatal)
	}
	return nil
}
