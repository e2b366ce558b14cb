// Command magnetmeta resolves batches of magnet links into torrent
// metadata.
//
// Exit codes:
//
//	0    batch drained; failed links are report records, not errors
//	1    fatal: report, workspace or archive could not be used
//	3    invalid input: flags, config file or link sources
//	130  interrupted by SIGINT or SIGTERM, after draining
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/magnetmeta/cli/cmd"
	"github.com/pithecene-io/magnetmeta/types"
)

// commit is overridden with -ldflags "-X main.commit=...".
var commit = "unknown"

func newApp() *cli.App {
	return &cli.App{
		Name:    "magnetmeta",
		Usage:   "Batch-resolve magnet links into names and info hashes",
		Version: types.Version + " (commit " + commit + ")",
		Commands: []*cli.Command{
			cmd.FetchCommand(),
			cmd.ScrapeCommand(),
			cmd.CleanCommand(),
			cmd.InspectCommand(),
			cmd.EventsCommand(),
			cmd.VersionCommand(commit),
		},
		// Exit codes are decided once, in main.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func main() {
	os.Exit(exitCode(os.Stderr, newApp().Run(os.Args)))
}

// exitCode prints err to w and maps it to a process exit code. Codes
// carried by cli.Exit pass through; any other error is 1.
func exitCode(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var coder cli.ExitCoder
	if !errors.As(err, &coder) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return 1
	}
	code := coder.ExitCode()
	// cli.Exit with an empty message reports "exit status N".
	if msg := coder.Error(); msg != "" && msg != fmt.Sprintf("exit status %d", code) {
		fmt.Fprintln(w, msg)
	}
	return code
}
