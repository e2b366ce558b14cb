// Package cmd holds the magnetmeta subcommands.
package cmd

import "github.com/urfave/cli/v2"

const (
	exitSuccess      = 0
	exitFatal        = 1
	exitInvalidInput = 3
	// exitInterrupted follows the shell convention for SIGINT.
	exitInterrupted = 130
)

// ConfigFlag points at a YAML config file.
var ConfigFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "Path to YAML config file (default ./magnetmeta.yaml when present)",
}

// ReadOnlyFlags are the output flags every reporting command accepts.
// --tui is present everywhere so commands without a TUI can reject it
// with a clear message.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: json, table or yaml (table on a terminal, json otherwise)",
		},
		&cli.BoolFlag{Name: "no-color", Usage: "Disable colored output"},
		&cli.BoolFlag{Name: "tui", Usage: "Interactive outcome browser (inspect outcomes only)"},
	}
}

// archiveFlags locate the Lode archive for fetch and inspect.
func archiveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "archive-backend",
			Usage: "Archive backend: fs or s3 (archiving is off unless --archive-path is set)",
			Value: "fs",
		},
		&cli.StringFlag{Name: "archive-path", Usage: "Archive location (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "archive-dataset", Usage: "Lode dataset ID"},
		&cli.StringFlag{Name: "archive-region", Usage: "AWS region for s3 (default chain when empty)"},
		&cli.StringFlag{Name: "archive-endpoint", Usage: "S3-compatible endpoint URL (R2, MinIO)"},
		&cli.BoolFlag{Name: "archive-s3-path-style", Usage: "Force path-style S3 addressing"},
		&cli.StringFlag{
			Name:    "archive-profile",
			Usage:   "AWS shared-config profile for s3",
			EnvVars: []string{"AWS_PROFILE"},
		},
		&cli.IntFlag{Name: "archive-max-attempts", Usage: "S3 request attempts (0 = SDK default)"},
	}
}
