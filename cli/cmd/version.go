package cmd

import (
	"runtime"
	"runtime/debug"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/magnetmeta/cli/render"
	"github.com/pithecene-io/magnetmeta/types"
)

const torrentModule = "github.com/anacrolix/torrent"

// VersionResponse is what the version command renders.
type VersionResponse struct {
	Version         string `json:"version"`
	ContractVersion string `json:"contract_version"`
	Commit          string `json:"commit"`
	GoVersion       string `json:"go_version"`
	Torrent         string `json:"torrent,omitempty"`
}

// VersionCommand reports build information. It reads nothing from disk
// or the network.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for version", exitInvalidInput)
			}
			r, err := render.NewRenderer(c)
			if err != nil {
				return cli.Exit(err.Error(), exitInvalidInput)
			}
			return r.Render(buildVersion(commit))
		},
	}
}

// buildVersion fills in the commit from VCS stamping when the linker
// did not set one.
func buildVersion(commit string) VersionResponse {
	resp := VersionResponse{
		Version:         types.Version,
		ContractVersion: types.ContractVersion,
		Commit:          commit,
		GoVersion:       runtime.Version(),
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return resp
	}
	for _, dep := range info.Deps {
		if dep.Path == torrentModule {
			resp.Torrent = dep.Version
		}
	}
	if resp.Commit == "" || resp.Commit == "unknown" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				resp.Commit = s.Value
			}
		}
	}
	return resp
}
