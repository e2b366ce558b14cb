package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/magnetmeta/cli/config"
)

// Precedence for every setting: explicit CLI flag, then config file, then
// the flag's own default.

func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if cfgVal != "" {
		return cfgVal
	}
	return c.String(name)
}

func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	if cfgVal != 0 {
		return cfgVal
	}
	return c.Int(name)
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) {
		return c.Duration(name)
	}
	if cfgVal != 0 {
		return cfgVal
	}
	return c.Duration(name)
}

// configVal reads a field from a possibly nil config.
func configVal[T any](cfg *config.Config, fn func(*config.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return fn(cfg)
}

// loadConfig loads --config, or the default file when present.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitInvalidInput)
	}
	return cfg, nil
}
