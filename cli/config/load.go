package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads path, expands ${VAR} references and decodes the result.
// Keys the Config does not define are errors.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("config file not found: %s", path)
	case err != nil:
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	text, err := ExpandEnv(string(raw))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg := new(Config)
	dec := yaml.NewDecoder(strings.NewReader(text))
	dec.KnownFields(true)
	// An empty file decodes to io.EOF and means "no settings".
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional loads path, or DefaultFile when path is empty and the
// file exists. With neither it returns an empty Config.
func LoadOptional(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(DefaultFile); err != nil {
			return &Config{}, nil
		}
		path = DefaultFile
	}
	return Load(path)
}
