package main

/* YAML config file support. Flags beat the file, the file beats the
   defaults. A missing file is not an error; a broken one is. */

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the command line flags that make sense to persist.
type fileConfig struct {
	Output          string        `yaml:"output"`
	Backend         string        `yaml:"backend"`
	Passwords       []string      `yaml:"passwords"`
	PasswordFile    string        `yaml:"password_file"`
	Rules           string        `yaml:"rules"`
	MaxDepth        int           `yaml:"max_depth"`
	Timeout         time.Duration `yaml:"timeout"`
	Keep            bool          `yaml:"keep"`
	PermanentDelete bool          `yaml:"permanent_delete"`
	Overwrite       bool          `yaml:"overwrite"`
	FixEncoding     bool          `yaml:"fix_encoding"`
	Similarity      float64       `yaml:"similarity"`
}

// defaultConfigPath is where the config lives unless --config points
// elsewhere.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(home, ".unpackr", "config.yaml")
}

// loadFileConfig reads a YAML config over the defaults. When path is
// empty the default location is tried and a missing file loads defaults.
// An explicit path must exist.
func loadFileConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}

		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}
