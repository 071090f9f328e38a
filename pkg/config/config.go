// Package config loads strata's layered configuration: embedded
// defaults first, then an optional strata.toml (or .strata.toml) from
// the working directory.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/paths"
)

// Config is the fully merged configuration.
type Config struct {
	Store    StoreConfig    `koanf:"store"`
	Build    BuildConfig    `koanf:"build"`
	Packages PackagesConfig `koanf:"packages"`
	Sandbox  SandboxConfig  `koanf:"sandbox"`
}

type StoreConfig struct {
	Dir string `koanf:"dir"`
}

type BuildConfig struct {
	Appliance     string `koanf:"appliance"`
	KeepOnFailure bool   `koanf:"keep_on_failure"`
}

type PackagesConfig struct {
	Snapshot string `koanf:"snapshot"`
	Endpoint string `koanf:"endpoint"`
}

type SandboxConfig struct {
	Timeout string   `koanf:"timeout"`
	Prefix  []string `koanf:"prefix"`
}

// TimeoutDuration parses the sandbox timeout. Zero means unset.
func (s SandboxConfig) TimeoutDuration() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrConfigParse,
			"invalid sandbox timeout %q", s.Timeout)
	}
	return d, nil
}

// Load merges defaults with an optional project config found in dir.
func Load(dir string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "loading built-in defaults")
	}

	for _, filename := range []string{".strata.toml", "strata.toml"} {
		path := filepath.Join(dir, filename)
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, errors.Wrapf(err, errors.ErrConfigLoad,
					"loading project config %s", path)
			}
			break
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "unmarshaling configuration")
	}

	if cfg.Store.Dir == "" {
		cfg.Store.Dir = paths.StoreDir()
	}
	if _, err := cfg.Sandbox.TimeoutDuration(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
