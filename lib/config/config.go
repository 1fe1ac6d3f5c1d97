// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the client.
//
// Configuration is loaded from a single file specified by either the
// WEBWX_CONFIG environment variable or a --config flag. There are no
// fallbacks and no automatic file search; a missing file simply yields
// the built-in defaults, so a config file is never required.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted for the config file
// path when no flag is given.
const EnvVar = "WEBWX_CONFIG"

// Config is the full configuration file shape.
type Config struct {
	Gateway Gateway `yaml:"gateway"`
	Log     Log     `yaml:"log"`
}

// Gateway overrides the gateway endpoints. Empty fields keep the
// built-in defaults; overriding is mainly useful for pointing the
// client at a test double.
type Gateway struct {
	API       string `yaml:"api"`
	Login     string `yaml:"login"`
	Push      string `yaml:"push"`
	File      string `yaml:"file"`
	UserAgent string `yaml:"user_agent"`
}

// Log configures logging.
type Log struct {
	// Level is one of debug, info, warn, error. Default info.
	Level string `yaml:"level"`
}

// SlogLevel converts the configured level name to a slog level.
func (l Log) SlogLevel() (slog.Level, error) {
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}

// Load reads the configuration from path. An empty path falls back to
// the WEBWX_CONFIG environment variable; if that is also empty, or the
// file does not exist, the zero Config (all defaults) is returned.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Config{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return loaded, nil
}
