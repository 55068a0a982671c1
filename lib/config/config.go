// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for stripefs components.
//
// Configuration is loaded from a single YAML file specified by:
//   - STRIPEFS_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures deterministic,
// auditable configuration with no hidden overrides. The only expansion
// performed is ${HOME} and similar path variables for portability.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for stripefs.
type Config struct {
	// Backends lists the chunk server addresses in role order:
	// index 0 through N-2 hold data, index N-1 holds parity.
	Backends []string `yaml:"backends"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Stripe configures the striping layout.
	Stripe StripeConfig `yaml:"stripe"`

	// Heartbeat configures backend liveness probing.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Log configures logging output.
	Log LogConfig `yaml:"log"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Mount is the directory the filesystem is mounted on.
	Mount string `yaml:"mount"`

	// Metadata is where the client keeps its metadata mirror
	// (per-file size and content hash records).
	Metadata string `yaml:"metadata"`

	// Storage is the chunk server's slice directory. Only used by
	// the serve command.
	Storage string `yaml:"storage"`
}

// StripeConfig configures the striping layout.
type StripeConfig struct {
	// ChunkSize is the interleaving unit in bytes.
	// Default: 1048576 (1 MiB).
	ChunkSize int64 `yaml:"chunk_size"`
}

// HeartbeatConfig configures backend liveness probing.
type HeartbeatConfig struct {
	// Interval is how often idle connections are probed, as a
	// duration string. Default: 10s.
	Interval string `yaml:"interval"`

	// Timeout is how long a probe waits for its echo before the
	// backend is declared dead. Default: 5s.
	Timeout string `yaml:"timeout"`

	// DialTimeout bounds the initial connection attempt per backend.
	// Default: 10s.
	DialTimeout string `yaml:"dial_timeout"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// File is where structured logs are written. Empty means stderr.
	File string `yaml:"file"`

	// Level is the minimum level: debug, info, warn, error.
	// Default: info.
	Level string `yaml:"level"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file. They exist primarily to
// ensure all fields have sensible zero-values, not as a fallback.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "stripefs")

	return &Config{
		Paths: PathsConfig{
			Mount:    filepath.Join(defaultRoot, "mnt"),
			Metadata: filepath.Join(defaultRoot, "meta"),
			Storage:  filepath.Join(defaultRoot, "slices"),
		},
		Stripe: StripeConfig{
			ChunkSize: 1 << 20,
		},
		Heartbeat: HeartbeatConfig{
			Interval:    "10s",
			Timeout:     "5s",
			DialTimeout: "10s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the STRIPEFS_CONFIG environment
// variable. There are no fallbacks: if STRIPEFS_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("STRIPEFS_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("STRIPEFS_CONFIG environment variable not set; " +
			"set it to the path of your stripefs.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values; the only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.Mount = expandVars(c.Paths.Mount, vars)
	c.Paths.Metadata = expandVars(c.Paths.Metadata, vars)
	c.Paths.Storage = expandVars(c.Paths.Storage, vars)
	c.Log.File = expandVars(c.Log.File, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Backends) == 0 {
		errs = append(errs, fmt.Errorf("backends is required"))
	}
	seen := map[string]bool{}
	for i, address := range c.Backends {
		if address == "" {
			errs = append(errs, fmt.Errorf("backends[%d] is empty", i))
			continue
		}
		if seen[address] {
			errs = append(errs, fmt.Errorf("backends[%d] duplicates %s", i, address))
		}
		seen[address] = true
	}

	if c.Paths.Mount == "" {
		errs = append(errs, fmt.Errorf("paths.mount is required"))
	}
	if c.Paths.Metadata == "" {
		errs = append(errs, fmt.Errorf("paths.metadata is required"))
	}

	if c.Stripe.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("stripe.chunk_size must be positive, got %d", c.Stripe.ChunkSize))
	}

	for _, field := range []struct{ name, value string }{
		{"heartbeat.interval", c.Heartbeat.Interval},
		{"heartbeat.timeout", c.Heartbeat.Timeout},
		{"heartbeat.dial_timeout", c.Heartbeat.DialTimeout},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field.name, err))
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HeartbeatInterval returns heartbeat.interval parsed as a duration.
// Call Validate first; invalid values parse as zero here.
func (c *Config) HeartbeatInterval() time.Duration {
	d, _ := time.ParseDuration(c.Heartbeat.Interval)
	return d
}

// HeartbeatTimeout returns heartbeat.timeout parsed as a duration.
func (c *Config) HeartbeatTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Heartbeat.Timeout)
	return d
}

// DialTimeout returns heartbeat.dial_timeout parsed as a duration.
func (c *Config) DialTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Heartbeat.DialTimeout)
	return d
}

// EnsurePaths creates the mount and metadata directories if they
// don't exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Mount, c.Paths.Metadata} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
