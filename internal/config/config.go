// Package config loads repoatlas configuration from file, environment,
// and flags via viper. The core pipeline treats configuration as
// already-validated input: search roots are canonicalized here and an
// unresolvable root is a fatal startup error.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Scan  ScanConfig  `mapstructure:"scan" yaml:"scan"`
	DB    DBConfig    `mapstructure:"db" yaml:"db"`
	Log   LogConfig   `mapstructure:"log" yaml:"log"`
	Watch WatchConfig `mapstructure:"watch" yaml:"watch"`
}

// ScanConfig controls discovery.
type ScanConfig struct {
	// Paths are the search roots. Canonicalized by Load.
	Paths []string `mapstructure:"paths" yaml:"paths"`

	// Marker is the directory base name identifying a repository.
	Marker string `mapstructure:"marker" yaml:"marker"`

	// FollowSymlinks enables symlink traversal during the walk.
	FollowSymlinks bool `mapstructure:"follow_symlinks" yaml:"follow_symlinks"`

	// IgnorePaths are excluded from the walk, exact match only.
	IgnorePaths []string `mapstructure:"ignore_paths" yaml:"ignore_paths"`

	// LocalWorkers caps concurrent local inspections (0 = unbounded).
	LocalWorkers int `mapstructure:"local_workers" yaml:"local_workers"`

	// RemoteWorkers caps concurrent remote inspections (0 = unbounded).
	RemoteWorkers int `mapstructure:"remote_workers" yaml:"remote_workers"`
}

// DBConfig controls persistence.
type DBConfig struct {
	// Path is the SQLite database file.
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls the optional rotating log file. Logs always go
// to stderr; a non-empty File adds a rotating file sink.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	// DebounceMS is the quiet period after a filesystem event before
	// a re-scan is triggered, in milliseconds.
	DebounceMS int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// SetDefaults registers every default on the given viper instance.
func SetDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("scan.marker", ".git")
	v.SetDefault("scan.follow_symlinks", false)
	v.SetDefault("scan.ignore_paths", []string{})
	v.SetDefault("scan.local_workers", 0)
	v.SetDefault("scan.remote_workers", 0)
	v.SetDefault("db.path", filepath.Join(home, ".local", "share", "repoatlas", "atlas.db"))
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("watch.debounce_ms", 500)
}

// Load unmarshals and validates the configuration held by v. Search
// roots and ignore paths are canonicalized; a root that cannot be
// resolved is an error.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.canonicalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// canonicalize resolves search roots to absolute, symlink-free paths.
// Ignore paths are made absolute but a missing ignore path is not an
// error: ignoring something that does not exist is a no-op.
func (c *Config) canonicalize() error {
	for i, p := range c.Scan.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("invalid search path %q: %w", p, err)
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return fmt.Errorf("invalid search path %q: %w", p, err)
		}
		c.Scan.Paths[i] = resolved
	}

	for i, p := range c.Scan.IgnorePaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("invalid ignore path %q: %w", p, err)
		}
		c.Scan.IgnorePaths[i] = abs
	}

	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if c.Scan.Marker == "" {
		return fmt.Errorf("scan.marker must not be empty")
	}
	if c.Scan.LocalWorkers < 0 {
		return fmt.Errorf("scan.local_workers must not be negative")
	}
	if c.Scan.RemoteWorkers < 0 {
		return fmt.Errorf("scan.remote_workers must not be negative")
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	if c.Watch.DebounceMS <= 0 {
		return fmt.Errorf("watch.debounce_ms must be positive")
	}
	return nil
}

// Dump renders the effective configuration as YAML, for the config
// command.
func (c *Config) Dump() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return string(data), nil
}
