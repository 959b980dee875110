// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the runboard configuration.
type Config struct {
	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Observer configures the polling observer.
	Observer ObserverConfig `yaml:"observer"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the run tree the observer watches and the default base
	// directory for new runs.
	Root string `yaml:"root"`
}

// ObserverConfig configures the polling observer. Intervals are Go
// duration strings ("2s", "500ms").
type ObserverConfig struct {
	// PollInterval is how often each run's metrics log is re-read.
	PollInterval string `yaml:"poll_interval"`

	// CrawlInterval is how often the run tree is re-walked for new
	// runs.
	CrawlInterval string `yaml:"crawl_interval"`

	// VisualizationInterval is how often the selected run's
	// visualization index is checked.
	VisualizationInterval string `yaml:"visualization_interval"`

	// ForceReopen reopens the metrics log on every poll instead of
	// holding a handle. Needed on SSHFS and NFS mounts where a held
	// handle serves stale content.
	ForceReopen bool `yaml:"force_reopen"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// Default returns the default configuration: a run tree under the
// user's home directory, intervals tuned for an interactive observer
// over a possibly slow mount.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Paths: PathsConfig{
			Root: filepath.Join(homeDir, "runboard"),
		},
		Observer: ObserverConfig{
			PollInterval:          "2s",
			CrawlInterval:         "10s",
			VisualizationInterval: "2s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the file named by RUNBOARD_CONFIG,
// or returns the defaults when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv("RUNBOARD_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file, layered over the
// defaults. ${VAR} and ${VAR:-default} patterns in paths are expanded
// from the environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.Paths.Root = expandVars(cfg.Paths.Root)
	return cfg, nil
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration, reporting every problem rather
// than just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}

	for _, interval := range []struct {
		name, value string
	}{
		{"observer.poll_interval", c.Observer.PollInterval},
		{"observer.crawl_interval", c.Observer.CrawlInterval},
		{"observer.visualization_interval", c.Observer.VisualizationInterval},
	} {
		parsed, err := time.ParseDuration(interval.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", interval.name, err))
			continue
		}
		if parsed <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", interval.name, interval.value))
		}
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// PollInterval returns the parsed run poll interval. Call Validate
// first; an unparseable value falls back to the default.
func (c *Config) PollInterval() time.Duration {
	return duration(c.Observer.PollInterval, 2*time.Second)
}

// CrawlInterval returns the parsed crawl interval.
func (c *Config) CrawlInterval() time.Duration {
	return duration(c.Observer.CrawlInterval, 10*time.Second)
}

// VisualizationInterval returns the parsed visualization poll
// interval.
func (c *Config) VisualizationInterval() time.Duration {
	return duration(c.Observer.VisualizationInterval, 2*time.Second)
}

// LogLevel returns the parsed log level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func duration(value string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level must be debug, info, warn, or error, got %q", level)
}
