// Package config loads tool configuration from a JSON file. Fields are
// pointers so a partial config file only overrides what it names; the Get*
// accessors supply defaults for everything else. Flags layered on top by
// the CLI take precedence over both.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/arcus-data/radarvol/internal/fsutil"
)

// Config is the root configuration for the radar volume tool.
type Config struct {
	// Archive endpoint
	BaseURL *string `json:"base_url,omitempty"` // sweep archive root, must end in /
	Site    *string `json:"site,omitempty"`     // three-letter site identifier, e.g. "ess"
	Workers *int    `json:"workers,omitempty"`  // concurrent downloads

	// Moments to fetch when none are named on the command line.
	Moments []string `json:"moments,omitempty"`

	// Local cache
	CachePath      *string `json:"cache_path,omitempty"`
	CacheRetention *string `json:"cache_retention,omitempty"` // duration string like "24h"

	// Artifact output
	OutputDir *string `json:"output_dir,omitempty"`
}

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file on the given filesystem. A missing
// file is not an error here; callers decide whether the config is required.
func Load(fs fsutil.FileSystem, path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := fs.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that any set fields carry usable values.
func (c *Config) Validate() error {
	if c.BaseURL != nil && !strings.HasSuffix(*c.BaseURL, "/") {
		return fmt.Errorf("base_url must end in /, got %q", *c.BaseURL)
	}

	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}

	if c.CacheRetention != nil && *c.CacheRetention != "" {
		if _, err := time.ParseDuration(*c.CacheRetention); err != nil {
			return fmt.Errorf("invalid cache_retention '%s': %w", *c.CacheRetention, err)
		}
	}

	return nil
}

// GetBaseURL returns the archive root or the default public endpoint.
func (c *Config) GetBaseURL() string {
	if c.BaseURL == nil || *c.BaseURL == "" {
		return "https://opendata.dwd.de/weather/radar/sites/sweep_vol_z/"
	}
	return *c.BaseURL
}

// GetSite returns the site identifier or the default.
func (c *Config) GetSite() string {
	if c.Site == nil || *c.Site == "" {
		return "ess"
	}
	return *c.Site
}

// GetWorkers returns the download concurrency or the default.
func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetMoments returns the configured moment list or the default.
func (c *Config) GetMoments() []string {
	if len(c.Moments) == 0 {
		return []string{"dbzh"}
	}
	return c.Moments
}

// GetCachePath returns the sweep cache location or the default.
func (c *Config) GetCachePath() string {
	if c.CachePath == nil || *c.CachePath == "" {
		return "radarvol-cache.db"
	}
	return *c.CachePath
}

// GetCacheRetention parses and returns the cache retention as a duration.
func (c *Config) GetCacheRetention() time.Duration {
	if c.CacheRetention == nil || *c.CacheRetention == "" {
		return 24 * time.Hour // default
	}
	d, err := time.ParseDuration(*c.CacheRetention)
	if err != nil {
		return 24 * time.Hour // default on parse error
	}
	return d
}

// GetOutputDir returns the artifact output directory or the default.
func (c *Config) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "."
	}
	return *c.OutputDir
}
