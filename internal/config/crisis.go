package config

import (
	"fmt"
	"os"
	"time"

	"github.com/wardlight/wardlight/internal/crisis"
)

const (
	EnvCrisisSeedPath        = "WARDLIGHT_CRISIS_SEED_PATH"
	EnvCrisisURL             = "WARDLIGHT_CRISIS_URL"
	EnvCrisisRefreshInterval = "WARDLIGHT_CRISIS_REFRESH_INTERVAL"
	EnvCrisisFetchTimeout    = "WARDLIGHT_CRISIS_FETCH_TIMEOUT"
)

// CrisisConfig holds crisis allowlist source parameters.
type CrisisConfig struct {
	SeedPath        string `toml:"seed_path"`
	URL             string `toml:"url"`
	RefreshInterval string `toml:"refresh_interval"`
	FetchTimeout    string `toml:"fetch_timeout"`
}

// Source converts the config into allowlist source parameters.
func (c *CrisisConfig) Source() crisis.Config {
	refresh, _ := time.ParseDuration(c.RefreshInterval)
	fetch, _ := time.ParseDuration(c.FetchTimeout)

	return crisis.Config{
		SeedPath:        c.SeedPath,
		URL:             c.URL,
		RefreshInterval: refresh,
		FetchTimeout:    fetch,
	}
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *CrisisConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *CrisisConfig) Merge(overlay *CrisisConfig) {
	if overlay.SeedPath != "" {
		c.SeedPath = overlay.SeedPath
	}
	if overlay.URL != "" {
		c.URL = overlay.URL
	}
	if overlay.RefreshInterval != "" {
		c.RefreshInterval = overlay.RefreshInterval
	}
	if overlay.FetchTimeout != "" {
		c.FetchTimeout = overlay.FetchTimeout
	}
}

func (c *CrisisConfig) loadDefaults() {
	if c.SeedPath == "" {
		c.SeedPath = "allowlist.yaml"
	}
	if c.RefreshInterval == "" {
		c.RefreshInterval = "24h"
	}
	if c.FetchTimeout == "" {
		c.FetchTimeout = "30s"
	}
}

func (c *CrisisConfig) loadEnv() {
	if v := os.Getenv(EnvCrisisSeedPath); v != "" {
		c.SeedPath = v
	}
	if v := os.Getenv(EnvCrisisURL); v != "" {
		c.URL = v
	}
	if v := os.Getenv(EnvCrisisRefreshInterval); v != "" {
		c.RefreshInterval = v
	}
	if v := os.Getenv(EnvCrisisFetchTimeout); v != "" {
		c.FetchTimeout = v
	}
}

func (c *CrisisConfig) validate() error {
	if _, err := time.ParseDuration(c.RefreshInterval); err != nil {
		return fmt.Errorf("invalid refresh_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.FetchTimeout); err != nil {
		return fmt.Errorf("invalid fetch_timeout: %w", err)
	}
	return nil
}
