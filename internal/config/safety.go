package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/wardlight/wardlight/internal/flags"
	"github.com/wardlight/wardlight/internal/pipeline"
	"github.com/wardlight/wardlight/internal/suppression"
)

const (
	EnvSafetySuppressionCooldown = "WARDLIGHT_SAFETY_SUPPRESSION_COOLDOWN"
	EnvSafetyConcurrency         = "WARDLIGHT_SAFETY_CONCURRENCY"
	EnvSafetyEscalationInterval  = "WARDLIGHT_SAFETY_ESCALATION_INTERVAL"
	EnvSafetyReleaseInterval     = "WARDLIGHT_SAFETY_RELEASE_INTERVAL"
)

// SafetyConfig holds suppression cooldowns and pipeline sweep parameters.
type SafetyConfig struct {
	SuppressionCooldown string            `toml:"suppression_cooldown"`
	ReasonCooldowns     map[string]string `toml:"reason_cooldowns"`
	Concurrency         int               `toml:"concurrency"`
	EscalationInterval  string            `toml:"escalation_interval"`
	ReleaseInterval     string            `toml:"release_interval"`
}

// Suppression converts the config into suppression policy parameters.
func (c *SafetyConfig) Suppression() suppression.Config {
	def, _ := time.ParseDuration(c.SuppressionCooldown)

	cooldowns := make(map[flags.SuppressionReason]time.Duration, len(c.ReasonCooldowns))
	for reason, raw := range c.ReasonCooldowns {
		if d, err := time.ParseDuration(raw); err == nil {
			cooldowns[flags.SuppressionReason(reason)] = d
		}
	}

	return suppression.Config{
		DefaultCooldown: def,
		Cooldowns:       cooldowns,
	}
}

// Pipeline converts the config into pipeline runtime parameters.
func (c *SafetyConfig) Pipeline() pipeline.Config {
	escalation, _ := time.ParseDuration(c.EscalationInterval)
	release, _ := time.ParseDuration(c.ReleaseInterval)

	return pipeline.Config{
		Concurrency:        c.Concurrency,
		EscalationInterval: escalation,
		ReleaseInterval:    release,
	}
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *SafetyConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *SafetyConfig) Merge(overlay *SafetyConfig) {
	if overlay.SuppressionCooldown != "" {
		c.SuppressionCooldown = overlay.SuppressionCooldown
	}
	if len(overlay.ReasonCooldowns) > 0 {
		c.ReasonCooldowns = overlay.ReasonCooldowns
	}
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.EscalationInterval != "" {
		c.EscalationInterval = overlay.EscalationInterval
	}
	if overlay.ReleaseInterval != "" {
		c.ReleaseInterval = overlay.ReleaseInterval
	}
}

func (c *SafetyConfig) loadDefaults() {
	if c.SuppressionCooldown == "" {
		c.SuppressionCooldown = "72h"
	}
	if c.Concurrency == 0 {
		c.Concurrency = pipeline.DefaultConcurrency
	}
	if c.EscalationInterval == "" {
		c.EscalationInterval = "1m"
	}
	if c.ReleaseInterval == "" {
		c.ReleaseInterval = "5m"
	}
}

func (c *SafetyConfig) loadEnv() {
	if v := os.Getenv(EnvSafetySuppressionCooldown); v != "" {
		c.SuppressionCooldown = v
	}
	if v := os.Getenv(EnvSafetyConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv(EnvSafetyEscalationInterval); v != "" {
		c.EscalationInterval = v
	}
	if v := os.Getenv(EnvSafetyReleaseInterval); v != "" {
		c.ReleaseInterval = v
	}
}

func (c *SafetyConfig) validate() error {
	if _, err := time.ParseDuration(c.SuppressionCooldown); err != nil {
		return fmt.Errorf("invalid suppression_cooldown: %w", err)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("invalid concurrency: %d", c.Concurrency)
	}
	if _, err := time.ParseDuration(c.EscalationInterval); err != nil {
		return fmt.Errorf("invalid escalation_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.ReleaseInterval); err != nil {
		return fmt.Errorf("invalid release_interval: %w", err)
	}
	return nil
}
