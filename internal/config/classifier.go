package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/wardlight/wardlight/internal/classifier"
)

const (
	EnvClassifierAPIKey    = "WARDLIGHT_CLASSIFIER_API_KEY"
	EnvClassifierBaseURL   = "WARDLIGHT_CLASSIFIER_BASE_URL"
	EnvClassifierModel     = "WARDLIGHT_CLASSIFIER_MODEL"
	EnvClassifierMaxTokens = "WARDLIGHT_CLASSIFIER_MAX_TOKENS"
	EnvClassifierRPM       = "WARDLIGHT_CLASSIFIER_REQUESTS_PER_MINUTE"
)

// ClassifierConfig holds AI vision provider parameters.
type ClassifierConfig struct {
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	Model             string  `toml:"model"`
	MaxTokens         int     `toml:"max_tokens"`
	RequestsPerMinute float64 `toml:"requests_per_minute"`
}

// Provider converts the config into provider construction parameters.
func (c *ClassifierConfig) Provider() classifier.OpenAIConfig {
	return classifier.OpenAIConfig{
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Model:             c.Model,
		MaxTokens:         c.MaxTokens,
		RequestsPerMinute: c.RequestsPerMinute,
	}
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ClassifierConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ClassifierConfig) Merge(overlay *ClassifierConfig) {
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if overlay.MaxTokens != 0 {
		c.MaxTokens = overlay.MaxTokens
	}
	if overlay.RequestsPerMinute != 0 {
		c.RequestsPerMinute = overlay.RequestsPerMinute
	}
}

func (c *ClassifierConfig) loadDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
}

func (c *ClassifierConfig) loadEnv() {
	if v := os.Getenv(EnvClassifierAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvClassifierBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvClassifierModel); v != "" {
		c.Model = v
	}
	if v := os.Getenv(EnvClassifierMaxTokens); v != "" {
		if tokens, err := strconv.Atoi(v); err == nil {
			c.MaxTokens = tokens
		}
	}
	if v := os.Getenv(EnvClassifierRPM); v != "" {
		if rpm, err := strconv.ParseFloat(v, 64); err == nil {
			c.RequestsPerMinute = rpm
		}
	}
}

func (c *ClassifierConfig) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key required")
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("invalid requests_per_minute: %f", c.RequestsPerMinute)
	}
	return nil
}
