// Package config defines process configuration and loading hooks.
//
// Conventions:
//   - New() returns a Config populated with defaults.
//   - Load(ctx) layers an optional YAML file and AURA_* environment variables on top.
//   - Errors returned from this package wrap ErrInvalidConfig, ErrLoadConfig or
//     ErrMissingCredential.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // the default zone must resolve on minimal images
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// StorePath is the roster document on disk.
	StorePath string `koanf:"store_path"`

	// Lock guards the store with an advisory lock file while a cycle runs.
	Lock bool `koanf:"lock"`

	// StaleLockMinutes lets a run break a lock file older than this, left by a
	// crashed run. Zero never breaks a lock.
	StaleLockMinutes int `koanf:"stale_lock_minutes"`

	// Model is the generative model identifier passed to the gateway.
	Model string `koanf:"model"`

	// APIKey authenticates against the model gateway.
	APIKey string `koanf:"api_key"`

	// BaseURL overrides the Gemini API endpoint. Empty uses the SDK default.
	BaseURL string `koanf:"base_url"`

	// RequestTimeoutMS bounds the single model call.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// RecencyWindowHours is the news window the model is asked to assess.
	RecencyWindowHours int `koanf:"recency_window_hours"`

	// Timezone and TimestampLayout render last_updated.
	Timezone        string `koanf:"timezone"`
	TimestampLayout string `koanf:"timestamp_layout"`

	// TrendLength caps the rolling score history per entity.
	TrendLength int `koanf:"trend_length"`

	// ScorePrecision is the number of decimals scores are rounded to.
	ScorePrecision int `koanf:"score_precision"`

	// MetricsTextfile, when set, receives a Prometheus text exposition after each cycle.
	MetricsTextfile string `koanf:"metrics_textfile"`

	// PushgatewayURL, when set, receives the cycle metrics via push.
	PushgatewayURL string `koanf:"pushgateway_url"`

	// MetricsJob is the Pushgateway job label.
	MetricsJob string `koanf:"metrics_job"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		StorePath:          "data.json",
		Lock:               true,
		StaleLockMinutes:   10,
		Model:              "gemini-2.5-flash-lite",
		RequestTimeoutMS:   60_000,
		RecencyWindowHours: 24,
		Timezone:           "Asia/Kolkata",
		TimestampLayout:    "02-01-2006 15:04:05 MST",
		TrendLength:        7,
		ScorePrecision:     2,
		MetricsJob:         "aura_refresh",
	}
}

// RequestTimeout returns RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// StaleLockAfter returns StaleLockMinutes as a duration.
func (c *Config) StaleLockAfter() time.Duration {
	return time.Duration(c.StaleLockMinutes) * time.Minute
}

// RecencyWindow returns RecencyWindowHours as a duration.
func (c *Config) RecencyWindow() time.Duration {
	return time.Duration(c.RecencyWindowHours) * time.Hour
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Validate checks structural constraints. It does not check the credential;
// see RequireCredential.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.StorePath) == "":
		return fmt.Errorf("%w: store_path must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.Model) == "":
		return fmt.Errorf("%w: model must not be empty", ErrInvalidConfig)
	case c.RequestTimeoutMS <= 0:
		return fmt.Errorf("%w: request_timeout_ms must be positive", ErrInvalidConfig)
	case c.RecencyWindowHours <= 0:
		return fmt.Errorf("%w: recency_window_hours must be positive", ErrInvalidConfig)
	case c.StaleLockMinutes < 0:
		return fmt.Errorf("%w: stale_lock_minutes must not be negative", ErrInvalidConfig)
	case c.TrendLength < 1:
		return fmt.Errorf("%w: trend_length must be at least 1", ErrInvalidConfig)
	case c.ScorePrecision < 0:
		return fmt.Errorf("%w: score_precision must not be negative", ErrInvalidConfig)
	case strings.TrimSpace(c.TimestampLayout) == "":
		return fmt.Errorf("%w: timestamp_layout must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// RequireCredential reports ErrMissingCredential when no API key is configured.
func (c *Config) RequireCredential() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: set AURA_API_KEY or GEMINI_API_KEY", ErrMissingCredential)
	}
	return nil
}
