// Package config loads and validates run configuration.
//
// Raw values come from YAML or JSON files (plus environment bootstrap in
// the binary); Settings materializes and validates them. Invalid settings
// are configuration errors: the orchestrator escalates them immediately and
// never retries.
package config

import (
	"fmt"
	"time"

	pperrors "github.com/pagepulse/pagepulse/pkg/pagepulse/errors"
)

// Config wraps a map[string]any for type-safe value extraction.
// Accessor methods return default values if the key is missing or the value
// cannot be converted to the requested type.
type Config struct {
	data map[string]any
}

// New creates a Config from the given map. A nil map yields an empty Config.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// String returns the string value for key, or defaultVal if missing or not a string.
func (c Config) String(key, defaultVal string) string {
	if s, ok := c.data[key].(string); ok {
		return s
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal if missing or not convertible.
func (c Config) Int(key string, defaultVal int) int {
	switch val := c.data[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	}
	return defaultVal
}

// Float returns the float64 value for key, or defaultVal if missing or not convertible.
func (c Config) Float(key string, defaultVal float64) float64 {
	switch val := c.data[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal if missing or not a bool.
func (c Config) Bool(key string, defaultVal bool) bool {
	if b, ok := c.data[key].(bool); ok {
		return b
	}
	return defaultVal
}

// Duration returns the duration value for key, or defaultVal if missing or invalid.
//
// Accepts:
//   - string: parsed with time.ParseDuration
//   - int, int64, float64: interpreted as seconds
//   - time.Duration: used directly
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	switch val := c.data[key].(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case float64:
		return time.Duration(val * float64(time.Second))
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case time.Duration:
		return val
	}
	return defaultVal
}

// StringSlice returns the string slice for key, or defaultVal if missing or
// not convertible.
func (c Config) StringSlice(key string, defaultVal []string) []string {
	switch val := c.data[key].(type) {
	case []string:
		return val
	case []any:
		result := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			result = append(result, s)
		}
		return result
	}
	return defaultVal
}

// Has returns true if the key exists in the config.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Settings is the validated pipeline configuration.
type Settings struct {
	// MaxAttempts bounds attempts per run, including the first.
	MaxAttempts int

	// BaseDelay is the backoff before attempt 2; it doubles per attempt.
	BaseDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// AnalyticsPath is the SQLite file backing the analytics sink.
	AnalyticsPath string

	// Shards is the aggregator shard count.
	Shards int

	// SLAThreshold flags runs whose total duration exceeds it. Breaches
	// are a monitoring signal, never a run failure.
	SLAThreshold time.Duration

	// ApprovalPollInterval is how often the orchestrator polls for an
	// approval decision while escalated.
	ApprovalPollInterval time.Duration
}

// Defaults returns the default settings: three attempts backing off
// 1s, 2s, 4s.
func Defaults() Settings {
	return Settings{
		MaxAttempts:          3,
		BaseDelay:            1 * time.Second,
		MaxDelay:             30 * time.Second,
		AnalyticsPath:        "pagepulse.db",
		Shards:               16,
		SLAThreshold:         5 * time.Minute,
		ApprovalPollInterval: 2 * time.Second,
	}
}

// Settings materializes validated settings from the raw config, layered
// over Defaults. Invalid values yield a configuration error.
func (c Config) Settings() (Settings, error) {
	s := Defaults()
	s.MaxAttempts = c.Int("max_attempts", s.MaxAttempts)
	s.BaseDelay = c.Duration("base_delay", s.BaseDelay)
	s.MaxDelay = c.Duration("max_delay", s.MaxDelay)
	s.AnalyticsPath = c.String("analytics_path", s.AnalyticsPath)
	s.Shards = c.Int("shards", s.Shards)
	s.SLAThreshold = c.Duration("sla_threshold", s.SLAThreshold)
	s.ApprovalPollInterval = c.Duration("approval_poll_interval", s.ApprovalPollInterval)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the settings. Errors are CategoryConfig: fatal, never
// retried.
func (s Settings) Validate() error {
	if s.MaxAttempts < 1 {
		return pperrors.Config(fmt.Errorf("max_attempts must be >= 1, got %d", s.MaxAttempts), "settings")
	}
	if s.BaseDelay < 0 {
		return pperrors.Config(fmt.Errorf("base_delay must be >= 0, got %v", s.BaseDelay), "settings")
	}
	if s.MaxDelay > 0 && s.MaxDelay < s.BaseDelay {
		return pperrors.Config(fmt.Errorf("max_delay %v is below base_delay %v", s.MaxDelay, s.BaseDelay), "settings")
	}
	if s.AnalyticsPath == "" {
		return pperrors.Config(fmt.Errorf("analytics_path must not be empty"), "settings")
	}
	if s.Shards < 1 {
		return pperrors.Config(fmt.Errorf("shards must be >= 1, got %d", s.Shards), "settings")
	}
	if s.ApprovalPollInterval <= 0 {
		return pperrors.Config(fmt.Errorf("approval_poll_interval must be > 0, got %v", s.ApprovalPollInterval), "settings")
	}
	return nil
}

// RetryConfig expresses the settings as the retry package's configuration.
func (s Settings) RetryConfig() pperrors.RetryConfig {
	return pperrors.RetryConfig{
		MaxAttempts:    s.MaxAttempts,
		InitialBackoff: s.BaseDelay,
		MaxBackoff:     s.MaxDelay,
		BackoffFactor:  2.0,
	}
}
