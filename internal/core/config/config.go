package config

import (
	"fmt"
	"time"

	redisclient "github.com/vietddude/grader/internal/infra/redis"
	"github.com/vietddude/grader/internal/infra/storage/postgres"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "5s" or "500ms".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std converts to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server        ServerConfig       `yaml:"server"`
	Queue         QueueConfig        `yaml:"queue"`
	Retry         RetryConfig        `yaml:"retry"`
	Breaker       BreakerConfig      `yaml:"breaker"`
	Fallback      FallbackConfig     `yaml:"fallback"`
	Scoring       ServiceConfig      `yaml:"scoring"`
	Transcription ServiceConfig      `yaml:"transcription"`
	Redis         redisclient.Config `yaml:"redis"`
	Database      postgres.Config    `yaml:"database"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	AuthToken   string   `yaml:"auth_token"`   // empty = auth disabled
	SyncTimeout Duration `yaml:"sync_timeout"` // hybrid wait budget
}

// QueueConfig holds job queue settings.
type QueueConfig struct {
	MaxAttempts       int      `yaml:"max_attempts"`
	BaseDelay         Duration `yaml:"base_delay"`
	WorkerConcurrency int      `yaml:"worker_concurrency"`
}

// RetryConfig holds retry executor settings for downstream calls.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
	Jitter      *bool    `yaml:"jitter"` // nil = unset, defaults to on
}

// BreakerConfig holds circuit breaker settings for the scoring call site.
type BreakerConfig struct {
	Threshold int      `yaml:"threshold"` // consecutive failures to trip
	Timeout   Duration `yaml:"timeout"`   // open-state cooldown
}

// FallbackConfig holds degraded-result settings.
type FallbackConfig struct {
	Enabled         bool    `yaml:"enabled"`
	DefaultScore    float64 `yaml:"default_score"`
	DefaultFeedback string  `yaml:"default_feedback"`
}

// ServiceConfig holds connection settings for an external model service.
type ServiceConfig struct {
	URL     string   `yaml:"url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
