package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields with sensible defaults.
func (cfg *AppConfig) ApplyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.SyncTimeout == 0 {
		cfg.Server.SyncTimeout = Duration(5 * time.Second)
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.BaseDelay == 0 {
		cfg.Queue.BaseDelay = Duration(1 * time.Second)
	}
	if cfg.Queue.WorkerConcurrency == 0 {
		// Evaluation is model-call expensive: one in-flight job keeps cost
		// and ordering predictable. Raising this is a pure config change.
		cfg.Queue.WorkerConcurrency = 1
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = Duration(1 * time.Second)
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = Duration(10 * time.Second)
	}
	if cfg.Retry.Jitter == nil {
		jitter := true
		cfg.Retry.Jitter = &jitter
	}
	if cfg.Breaker.Threshold == 0 {
		cfg.Breaker.Threshold = 5
	}
	if cfg.Breaker.Timeout == 0 {
		cfg.Breaker.Timeout = Duration(30 * time.Second)
	}
	if cfg.Fallback.DefaultFeedback == "" {
		cfg.Fallback.DefaultFeedback = "We could not fully evaluate this response right now. Please try again later."
	}
	if cfg.Scoring.Timeout == 0 {
		cfg.Scoring.Timeout = Duration(30 * time.Second)
	}
	if cfg.Transcription.Timeout == 0 {
		cfg.Transcription.Timeout = Duration(60 * time.Second)
	}
}
