package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateScorer(); err != nil {
		return err
	}
	if err := c.validateAssembly(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBackend() error {
	if strings.TrimSpace(c.Backend.URL) == "" {
		return errors.New("backend.url must be set")
	}
	if _, err := url.ParseRequestURI(c.Backend.URL); err != nil {
		return fmt.Errorf("backend.url: %w", err)
	}
	if c.Backend.Concurrency < 1 {
		return errors.New("backend.concurrency must be at least 1")
	}
	if c.Backend.PollIntervalSeconds <= 0 {
		return errors.New("backend.poll_interval_seconds must be positive")
	}
	if c.Backend.JobTimeoutSeconds <= 0 {
		return errors.New("backend.job_timeout_seconds must be positive")
	}
	if c.Backend.Width < 0 || c.Backend.Height < 0 {
		return errors.New("backend.width and backend.height must not be negative")
	}
	return nil
}

func (c *Config) validateGeneration() error {
	return ValidateAttempts(c.Generation.Attempts)
}

// ValidateAttempts enforces the progressive gate contract: at least one
// attempt, positive step counts, and thresholds in [0,1] that strictly
// decrease from one attempt to the next.
func ValidateAttempts(attempts []Attempt) error {
	if len(attempts) == 0 {
		return errors.New("generation.attempts must contain at least one attempt")
	}
	for i, attempt := range attempts {
		if attempt.Steps <= 0 {
			return fmt.Errorf("generation.attempts[%d].steps must be positive", i)
		}
		if math.IsNaN(attempt.Threshold) || attempt.Threshold < 0 || attempt.Threshold > 1 {
			return fmt.Errorf("generation.attempts[%d].threshold must be between 0 and 1", i)
		}
		if i > 0 && attempt.Threshold >= attempts[i-1].Threshold {
			return fmt.Errorf("generation.attempts[%d].threshold %.3f must be lower than attempt %d threshold %.3f",
				i, attempt.Threshold, i-1, attempts[i-1].Threshold)
		}
	}
	return nil
}

func (c *Config) validateScorer() error {
	switch c.Scorer.Provider {
	case ScorerHTTP:
		if c.Scorer.URL == "" {
			return errors.New("scorer.url must be set when scorer.provider is http")
		}
	case ScorerGemini:
		if c.Scorer.Model == "" {
			return errors.New("scorer.model must be set when scorer.provider is gemini")
		}
	default:
		return fmt.Errorf("scorer.provider: unsupported value %q (expected http or gemini)", c.Scorer.Provider)
	}
	if c.Scorer.FallbackScore < 0 || c.Scorer.FallbackScore > 1 {
		return errors.New("scorer.fallback_score must be between 0 and 1")
	}
	if c.Scorer.RatePerSecond < 0 {
		return errors.New("scorer.rate_per_second must not be negative")
	}
	return nil
}

func (c *Config) validateAssembly() error {
	if c.Assembly.DefaultOverlapSeconds < 0 {
		return errors.New("assembly.default_overlap_seconds must not be negative")
	}
	if c.Assembly.MusicVolume < 0 || c.Assembly.MusicVolume > 1 {
		return errors.New("assembly.music_volume must be between 0 and 1")
	}
	if c.Assembly.DuckThreshold <= 0 || c.Assembly.DuckThreshold > 1 {
		return errors.New("assembly.duck_threshold must be in (0, 1]")
	}
	if c.Assembly.DuckRatio < 1 || c.Assembly.DuckRatio > 20 {
		return errors.New("assembly.duck_ratio must be between 1 and 20")
	}
	if c.Assembly.DuckAttackMillis <= 0 || c.Assembly.DuckReleaseMillis <= 0 {
		return errors.New("assembly.duck_attack_ms and assembly.duck_release_ms must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir must be set when storage.backend is local")
		}
	case StorageS3, StorageGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set when storage.backend is %s", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (expected local, s3, or gcs)", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
