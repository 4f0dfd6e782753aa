package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBackend()
	c.normalizeGeneration()
	c.normalizeScorer()
	if err := c.normalizeAssembly(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeAPI()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBackend() {
	c.Backend.URL = strings.TrimRight(strings.TrimSpace(c.Backend.URL), "/")
	c.Backend.Token = strings.TrimSpace(c.Backend.Token)
	if c.Backend.Token == "" {
		c.Backend.Token = lookupEnv("SCENEGEN_BACKEND_TOKEN")
	}
	if c.Backend.RequestTimeoutSeconds <= 0 {
		c.Backend.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Backend.FPS <= 0 {
		c.Backend.FPS = defaultFPS
	}
}

func (c *Config) normalizeGeneration() {
	if len(c.Generation.Attempts) == 0 {
		c.Generation.Attempts = DefaultAttempts()
	}
	if c.Generation.EstimatedAttemptSeconds <= 0 {
		c.Generation.EstimatedAttemptSeconds = defaultEstimatedAttemptSeconds
	}
}

func (c *Config) normalizeScorer() {
	c.Scorer.Provider = strings.ToLower(strings.TrimSpace(c.Scorer.Provider))
	if c.Scorer.Provider == "" {
		c.Scorer.Provider = defaultScorerProvider
	}
	c.Scorer.URL = strings.TrimSpace(c.Scorer.URL)
	c.Scorer.Model = strings.TrimSpace(c.Scorer.Model)
	c.Scorer.APIKey = strings.TrimSpace(c.Scorer.APIKey)
	if c.Scorer.APIKey == "" {
		c.Scorer.APIKey = lookupEnv("SCENEGEN_SCORER_API_KEY")
	}
	if c.Scorer.APIKey == "" && c.Scorer.Provider == ScorerGemini {
		c.Scorer.APIKey = lookupEnv("GEMINI_API_KEY")
	}
	if c.Scorer.TimeoutSeconds <= 0 {
		c.Scorer.TimeoutSeconds = defaultScorerTimeoutSeconds
	}
	if c.Scorer.FrameMaxDimension <= 0 {
		c.Scorer.FrameMaxDimension = defaultFrameMaxDimension
	}
}

func (c *Config) normalizeAssembly() error {
	c.Assembly.FFmpegBinary = strings.TrimSpace(c.Assembly.FFmpegBinary)
	if c.Assembly.FFmpegBinary == "" {
		c.Assembly.FFmpegBinary = defaultFFmpegBinary
	}
	c.Assembly.FFprobeBinary = strings.TrimSpace(c.Assembly.FFprobeBinary)
	if c.Assembly.FFprobeBinary == "" {
		c.Assembly.FFprobeBinary = defaultFFprobeBinary
	}
	c.Assembly.DefaultTransition = strings.ToLower(strings.TrimSpace(c.Assembly.DefaultTransition))
	if c.Assembly.DefaultTransition == "" {
		c.Assembly.DefaultTransition = defaultTransition
	}
	if len(c.Assembly.MoodMusic) > 0 {
		normalized := make(map[string]string, len(c.Assembly.MoodMusic))
		for mood, path := range c.Assembly.MoodMusic {
			key := strings.ToLower(strings.TrimSpace(mood))
			if key == "" {
				continue
			}
			expanded, err := expandPath(strings.TrimSpace(path))
			if err != nil {
				return fmt.Errorf("assembly.mood_music.%s: %w", key, err)
			}
			normalized[key] = expanded
		}
		c.Assembly.MoodMusic = normalized
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	var err error
	if c.Storage.LocalDir, err = expandPath(c.Storage.LocalDir); err != nil {
		return fmt.Errorf("storage.local_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = lookupEnv("SCENEGEN_NTFY_TOPIC")
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		c.API.Token = lookupEnv("SCENEGEN_API_TOKEN")
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
