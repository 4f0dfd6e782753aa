package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains working directory configuration.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// Backend contains settings for the image-to-video generation backend.
type Backend struct {
	URL                   string `toml:"url"`
	Token                 string `toml:"token"`
	Concurrency           int    `toml:"concurrency"`
	PollIntervalSeconds   int    `toml:"poll_interval_seconds"`
	JobTimeoutSeconds     int    `toml:"job_timeout_seconds"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	CancelOnTimeout       bool   `toml:"cancel_on_timeout"`
	Width                 int    `toml:"width"`
	Height                int    `toml:"height"`
	FPS                   int    `toml:"fps"`
}

// Attempt is one row of the attempt-policy table.
type Attempt struct {
	Steps     int     `toml:"steps"`
	Threshold float64 `toml:"threshold"`
}

// Generation contains the progressive quality gate policy.
type Generation struct {
	Attempts []Attempt `toml:"attempts"`
	// EstimatedAttemptSeconds feeds the wall-clock estimate returned when a scene starts.
	EstimatedAttemptSeconds int `toml:"estimated_attempt_seconds"`
}

// Scorer contains settings for the external quality scorer.
type Scorer struct {
	Provider          string  `toml:"provider"`
	URL               string  `toml:"url"`
	APIKey            string  `toml:"api_key"`
	Model             string  `toml:"model"`
	FallbackScore     float64 `toml:"fallback_score"`
	RatePerSecond     float64 `toml:"rate_per_second"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	FrameMaxDimension int     `toml:"frame_max_dimension"`
}

// Assembly contains ffmpeg and audio mixing parameters.
type Assembly struct {
	FFmpegBinary          string            `toml:"ffmpeg_binary"`
	FFprobeBinary         string            `toml:"ffprobe_binary"`
	DefaultTransition     string            `toml:"default_transition"`
	DefaultOverlapSeconds float64           `toml:"default_overlap_seconds"`
	MusicVolume           float64           `toml:"music_volume"`
	DuckThreshold         float64           `toml:"duck_threshold"`
	DuckRatio             float64           `toml:"duck_ratio"`
	DuckAttackMillis      float64           `toml:"duck_attack_ms"`
	DuckReleaseMillis     float64           `toml:"duck_release_ms"`
	TTSCommand            []string          `toml:"tts_command"`
	MoodMusic             map[string]string `toml:"mood_music"`
}

// Storage selects where finished scene artifacts are persisted.
type Storage struct {
	Backend  string `toml:"backend"`
	LocalDir string `toml:"local_dir"`
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
	Region   string `toml:"region"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	SceneStart     bool   `toml:"scene_start"`
	SceneComplete  bool   `toml:"scene_complete"`
	LowQuality     bool   `toml:"low_quality"`
	Errors         bool   `toml:"errors"`
}

// API contains the HTTP API bind address and bearer token.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for scenegen.
//
// Configuration sections by subsystem:
//   - Paths: state, work, output, and log directories
//   - Backend: generation backend endpoint, polling, and timeouts
//   - Generation: attempt-policy table (steps and threshold per attempt)
//   - Scorer: quality scorer provider and fallback score
//   - Assembly: ffmpeg binaries, crossfade defaults, ducking, mood music
//   - Storage: asset store backend (local, s3, gcs)
//   - Notifications: ntfy push notification settings
//   - API: HTTP API bind address and token
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Backend       Backend       `toml:"backend"`
	Generation    Generation    `toml:"generation"`
	Scorer        Scorer        `toml:"scorer"`
	Assembly      Assembly      `toml:"assembly"`
	Storage       Storage       `toml:"storage"`
	Notifications Notifications `toml:"notifications"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	loadDotEnv(resolvedPath)

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads .env files next to the config file and in the working
// directory. Existing environment variables always win.
func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			_ = godotenv.Load(candidate)
		}
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scenegen.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Storage.LocalDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the sqlite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "scenegen.db")
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "scenegen.sock")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "scenegen.lock")
}

// PollInterval returns the backend polling cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Backend.PollIntervalSeconds) * time.Second
}

// JobTimeout returns the per-job wait budget.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Backend.JobTimeoutSeconds) * time.Second
}

// MusicForMood returns the configured track for a mood, if any.
func (c *Config) MusicForMood(mood string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(mood))
	if key == "" || len(c.Assembly.MoodMusic) == 0 {
		return "", false
	}
	path, ok := c.Assembly.MoodMusic[key]
	if !ok || strings.TrimSpace(path) == "" {
		return "", false
	}
	return path, true
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
