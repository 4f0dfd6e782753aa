package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"scenegen/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndUsesEnvTokens(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SCENEGEN_BACKEND_TOKEN", "backend-secret")
	t.Setenv("SCENEGEN_API_TOKEN", "api-secret")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "scenegen")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Backend.Token != "backend-secret" {
		t.Fatalf("expected backend token from env, got %q", cfg.Backend.Token)
	}
	if cfg.API.Token != "api-secret" {
		t.Fatalf("expected api token from env, got %q", cfg.API.Token)
	}
	if cfg.PollInterval().Seconds() != 5 {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval())
	}
	if got := len(cfg.Generation.Attempts); got != 3 {
		t.Fatalf("expected three default attempts, got %d", got)
	}
	if cfg.Scorer.FallbackScore != 0.5 {
		t.Fatalf("unexpected fallback score: %v", cfg.Scorer.FallbackScore)
	}
	if cfg.Assembly.DefaultOverlapSeconds != 0.3 || cfg.Assembly.DefaultTransition != "dissolve" {
		t.Fatalf("unexpected crossfade defaults: %+v", cfg.Assembly)
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "scenegen.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
}

func TestLoadCustomConfigParsesAttemptTable(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	content := `
[paths]
state_dir = "~/state"

[[generation.attempts]]
steps = 30
threshold = 0.7

[[generation.attempts]]
steps = 40
threshold = 0.5

[assembly.mood_music]
Calm = "~/music/calm.mp3"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %q, got %q exists=%v", configPath, resolved, exists)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if len(cfg.Generation.Attempts) != 2 || cfg.Generation.Attempts[1].Steps != 40 {
		t.Fatalf("unexpected attempts: %+v", cfg.Generation.Attempts)
	}
	track, ok := cfg.MusicForMood(" CALM ")
	if !ok || track != filepath.Join(tempHome, "music", "calm.mp3") {
		t.Fatalf("unexpected mood track: %q ok=%v", track, ok)
	}
	if _, ok := cfg.MusicForMood("tense"); ok {
		t.Fatal("expected no track for unmapped mood")
	}
}

func TestLoadReadsDotEnvNextToConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SCENEGEN_SCORER_API_KEY", "")
	os.Unsetenv("SCENEGEN_SCORER_API_KEY")

	configPath := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(configPath, []byte("[scorer]\nprovider = \"http\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tempHome, ".env"), []byte("SCENEGEN_SCORER_API_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("SCENEGEN_SCORER_API_KEY") })

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Scorer.APIKey != "from-dotenv" {
		t.Fatalf("expected scorer key from .env, got %q", cfg.Scorer.APIKey)
	}
}

func TestValidateAttemptsRequiresStrictlyDecreasingThresholds(t *testing.T) {
	cases := []struct {
		name     string
		attempts []config.Attempt
		wantErr  string
	}{
		{name: "empty", attempts: nil, wantErr: "at least one attempt"},
		{name: "equal", attempts: []config.Attempt{{Steps: 20, Threshold: 0.5}, {Steps: 25, Threshold: 0.5}}, wantErr: "must be lower"},
		{name: "increasing", attempts: []config.Attempt{{Steps: 20, Threshold: 0.3}, {Steps: 25, Threshold: 0.6}}, wantErr: "must be lower"},
		{name: "out of range", attempts: []config.Attempt{{Steps: 20, Threshold: 1.2}}, wantErr: "between 0 and 1"},
		{name: "zero steps", attempts: []config.Attempt{{Steps: 0, Threshold: 0.5}}, wantErr: "steps must be positive"},
		{name: "valid", attempts: config.DefaultAttempts()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := config.ValidateAttempts(tc.attempts)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDefaultAttemptsLoosenMonotonically(t *testing.T) {
	attempts := config.DefaultAttempts()
	for i := 1; i < len(attempts); i++ {
		if attempts[i].Threshold >= attempts[i-1].Threshold {
			t.Fatalf("threshold %d (%v) not below %d (%v)", i, attempts[i].Threshold, i-1, attempts[i-1].Threshold)
		}
		if attempts[i].Steps-attempts[i-1].Steps != 5 {
			t.Fatalf("expected +5 step increment, got %d -> %d", attempts[i-1].Steps, attempts[i].Steps)
		}
	}
}

func TestValidateRejectsUnknownStorageBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = "ftp"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "storage.backend") {
		t.Fatalf("expected storage backend error, got %v", err)
	}

	cfg = config.Default()
	cfg.Storage.Backend = config.StorageS3
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "storage.bucket") {
		t.Fatalf("expected bucket error, got %v", err)
	}
}

func TestValidateRejectsBadFallbackScore(t *testing.T) {
	cfg := config.Default()
	cfg.Scorer.FallbackScore = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected fallback score validation error")
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample config did not parse: %v", err)
	}
	if err := config.ValidateAttempts(cfg.Generation.Attempts); err != nil {
		t.Fatalf("sample attempts invalid: %v", err)
	}
}
