package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"scenegen/internal/config"
)

// ConfigOption adjusts the config built by NewConfig.
type ConfigOption func(t testing.TB, cfg *config.Config)

// NewConfig returns the default config rooted in a fresh temp directory,
// with the API on an ephemeral port and scorer rate limiting disabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(root, "state")
	cfg.Paths.WorkDir = filepath.Join(root, "work")
	cfg.Paths.OutputDir = filepath.Join(root, "output")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Storage.LocalDir = filepath.Join(root, "archive")
	cfg.API.Bind = "127.0.0.1:0"
	cfg.Backend.PollIntervalSeconds = 1
	cfg.Scorer.RatePerSecond = 0

	for _, opt := range opts {
		opt(t, &cfg)
	}
	return &cfg
}

// BaseDir is the temp directory NewConfig rooted cfg in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// WithBackendURL points the generation backend at url.
func WithBackendURL(url string) ConfigOption {
	return func(_ testing.TB, cfg *config.Config) {
		cfg.Backend.URL = url
	}
}

// WithStubbedBinaries puts no-op executables named names (ffmpeg and
// ffprobe by default) first on PATH for the rest of the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(t testing.TB, cfg *config.Config) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		bin := filepath.Join(BaseDir(cfg), "bin")
		for _, name := range names {
			writeExecutable(t, filepath.Join(bin, name), "#!/bin/sh\nexit 0\n")
		}
		t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}
