package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scenegen/internal/assembler"
	"scenegen/internal/config"
	"scenegen/internal/daemon"
	"scenegen/internal/ipc"
	"scenegen/internal/logging"
	"scenegen/internal/orchestrator"
	"scenegen/internal/shotgen"
	"scenegen/internal/store"
	"scenegen/internal/testsupport"
)

// passingGenerator accepts every shot on the first attempt.
type passingGenerator struct{}

func (passingGenerator) Generate(ctx context.Context, shot shotgen.ShotInput, _ string, policy shotgen.Policy, obs shotgen.Observer) (shotgen.Result, error) {
	attempt := shotgen.AttemptResult{
		Number:        1,
		Seed:          int64(40 + shot.ShotNumber),
		Steps:         policy[0].Steps,
		JobID:         fmt.Sprintf("cli-job-%d", shot.ShotNumber),
		Score:         0.8,
		Threshold:     policy[0].Threshold,
		Passed:        true,
		VideoPath:     filepath.Join(shot.WorkDir, fmt.Sprintf("shot%d.mp4", shot.ShotNumber)),
		LastFramePath: filepath.Join(shot.WorkDir, fmt.Sprintf("shot%d_last.png", shot.ShotNumber)),
	}
	obs.JobSubmitted(ctx, shot, 1, attempt.JobID)
	obs.AttemptFinished(ctx, shot, attempt)
	return shotgen.Result{
		VideoPath:     attempt.VideoPath,
		LastFramePath: attempt.LastFramePath,
		Score:         attempt.Score,
		AttemptUsed:   1,
		Seed:          attempt.Seed,
		Steps:         attempt.Steps,
		Passed:        true,
		Attempts:      []shotgen.AttemptResult{attempt},
	}, nil
}

type placeholderAssembler struct{}

func (placeholderAssembler) Assemble(_ context.Context, in assembler.Input, onState func(assembler.State)) (assembler.Result, error) {
	onState(assembler.StateConcatenating)
	if err := os.MkdirAll(filepath.Dir(in.OutputPath), 0o755); err != nil {
		return assembler.Result{}, err
	}
	if err := os.WriteFile(in.OutputPath, []byte("video"), 0o644); err != nil {
		return assembler.Result{}, err
	}
	total := 0.0
	for _, shot := range in.Shots {
		total += shot.Duration
	}
	return assembler.Result{VideoPath: in.OutputPath, Duration: total, State: assembler.StateCompleted}, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	manager    *orchestrator.Manager
	daemon     *daemon.Daemon
	socketPath string
	configPath string
	logPath    string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "scenegen.log")
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatalf("create log file: %v", err)
	}

	configPath := filepath.Join(homeDir, ".config", "scenegen", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := orchestrator.New(st, passingGenerator{}, placeholderAssembler{}, orchestrator.SettingsFromConfig(cfg),
		orchestrator.WithLogger(logger))
	d, err := daemon.New(cfg, st, logger, mgr, daemon.WithLogPath(logPath))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	socketPath := filepath.Join(cfg.Paths.StateDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		d.Stop()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      st,
		manager:    mgr,
		daemon:     d,
		socketPath: socketPath,
		configPath: configPath,
		logPath:    logPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstate_dir = %q\nwork_dir = %q\noutput_dir = %q\nlog_dir = %q\n\n[storage]\nbackend = \"local\"\nlocal_dir = %q\n\n[api]\nbind = %q\n",
		cfg.Paths.StateDir,
		cfg.Paths.WorkDir,
		cfg.Paths.OutputDir,
		cfg.Paths.LogDir,
		cfg.Storage.LocalDir,
		cfg.API.Bind,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func writeManifest(t *testing.T, dir string) string {
	t.Helper()
	testsupport.WritePNG(t, filepath.Join(dir, "first.png"))
	path := filepath.Join(dir, "scene.yaml")
	manifest := "name: Orchard\nmood: calm\nshots:\n  - prompt: wind moves through apple trees\n    duration: 4\n    source_image: first.png\n  - prompt: a ladder leans on a trunk\n    duration: 3\n"
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n%s", needle, haystack)
	}
}
