package daemon_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"scenegen/internal/assembler"
	"scenegen/internal/config"
	"scenegen/internal/daemon"
	"scenegen/internal/metrics"
	"scenegen/internal/orchestrator"
	"scenegen/internal/shotgen"
	"scenegen/internal/store"
	"scenegen/internal/testsupport"
	"scenegen/internal/workdir"
)

type idleGenerator struct{}

func (idleGenerator) Generate(context.Context, shotgen.ShotInput, string, shotgen.Policy, shotgen.Observer) (shotgen.Result, error) {
	return shotgen.Result{}, errors.New("not expected in daemon tests")
}

type idleAssembler struct{}

func (idleAssembler) Assemble(context.Context, assembler.Input, func(assembler.State)) (assembler.Result, error) {
	return assembler.Result{}, errors.New("not expected in daemon tests")
}

func newDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *store.Store) {
	t.Helper()
	st := testsupport.MustOpenStore(t, cfg)
	mgr := orchestrator.New(st, idleGenerator{}, idleAssembler{}, orchestrator.SettingsFromConfig(cfg))
	d, err := daemon.New(cfg, st, nil, mgr, daemon.WithMetrics(metrics.New()))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, st
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("expected lock path %q, got %q", cfg.LockPath(), status.LockFilePath)
	}
	if status.SceneStats["pending"] != 0 || len(status.SceneStats) == 0 {
		t.Fatalf("expected zero-filled scene stats, got %v", status.SceneStats)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if d.APIAddress() != "" {
		t.Fatalf("expected API listener closed, got %q", d.APIAddress())
	}
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newDaemon(t, cfg)
	second, _ := newDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second instance to fail while the lock is held")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("expected second instance to start after lock release: %v", err)
	}
}

func TestDaemonServesHealthOverHTTP(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Token = "token"
	d, st := newDaemon(t, cfg)
	testsupport.NewScene(t, st, "Pier", "", 3)

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	addr := d.APIAddress()
	if addr == "" {
		t.Fatal("expected API address after start")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, "http://"+addr+"/api/scenes", nil)
	req.Header.Set("Authorization", "Bearer token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list scenes: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /api/scenes, got %d: %s", resp.StatusCode, body)
	}

	listed, err := d.Service().ListScenes(ctx)
	if err != nil {
		t.Fatalf("ListScenes: %v", err)
	}
	if len(listed.Scenes) != 1 || listed.Scenes[0].Name != "Pier" {
		t.Fatalf("unexpected scenes: %+v", listed.Scenes)
	}
}

func TestDaemonStartRemovesOrphanedWorkDirs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, st := newDaemon(t, cfg)
	scene := testsupport.NewScene(t, st, "Quay", "", 2)

	kept := workdir.SceneDir(cfg.Paths.WorkDir, scene.ID)
	orphan := workdir.SceneDir(cfg.Paths.WorkDir, scene.ID+100)
	for _, dir := range []string{kept, orphan} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(kept, "clip.mp4"), make([]byte, 64), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatalf("expected orphaned work dir removed, stat err=%v", err)
	}
	if _, err := os.Stat(kept); err != nil {
		t.Fatalf("expected scene work dir kept: %v", err)
	}
	if got := d.Status(ctx).WorkDirBytes; got != 64 {
		t.Fatalf("expected 64 work dir bytes, got %d", got)
	}
}
