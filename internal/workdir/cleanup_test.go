package workdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scenegen/internal/logging"
)

func mkdir(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if age > 0 {
		stamp := time.Now().Add(-age)
		if err := os.Chtimes(path, stamp, stamp); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
}

func TestSceneIDParsing(t *testing.T) {
	cases := map[string]bool{"scene-12": true, "scene-0": false, "scene-x": false, "tmp": false}
	for name, want := range cases {
		if _, ok := SceneID(name); ok != want {
			t.Fatalf("SceneID(%q) ok=%v, want %v", name, ok, want)
		}
	}
	if id, _ := SceneID(filepath.Base(SceneDir("/work", 7))); id != 7 {
		t.Fatalf("expected round trip id 7, got %d", id)
	}
}

func TestCleanOrphanedKeepsKnownScenes(t *testing.T) {
	root := t.TempDir()
	known := SceneDir(root, 1)
	orphan := SceneDir(root, 2)
	oldScratch := filepath.Join(root, "scratch-old")
	freshScratch := filepath.Join(root, "scratch-new")
	mkdir(t, known, 48*time.Hour)
	mkdir(t, orphan, 0)
	mkdir(t, oldScratch, 3*time.Hour)
	mkdir(t, freshScratch, 0)

	result := CleanOrphaned(context.Background(), root, map[int64]struct{}{1: {}}, time.Hour, logging.NewNop())
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Removed) != 2 {
		t.Fatalf("expected 2 removals, got %v", result.Removed)
	}
	for _, path := range []string{orphan, oldScratch} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed", path)
		}
	}
	for _, path := range []string{known, freshScratch} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
}

func TestCleanOrphanedMissingRoot(t *testing.T) {
	for _, dir := range []string{"", "  ", filepath.Join(t.TempDir(), "missing")} {
		result := CleanOrphaned(context.Background(), dir, nil, time.Hour, nil)
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Fatalf("expected empty result for %q, got %+v", dir, result)
		}
	}
}

func TestUsageSumsFiles(t *testing.T) {
	root := t.TempDir()
	dir := SceneDir(root, 3)
	mkdir(t, filepath.Join(dir, "shot-1"), 0)
	if err := os.WriteFile(filepath.Join(dir, "shot-1", "a.mp4"), make([]byte, 100), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.png"), make([]byte, 28), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dirs, err := Usage(root)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if len(dirs) != 1 || dirs[0].Size != 128 {
		t.Fatalf("unexpected usage: %+v", dirs)
	}
}
