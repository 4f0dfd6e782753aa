package testsupport

import (
	"context"
	"testing"

	"scenegen/internal/config"
	"scenegen/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewScene creates a scene with one shot per duration. Shot 1 receives
// sourceImage as its source image.
func NewScene(t testing.TB, st *store.Store, name, sourceImage string, durations ...float64) *store.Scene {
	t.Helper()

	spec := store.NewScene{Name: name}
	for i, d := range durations {
		shot := store.NewShot{Prompt: "shot prompt", Duration: d}
		if i == 0 {
			shot.SourceImage = sourceImage
		}
		spec.Shots = append(spec.Shots, shot)
		spec.TargetDuration += d
	}
	scene, err := st.CreateScene(context.Background(), spec)
	if err != nil {
		t.Fatalf("store.CreateScene: %v", err)
	}
	return scene
}
