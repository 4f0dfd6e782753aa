package orchestrator_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"scenegen/internal/assembler"
	"scenegen/internal/assetstore"
	"scenegen/internal/genqueue"
	"scenegen/internal/notifications"
	"scenegen/internal/orchestrator"
	"scenegen/internal/quality"
	"scenegen/internal/services"
	"scenegen/internal/services/genbackend"
	"scenegen/internal/shotgen"
	"scenegen/internal/store"
	"scenegen/internal/testsupport"
)

type generateCall struct {
	shotNumber int
	firstFrame string
	characters []string
}

type fakeGenerator struct {
	mu     sync.Mutex
	calls  []generateCall
	fail   map[int]error
	scores map[int]float64
	// block, when set, holds Generate after the job is submitted until it is
	// closed or the context ends.
	block chan struct{}
	// beforeReturn runs just before a successful Generate returns.
	beforeReturn func(shot shotgen.ShotInput)
}

func (f *fakeGenerator) Generate(ctx context.Context, shot shotgen.ShotInput, firstFrame string, policy shotgen.Policy, obs shotgen.Observer) (shotgen.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, generateCall{shotNumber: shot.ShotNumber, firstFrame: firstFrame, characters: shot.Characters})
	failure := f.fail[shot.ShotNumber]
	score, ok := f.scores[shot.ShotNumber]
	block := f.block
	beforeReturn := f.beforeReturn
	f.mu.Unlock()
	if !ok {
		score = 0.8
	}

	jobID := fmt.Sprintf("job-%d", shot.ShotNumber)
	obs.JobSubmitted(ctx, shot, 1, jobID)
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return shotgen.Result{}, services.Wrap(services.ErrCanceled, "fake", "generate", "canceled", ctx.Err())
		}
	}
	if failure != nil {
		obs.AttemptFinished(ctx, shot, shotgen.AttemptResult{Number: 1, JobID: jobID, Score: shotgen.HardFailureScore, HardFailure: true, Error: failure.Error()})
		return shotgen.Result{}, failure
	}

	if err := os.MkdirAll(shot.WorkDir, 0o755); err != nil {
		return shotgen.Result{}, err
	}
	video := filepath.Join(shot.WorkDir, fmt.Sprintf("shot_%03d.mp4", shot.ShotNumber))
	frame := filepath.Join(shot.WorkDir, fmt.Sprintf("shot_%03d_last.png", shot.ShotNumber))
	if err := os.WriteFile(video, []byte("video"), 0o644); err != nil {
		return shotgen.Result{}, err
	}
	if err := os.WriteFile(frame, []byte("frame"), 0o644); err != nil {
		return shotgen.Result{}, err
	}
	threshold := policy[0].Threshold
	attempt := shotgen.AttemptResult{
		Number: 1, Seed: 42, Steps: policy[0].Steps, JobID: jobID,
		Score: score, Threshold: threshold, Passed: score >= threshold,
		VideoPath: video, LastFramePath: frame,
	}
	obs.AttemptFinished(ctx, shot, attempt)
	if beforeReturn != nil {
		beforeReturn(shot)
	}
	return shotgen.Result{
		VideoPath: video, LastFramePath: frame, Score: score, AttemptUsed: 1,
		Seed: 42, Steps: attempt.Steps, Passed: attempt.Passed, Attempts: []shotgen.AttemptResult{attempt},
	}, nil
}

func (f *fakeGenerator) setFailure(shot int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = make(map[int]error)
	}
	if err == nil {
		delete(f.fail, shot)
		return
	}
	f.fail[shot] = err
}

func (f *fakeGenerator) snapshot() []generateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]generateCall(nil), f.calls...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) has(event notifications.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

type harness struct {
	st        *store.Store
	gen       *fakeGenerator
	notifier  *recordingNotifier
	mgr       *orchestrator.Manager
	source    string
	archive   string
	outputDir string
}

// syncBuffer collects log output written from background runs.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newHarness(t *testing.T, gen *fakeGenerator, opts ...orchestrator.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	source := filepath.Join(testsupport.BaseDir(cfg), "source.png")
	testsupport.WritePNG(t, source)

	if gen == nil {
		gen = &fakeGenerator{}
	}
	notifier := &recordingNotifier{}
	asm := assembler.New(&testsupport.FakeToolkit{}, assembler.Settings{DefaultTransition: "dissolve", DefaultOverlap: 0.3, MusicVolume: 0.3})
	archiveDir := filepath.Join(testsupport.BaseDir(cfg), "archive")
	opts = append([]orchestrator.Option{
		orchestrator.WithNotifier(notifier),
		orchestrator.WithArchive(assetstore.NewLocal(archiveDir)),
	}, opts...)
	mgr := orchestrator.New(st, gen, asm, orchestrator.SettingsFromConfig(cfg), opts...)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)
	return &harness{st: st, gen: gen, notifier: notifier, mgr: mgr, source: source, archive: archiveDir, outputDir: cfg.Paths.OutputDir}
}

func waitScene(t *testing.T, mgr *orchestrator.Manager, sceneID int64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Wait(ctx, sceneID); err != nil {
		t.Fatalf("scene %d did not finish: %v", sceneID, err)
	}
}

func TestStartSceneGeneratesShotsInOrderAndAssembles(t *testing.T) {
	h := newHarness(t, nil)
	scene := testsupport.NewScene(t, h.st, "Rooftop Chase", h.source, 3, 3, 3)

	est, err := h.mgr.StartScene(context.Background(), scene.ID)
	if err != nil {
		t.Fatalf("StartScene: %v", err)
	}
	if est.RemainingShots != 3 || est.RunID == "" {
		t.Fatalf("unexpected estimate: %+v", est)
	}
	if est.EstimatedDuration != 3*180*time.Second {
		t.Fatalf("unexpected estimated duration %v", est.EstimatedDuration)
	}
	waitScene(t, h.mgr, scene.ID)

	status, err := h.mgr.SceneStatus(context.Background(), scene.ID)
	if err != nil {
		t.Fatalf("SceneStatus: %v", err)
	}
	if status.Scene.Status != store.SceneCompleted {
		t.Fatalf("expected completed scene, got %s (%s)", status.Scene.Status, status.Scene.ErrorMessage)
	}
	if math.Abs(status.Scene.VideoDuration-8.4) > 1e-9 {
		t.Fatalf("expected 8.4s scene, got %v", status.Scene.VideoDuration)
	}
	if status.Scene.AssemblyState != string(assembler.StateCompleted) {
		t.Fatalf("unexpected assembly state %q", status.Scene.AssemblyState)
	}
	if status.Running {
		t.Fatal("scene should no longer be running")
	}

	calls := h.gen.snapshot()
	if len(calls) != 3 {
		t.Fatalf("expected 3 generate calls, got %d", len(calls))
	}
	if calls[0].firstFrame != h.source {
		t.Fatalf("shot 1 should start from the source image, got %q", calls[0].firstFrame)
	}
	for i := 1; i < len(status.Shots); i++ {
		if status.Shots[i].FirstFrame != status.Shots[i-1].LastFrame {
			t.Fatalf("shot %d first frame %q != shot %d last frame %q",
				i+1, status.Shots[i].FirstFrame, i, status.Shots[i-1].LastFrame)
		}
		if calls[i].firstFrame != status.Shots[i-1].LastFrame {
			t.Fatalf("generator for shot %d got first frame %q", i+1, calls[i].firstFrame)
		}
	}
	for i, score := range status.BestScores {
		if score == nil || *score != 0.8 {
			t.Fatalf("unexpected best score for shot %d: %v", i+1, score)
		}
	}

	attempts, err := h.st.Attempts(context.Background(), status.Shots[0].ID)
	if err != nil {
		t.Fatalf("Attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].JobID != "job-1" {
		t.Fatalf("unexpected attempts: %+v", attempts)
	}

	if !h.notifier.has(notifications.EventSceneStarted) || !h.notifier.has(notifications.EventSceneCompleted) {
		t.Fatalf("expected start and completion notifications, got %v", h.notifier.events)
	}
	archived := filepath.Join(h.archive, filepath.FromSlash(assetstore.SceneKey(scene.ID, scene.Name, status.Scene.VideoPath)))
	if _, err := os.Stat(archived); err != nil {
		t.Fatalf("expected archived scene at %s: %v", archived, err)
	}
}

func TestStartSceneRejectsEmptyAndRunningScenes(t *testing.T) {
	gen := &fakeGenerator{block: make(chan struct{})}
	h := newHarness(t, gen)
	ctx := context.Background()

	empty, err := h.st.CreateScene(ctx, store.NewScene{Name: "empty"})
	if err != nil {
		t.Fatalf("CreateScene: %v", err)
	}
	if _, err := h.mgr.StartScene(ctx, empty.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty scene, got %v", err)
	}
	if _, err := h.mgr.StartScene(ctx, 9999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	scene := testsupport.NewScene(t, h.st, "Busy", h.source, 2, 2)
	if _, err := h.mgr.StartScene(ctx, scene.ID); err != nil {
		t.Fatalf("StartScene: %v", err)
	}
	if _, err := h.mgr.StartScene(ctx, scene.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict for running scene, got %v", err)
	}
	if _, err := h.mgr.AssembleScene(ctx, scene.ID); err == nil {
		t.Fatal("expected assemble to be rejected while generating")
	}

	deadline := time.Now().Add(2 * time.Second)
	var status orchestrator.Status
	for time.Now().Before(deadline) {
		status, err = h.mgr.SceneStatus(ctx, scene.ID)
		if err != nil {
			t.Fatalf("SceneStatus: %v", err)
		}
		if status.ActiveJobID != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !status.Running || status.ActiveJobID != "job-1" || status.Scene.Status != store.SceneGenerating {
		t.Fatalf("unexpected running status: running=%v job=%q status=%s", status.Running, status.ActiveJobID, status.Scene.Status)
	}

	if err := h.mgr.CancelScene(scene.ID); err != nil {
		t.Fatalf("CancelScene: %v", err)
	}
	waitScene(t, h.mgr, scene.ID)

	after, err := h.st.GetScene(ctx, scene.ID)
	if err != nil {
		t.Fatalf("GetScene: %v", err)
	}
	if after.Status != store.SceneFailed || !strings.Contains(after.ErrorMessage, "canceled") {
		t.Fatalf("expected canceled failure, got %s %q", after.Status, after.ErrorMessage)
	}
	if h.notifier.has(notifications.EventSceneFailed) {
		t.Fatal("cancellation should not publish a failure notification")
	}
	if err := h.mgr.CancelScene(scene.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict canceling an idle scene, got %v", err)
	}
}

func TestFailedShotFailsSceneAndRestartResumes(t *testing.T) {
	gen := &fakeGenerator{}
	gen.setFailure(2, services.Wrap(services.ErrExternalTool, "shotgen", "generate", "all attempts", shotgen.ErrAllAttemptsFailed))
	h := newHarness(t, gen)
	ctx := context.Background()
	scene := testsupport.NewScene(t, h.st, "Flaky", h.source, 3, 3, 3)

	if _, err := h.mgr.StartScene(ctx, scene.ID); err != nil {
		t.Fatalf("StartScene: %v", err)
	}
	waitScene(t, h.mgr, scene.ID)

	status, err := h.mgr.SceneStatus(ctx, scene.ID)
	if err != nil {
		t.Fatalf("SceneStatus: %v", err)
	}
	if status.Scene.Status != store.SceneFailed {
		t.Fatalf("expected failed scene, got %s", status.Scene.Status)
	}
	if status.Shots[0].Status != store.ShotCompleted || status.Shots[1].Status != store.ShotFailed || status.Shots[2].Status != store.ShotPending {
		t.Fatalf("unexpected shot statuses: %s %s %s", status.Shots[0].Status, status.Shots[1].Status, status.Shots[2].Status)
	}
	if !strings.Contains(status.Shots[1].ErrorMessage, "all generation attempts failed") {
		t.Fatalf("unexpected shot error %q", status.Shots[1].ErrorMessage)
	}
	if !h.notifier.has(notifications.EventSceneFailed) {
		t.Fatal("expected failure notification")
	}

	gen.setFailure(2, nil)
	est, err := h.mgr.StartScene(ctx, scene.ID)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if est.RemainingShots != 2 {
		t.Fatalf("expected resume with 2 shots, got %d", est.RemainingShots)
	}
	waitScene(t, h.mgr, scene.ID)

	calls := gen.snapshot()
	got := make([]int, len(calls))
	for i, c := range calls {
		got[i] = c.shotNumber
	}
	if fmt.Sprint(got) != "[1 2 2 3]" {
		t.Fatalf("unexpected generation order %v", got)
	}
	if calls[2].firstFrame != status.Shots[0].LastFrame {
		t.Fatalf("resumed shot 2 should start from shot 1 last frame, got %q", calls[2].firstFrame)
	}
	final, err := h.st.GetScene(ctx, scene.ID)
	if err != nil {
		t.Fatalf("GetScene: %v", err)
	}
	if final.Status != store.SceneCompleted {
		t.Fatalf("expected completed after resume, got %s", final.Status)
	}
}

func TestRetryShotResetsLaterShotsAndReturnsSceneToPending(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	scene := testsupport.NewScene(t, h.st, "Retry", h.source, 3, 3, 3)

	shots, err := h.st.Shots(ctx, scene.ID)
	if err != nil {
		t.Fatalf("Shots: %v", err)
	}
	if _, err := h.mgr.RetryShot(ctx, scene.ID, shots[1].ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict retrying shot 2 before shot 1 completes, got %v", err)
	}
	if _, err := h.mgr.RetryShot(ctx, scene.ID, 9999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown shot, got %v", err)
	}

	if _, err := h.mgr.StartScene(ctx, scene.ID); err != nil {
		t.Fatalf("StartScene: %v", err)
	}
	waitScene(t, h.mgr, scene.ID)

	retry, err := h.mgr.RetryShot(ctx, scene.ID, shots[1].ID)
	if err != nil {
		t.Fatalf("RetryShot: %v", err)
	}
	if retry.RunID == "" || retry.JobID != "job-2" {
		t.Fatalf("expected run id and first job id, got %+v", retry)
	}
	waitScene(t, h.mgr, scene.ID)

	status, err := h.mgr.SceneStatus(ctx, scene.ID)
	if err != nil {
		t.Fatalf("SceneStatus: %v", err)
	}
	if status.Scene.Status != store.ScenePending {
		t.Fatalf("expected pending scene after retry, got %s", status.Scene.Status)
	}
	if status.Shots[0].Status != store.ShotCompleted || status.Shots[1].Status != store.ShotCompleted {
		t.Fatalf("expected shots 1 and 2 completed: %s %s", status.Shots[0].Status, status.Shots[1].Status)
	}
	if status.Shots[2].Status != store.ShotPending || status.Shots[2].VideoPath != "" {
		t.Fatalf("expected shot 3 reset, got %s %q", status.Shots[2].Status, status.Shots[2].VideoPath)
	}
	if calls := h.gen.snapshot(); len(calls) != 4 || calls[3].shotNumber != 2 {
		t.Fatalf("expected one extra generate call for shot 2, got %+v", calls)
	}

	if _, err := h.mgr.StartScene(ctx, scene.ID); err != nil {
		t.Fatalf("restart after retry: %v", err)
	}
	waitScene(t, h.mgr, scene.ID)
	final, _ := h.st.GetScene(ctx, scene.ID)
	if final.Status != store.SceneCompleted {
		t.Fatalf("expected completed after restart, got %s", final.Status)
	}
}

func TestAssembleSceneIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	scene := testsupport.NewScene(t, h.st, "Idempotent", h.source, 3, 3)

	if _, err := h.mgr.AssembleScene(ctx, scene.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for incomplete scene, got %v", err)
	}

	if _, err := h.mgr.StartScene(ctx, scene.ID); err != nil {
		t.Fatalf("StartScene: %v", err)
	}
	waitScene(t, h.mgr, scene.ID)

	first, err := h.mgr.AssembleScene(ctx, scene.ID)
	if err != nil {
		t.Fatalf("AssembleScene: %v", err)
	}
	if !first.Reused {
		t.Fatal("expected existing result to be reused")
	}
	if math.Abs(first.Duration-5.7) > 1e-9 {
		t.Fatalf("unexpected duration %v", first.Duration)
	}
	if !strings.HasPrefix(first.VideoPath, h.outputDir) {
		t.Fatalf("expected output under %s, got %s", h.outputDir, first.VideoPath)
	}

	if err := os.Remove(first.VideoPath); err != nil {
		t.Fatalf("remove video: %v", err)
	}
	rebuilt, err := h.mgr.AssembleScene(ctx, scene.ID)
	if err != nil {
		t.Fatalf("re-assemble: %v", err)
	}
	if rebuilt.Reused || rebuilt.VideoPath != first.VideoPath {
		t.Fatalf("expected rebuilt artifact at same path, got %+v", rebuilt)
	}
	if _, err := os.Stat(rebuilt.VideoPath); err != nil {
		t.Fatalf("rebuilt video missing: %v", err)
	}
}

func TestLowScoreShotPublishesLowQuality(t *testing.T) {
	h := newHarness(t, &fakeGenerator{scores: map[int]float64{1: 0.4}})
	scene := testsupport.NewScene(t, h.st, "Murky", h.source, 2)

	if _, err := h.mgr.StartScene(context.Background(), scene.ID); err != nil {
		t.Fatalf("StartScene: %v", err)
	}
	waitScene(t, h.mgr, scene.ID)
	if !h.notifier.has(notifications.EventLowQuality) {
		t.Fatalf("expected low quality notification, got %v", h.notifier.events)
	}
}

func TestStartReclaimsInterruptedScenes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	source := filepath.Join(testsupport.BaseDir(cfg), "source.png")
	testsupport.WritePNG(t, source)
	scene := testsupport.NewScene(t, st, "Crashed", source, 2)
	if _, err := st.TransitionScene(context.Background(), scene.ID, nil, store.SceneGenerating, ""); err != nil {
		t.Fatalf("TransitionScene: %v", err)
	}

	mgr := orchestrator.New(st, &fakeGenerator{}, nil, orchestrator.SettingsFromConfig(cfg))
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Stop()

	got, err := st.GetScene(context.Background(), scene.ID)
	if err != nil {
		t.Fatalf("GetScene: %v", err)
	}
	if got.Status != store.SceneFailed || got.ErrorMessage != store.InterruptedReason {
		t.Fatalf("expected reclaimed scene, got %s %q", got.Status, got.ErrorMessage)
	}
}

func TestOperationsRequireStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	source := filepath.Join(testsupport.BaseDir(cfg), "source.png")
	testsupport.WritePNG(t, source)
	scene := testsupport.NewScene(t, st, "Idle", source, 2)

	mgr := orchestrator.New(st, &fakeGenerator{}, nil, orchestrator.SettingsFromConfig(cfg))
	if _, err := mgr.StartScene(context.Background(), scene.ID); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error before Start, got %v", err)
	}
}

func TestCancelDuringAcceptedShotTakesCancelPath(t *testing.T) {
	gen := &fakeGenerator{}
	h := newHarness(t, gen)
	ctx := context.Background()
	scene := testsupport.NewScene(t, h.st, "Interrupted", h.source, 3, 3)
	gen.beforeReturn = func(shot shotgen.ShotInput) {
		if shot.ShotNumber == 1 {
			if err := h.mgr.CancelScene(scene.ID); err != nil {
				t.Errorf("CancelScene: %v", err)
			}
		}
	}

	if _, err := h.mgr.StartScene(ctx, scene.ID); err != nil {
		t.Fatalf("StartScene: %v", err)
	}
	waitScene(t, h.mgr, scene.ID)

	status, err := h.mgr.SceneStatus(ctx, scene.ID)
	if err != nil {
		t.Fatalf("SceneStatus: %v", err)
	}
	if status.Scene.Status != store.SceneFailed || !strings.Contains(status.Scene.ErrorMessage, "canceled before shot 2") {
		t.Fatalf("expected cancellation before shot 2, got %s %q", status.Scene.Status, status.Scene.ErrorMessage)
	}
	if strings.Contains(status.Scene.ErrorMessage, "transient") {
		t.Fatalf("cancellation reported as a store failure: %q", status.Scene.ErrorMessage)
	}
	if status.Shots[0].Status != store.ShotCompleted || status.Shots[0].VideoPath == "" || status.Shots[0].LastFrame == "" {
		t.Fatalf("accepted shot 1 should be persisted as completed: %+v", status.Shots[0])
	}
	if status.Shots[1].Status != store.ShotPending {
		t.Fatalf("shot 2 should stay pending, got %s", status.Shots[1].Status)
	}
	if calls := gen.snapshot(); len(calls) != 1 {
		t.Fatalf("expected only shot 1 generated, got %+v", calls)
	}
	if h.notifier.has(notifications.EventSceneFailed) {
		t.Fatal("cancellation should not publish a failure notification")
	}
}

func TestShotCharactersReachGenerator(t *testing.T) {
	gen := &fakeGenerator{}
	h := newHarness(t, gen)
	ctx := context.Background()
	scene, err := h.st.CreateScene(ctx, store.NewScene{
		Name: "Duet",
		Shots: []store.NewShot{
			{Prompt: "two dancers meet", Duration: 3, SourceImage: h.source, Characters: []string{"Mara", "Jun"}},
			{Prompt: "empty stage", Duration: 3},
		},
	})
	if err != nil {
		t.Fatalf("CreateScene: %v", err)
	}

	if _, err := h.mgr.StartScene(ctx, scene.ID); err != nil {
		t.Fatalf("StartScene: %v", err)
	}
	waitScene(t, h.mgr, scene.ID)

	calls := gen.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected 2 generate calls, got %d", len(calls))
	}
	if got := strings.Join(calls[0].characters, ","); got != "Mara,Jun" {
		t.Fatalf("shot 1 characters = %q", got)
	}
	if len(calls[1].characters) != 0 {
		t.Fatalf("shot 2 should carry no characters, got %v", calls[1].characters)
	}
}

func TestCompletedShotWithoutLastFrameFailsSceneAsInvariant(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	gen := &fakeGenerator{}
	h := newHarness(t, gen, orchestrator.WithLogger(logger))
	ctx := context.Background()
	scene := testsupport.NewScene(t, h.st, "Broken Chain", h.source, 3, 3)

	shots, err := h.st.Shots(ctx, scene.ID)
	if err != nil {
		t.Fatalf("Shots: %v", err)
	}
	first := shots[0]
	first.Status = store.ShotCompleted
	first.FirstFrame = h.source
	first.VideoPath = filepath.Join(t.TempDir(), "shot_001.mp4")
	first.Score = 0.9
	first.HasScore = true
	if err := h.st.UpdateShot(ctx, &first); err != nil {
		t.Fatalf("UpdateShot: %v", err)
	}

	if _, err := h.mgr.StartScene(ctx, scene.ID); err != nil {
		t.Fatalf("StartScene: %v", err)
	}
	waitScene(t, h.mgr, scene.ID)

	status, err := h.mgr.SceneStatus(ctx, scene.ID)
	if err != nil {
		t.Fatalf("SceneStatus: %v", err)
	}
	if status.Scene.Status != store.SceneFailed || !strings.Contains(status.Scene.ErrorMessage, "no last frame") {
		t.Fatalf("expected invariant failure, got %s %q", status.Scene.Status, status.Scene.ErrorMessage)
	}
	if status.Shots[1].Status != store.ShotFailed {
		t.Fatalf("shot 2 should be marked failed, got %s", status.Shots[1].Status)
	}
	if calls := gen.snapshot(); len(calls) != 0 {
		t.Fatalf("no shot should be generated, got %+v", calls)
	}

	var found bool
	for _, line := range strings.Split(logs.String(), "\n") {
		if strings.Contains(line, `"level":"ERROR"`) && strings.Contains(line, "scene_invariant") {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected an ERROR scene_invariant record, got:\n%s", logs.String())
	}
	if !h.notifier.has(notifications.EventSceneFailed) {
		t.Fatal("expected failure notification")
	}
}

// instantBackend completes every job on its first poll.
type instantBackend struct {
	mu   sync.Mutex
	next int
}

func (b *instantBackend) Submit(context.Context, genbackend.Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	return fmt.Sprintf("backend-%d", b.next), nil
}

func (b *instantBackend) Poll(_ context.Context, id string) (genbackend.Status, error) {
	return genbackend.Status{State: genbackend.StateCompleted, Progress: 100, OutputRef: "/out/" + id}, nil
}

func (b *instantBackend) Cancel(context.Context, string) error { return nil }

func (b *instantBackend) Download(_ context.Context, ref, dest string) error {
	return os.WriteFile(dest, []byte("video:"+ref), 0o644)
}

type frameWriter struct{}

func (frameWriter) ExtractLastFrame(_ context.Context, video string) (string, error) {
	frame := strings.TrimSuffix(video, filepath.Ext(video)) + "_last.png"
	return frame, os.WriteFile(frame, []byte("png"), 0o644)
}

type contextGate struct {
	mu   sync.Mutex
	seen []quality.Context
}

func (g *contextGate) Score(_ context.Context, _ quality.Artifact, shot quality.Context) quality.Result {
	g.mu.Lock()
	g.seen = append(g.seen, shot)
	g.mu.Unlock()
	return quality.Result{Score: 0.9}
}

func TestRetryShotReturnsQueueJobID(t *testing.T) {
	queue := genqueue.New(&instantBackend{}, genqueue.Config{Concurrency: 1, PollInterval: time.Millisecond, JobTimeout: 2 * time.Second})
	t.Cleanup(queue.Close)
	gate := &contextGate{}
	controller := shotgen.NewController(queue, frameWriter{}, gate)

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	source := filepath.Join(testsupport.BaseDir(cfg), "source.png")
	testsupport.WritePNG(t, source)
	mgr := orchestrator.New(st, controller, nil, orchestrator.SettingsFromConfig(cfg))
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	ctx := context.Background()
	scene, err := st.CreateScene(ctx, store.NewScene{
		Name: "Queued Retry",
		Shots: []store.NewShot{
			{Prompt: "lighthouse at dusk", Duration: 3, SourceImage: source, Characters: []string{"Keeper"}},
		},
	})
	if err != nil {
		t.Fatalf("CreateScene: %v", err)
	}
	shots, err := st.Shots(ctx, scene.ID)
	if err != nil {
		t.Fatalf("Shots: %v", err)
	}

	retry, err := mgr.RetryShot(ctx, scene.ID, shots[0].ID)
	if err != nil {
		t.Fatalf("RetryShot: %v", err)
	}
	if retry.JobID == "" || retry.JobID == retry.RunID {
		t.Fatalf("expected a queue job id distinct from the run id, got %+v", retry)
	}
	job, err := queue.Poll(retry.JobID)
	if err != nil {
		t.Fatalf("job %s should resolve through the queue: %v", retry.JobID, err)
	}
	if job.ID != retry.JobID {
		t.Fatalf("queue returned job %q for %q", job.ID, retry.JobID)
	}
	waitScene(t, mgr, scene.ID)

	got, err := st.Shots(ctx, scene.ID)
	if err != nil {
		t.Fatalf("Shots: %v", err)
	}
	if got[0].Status != store.ShotCompleted {
		t.Fatalf("expected retried shot completed, got %s (%s)", got[0].Status, got[0].ErrorMessage)
	}
	attempts, err := st.Attempts(ctx, got[0].ID)
	if err != nil {
		t.Fatalf("Attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].JobID != retry.JobID {
		t.Fatalf("recorded attempt should carry the returned job id: %+v", attempts)
	}

	gate.mu.Lock()
	defer gate.mu.Unlock()
	if len(gate.seen) != 1 || strings.Join(gate.seen[0].Characters, ",") != "Keeper" {
		t.Fatalf("scorer context should carry the shot characters: %+v", gate.seen)
	}
}
