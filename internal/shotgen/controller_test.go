package shotgen_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scenegen/internal/genqueue"
	"scenegen/internal/quality"
	"scenegen/internal/services"
	"scenegen/internal/shotgen"
)

type outcome struct {
	timeout bool
	fail    string
}

type fakeJobs struct {
	outcomes []outcome
	requests []genqueue.Request
	canceled []string
}

func (f *fakeJobs) Submit(_ context.Context, req genqueue.Request) (string, error) {
	f.requests = append(f.requests, req)
	return fmt.Sprintf("job-%d", len(f.requests)), nil
}

func (f *fakeJobs) Wait(ctx context.Context, id string) (genqueue.JobStatus, error) {
	if err := ctx.Err(); err != nil {
		return genqueue.JobStatus{ID: id}, services.Wrap(services.ErrCanceled, "fake", "wait", "", err)
	}
	idx := len(f.requests) - 1
	req := f.requests[idx]
	var o outcome
	if idx < len(f.outcomes) {
		o = f.outcomes[idx]
	}
	switch {
	case o.timeout:
		return genqueue.JobStatus{ID: id, State: genqueue.StateFailed, TimedOut: true, Error: "job exceeded timeout"}, nil
	case o.fail != "":
		return genqueue.JobStatus{ID: id, State: genqueue.StateFailed, Error: o.fail}, nil
	}
	if err := os.WriteFile(req.OutputPath, []byte(fmt.Sprintf("clip-%d", idx+1)), 0o644); err != nil {
		return genqueue.JobStatus{}, err
	}
	return genqueue.JobStatus{ID: id, State: genqueue.StateCompleted, OutputPath: req.OutputPath}, nil
}

func (f *fakeJobs) Cancel(id string) error {
	f.canceled = append(f.canceled, id)
	return nil
}

type fakeExtractor struct {
	failOn map[string]bool
}

func (f fakeExtractor) ExtractLastFrame(_ context.Context, video string) (string, error) {
	if f.failOn[filepath.Base(video)] {
		return "", services.Wrap(services.ErrExternalTool, "continuity", "extract", "ffmpeg failed", nil)
	}
	frame := strings.TrimSuffix(video, filepath.Ext(video)) + "_last.png"
	return frame, os.WriteFile(frame, []byte("png"), 0o644)
}

type scriptedGate struct {
	scores []float64
	calls  int
}

func (g *scriptedGate) Score(context.Context, quality.Artifact, quality.Context) quality.Result {
	score := g.scores[g.calls]
	g.calls++
	return quality.Result{Score: score}
}

func sequentialSeeds() shotgen.SeedSource {
	next := int64(100)
	return func() int64 {
		next++
		return next
	}
}

func threeStepPolicy() shotgen.Policy {
	return shotgen.Policy{{Steps: 20, Threshold: 0.6}, {Steps: 25, Threshold: 0.45}, {Steps: 30, Threshold: 0.3}}
}

func newShot(t *testing.T) shotgen.ShotInput {
	return shotgen.ShotInput{SceneID: 1, ShotID: 10, ShotNumber: 2, Prompt: "pan left", Duration: 3, WorkDir: t.TempDir()}
}

func TestEarlyAcceptStopsFurtherAttempts(t *testing.T) {
	jobs := &fakeJobs{}
	gate := &scriptedGate{scores: []float64{0.5, 0.55, 0.99}}
	c := shotgen.NewController(jobs, fakeExtractor{}, gate, shotgen.WithSeedSource(sequentialSeeds()))

	res, err := c.Generate(context.Background(), newShot(t), "/frames/first.png", threeStepPolicy(), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.AttemptUsed != 2 || !res.Passed || res.Score != 0.55 {
		t.Fatalf("expected attempt 2 accepted, got %+v", res)
	}
	if len(jobs.requests) != 2 {
		t.Fatalf("expected attempt 3 never issued, got %d submissions", len(jobs.requests))
	}
	if res.Steps != 25 || res.Seed != 102 {
		t.Fatalf("unexpected steps/seed %d/%d", res.Steps, res.Seed)
	}
	if jobs.requests[0].Steps != 20 || jobs.requests[1].Steps != 25 {
		t.Fatalf("steps should follow the policy, got %d and %d", jobs.requests[0].Steps, jobs.requests[1].Steps)
	}
	if jobs.requests[0].Seed == jobs.requests[1].Seed {
		t.Fatal("expected a fresh seed per attempt")
	}
	if jobs.requests[0].FirstFrame != "/frames/first.png" {
		t.Fatalf("first frame not forwarded: %q", jobs.requests[0].FirstFrame)
	}
	if _, err := os.Stat(jobs.requests[0].OutputPath); !os.IsNotExist(err) {
		t.Fatalf("expected rejected attempt artifact removed, stat err=%v", err)
	}
	if _, err := os.Stat(res.VideoPath); err != nil {
		t.Fatalf("accepted artifact missing: %v", err)
	}
}

func TestExhaustedAttemptsAcceptBest(t *testing.T) {
	jobs := &fakeJobs{}
	gate := &scriptedGate{scores: []float64{0.2, 0.35, 0.28}}
	c := shotgen.NewController(jobs, fakeExtractor{}, gate)

	res, err := c.Generate(context.Background(), newShot(t), "/frames/first.png", threeStepPolicy(), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.AttemptUsed != 2 || res.Passed || res.Score != 0.35 {
		t.Fatalf("expected attempt 2 kept as best, got %+v", res)
	}
	if len(res.Attempts) != 3 {
		t.Fatalf("expected three attempts, got %d", len(res.Attempts))
	}
	for _, a := range res.Attempts {
		_, err := os.Stat(a.VideoPath)
		if a.Number == 2 && err != nil {
			t.Fatalf("best artifact removed: %v", err)
		}
		if a.Number != 2 && !os.IsNotExist(err) {
			t.Fatalf("attempt %d artifact kept", a.Number)
		}
	}
}

func TestTiesGoToEarliestAttempt(t *testing.T) {
	gate := &scriptedGate{scores: []float64{0.3, 0.3, 0.1}}
	policy := shotgen.Policy{{Steps: 20, Threshold: 0.6}, {Steps: 25, Threshold: 0.45}, {Steps: 30, Threshold: 0.35}}
	res, err := shotgen.NewController(&fakeJobs{}, fakeExtractor{}, gate).
		Generate(context.Background(), newShot(t), "/f.png", policy, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.AttemptUsed != 1 {
		t.Fatalf("expected earliest tied attempt, got %d", res.AttemptUsed)
	}
}

func TestTimeoutThenRecovery(t *testing.T) {
	jobs := &fakeJobs{outcomes: []outcome{{timeout: true}}}
	gate := &scriptedGate{scores: []float64{0.7}}
	var observed []shotgen.AttemptResult
	observer := shotgen.ObserverFuncs{OnAttemptFinished: func(_ context.Context, _ shotgen.ShotInput, a shotgen.AttemptResult) {
		observed = append(observed, a)
	}}

	res, err := shotgen.NewController(jobs, fakeExtractor{}, gate).
		Generate(context.Background(), newShot(t), "/f.png", threeStepPolicy(), observer)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Attempts) != 2 || res.AttemptUsed != 2 {
		t.Fatalf("expected recovery on attempt 2, got %+v", res)
	}
	if res.VideoPath != jobs.requests[1].OutputPath {
		t.Fatalf("expected attempt 2 output, got %q", res.VideoPath)
	}
	first := res.Attempts[0]
	if !first.HardFailure || !first.TimedOut || first.Score != shotgen.HardFailureScore {
		t.Fatalf("expected timed out hard failure, got %+v", first)
	}
	if len(observed) != 2 {
		t.Fatalf("expected observer per attempt, got %d", len(observed))
	}
}

func TestFrameExtractionFailureIsHardFailure(t *testing.T) {
	jobs := &fakeJobs{}
	gate := &scriptedGate{scores: []float64{0.9}}
	extractor := fakeExtractor{failOn: map[string]bool{"shot_002_attempt_1.mp4": true}}

	res, err := shotgen.NewController(jobs, extractor, gate).
		Generate(context.Background(), newShot(t), "/f.png", threeStepPolicy(), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.Attempts[0].HardFailure || res.AttemptUsed != 2 {
		t.Fatalf("expected extraction failure to consume attempt 1, got %+v", res)
	}
}

func TestAllAttemptsFailed(t *testing.T) {
	jobs := &fakeJobs{outcomes: []outcome{{fail: "oom"}, {timeout: true}, {fail: "oom"}}}
	res, err := shotgen.NewController(jobs, fakeExtractor{}, &scriptedGate{}).
		Generate(context.Background(), newShot(t), "/f.png", threeStepPolicy(), nil)
	if !errors.Is(err, shotgen.ErrAllAttemptsFailed) {
		t.Fatalf("expected ErrAllAttemptsFailed, got %v", err)
	}
	if len(res.Attempts) != 3 {
		t.Fatalf("expected three recorded attempts, got %d", len(res.Attempts))
	}
}

func TestCancellationCheckedBeforeAttempts(t *testing.T) {
	jobs := &fakeJobs{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := shotgen.NewController(jobs, fakeExtractor{}, &scriptedGate{}).
		Generate(ctx, newShot(t), "/f.png", threeStepPolicy(), nil)
	if !errors.Is(err, services.ErrCanceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if len(jobs.requests) != 0 {
		t.Fatalf("expected no submissions, got %d", len(jobs.requests))
	}
}

// cancelingGate cancels the run mid-score and answers with the fallback
// score the evaluator uses for an aborted scorer call.
type cancelingGate struct{ cancel context.CancelFunc }

func (g cancelingGate) Score(context.Context, quality.Artifact, quality.Context) quality.Result {
	g.cancel()
	return quality.Result{Score: 0.5, Fallback: true}
}

func TestCancellationDuringScoringIsNotAccepted(t *testing.T) {
	jobs := &fakeJobs{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shot := newShot(t)

	res, err := shotgen.NewController(jobs, fakeExtractor{}, cancelingGate{cancel: cancel}).
		Generate(ctx, shot, "/f.png", shotgen.Policy{{Steps: 20, Threshold: 0.45}}, nil)
	if !errors.Is(err, services.ErrCanceled) {
		t.Fatalf("expected canceled error, got %v (result %+v)", err, res)
	}
	if res.Passed || res.VideoPath != "" {
		t.Fatalf("canceled shot must not be accepted: %+v", res)
	}
	entries, _ := os.ReadDir(shot.WorkDir)
	if len(entries) != 0 {
		t.Fatalf("expected attempt artifacts removed, found %d entries", len(entries))
	}
}

func TestMissingFirstFrameIsInvariantViolation(t *testing.T) {
	_, err := shotgen.NewController(&fakeJobs{}, fakeExtractor{}, &scriptedGate{}).
		Generate(context.Background(), newShot(t), "", threeStepPolicy(), nil)
	if !errors.Is(err, services.ErrInvariant) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestPolicyValidate(t *testing.T) {
	cases := []struct {
		name   string
		policy shotgen.Policy
		ok     bool
	}{
		{name: "default", policy: shotgen.DefaultPolicy(), ok: true},
		{name: "empty", policy: nil},
		{name: "flat", policy: shotgen.Policy{{Steps: 20, Threshold: 0.5}, {Steps: 25, Threshold: 0.5}}},
		{name: "rising", policy: shotgen.Policy{{Steps: 20, Threshold: 0.3}, {Steps: 25, Threshold: 0.5}}},
		{name: "zero steps", policy: shotgen.Policy{{Steps: 0, Threshold: 0.5}}},
		{name: "range", policy: shotgen.Policy{{Steps: 20, Threshold: -0.1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.policy.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDefaultPolicyGrowsStepsByFive(t *testing.T) {
	policy := shotgen.DefaultPolicy()
	for i := 1; i < len(policy); i++ {
		if policy[i].Steps != policy[i-1].Steps+5 {
			t.Fatalf("attempt %d steps %d, want %d", i+1, policy[i].Steps, policy[i-1].Steps+5)
		}
	}
}
