package orchestrator

import (
	"context"
	"sync"
	"time"

	"scenegen/internal/assembler"
	"scenegen/internal/config"
	"scenegen/internal/shotgen"
	"scenegen/internal/store"
)

// ShotGenerator produces an accepted clip for one shot.
type ShotGenerator interface {
	Generate(ctx context.Context, shot shotgen.ShotInput, firstFrame string, policy shotgen.Policy, observer shotgen.Observer) (shotgen.Result, error)
}

// SceneAssembler builds the final scene video.
type SceneAssembler interface {
	Assemble(ctx context.Context, in assembler.Input, onState func(assembler.State)) (assembler.Result, error)
}

// Settings holds the orchestration parameters taken from config.
type Settings struct {
	WorkDir   string
	OutputDir string
	Policy    shotgen.Policy
	// AttemptEstimate is the expected wall time of one generation attempt.
	AttemptEstimate time.Duration
}

// SettingsFromConfig derives Settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		WorkDir:         cfg.Paths.WorkDir,
		OutputDir:       cfg.Paths.OutputDir,
		Policy:          shotgen.PolicyFromConfig(cfg.Generation.Attempts),
		AttemptEstimate: time.Duration(cfg.Generation.EstimatedAttemptSeconds) * time.Second,
	}
}

// Estimate is returned when a scene starts.
type Estimate struct {
	RunID             string
	RemainingShots    int
	EstimatedDuration time.Duration
	TargetDuration    float64
}

// Status is a read-only view of a scene and its background work.
type Status struct {
	store.Snapshot
	BestScores  []*float64
	Running     bool
	RunID       string
	RunKind     string
	ActiveJobID string
}

// Retry identifies a started shot retry. JobID is the first generation job
// submitted for the shot and resolves through the job queue.
type Retry struct {
	RunID string
	JobID string
}

// AssemblyResult describes the scene artifact.
type AssemblyResult struct {
	VideoPath string
	Duration  float64
	State     string
	Reused    bool
	Warnings  []string
}

const (
	runGenerate = "generate"
	runRetry    = "retry"
	runAssemble = "assemble"
)

// run tracks one background task for a scene.
type run struct {
	id     string
	kind   string
	cancel context.CancelFunc
	unlink func() bool
	done   chan struct{}

	mu    sync.Mutex
	jobID string
	// submitted, when set, receives the first job ID of the run.
	submitted chan string
}

func (r *run) setJob(id string) {
	r.mu.Lock()
	r.jobID = id
	r.mu.Unlock()
}

// jobSubmitted records the active job and reports the first one to a waiting
// caller.
func (r *run) jobSubmitted(id string) {
	r.setJob(id)
	if r.submitted == nil {
		return
	}
	select {
	case r.submitted <- id:
	default:
	}
}

func (r *run) job() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobID
}
