package shotgen

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"

	"scenegen/internal/genqueue"
	"scenegen/internal/quality"
)

// HardFailureScore is recorded for attempts that produced no scorable output.
const HardFailureScore = -1.0

// ErrAllAttemptsFailed is returned when every attempt hard-failed.
var ErrAllAttemptsFailed = errors.New("all generation attempts failed")

// Jobs is the job queue surface the controller drives.
type Jobs interface {
	Submit(ctx context.Context, req genqueue.Request) (string, error)
	Wait(ctx context.Context, jobID string) (genqueue.JobStatus, error)
	Cancel(jobID string) error
}

// FrameExtractor pulls the last frame out of a generated clip.
type FrameExtractor interface {
	ExtractLastFrame(ctx context.Context, videoPath string) (string, error)
}

// Gate scores a generated clip.
type Gate interface {
	Score(ctx context.Context, artifact quality.Artifact, shot quality.Context) quality.Result
}

// SeedSource yields a fresh seed per attempt.
type SeedSource func() int64

// RandomSeeds draws seeds from the process-wide random source.
func RandomSeeds() int64 {
	return rand.Int64N(math.MaxUint32)
}

// ShotInput describes the shot being generated.
type ShotInput struct {
	SceneID    int64
	ShotID     int64
	ShotNumber int
	Prompt     string
	Duration   float64
	Characters []string
	Mood       string
	// WorkDir receives attempt outputs.
	WorkDir string
}

// AttemptResult records one finished attempt.
type AttemptResult struct {
	Number        int
	Seed          int64
	Steps         int
	JobID         string
	Score         float64
	Threshold     float64
	Passed        bool
	HardFailure   bool
	TimedOut      bool
	Fallback      bool
	Error         string
	VideoPath     string
	LastFramePath string
	Diagnostics   map[string]any
}

// Result is the accepted attempt plus the full attempt history.
type Result struct {
	VideoPath     string
	LastFramePath string
	Score         float64
	AttemptUsed   int
	Seed          int64
	Steps         int
	Passed        bool
	Attempts      []AttemptResult
}

// Observer receives attempt lifecycle callbacks.
type Observer interface {
	JobSubmitted(ctx context.Context, shot ShotInput, attempt int, jobID string)
	AttemptFinished(ctx context.Context, shot ShotInput, attempt AttemptResult)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnJobSubmitted    func(ctx context.Context, shot ShotInput, attempt int, jobID string)
	OnAttemptFinished func(ctx context.Context, shot ShotInput, attempt AttemptResult)
}

// JobSubmitted implements Observer.
func (o ObserverFuncs) JobSubmitted(ctx context.Context, shot ShotInput, attempt int, jobID string) {
	if o.OnJobSubmitted != nil {
		o.OnJobSubmitted(ctx, shot, attempt, jobID)
	}
}

// AttemptFinished implements Observer.
func (o ObserverFuncs) AttemptFinished(ctx context.Context, shot ShotInput, attempt AttemptResult) {
	if o.OnAttemptFinished != nil {
		o.OnAttemptFinished(ctx, shot, attempt)
	}
}
