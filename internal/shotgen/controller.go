package shotgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"scenegen/internal/genqueue"
	"scenegen/internal/logging"
	"scenegen/internal/metrics"
	"scenegen/internal/quality"
	"scenegen/internal/services"
	"scenegen/internal/services/genbackend"
)

// Render carries output geometry forwarded to every job.
type Render struct {
	Width  int
	Height int
	FPS    int
}

// Option configures a Controller.
type Option func(*Controller)

// WithSeedSource overrides the random seed source.
func WithSeedSource(seeds SeedSource) Option {
	return func(c *Controller) {
		if seeds != nil {
			c.seeds = seeds
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "shotgen")
		}
	}
}

// WithMetrics records attempt outcomes and accepted scores on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithRender sets the width, height, and fps sent with each job.
func WithRender(r Render) Option {
	return func(c *Controller) { c.render = r }
}

// Controller runs the attempt loop for one shot at a time.
type Controller struct {
	jobs      Jobs
	extractor FrameExtractor
	gate      Gate
	seeds     SeedSource
	render    Render
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewController wires a Controller.
func NewController(jobs Jobs, extractor FrameExtractor, gate Gate, opts ...Option) *Controller {
	c := &Controller{
		jobs:      jobs,
		extractor: extractor,
		gate:      gate,
		seeds:     RandomSeeds,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate produces an accepted clip for shot starting from firstFrame.
// observer may be nil.
func (c *Controller) Generate(ctx context.Context, shot ShotInput, firstFrame string, policy Policy, observer Observer) (Result, error) {
	if err := policy.Validate(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(firstFrame) == "" {
		return Result{}, services.Wrap(services.ErrInvariant, "shotgen", "generate",
			fmt.Sprintf("shot %d has no first frame", shot.ShotNumber), nil)
	}
	if observer == nil {
		observer = ObserverFuncs{}
	}
	if shot.WorkDir == "" {
		shot.WorkDir = os.TempDir()
	}
	if err := os.MkdirAll(shot.WorkDir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "shotgen", "generate", "create work dir", err)
	}

	ctx = services.WithShotNumber(services.WithSceneID(ctx, shot.SceneID), shot.ShotNumber)
	logger := logging.WithContext(ctx, c.logger)

	var (
		attempts []AttemptResult
		best     = -1
		passed   = -1
	)
	for k, rule := range policy {
		if err := ctx.Err(); err != nil {
			c.cleanup(attempts, -1)
			return Result{Attempts: attempts}, services.Wrap(services.ErrCanceled, "shotgen", "generate",
				fmt.Sprintf("canceled before attempt %d", k+1), err)
		}

		attempt, err := c.runAttempt(ctx, shot, firstFrame, k+1, rule, observer, logger)
		if err != nil {
			if attempt.VideoPath != "" {
				attempts = append(attempts, attempt)
			}
			c.cleanup(attempts, -1)
			return Result{Attempts: attempts}, err
		}
		attempts = append(attempts, attempt)
		observer.AttemptFinished(ctx, shot, attempt)
		c.metrics.ObserveAttempt(attemptOutcome(attempt))

		if attempt.HardFailure {
			continue
		}
		if best < 0 || attempt.Score > attempts[best].Score {
			best = len(attempts) - 1
		}
		if attempt.Passed {
			passed = len(attempts) - 1
			break
		}
	}

	if passed >= 0 {
		best = passed
	}
	if best < 0 {
		c.cleanup(attempts, -1)
		logging.ErrorWithContext(logger, "every generation attempt failed", "shot_failed",
			logging.Int("attempts", len(attempts)),
			logging.String(logging.FieldErrorHint, "check backend health and job logs"),
		)
		return Result{Attempts: attempts}, services.Wrap(services.ErrExternalTool, "shotgen", "generate",
			fmt.Sprintf("shot %d: %d attempts", shot.ShotNumber, len(attempts)), ErrAllAttemptsFailed)
	}

	chosen := attempts[best]
	c.cleanup(attempts, best)
	c.metrics.ObserveShotScore(chosen.Score)

	reason := "threshold met"
	result := "accepted"
	if !chosen.Passed {
		reason = "no attempt met its threshold; highest score kept"
		result = "accepted_best"
	}
	logger.Info("shot accepted", logging.Decision("shot_acceptance", result, reason,
		logging.Int("attempt_used", chosen.Number),
		logging.Float64("score", chosen.Score),
		logging.Float64("threshold", chosen.Threshold),
		logging.Int("attempts", len(attempts)),
	)...)

	return Result{
		VideoPath:     chosen.VideoPath,
		LastFramePath: chosen.LastFramePath,
		Score:         chosen.Score,
		AttemptUsed:   chosen.Number,
		Seed:          chosen.Seed,
		Steps:         chosen.Steps,
		Passed:        chosen.Passed,
		Attempts:      attempts,
	}, nil
}

// runAttempt executes one attempt. A non-nil error aborts the whole shot;
// recoverable problems are reported as a hard-failure AttemptResult.
func (c *Controller) runAttempt(ctx context.Context, shot ShotInput, firstFrame string, number int, rule Attempt, observer Observer, logger *slog.Logger) (AttemptResult, error) {
	attempt := AttemptResult{
		Number:    number,
		Seed:      c.seeds(),
		Steps:     rule.Steps,
		Threshold: rule.Threshold,
		VideoPath: filepath.Join(shot.WorkDir, fmt.Sprintf("shot_%03d_attempt_%d.mp4", shot.ShotNumber, number)),
	}
	logger = logger.With(logging.Int(logging.FieldAttempt, number))

	jobID, err := c.jobs.Submit(ctx, genqueue.Request{
		Request: genbackend.Request{
			Prompt:          shot.Prompt,
			FirstFrame:      firstFrame,
			Seed:            attempt.Seed,
			Steps:           rule.Steps,
			Width:           c.render.Width,
			Height:          c.render.Height,
			FPS:             c.render.FPS,
			DurationSeconds: shot.Duration,
		},
		OutputPath: attempt.VideoPath,
	})
	if err != nil {
		if !services.IsRetryable(err) || ctx.Err() != nil {
			return attempt, err
		}
		return c.hardFailure(attempt, err.Error(), logger), nil
	}
	attempt.JobID = jobID
	observer.JobSubmitted(ctx, shot, number, jobID)

	status, err := c.jobs.Wait(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			_ = c.jobs.Cancel(jobID)
			return attempt, services.Wrap(services.ErrCanceled, "shotgen", "generate",
				fmt.Sprintf("canceled during attempt %d", number), ctx.Err())
		}
		return c.hardFailure(attempt, err.Error(), logger), nil
	}
	if status.State != genqueue.StateCompleted {
		attempt.TimedOut = status.TimedOut
		return c.hardFailure(attempt, status.Error, logger), nil
	}

	frame, err := c.extractor.ExtractLastFrame(ctx, attempt.VideoPath)
	if err != nil {
		if ctx.Err() != nil {
			return attempt, services.Wrap(services.ErrCanceled, "shotgen", "generate", "canceled during frame extraction", ctx.Err())
		}
		return c.hardFailure(attempt, err.Error(), logger), nil
	}
	attempt.LastFramePath = frame

	verdict := c.gate.Score(ctx, quality.Artifact{VideoPath: attempt.VideoPath, FramePath: frame}, quality.Context{
		SceneID:    shot.SceneID,
		ShotNumber: shot.ShotNumber,
		Prompt:     shot.Prompt,
		Characters: shot.Characters,
		Mood:       shot.Mood,
	})
	// A scorer call aborted by cancellation comes back as the fallback score.
	if err := ctx.Err(); err != nil {
		return attempt, services.Wrap(services.ErrCanceled, "shotgen", "generate",
			fmt.Sprintf("canceled while scoring attempt %d", number), err)
	}
	attempt.Score = verdict.Score
	attempt.Fallback = verdict.Fallback
	attempt.Diagnostics = verdict.Diagnostics
	attempt.Passed = quality.Passes(verdict.Score, rule.Threshold)

	logger.Info("attempt scored",
		logging.Float64("score", attempt.Score),
		logging.Float64("threshold", attempt.Threshold),
		logging.Bool("passed", attempt.Passed),
		logging.Bool("fallback_score", attempt.Fallback),
		logging.Int("steps", attempt.Steps),
		logging.Int64("seed", attempt.Seed),
	)
	return attempt, nil
}

func (c *Controller) hardFailure(attempt AttemptResult, message string, logger *slog.Logger) AttemptResult {
	attempt.HardFailure = true
	attempt.Score = HardFailureScore
	attempt.Error = strings.TrimSpace(message)
	logging.WarnWithContext(logger, "generation attempt failed", "attempt_failed",
		logging.String("error", attempt.Error),
		logging.Bool("timed_out", attempt.TimedOut),
		logging.String(logging.FieldErrorHint, "the next attempt will retry with a new seed"),
		logging.String(logging.FieldImpact, "attempt budget consumed"),
	)
	return attempt
}

// cleanup removes artifacts of every attempt except keep.
func (c *Controller) cleanup(attempts []AttemptResult, keep int) {
	for i, a := range attempts {
		if i == keep {
			continue
		}
		for _, path := range []string{a.VideoPath, a.LastFramePath} {
			if path == "" {
				continue
			}
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				c.logger.Debug("attempt cleanup failed", logging.String("path", path), logging.Error(err))
			}
		}
	}
}

func attemptOutcome(a AttemptResult) string {
	switch {
	case a.HardFailure && a.TimedOut:
		return "timeout"
	case a.HardFailure:
		return "hard_failure"
	case a.Passed:
		return "passed"
	default:
		return "below_threshold"
	}
}
