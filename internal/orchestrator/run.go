package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"scenegen/internal/continuity"
	"scenegen/internal/logging"
	"scenegen/internal/notifications"
	"scenegen/internal/services"
	"scenegen/internal/shotgen"
	"scenegen/internal/store"
)

// StartScene begins background generation of a scene. Generation resumes
// from the first shot that is not completed; when every shot is already
// completed the scene goes straight to assembly.
func (m *Manager) StartScene(ctx context.Context, sceneID int64) (Estimate, error) {
	snap, err := m.store.Snapshot(ctx, sceneID)
	if err != nil {
		return Estimate{}, storeError("start", err)
	}
	if len(snap.Shots) == 0 {
		return Estimate{}, services.Wrap(services.ErrValidation, "orchestrator", "start",
			fmt.Sprintf("scene %d has no shots", sceneID), nil)
	}
	switch snap.Scene.Status {
	case store.SceneGenerating, store.SceneAssembling:
		return Estimate{}, services.Wrap(services.ErrConflict, "orchestrator", "start",
			fmt.Sprintf("scene %d is already %s", sceneID, snap.Scene.Status), nil)
	case store.SceneCompleted:
		return Estimate{}, services.Wrap(services.ErrConflict, "orchestrator", "start",
			fmt.Sprintf("scene %d is completed; retry a shot or re-assemble instead", sceneID), nil)
	}
	if err := m.settings.Policy.Validate(); err != nil {
		return Estimate{}, err
	}

	r, runCtx, err := m.claim(nil, sceneID, runGenerate)
	if err != nil {
		return Estimate{}, err
	}

	first := snap.FirstIncomplete()
	target := store.SceneGenerating
	remaining := 0
	if first < 0 {
		target = store.SceneAssembling
	} else {
		remaining = len(snap.Shots) - first
	}
	if _, err := m.store.TransitionScene(ctx, sceneID,
		[]store.SceneStatus{store.ScenePending, store.SceneFailed}, target, ""); err != nil {
		m.release(sceneID, r)
		return Estimate{}, storeError("start", err)
	}

	estimate := Estimate{
		RunID:             r.id,
		RemainingShots:    remaining,
		EstimatedDuration: time.Duration(remaining) * m.settings.AttemptEstimate,
		TargetDuration:    snap.Scene.TargetDuration,
	}

	logger := logging.WithContext(m.sceneContext(ctx, sceneID, r), m.logger)
	logger.Info("scene generation started",
		logging.String("scene", snap.Scene.Name),
		logging.Int("shots", len(snap.Shots)),
		logging.Int("resume_from", first+1),
		logging.Duration("estimate", estimate.EstimatedDuration),
	)
	m.notify(ctx, notifications.EventSceneStarted, notifications.Payload{
		"scene":    snap.Scene.Name,
		"shots":    remaining,
		"estimate": estimate.EstimatedDuration.String(),
	})

	go func() {
		defer m.release(sceneID, r)
		m.runScene(m.sceneContext(runCtx, sceneID, r), sceneID, first, r)
	}()
	return estimate, nil
}

// runScene generates shots from index start onward and then assembles. A
// negative start means every shot is already completed.
func (m *Manager) runScene(ctx context.Context, sceneID int64, start int, r *run) {
	logger := logging.WithContext(ctx, m.logger)

	if start >= 0 {
		snap, err := m.store.Snapshot(ctx, sceneID)
		if err != nil {
			m.failScene(ctx, sceneID, "", storeError("load scene", err))
			return
		}
		// Regenerating a shot resets every later shot, so all shots from
		// start onward run in order.
		for i := start; i < len(snap.Shots); i++ {
			if err := ctx.Err(); err != nil {
				m.failScene(ctx, sceneID, snap.Scene.Name, services.Wrap(services.ErrCanceled, "orchestrator", "generate",
					fmt.Sprintf("canceled before shot %d", snap.Shots[i].Number), err))
				return
			}
			previous := ""
			if i > 0 {
				previous = snap.Shots[i-1].LastFrame
			}
			if err := m.generateShot(ctx, &snap.Scene, &snap.Shots[i], previous, r); err != nil {
				m.failScene(ctx, sceneID, snap.Scene.Name, err)
				return
			}
		}
		if err := ctx.Err(); err != nil {
			m.failScene(ctx, sceneID, snap.Scene.Name, services.Wrap(services.ErrCanceled, "orchestrator", "generate",
				"canceled after the last shot", err))
			return
		}
		if _, err := m.store.TransitionScene(ctx, sceneID,
			[]store.SceneStatus{store.SceneGenerating}, store.SceneAssembling, ""); err != nil {
			m.failScene(ctx, sceneID, snap.Scene.Name, storeError("begin assembly", err))
			return
		}
	}

	if err := ctx.Err(); err != nil {
		m.failScene(ctx, sceneID, "", services.Wrap(services.ErrCanceled, "orchestrator", "assemble", "canceled before assembly", err))
		return
	}
	if _, err := m.assemble(ctx, sceneID); err != nil {
		logger.Debug("scene run ended with assembly failure", logging.Error(err))
		return
	}
	logger.Info("scene run finished")
}

// generateShot runs the controller for one shot and persists the outcome.
// On success every later shot is reset because its first frame is stale.
func (m *Manager) generateShot(ctx context.Context, scene *store.Scene, shot *store.Shot, previousLastFrame string, r *run) error {
	ctx = services.WithShotNumber(ctx, shot.Number)
	logger := logging.WithContext(ctx, m.logger)

	firstFrame, err := continuity.FirstFrame(shot.Number, shot.SourceImage, previousLastFrame)
	if err != nil {
		m.markShotFailed(ctx, shot, err, logger)
		return err
	}

	shot.Status = store.ShotGenerating
	shot.FirstFrame = firstFrame
	shot.LastFrame = ""
	shot.VideoPath = ""
	shot.HasScore = false
	shot.Score = 0
	shot.Attempts = 0
	shot.ErrorMessage = ""
	if err := m.store.UpdateShot(ctx, shot); err != nil {
		return storeError("update shot", err)
	}

	input := shotgen.ShotInput{
		SceneID:    scene.ID,
		ShotID:     shot.ID,
		ShotNumber: shot.Number,
		Prompt:     shot.Prompt,
		Duration:   shot.Duration,
		Characters: shot.Characters,
		Mood:       scene.Mood,
		WorkDir:    m.sceneWorkDir(scene.ID),
	}
	observer := shotgen.ObserverFuncs{
		OnJobSubmitted: func(_ context.Context, _ shotgen.ShotInput, _ int, jobID string) {
			r.jobSubmitted(jobID)
		},
		OnAttemptFinished: func(ctx context.Context, _ shotgen.ShotInput, attempt shotgen.AttemptResult) {
			r.setJob("")
			m.recordAttempt(ctx, shot, attempt, logger)
		},
	}

	result, err := m.generator.Generate(ctx, input, firstFrame, m.settings.Policy, observer)
	r.setJob("")
	if err != nil {
		m.markShotFailed(ctx, shot, err, logger)
		return err
	}

	// The accepted clip is on disk; record it even if the run was canceled
	// while the controller returned.
	persistCtx := context.WithoutCancel(ctx)
	shot.Status = store.ShotCompleted
	shot.VideoPath = result.VideoPath
	shot.LastFrame = result.LastFramePath
	shot.Score = result.Score
	shot.HasScore = true
	shot.Attempts = len(result.Attempts)
	shot.Seed = result.Seed
	shot.Steps = result.Steps
	shot.ErrorMessage = ""
	if err := m.store.UpdateShot(persistCtx, shot); err != nil {
		m.markShotFailed(ctx, shot, err, logger)
		return storeError("complete shot", err)
	}
	if n, err := m.store.ResetShotsAfter(persistCtx, scene.ID, shot.Number); err != nil {
		return storeError("reset later shots", err)
	} else if n > 0 {
		logger.Debug("later shots reset to pending", logging.Int64("count", n))
	}

	logger.Info("shot completed",
		logging.Float64("score", result.Score),
		logging.Int("attempt_used", result.AttemptUsed),
		logging.Bool("passed", result.Passed),
	)
	if !result.Passed {
		threshold := 0.0
		if idx := result.AttemptUsed - 1; idx >= 0 && idx < len(m.settings.Policy) {
			threshold = m.settings.Policy[idx].Threshold
		}
		m.notify(ctx, notifications.EventLowQuality, notifications.Payload{
			"scene":     scene.Name,
			"shot":      shot.Number,
			"score":     result.Score,
			"threshold": threshold,
			"mood":      scene.Mood,
		})
	}
	return nil
}

// recordAttempt persists an attempt and advances the shot to scored once any
// attempt produced a score. Persistence failures are logged, not fatal.
func (m *Manager) recordAttempt(ctx context.Context, shot *store.Shot, attempt shotgen.AttemptResult, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	if err := m.store.RecordAttempt(ctx, &store.Attempt{
		ShotID:      shot.ID,
		Number:      attempt.Number,
		Seed:        attempt.Seed,
		Steps:       attempt.Steps,
		JobID:       attempt.JobID,
		Score:       attempt.Score,
		Threshold:   attempt.Threshold,
		Passed:      attempt.Passed,
		HardFailure: attempt.HardFailure,
		Error:       attempt.Error,
		VideoPath:   attempt.VideoPath,
	}); err != nil {
		logging.WarnWithContext(logger, "failed to record attempt", "attempt_record_failed",
			logging.Int(logging.FieldAttempt, attempt.Number),
			logging.Error(err),
		)
	}

	shot.Attempts = attempt.Number
	if !attempt.HardFailure {
		shot.Status = store.ShotScored
		if !shot.HasScore || attempt.Score > shot.Score {
			shot.Score = attempt.Score
			shot.HasScore = true
		}
	}
	if err := m.store.UpdateShot(ctx, shot); err != nil {
		logging.WarnWithContext(logger, "failed to persist shot progress", "shot_update_failed", logging.Error(err))
	}
}

func (m *Manager) markShotFailed(ctx context.Context, shot *store.Shot, cause error, logger *slog.Logger) {
	shot.Status = store.ShotFailed
	shot.ErrorMessage = services.FailureMessage(cause)
	if err := m.store.UpdateShot(context.WithoutCancel(ctx), shot); err != nil {
		logger.Error("failed to persist shot failure", logging.Error(err))
	}
}

// failScene marks the scene failed. Cancellations are recorded without an
// alert; invariant violations are logged at ERROR with their own event type.
func (m *Manager) failScene(ctx context.Context, sceneID int64, sceneName string, cause error) {
	persistCtx := context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, m.logger)
	message := services.FailureMessage(cause)

	if _, err := m.store.TransitionScene(persistCtx, sceneID, nil, store.SceneFailed, message); err != nil {
		logger.Error("failed to persist scene failure", logging.Error(err), logging.String("cause", message))
	}

	switch {
	case errors.Is(cause, services.ErrCanceled):
		logging.WarnWithContext(logger, "scene canceled", "scene_canceled",
			logging.String("reason", message),
			logging.String(logging.FieldImpact, "scene stopped; start it again to resume"),
		)
		return
	case errors.Is(cause, services.ErrInvariant):
		logging.ErrorWithContext(logger, "scene invariant violated", "scene_invariant",
			logging.Error(cause),
			logging.String(logging.FieldAlert, "invariant"),
			logging.String(logging.FieldErrorHint, "inspect shot frames; retry the first failed shot"),
		)
	default:
		logging.ErrorWithContext(logger, "scene failed", "scene_failed",
			logging.Error(cause),
			logging.String(logging.FieldErrorHint, "check backend and scorer health, then restart the scene"),
		)
	}
	if sceneName == "" {
		if scene, err := m.store.GetScene(persistCtx, sceneID); err == nil {
			sceneName = scene.Name
		}
	}
	m.notify(ctx, notifications.EventSceneFailed, notifications.Payload{
		"scene": sceneName,
		"error": message,
	})
}
