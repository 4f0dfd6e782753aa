package orchestrator

import (
	"context"
	"fmt"

	"scenegen/internal/logging"
	"scenegen/internal/services"
	"scenegen/internal/store"
)

// RetryShot regenerates one shot in the background. It returns once the first
// generation job is submitted, so the returned job ID can be polled. The scene
// must not be running and the shot's predecessor must be completed. The scene
// returns to pending; once the shot succeeds every later shot is reset to
// pending because its first frame is stale.
func (m *Manager) RetryShot(ctx context.Context, sceneID, shotID int64) (Retry, error) {
	snap, err := m.store.Snapshot(ctx, sceneID)
	if err != nil {
		return Retry{}, storeError("retry", err)
	}
	if snap.Scene.Status.IsActive() {
		return Retry{}, services.Wrap(services.ErrConflict, "orchestrator", "retry",
			fmt.Sprintf("scene %d is %s", sceneID, snap.Scene.Status), nil)
	}
	index := -1
	for i, shot := range snap.Shots {
		if shot.ID == shotID {
			index = i
			break
		}
	}
	if index < 0 {
		return Retry{}, services.Wrap(services.ErrNotFound, "orchestrator", "retry",
			fmt.Sprintf("shot %d not in scene %d", shotID, sceneID), nil)
	}
	previous := ""
	if index > 0 {
		prev := snap.Shots[index-1]
		if prev.Status != store.ShotCompleted {
			return Retry{}, services.Wrap(services.ErrConflict, "orchestrator", "retry",
				fmt.Sprintf("shot %d requires shot %d to be completed first", snap.Shots[index].Number, prev.Number), nil)
		}
		previous = prev.LastFrame
	}

	r, runCtx, err := m.claim(nil, sceneID, runRetry)
	if err != nil {
		return Retry{}, err
	}
	r.submitted = make(chan string, 1)
	if snap.Scene.Status != store.ScenePending {
		if _, err := m.store.TransitionScene(ctx, sceneID,
			[]store.SceneStatus{store.SceneFailed, store.SceneCompleted}, store.ScenePending, ""); err != nil {
			m.release(sceneID, r)
			return Retry{}, storeError("retry", err)
		}
		snap.Scene.Status = store.ScenePending
	}

	scene := snap.Scene
	shot := snap.Shots[index]
	logging.WithContext(m.sceneContext(ctx, sceneID, r), m.logger).Info("shot retry started",
		logging.Int(logging.FieldShotNumber, shot.Number),
		logging.String("previous_status", string(shot.Status)),
	)

	finished := make(chan error, 1)
	go func() {
		defer m.release(sceneID, r)
		runCtx := m.sceneContext(runCtx, sceneID, r)
		if err := runCtx.Err(); err != nil {
			err = services.Wrap(services.ErrCanceled, "orchestrator", "retry", "canceled", err)
			m.failScene(runCtx, sceneID, scene.Name, err)
			finished <- err
			return
		}
		if err := m.generateShot(runCtx, &scene, &shot, previous, r); err != nil {
			m.failScene(runCtx, sceneID, scene.Name, err)
			finished <- err
			return
		}
		logging.WithContext(runCtx, m.logger).Info("shot retry finished",
			logging.Int(logging.FieldShotNumber, shot.Number),
			logging.Float64("score", shot.Score),
		)
		finished <- nil
	}()

	retry := Retry{RunID: r.id}
	select {
	case retry.JobID = <-r.submitted:
		return retry, nil
	case err := <-finished:
		// A run that ended quickly may still have submitted a job.
		select {
		case retry.JobID = <-r.submitted:
			return retry, nil
		default:
		}
		if err != nil {
			return retry, err
		}
		return retry, services.Wrap(services.ErrInvariant, "orchestrator", "retry",
			fmt.Sprintf("shot %d finished without submitting a job", shot.Number), nil)
	case <-ctx.Done():
		return retry, services.Wrap(services.ErrCanceled, "orchestrator", "retry",
			"stopped waiting for the first job; the retry continues", ctx.Err())
	}
}
