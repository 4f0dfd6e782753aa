package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"scenegen/internal/assembler"
	"scenegen/internal/assetstore"
	"scenegen/internal/continuity"
	"scenegen/internal/fileutil"
	"scenegen/internal/logging"
	"scenegen/internal/notifications"
	"scenegen/internal/services"
	"scenegen/internal/store"
	"scenegen/internal/textutil"
)

// AssembleScene builds the scene video from its completed shots and waits for
// the result. A completed scene whose video still exists is returned as is.
func (m *Manager) AssembleScene(ctx context.Context, sceneID int64) (AssemblyResult, error) {
	snap, err := m.store.Snapshot(ctx, sceneID)
	if err != nil {
		return AssemblyResult{}, storeError("assemble", err)
	}
	scene := snap.Scene
	if scene.Status == store.SceneCompleted && scene.VideoPath != "" {
		if _, err := os.Stat(scene.VideoPath); err == nil {
			return AssemblyResult{
				VideoPath: scene.VideoPath,
				Duration:  scene.VideoDuration,
				State:     scene.AssemblyState,
				Reused:    true,
			}, nil
		}
	}
	if scene.Status.IsActive() {
		return AssemblyResult{}, services.Wrap(services.ErrConflict, "orchestrator", "assemble",
			fmt.Sprintf("scene %d is %s", sceneID, scene.Status), nil)
	}
	if len(snap.Shots) == 0 {
		return AssemblyResult{}, services.Wrap(services.ErrValidation, "orchestrator", "assemble",
			fmt.Sprintf("scene %d has no shots", sceneID), nil)
	}
	if idx := snap.FirstIncomplete(); idx >= 0 {
		return AssemblyResult{}, services.Wrap(services.ErrValidation, "orchestrator", "assemble",
			fmt.Sprintf("shot %d is %s", snap.Shots[idx].Number, snap.Shots[idx].Status), nil)
	}

	r, runCtx, err := m.claim(ctx, sceneID, runAssemble)
	if err != nil {
		return AssemblyResult{}, err
	}
	defer m.release(sceneID, r)

	if _, err := m.store.TransitionScene(ctx, sceneID,
		[]store.SceneStatus{store.ScenePending, store.SceneFailed, store.SceneCompleted},
		store.SceneAssembling, ""); err != nil {
		return AssemblyResult{}, storeError("assemble", err)
	}
	return m.assemble(m.sceneContext(runCtx, sceneID, r), sceneID)
}

// OutputPath returns where a scene's final video is written.
func (m *Manager) OutputPath(scene store.Scene) string {
	return filepath.Join(m.settings.OutputDir, fmt.Sprintf("%s-%d.mp4", textutil.Slug(scene.Name), scene.ID))
}

// assemble runs the assembler for a scene already in the assembling state and
// records the outcome. Failures mark the scene failed.
func (m *Manager) assemble(ctx context.Context, sceneID int64) (AssemblyResult, error) {
	ctx = services.WithStage(ctx, "assembly")
	logger := logging.WithContext(ctx, m.logger)
	persistCtx := context.WithoutCancel(ctx)

	snap, err := m.store.Snapshot(ctx, sceneID)
	if err != nil {
		err = storeError("assemble", err)
		m.failScene(ctx, sceneID, "", err)
		return AssemblyResult{}, err
	}
	scene := snap.Scene

	links := make([]continuity.Link, len(snap.Shots))
	shots := make([]assembler.Shot, len(snap.Shots))
	for i, shot := range snap.Shots {
		links[i] = continuity.Link{
			ShotNumber: shot.Number,
			FirstFrame: shot.FirstFrame,
			LastFrame:  shot.LastFrame,
			Completed:  shot.Status == store.ShotCompleted,
		}
		shots[i] = assembler.Shot{
			Number:             shot.Number,
			VideoPath:          shot.VideoPath,
			Duration:           shot.Duration,
			Transition:         shot.Transition,
			TransitionDuration: shot.TransitionDuration,
			DialogueText:       shot.DialogueText,
			DialogueAudio:      shot.DialogueAudio,
		}
	}
	if err := continuity.VerifyChain(links); err != nil {
		m.failScene(ctx, sceneID, scene.Name, err)
		return AssemblyResult{}, err
	}
	if idx := snap.FirstIncomplete(); idx >= 0 {
		err := services.Wrap(services.ErrInvariant, "orchestrator", "assemble",
			fmt.Sprintf("shot %d is not completed", snap.Shots[idx].Number), nil)
		m.failScene(ctx, sceneID, scene.Name, err)
		return AssemblyResult{}, err
	}

	input := assembler.Input{
		SceneID:    sceneID,
		Shots:      shots,
		MusicPath:  scene.MusicPath,
		Mood:       scene.Mood,
		OutputPath: filepath.Join(m.sceneWorkDir(sceneID), "render", filepath.Base(m.OutputPath(scene))),
		WorkDir:    m.sceneWorkDir(sceneID),
	}
	result, err := m.assembler.Assemble(ctx, input, func(state assembler.State) {
		if err := m.store.SetAssemblyState(persistCtx, sceneID, string(state)); err != nil {
			logging.WarnWithContext(logger, "failed to persist assembly state", "assembly_state_failed",
				logging.String("state", string(state)),
				logging.Error(err),
			)
		}
	})
	if err != nil {
		m.failScene(ctx, sceneID, scene.Name, err)
		return AssemblyResult{}, err
	}
	published, err := m.publish(scene, result)
	if err != nil {
		m.failScene(ctx, sceneID, scene.Name, err)
		return AssemblyResult{}, err
	}
	result.VideoPath = published

	if err := m.store.SetSceneResult(persistCtx, sceneID, result.VideoPath, result.Duration, string(result.State)); err != nil {
		err = storeError("record result", err)
		m.failScene(ctx, sceneID, scene.Name, err)
		return AssemblyResult{}, err
	}

	out := AssemblyResult{
		VideoPath: result.VideoPath,
		Duration:  result.Duration,
		State:     string(result.State),
		Warnings:  result.Warnings,
	}
	m.archiveScene(ctx, scene, result.VideoPath)

	if result.State == assembler.StateDegraded {
		reason := "audio mix failed"
		if n := len(result.Warnings); n > 0 {
			reason = result.Warnings[n-1]
		}
		m.notify(ctx, notifications.EventSceneDegraded, notifications.Payload{
			"scene":  scene.Name,
			"reason": reason,
			"video":  result.VideoPath,
		})
	} else {
		m.notify(ctx, notifications.EventSceneCompleted, notifications.Payload{
			"scene":    scene.Name,
			"duration": result.Duration,
			"video":    result.VideoPath,
		})
	}
	logger.Info("scene completed",
		logging.String("video", result.VideoPath),
		logging.Float64("duration_seconds", result.Duration),
		logging.String("assembly_state", string(result.State)),
	)
	return out, nil
}

// publish moves the rendered video from the scene work directory into the
// output directory. Degraded renders keep their video-only suffix.
func (m *Manager) publish(scene store.Scene, result assembler.Result) (string, error) {
	dest := m.OutputPath(scene)
	if result.State == assembler.StateDegraded {
		dest = assembler.VideoOnlyPath(dest)
	}
	if result.VideoPath == dest {
		return dest, nil
	}
	if err := fileutil.MoveFile(result.VideoPath, dest); err != nil {
		return "", services.Wrap(services.ErrTransient, "orchestrator", "publish",
			fmt.Sprintf("move %s to output directory", filepath.Base(result.VideoPath)), err)
	}
	return dest, nil
}

// archiveScene copies the final video to the configured asset store. Archive
// failures never change the scene outcome.
func (m *Manager) archiveScene(ctx context.Context, scene store.Scene, videoPath string) {
	if m.archive == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger)
	loc, err := m.archive.Put(context.WithoutCancel(ctx), videoPath, assetstore.SceneKey(scene.ID, scene.Name, videoPath))
	if err != nil {
		logging.WarnWithContext(logger, "scene archive failed", "archive_failed",
			logging.String("backend", m.archive.Backend()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check storage credentials and bucket"),
			logging.String(logging.FieldImpact, "scene video remains only in the output directory"),
		)
		return
	}
	logger.Info("scene archived",
		logging.String("backend", loc.Backend),
		logging.String("uri", loc.URI),
		logging.Int64("size_bytes", loc.Size),
	)
}
