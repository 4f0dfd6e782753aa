package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateScene inserts a scene and its ordered shots in a single transaction.
func (s *Store) CreateScene(ctx context.Context, spec NewScene) (*Scene, error) {
	ctx = ensureContext(ctx)
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, errors.New("scene name is required")
	}
	now := nowString()
	var sceneID int64
	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO scenes (name, status, mood, music_path, target_duration, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			name, ScenePending, nullableString(spec.Mood), nullableString(spec.MusicPath),
			spec.TargetDuration, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert scene: %w", err)
		}
		sceneID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("scene id: %w", err)
		}
		for i, shot := range spec.Shots {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO shots (scene_id, shot_number, prompt, duration, characters, source_image, status,
                    dialogue_text, dialogue_audio, transition, transition_duration, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				sceneID, i+1, shot.Prompt, shot.Duration, encodeCharacters(shot.Characters),
				nullableString(shot.SourceImage), ShotPending,
				nullableString(shot.DialogueText), nullableString(shot.DialogueAudio),
				nullableString(shot.Transition), nullablePositive(shot.TransitionDuration), now,
			); err != nil {
				return fmt.Errorf("insert shot %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetScene(ctx, sceneID)
}

// GetScene fetches a scene by ID.
func (s *Store) GetScene(ctx context.Context, id int64) (*Scene, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+sceneColumns+" FROM scenes WHERE id = ?", id)
	scene, err := scanScene(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scene %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get scene: %w", err)
	}
	return scene, nil
}

// ListScenes returns scenes ordered by creation, optionally filtered by status.
func (s *Store) ListScenes(ctx context.Context, statuses ...SceneStatus) ([]*Scene, error) {
	query := "SELECT " + sceneColumns + " FROM scenes"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	defer rows.Close()

	var scenes []*Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		scenes = append(scenes, scene)
	}
	return scenes, rows.Err()
}

// DeleteScene removes a scene together with its shots and attempts.
func (s *Store) DeleteScene(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, "DELETE FROM scenes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete scene: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("scene %d: %w", id, ErrNotFound)
	}
	return nil
}

// TransitionScene moves a scene to a new status when its current status is
// one of from. An empty from accepts any current status. The transition table
// is enforced in the same transaction as the read.
func (s *Store) TransitionScene(ctx context.Context, id int64, from []SceneStatus, to SceneStatus, errorMessage string) (*Scene, error) {
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		var current string
		if err := tx.QueryRowContext(ctx, "SELECT status FROM scenes WHERE id = ?", id).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("scene %d: %w", id, ErrNotFound)
			}
			return err
		}
		status := SceneStatus(current)
		if len(from) > 0 && !containsStatus(from, status) {
			return fmt.Errorf("scene %d is %s: %w", id, status, ErrStatusMismatch)
		}
		if !CanTransition(status, to) {
			return fmt.Errorf("scene %d %s -> %s: %w", id, status, to, ErrInvalidTransition)
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE scenes SET status = ?, error_message = ?, updated_at = ? WHERE id = ?",
			to, nullableString(errorMessage), nowString(), id,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetScene(ctx, id)
}

// SetAssemblyState records the assembler's current stage for a scene.
func (s *Store) SetAssemblyState(ctx context.Context, id int64, state string) error {
	_, err := s.execWithRetry(ctx,
		"UPDATE scenes SET assembly_state = ?, updated_at = ? WHERE id = ?",
		nullableString(state), nowString(), id,
	)
	if err != nil {
		return fmt.Errorf("set assembly state: %w", err)
	}
	return nil
}

// SetSceneResult stores the final artifact and marks the scene completed.
func (s *Store) SetSceneResult(ctx context.Context, id int64, videoPath string, duration float64, assemblyState string) error {
	ctx = ensureContext(ctx)
	return s.withTx(ctx, nil, func(tx *sql.Tx) error {
		var current string
		if err := tx.QueryRowContext(ctx, "SELECT status FROM scenes WHERE id = ?", id).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("scene %d: %w", id, ErrNotFound)
			}
			return err
		}
		if status := SceneStatus(current); status != SceneCompleted && !CanTransition(status, SceneCompleted) {
			return fmt.Errorf("scene %d %s -> %s: %w", id, status, SceneCompleted, ErrInvalidTransition)
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE scenes SET status = ?, video_path = ?, video_duration = ?, assembly_state = ?,
                error_message = NULL, updated_at = ? WHERE id = ?`,
			SceneCompleted, nullableString(videoPath), duration, nullableString(assemblyState), nowString(), id,
		)
		return err
	})
}

// ReclaimInterrupted fails scenes left generating or assembling by a previous
// daemon process and resets their in-flight shots.
func (s *Store) ReclaimInterrupted(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var reclaimed int64
	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		now := nowString()
		res, err := tx.ExecContext(ctx,
			`UPDATE scenes SET status = ?, error_message = ?, updated_at = ?
             WHERE status IN (?, ?)`,
			SceneFailed, InterruptedReason, now, SceneGenerating, SceneAssembling,
		)
		if err != nil {
			return err
		}
		reclaimed, _ = res.RowsAffected()
		_, err = tx.ExecContext(ctx,
			`UPDATE shots SET status = ?, error_message = ?, updated_at = ?
             WHERE status IN (?, ?)`,
			ShotFailed, InterruptedReason, now, ShotGenerating, ShotScored,
		)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reclaim interrupted scenes: %w", err)
	}
	return reclaimed, nil
}

// Stats returns scene counts keyed by status.
func (s *Store) Stats(ctx context.Context) (map[SceneStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT status, COUNT(*) FROM scenes GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("scene stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[SceneStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[SceneStatus(status)] = count
	}
	return stats, rows.Err()
}

// Snapshot reads a scene and its shots inside one read-only transaction.
func (s *Store) Snapshot(ctx context.Context, id int64) (*Snapshot, error) {
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	scene, err := scanScene(tx.QueryRowContext(ctx, "SELECT "+sceneColumns+" FROM scenes WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scene %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot scene: %w", err)
	}
	shots, err := queryShots(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Scene: *scene, Shots: shots}, nil
}

func containsStatus(list []SceneStatus, status SceneStatus) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}
