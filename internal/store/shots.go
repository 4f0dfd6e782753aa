package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryShots(ctx context.Context, q queryer, sceneID int64) ([]Shot, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+shotColumns+" FROM shots WHERE scene_id = ? ORDER BY shot_number", sceneID)
	if err != nil {
		return nil, fmt.Errorf("query shots: %w", err)
	}
	defer rows.Close()

	var shots []Shot
	for rows.Next() {
		shot, err := scanShot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shot: %w", err)
		}
		shots = append(shots, *shot)
	}
	return shots, rows.Err()
}

// Shots returns the scene's shots in shot-number order.
func (s *Store) Shots(ctx context.Context, sceneID int64) ([]Shot, error) {
	return queryShots(ensureContext(ctx), s.db, sceneID)
}

// GetShot fetches one shot belonging to a scene.
func (s *Store) GetShot(ctx context.Context, sceneID, shotID int64) (*Shot, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+shotColumns+" FROM shots WHERE scene_id = ? AND id = ?", sceneID, shotID)
	shot, err := scanShot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("shot %d in scene %d: %w", shotID, sceneID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get shot: %w", err)
	}
	return shot, nil
}

// UpdateShot persists the mutable generation fields of a shot. Prompt, order,
// and dialogue are fixed at creation and never rewritten here.
func (s *Store) UpdateShot(ctx context.Context, shot *Shot) error {
	if shot == nil {
		return errors.New("nil shot")
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE shots SET first_frame = ?, last_frame = ?, video_path = ?, status = ?, score = ?,
            attempts = ?, seed = ?, steps = ?, dialogue_audio = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(shot.FirstFrame), nullableString(shot.LastFrame), nullableString(shot.VideoPath),
		shot.Status, nullableScore(shot.Score, shot.HasScore), shot.Attempts, shot.Seed, shot.Steps,
		nullableString(shot.DialogueAudio), nullableString(shot.ErrorMessage), nowString(), shot.ID,
	)
	if err != nil {
		return fmt.Errorf("update shot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("shot %d: %w", shot.ID, ErrNotFound)
	}
	return nil
}

// SetShotStatus updates only the status column of a shot.
func (s *Store) SetShotStatus(ctx context.Context, shotID int64, status ShotStatus) error {
	_, err := s.execWithRetry(ctx,
		"UPDATE shots SET status = ?, updated_at = ? WHERE id = ?", status, nowString(), shotID)
	if err != nil {
		return fmt.Errorf("set shot status: %w", err)
	}
	return nil
}

// ResetShotsAfter returns every shot after shotNumber to pending and clears its
// generation output. It reports how many shots were reset.
func (s *Store) ResetShotsAfter(ctx context.Context, sceneID int64, shotNumber int) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE shots SET status = ?, first_frame = NULL, last_frame = NULL, video_path = NULL,
            score = NULL, attempts = 0, seed = 0, steps = 0, error_message = NULL, updated_at = ?
         WHERE scene_id = ? AND shot_number > ?`,
		ShotPending, nowString(), sceneID, shotNumber,
	)
	if err != nil {
		return 0, fmt.Errorf("reset shots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecordAttempt appends a generation attempt for diagnostics.
func (s *Store) RecordAttempt(ctx context.Context, attempt *Attempt) error {
	if attempt == nil {
		return errors.New("nil attempt")
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO attempts (shot_id, attempt_number, seed, steps, job_id, score, threshold,
            passed, hard_failure, error_message, video_path, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ShotID, attempt.Number, attempt.Seed, attempt.Steps, nullableString(attempt.JobID),
		attempt.Score, attempt.Threshold, boolToInt(attempt.Passed), boolToInt(attempt.HardFailure),
		nullableString(attempt.Error), nullableString(attempt.VideoPath), nowString(),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		attempt.ID = id
	}
	return nil
}

// Attempts lists the recorded attempts for a shot, oldest first.
func (s *Store) Attempts(ctx context.Context, shotID int64) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+attemptColumns+" FROM attempts WHERE shot_id = ? ORDER BY id", shotID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, *attempt)
	}
	return attempts, rows.Err()
}
