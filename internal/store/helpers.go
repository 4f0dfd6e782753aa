package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const sceneColumns = "id, name, status, mood, music_path, target_duration, video_path, video_duration, assembly_state, error_message, created_at, updated_at"

const shotColumns = "id, scene_id, shot_number, prompt, duration, characters, source_image, first_frame, last_frame, video_path, status, score, attempts, seed, steps, dialogue_text, dialogue_audio, transition, transition_duration, error_message, updated_at"

const attemptColumns = "id, shot_id, attempt_number, seed, steps, job_id, score, threshold, passed, hard_failure, error_message, video_path, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScene(scanner rowScanner) (*Scene, error) {
	var (
		scene         Scene
		statusStr     string
		mood          sql.NullString
		musicPath     sql.NullString
		videoPath     sql.NullString
		assemblyState sql.NullString
		errorMessage  sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)
	if err := scanner.Scan(
		&scene.ID,
		&scene.Name,
		&statusStr,
		&mood,
		&musicPath,
		&scene.TargetDuration,
		&videoPath,
		&scene.VideoDuration,
		&assemblyState,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	scene.Status = SceneStatus(statusStr)
	scene.Mood = mood.String
	scene.MusicPath = musicPath.String
	scene.VideoPath = videoPath.String
	scene.AssemblyState = assemblyState.String
	scene.ErrorMessage = errorMessage.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		scene.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		scene.UpdatedAt = updated
	}
	return &scene, nil
}

func scanShot(scanner rowScanner) (*Shot, error) {
	var (
		shot               Shot
		statusStr          string
		characters         sql.NullString
		sourceImage        sql.NullString
		firstFrame         sql.NullString
		lastFrame          sql.NullString
		videoPath          sql.NullString
		score              sql.NullFloat64
		dialogueText       sql.NullString
		dialogueAudio      sql.NullString
		transition         sql.NullString
		transitionDuration sql.NullFloat64
		errorMessage       sql.NullString
		updatedRaw         sql.NullString
	)
	if err := scanner.Scan(
		&shot.ID,
		&shot.SceneID,
		&shot.Number,
		&shot.Prompt,
		&shot.Duration,
		&characters,
		&sourceImage,
		&firstFrame,
		&lastFrame,
		&videoPath,
		&statusStr,
		&score,
		&shot.Attempts,
		&shot.Seed,
		&shot.Steps,
		&dialogueText,
		&dialogueAudio,
		&transition,
		&transitionDuration,
		&errorMessage,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	shot.Status = ShotStatus(statusStr)
	shot.Characters = decodeCharacters(characters.String)
	shot.SourceImage = sourceImage.String
	shot.FirstFrame = firstFrame.String
	shot.LastFrame = lastFrame.String
	shot.VideoPath = videoPath.String
	if score.Valid {
		shot.Score = score.Float64
		shot.HasScore = true
	}
	shot.DialogueText = dialogueText.String
	shot.DialogueAudio = dialogueAudio.String
	shot.Transition = transition.String
	shot.TransitionDuration = transitionDuration.Float64
	shot.ErrorMessage = errorMessage.String
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		shot.UpdatedAt = updated
	}
	return &shot, nil
}

func scanAttempt(scanner rowScanner) (*Attempt, error) {
	var (
		attempt      Attempt
		jobID        sql.NullString
		passed       int
		hardFailure  int
		errorMessage sql.NullString
		videoPath    sql.NullString
		createdRaw   sql.NullString
	)
	if err := scanner.Scan(
		&attempt.ID,
		&attempt.ShotID,
		&attempt.Number,
		&attempt.Seed,
		&attempt.Steps,
		&jobID,
		&attempt.Score,
		&attempt.Threshold,
		&passed,
		&hardFailure,
		&errorMessage,
		&videoPath,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	attempt.JobID = jobID.String
	attempt.Passed = passed != 0
	attempt.HardFailure = hardFailure != 0
	attempt.Error = errorMessage.String
	attempt.VideoPath = videoPath.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		attempt.CreatedAt = created
	}
	return &attempt, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// encodeCharacters stores names as a JSON array; an empty list is NULL.
func encodeCharacters(names []string) any {
	if len(names) == 0 {
		return nil
	}
	data, err := json.Marshal(names)
	if err != nil {
		return nil
	}
	return string(data)
}

func decodeCharacters(raw string) []string {
	if raw == "" {
		return nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil
	}
	return names
}

func nullableScore(value float64, ok bool) any {
	if !ok {
		return nil
	}
	return value
}

func nullablePositive(value float64) any {
	if value <= 0 {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
