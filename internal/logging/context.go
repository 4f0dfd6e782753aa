package logging

import (
	"context"
	"log/slog"

	"scenegen/internal/services"
)

// Shared attribute keys. Log tailing filters on these, so renaming one is a
// breaking change for `scenegen daemon logs`.
const (
	FieldComponent      = "component"
	FieldSceneID        = "scene_id"
	FieldShotNumber     = "shot_number" // 1-based
	FieldAttempt        = "attempt"     // 1-based
	FieldJobID          = "job_id"
	FieldStage          = "stage"
	FieldCorrelationID  = "correlation_id"
	FieldEventType      = "event_type"
	FieldErrorHint      = "error_hint"
	FieldImpact         = "impact"
	FieldDecisionType   = "decision_type"
	FieldDecisionResult = "decision_result"
	FieldDecisionReason = "decision_reason"
	FieldAlert          = "alert"
)

// WithContext tags logger with the scene, shot, job, stage and request
// identifiers carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var args []any
	if id, ok := services.SceneIDFromContext(ctx); ok {
		args = append(args, slog.Int64(FieldSceneID, id))
	}
	if n, ok := services.ShotNumberFromContext(ctx); ok {
		args = append(args, slog.Int(FieldShotNumber, n))
	}
	if id, ok := services.JobIDFromContext(ctx); ok {
		args = append(args, slog.String(FieldJobID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		args = append(args, slog.String(FieldStage, stage))
	}
	if id, ok := services.RequestIDFromContext(ctx); ok {
		args = append(args, slog.String(FieldCorrelationID, id))
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}
