package services

import "context"

type contextKey string

const (
	sceneIDKey    contextKey = "scene_id"
	shotNumberKey contextKey = "shot_number"
	jobIDKey      contextKey = "job_id"
	stageKey      contextKey = "stage"
	requestIDKey  contextKey = "request_id"
)

// WithSceneID annotates context with the scene identifier.
func WithSceneID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, sceneIDKey, id)
}

// SceneIDFromContext extracts the scene identifier if present.
func SceneIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(sceneIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithShotNumber annotates context with the 1-based shot number.
func WithShotNumber(ctx context.Context, number int) context.Context {
	if number <= 0 {
		return ctx
	}
	return context.WithValue(ctx, shotNumberKey, number)
}

// ShotNumberFromContext returns the shot number if present.
func ShotNumberFromContext(ctx context.Context) (int, bool) {
	if v, ok := ctx.Value(shotNumberKey).(int); ok && v > 0 {
		return v, true
	}
	return 0, false
}

// WithJobID annotates context with a generation job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext returns the generation job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
