package scorer

import (
	"context"
	"fmt"

	"scenegen/internal/config"
	"scenegen/internal/services"
)

// Request carries the candidate artifact and its scene context.
type Request struct {
	VideoPath  string
	FramePath  string
	SceneID    int64
	ShotNumber int
	Prompt     string
	Characters []string
	Mood       string
}

// Result is a raw provider score with optional diagnostics.
type Result struct {
	Score       float64
	Diagnostics map[string]any
}

// Scorer evaluates a generated shot.
type Scorer interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// New builds the scorer selected by cfg.Provider.
func New(ctx context.Context, cfg config.Scorer) (Scorer, error) {
	switch cfg.Provider {
	case config.ScorerHTTP:
		return NewHTTP(HTTPConfig{URL: cfg.URL, APIKey: cfg.APIKey, TimeoutSeconds: cfg.TimeoutSeconds}), nil
	case config.ScorerGemini:
		return NewGemini(ctx, GeminiConfig{
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			MaxDimension: cfg.FrameMaxDimension,
		})
	default:
		return nil, services.Wrap(services.ErrConfiguration, "scorer", "new",
			fmt.Sprintf("unsupported provider %q", cfg.Provider), nil)
	}
}
