package quality

import (
	"context"
	"log/slog"
	"math"

	"golang.org/x/time/rate"

	"scenegen/internal/logging"
	"scenegen/internal/metrics"
	"scenegen/internal/services"
	"scenegen/internal/services/scorer"
)

// Artifact identifies the generated output being scored.
type Artifact struct {
	VideoPath string
	FramePath string
}

// Context describes the shot the artifact was generated for.
type Context struct {
	SceneID    int64
	ShotNumber int
	Prompt     string
	Characters []string
	Mood       string
}

// Result is the gate's verdict for one artifact.
type Result struct {
	Score       float64
	Diagnostics map[string]any
	Fallback    bool
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithRate throttles scorer calls to perSecond. Zero disables throttling.
func WithRate(perSecond float64) Option {
	return func(e *Evaluator) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			e.limiter = nil
		}
	}
}

// WithMetrics records fallback scores on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithLogger sets the evaluator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logging.NewComponentLogger(logger, "quality")
		}
	}
}

// Evaluator scores artifacts through a scorer provider.
type Evaluator struct {
	scorer        scorer.Scorer
	fallbackScore float64
	limiter       *rate.Limiter
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewEvaluator constructs an Evaluator. fallbackScore is clamped into [0,1].
func NewEvaluator(s scorer.Scorer, fallbackScore float64, opts ...Option) *Evaluator {
	e := &Evaluator{
		scorer:        s,
		fallbackScore: Clamp(fallbackScore),
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score evaluates the artifact. Provider failures, unreachable scorers, and
// non-finite scores yield the fallback score with Fallback set.
func (e *Evaluator) Score(ctx context.Context, artifact Artifact, shot Context) Result {
	logger := logging.WithContext(ctx, e.logger)

	if e.scorer == nil {
		return e.fallback(logger, "no scorer configured", nil)
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return e.fallback(logger, "rate limiter wait aborted", err)
		}
	}

	raw, err := e.scorer.Evaluate(ctx, scorer.Request{
		VideoPath:  artifact.VideoPath,
		FramePath:  artifact.FramePath,
		SceneID:    shot.SceneID,
		ShotNumber: shot.ShotNumber,
		Prompt:     shot.Prompt,
		Characters: shot.Characters,
		Mood:       shot.Mood,
	})
	if err != nil {
		return e.fallback(logger, "scorer request failed", err)
	}
	if math.IsNaN(raw.Score) || math.IsInf(raw.Score, 0) {
		return e.fallback(logger, "scorer returned non-finite score", nil)
	}

	score := Clamp(raw.Score)
	logger.Debug("shot scored",
		logging.Float64("score", score),
		logging.Float64("raw_score", raw.Score),
	)
	return Result{Score: score, Diagnostics: raw.Diagnostics}
}

func (e *Evaluator) fallback(logger *slog.Logger, reason string, err error) Result {
	attrs := []logging.Attr{
		logging.String("reason", reason),
		logging.Float64("fallback_score", e.fallbackScore),
		logging.String(logging.FieldErrorHint, "check scorer availability and credentials"),
		logging.String(logging.FieldImpact, "shot judged with the fallback score"),
	}
	if err != nil {
		attrs = append(attrs, logging.Error(err))
	}
	logging.WarnWithContext(logger, "quality scorer unavailable", "scorer_fallback", attrs...)
	e.metrics.IncScorerFallback()
	diagnostics := map[string]any{"fallback_reason": reason}
	if err != nil {
		diagnostics["error"] = services.FailureMessage(err)
	}
	return Result{Score: e.fallbackScore, Diagnostics: diagnostics, Fallback: true}
}

// Passes reports whether score meets threshold.
func Passes(score, threshold float64) bool {
	return score >= threshold
}

// Clamp bounds a score to [0,1].
func Clamp(score float64) float64 {
	switch {
	case math.IsNaN(score):
		return 0
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
