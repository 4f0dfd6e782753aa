package quality_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"scenegen/internal/metrics"
	"scenegen/internal/quality"
	"scenegen/internal/services/scorer"
)

type stubScorer struct {
	score float64
	err   error
	calls int
	last  scorer.Request
}

func (s *stubScorer) Evaluate(_ context.Context, req scorer.Request) (scorer.Result, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return scorer.Result{}, s.err
	}
	return scorer.Result{Score: s.score, Diagnostics: map[string]any{"raw": s.score}}, nil
}

func TestScoreClampsIntoUnitRange(t *testing.T) {
	cases := []struct {
		raw  float64
		want float64
	}{
		{raw: 1.7, want: 1},
		{raw: -0.2, want: 0},
		{raw: 0.42, want: 0.42},
	}
	for _, tc := range cases {
		eval := quality.NewEvaluator(&stubScorer{score: tc.raw}, 0.5)
		res := eval.Score(context.Background(), quality.Artifact{}, quality.Context{})
		if res.Score != tc.want || res.Fallback {
			t.Fatalf("raw %v: got %+v want %v", tc.raw, res, tc.want)
		}
	}
}

func TestScoreForwardsShotContext(t *testing.T) {
	stub := &stubScorer{score: 0.8}
	eval := quality.NewEvaluator(stub, 0.5)
	eval.Score(context.Background(),
		quality.Artifact{VideoPath: "/v.mp4", FramePath: "/f.png"},
		quality.Context{SceneID: 3, ShotNumber: 2, Prompt: "p", Characters: []string{"Ada"}, Mood: "calm"})
	if stub.last.VideoPath != "/v.mp4" || stub.last.FramePath != "/f.png" || stub.last.ShotNumber != 2 || stub.last.Mood != "calm" {
		t.Fatalf("unexpected request %+v", stub.last)
	}
}

func TestScoreFallsBackOnScorerFailure(t *testing.T) {
	m := metrics.New()
	eval := quality.NewEvaluator(&stubScorer{err: errors.New("connection refused")}, 0.5, quality.WithMetrics(m))

	res := eval.Score(context.Background(), quality.Artifact{}, quality.Context{})
	if !res.Fallback || res.Score != 0.5 {
		t.Fatalf("expected fallback 0.5, got %+v", res)
	}
	if msg, _ := res.Diagnostics["error"].(string); !strings.Contains(msg, "connection refused") {
		t.Fatalf("expected error in diagnostics, got %v", res.Diagnostics)
	}
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, family := range families {
		if family.GetName() == "scenegen_scorer_fallbacks_total" {
			found = family.GetMetric()[0].GetCounter().GetValue() == 1
		}
	}
	if !found {
		t.Fatal("expected fallback counter to be 1")
	}
}

func TestScoreFallsBackOnNonFiniteScore(t *testing.T) {
	for _, raw := range []float64{math.NaN(), math.Inf(1)} {
		res := quality.NewEvaluator(&stubScorer{score: raw}, 0.4).Score(context.Background(), quality.Artifact{}, quality.Context{})
		if !res.Fallback || res.Score != 0.4 {
			t.Fatalf("raw %v: expected fallback, got %+v", raw, res)
		}
	}
}

func TestScoreWithoutScorerFallsBack(t *testing.T) {
	res := quality.NewEvaluator(nil, 0.5).Score(context.Background(), quality.Artifact{}, quality.Context{})
	if !res.Fallback || res.Score != 0.5 {
		t.Fatalf("expected fallback, got %+v", res)
	}
}

func TestRateLimiterRespectsCancellation(t *testing.T) {
	stub := &stubScorer{score: 0.9}
	eval := quality.NewEvaluator(stub, 0.5, quality.WithRate(0.001))

	if res := eval.Score(context.Background(), quality.Artifact{}, quality.Context{}); res.Fallback {
		t.Fatalf("first call should use the burst token, got %+v", res)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := eval.Score(ctx, quality.Artifact{}, quality.Context{})
	if !res.Fallback {
		t.Fatalf("expected fallback when limiter wait is aborted, got %+v", res)
	}
	if stub.calls != 1 {
		t.Fatalf("expected scorer to be called once, got %d", stub.calls)
	}
}

func TestPasses(t *testing.T) {
	if !quality.Passes(0.6, 0.6) {
		t.Fatal("score equal to threshold should pass")
	}
	if quality.Passes(0.59, 0.6) {
		t.Fatal("score below threshold should fail")
	}
}
