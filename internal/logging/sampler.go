package logging

import "math"

// ProgressSampler rate-limits progress logging for a polled job. It lets a
// sample through when the job state changes or when progress crosses the
// next step boundary.
type ProgressSampler struct {
	step  float64
	state string
	next  float64
	seen  bool
}

// NewProgressSampler returns a sampler with the given step in percent
// points. A non-positive step defaults to 10.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 10
	}
	return &ProgressSampler{step: step}
}

// Observe reports whether a sample of state at percent (0-100) should be
// logged. A nil sampler logs everything.
func (s *ProgressSampler) Observe(state string, percent float64) bool {
	if s == nil {
		return true
	}
	percent = math.Min(math.Max(percent, 0), 100)
	if !s.seen || state != s.state {
		s.seen = true
		s.state = state
		s.advance(percent)
		return true
	}
	if percent < s.next {
		return false
	}
	s.advance(percent)
	return true
}

func (s *ProgressSampler) advance(percent float64) {
	s.next = (math.Floor(percent/s.step) + 1) * s.step
	if percent >= 100 {
		s.next = math.Inf(1)
	}
}
