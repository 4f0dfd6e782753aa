// Package quality implements the quality gate that scores generated shots.
//
// The Evaluator wraps a scorer provider with rate limiting, clamps raw scores
// into [0,1], and substitutes the configured fallback score whenever the
// provider fails. Scorer failures never propagate to the caller.
package quality
