// Package shotgen implements the progressive quality gate for one shot.
//
// Generate walks the attempt policy in order. Each attempt submits a job
// with a fresh seed and the policy's step count, waits for it, extracts the
// last frame, and scores the output against that attempt's threshold. The
// first passing attempt stops the loop. When nothing passes, the highest
// scoring attempt is accepted, ties going to the earliest. Hard failures
// score HardFailureScore and never win.
package shotgen
