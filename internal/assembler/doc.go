// Package assembler builds the final scene video from accepted shots.
//
// Assembly runs in two phases. The concat phase joins shots with xfade
// transitions and falls back to a hard-cut concat when the crossfade graph
// fails. The audio phase places per-shot dialogue at shot boundaries, picks a
// music bed, and mixes them with sidechain ducking. A failed mix leaves the
// video-only concat as the final artifact in the degraded state.
package assembler
