// Package ffmpeg builds and runs the ffmpeg invocations used to chain and
// assemble scene shots.
//
// Argument construction is kept in pure functions (LastFrameArgs,
// CrossfadeArgs, ConcatListArgs, DialogueTrackArgs, MixArgs) so filter graphs
// can be asserted without an ffmpeg binary. Runner executes them through
// exec.CommandContext and honours context cancellation.
package ffmpeg
