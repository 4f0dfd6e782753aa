package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandFunc executes a command and returns its combined output.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// Option configures a Runner.
type Option func(*Runner)

// WithBinary overrides the ffmpeg executable.
func WithBinary(binary string) Option {
	return func(r *Runner) {
		if strings.TrimSpace(binary) != "" {
			r.binary = strings.TrimSpace(binary)
		}
	}
}

// WithCommand replaces the process runner, used by tests.
func WithCommand(fn CommandFunc) Option {
	return func(r *Runner) {
		if fn != nil {
			r.command = fn
		}
	}
}

// WithFPS forces a frame rate on crossfade inputs so xfade sees matching
// timebases.
func WithFPS(fps int) Option {
	return func(r *Runner) {
		if fps > 0 {
			r.fps = fps
		}
	}
}

// Runner executes ffmpeg commands.
type Runner struct {
	binary  string
	fps     int
	command CommandFunc
}

// New constructs a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{binary: "ffmpeg", command: defaultCommand}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Binary reports the configured executable.
func (r *Runner) Binary() string {
	return r.binary
}

func (r *Runner) run(ctx context.Context, op string, args []string) error {
	output, err := r.command(ctx, r.binary, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg %s: %w", op, ctxErr)
		}
		return fmt.Errorf("ffmpeg %s: %w: %s", op, err, tail(strings.TrimSpace(string(output)), 400))
	}
	return nil
}

// ExtractLastFrame writes the final decoded frame of video to out.
func (r *Runner) ExtractLastFrame(ctx context.Context, video, out string) error {
	if err := r.run(ctx, "extract last frame", LastFrameArgs(video, out)); err != nil {
		return err
	}
	return requireOutput(out)
}

// Crossfade joins clips with xfade transitions into out.
func (r *Runner) Crossfade(ctx context.Context, clips []Clip, out string) error {
	args, err := CrossfadeArgs(clips, r.fps, out)
	if err != nil {
		return err
	}
	if err := r.run(ctx, "crossfade", args); err != nil {
		return err
	}
	return requireOutput(out)
}

// ConcatHardCut joins clips back to back with the concat demuxer. The list
// file is written next to out and removed afterwards.
func (r *Runner) ConcatHardCut(ctx context.Context, paths []string, out string) error {
	if len(paths) == 0 {
		return errors.New("ffmpeg concat: no inputs")
	}
	listPath := out + ".concat.txt"
	if err := os.WriteFile(listPath, []byte(ConcatList(paths)), 0o644); err != nil {
		return fmt.Errorf("ffmpeg concat: write list: %w", err)
	}
	defer os.Remove(listPath)
	if err := r.run(ctx, "concat", ConcatListArgs(listPath, out)); err != nil {
		return err
	}
	return requireOutput(out)
}

// BuildDialogueTrack places dialogue clips at their offsets on one track
// padded to total seconds.
func (r *Runner) BuildDialogueTrack(ctx context.Context, clips []AudioClip, total float64, out string) error {
	args, err := DialogueTrackArgs(clips, total, out)
	if err != nil {
		return err
	}
	if err := r.run(ctx, "dialogue track", args); err != nil {
		return err
	}
	return requireOutput(out)
}

// Mix muxes the dialogue and music tracks onto video, ducking music under dialogue.
func (r *Runner) Mix(ctx context.Context, in MixInput, out string) error {
	args, err := MixArgs(in, out)
	if err != nil {
		return err
	}
	if err := r.run(ctx, "audio mix", args); err != nil {
		return err
	}
	return requireOutput(out)
}

func requireOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("ffmpeg output %s: %w", path, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("ffmpeg output %s is empty", path)
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
