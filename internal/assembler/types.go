package assembler

import (
	"context"

	"scenegen/internal/media/ffmpeg"
)

// State is the assembly progress recorded on the scene.
type State string

const (
	StatePending       State = "pending"
	StateConcatenating State = "concatenating"
	StateAudioMixing   State = "audio_mixing"
	StateCompleted     State = "completed"
	StateDegraded      State = "degraded"
)

// IsTerminal reports whether assembly has finished.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateDegraded
}

// Toolkit is the media surface the assembler needs.
type Toolkit interface {
	Crossfade(ctx context.Context, clips []ffmpeg.Clip, out string) error
	ConcatHardCut(ctx context.Context, paths []string, out string) error
	BuildDialogueTrack(ctx context.Context, clips []ffmpeg.AudioClip, total float64, out string) error
	Mix(ctx context.Context, in ffmpeg.MixInput, out string) error
}

// Synthesizer renders dialogue text to an audio file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, out string) error
}

// DurationProber measures a media file in seconds.
type DurationProber func(ctx context.Context, path string) (float64, error)

// Shot is one accepted clip in timeline order.
type Shot struct {
	Number             int
	VideoPath          string
	Duration           float64
	Transition         string
	TransitionDuration float64
	DialogueText       string
	DialogueAudio      string
}

// Input describes a scene to assemble.
type Input struct {
	SceneID   int64
	Shots     []Shot
	MusicPath string
	Mood      string
	// OutputPath receives the mixed scene. The video-only concat is written
	// next to it with a _video suffix.
	OutputPath string
	WorkDir    string
}

// Result describes the final artifact.
type Result struct {
	VideoPath   string
	Duration    float64
	State       State
	Crossfaded  bool
	HasDialogue bool
	MusicPath   string
	Warnings    []string
}

// Settings holds crossfade defaults and mix parameters.
type Settings struct {
	DefaultTransition string
	DefaultOverlap    float64
	MusicVolume       float64
	Ducking           ffmpeg.Ducking
	// MoodMusic resolves a track for a scene mood.
	MoodMusic func(mood string) (string, bool)
}
