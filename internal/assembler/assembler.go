package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"scenegen/internal/logging"
	"scenegen/internal/media/ffmpeg"
	"scenegen/internal/metrics"
	"scenegen/internal/services"
)

// Option configures an Assembler.
type Option func(*Assembler)

// WithSynthesizer enables TTS for shots that only carry dialogue text.
func WithSynthesizer(s Synthesizer) Option {
	return func(a *Assembler) { a.tts = s }
}

// WithDurationProber measures every clip. The declared shot duration is used
// only when probing fails.
func WithDurationProber(p DurationProber) Option {
	return func(a *Assembler) { a.probe = p }
}

// WithLogger sets the assembler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logging.NewComponentLogger(logger, "assembler")
		}
	}
}

// WithMetrics records assembly outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Assembler) { a.metrics = m }
}

// Assembler turns accepted shots into one scene video.
type Assembler struct {
	tools    Toolkit
	settings Settings
	tts      Synthesizer
	probe    DurationProber
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New constructs an Assembler.
func New(tools Toolkit, settings Settings, opts ...Option) *Assembler {
	if settings.DefaultTransition == "" {
		settings.DefaultTransition = "dissolve"
	}
	a := &Assembler{tools: tools, settings: settings, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds the scene. onState, when set, is called on every state
// change so callers can persist progress.
func (a *Assembler) Assemble(ctx context.Context, in Input, onState func(State)) (Result, error) {
	ctx = services.WithStage(services.WithSceneID(ctx, in.SceneID), "assembly")
	logger := logging.WithContext(ctx, a.logger)
	notify := func(s State) {
		if onState != nil {
			onState(s)
		}
	}

	if err := a.validate(in); err != nil {
		return Result{}, err
	}
	workDir := in.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(in.OutputPath)
	}
	for _, dir := range []string{workDir, filepath.Dir(in.OutputPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, services.Wrap(services.ErrConfiguration, "assembler", "prepare", "create directory", err)
		}
	}

	clips, err := a.clips(ctx, in.Shots, logger)
	if err != nil {
		return Result{}, err
	}

	notify(StateConcatenating)
	result := Result{State: StateConcatenating}
	videoOnly := VideoOnlyPath(in.OutputPath)
	if err := a.tools.Crossfade(ctx, clips, videoOnly); err != nil {
		if ctx.Err() != nil {
			return Result{}, services.Wrap(services.ErrCanceled, "assembler", "crossfade", "canceled", ctx.Err())
		}
		result.Warnings = append(result.Warnings, "crossfade failed; used hard cuts")
		logging.WarnWithContext(logger, "crossfade failed; falling back to hard cuts", "crossfade_fallback",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check transition names and clip durations"),
			logging.String(logging.FieldImpact, "scene uses hard cuts between shots"),
		)
		_ = os.Remove(videoOnly)
		paths := make([]string, len(clips))
		for i, clip := range clips {
			paths[i] = clip.Path
		}
		if err := a.tools.ConcatHardCut(ctx, paths, videoOnly); err != nil {
			a.metrics.ObserveAssembly("failed")
			if ctx.Err() != nil {
				return Result{}, services.Wrap(services.ErrCanceled, "assembler", "concat", "canceled", ctx.Err())
			}
			return Result{}, services.Wrap(services.ErrExternalTool, "assembler", "concat", "hard-cut concat failed", err)
		}
		result.Duration = plainDuration(clips)
	} else {
		result.Crossfaded = true
		result.Duration = ffmpeg.ChainDuration(clips)
	}
	result.VideoPath = videoOnly

	dialogue := a.dialogueClips(ctx, in.Shots, clips, workDir, &result, logger)
	music := a.resolveMusic(in, logger)
	result.MusicPath = music

	if len(dialogue) == 0 && music == "" {
		logger.Info("scene has no audio; video-only concat is final",
			logging.Decision("audio_mix", "skipped", "no dialogue or music")...)
		return a.finish(result, StateCompleted, notify, logger), nil
	}

	notify(StateAudioMixing)
	result.State = StateAudioMixing

	var dialogueTrack string
	if len(dialogue) > 0 {
		dialogueTrack = filepath.Join(workDir, fmt.Sprintf("scene_%d_dialogue.wav", in.SceneID))
		if err := a.tools.BuildDialogueTrack(ctx, dialogue, result.Duration, dialogueTrack); err != nil {
			if ctx.Err() != nil {
				return Result{}, services.Wrap(services.ErrCanceled, "assembler", "dialogue", "canceled", ctx.Err())
			}
			result.Warnings = append(result.Warnings, "dialogue track failed")
			logging.WarnWithContext(logger, "dialogue track build failed", "dialogue_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "scene is mixed without dialogue"),
			)
			dialogueTrack = ""
		} else {
			result.HasDialogue = true
		}
	}
	if dialogueTrack == "" && music == "" {
		return a.finish(result, StateDegraded, notify, logger), nil
	}

	err = a.tools.Mix(ctx, ffmpeg.MixInput{
		Video:       videoOnly,
		Dialogue:    dialogueTrack,
		Music:       music,
		MusicVolume: a.settings.MusicVolume,
		Ducking:     a.settings.Ducking,
	}, in.OutputPath)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, services.Wrap(services.ErrCanceled, "assembler", "mix", "canceled", ctx.Err())
		}
		_ = os.Remove(in.OutputPath)
		result.HasDialogue = false
		result.Warnings = append(result.Warnings, "audio mix failed; video-only output kept")
		logging.WarnWithContext(logger, "audio mix failed; keeping video-only output", "audio_mix_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check dialogue and music files with ffprobe"),
			logging.String(logging.FieldImpact, "scene has no audio"),
		)
		return a.finish(result, StateDegraded, notify, logger), nil
	}

	result.VideoPath = in.OutputPath
	return a.finish(result, StateCompleted, notify, logger), nil
}

func (a *Assembler) finish(result Result, state State, notify func(State), logger *slog.Logger) Result {
	result.State = state
	notify(state)
	a.metrics.ObserveAssembly(string(state))
	logger.Info("scene assembled",
		logging.String("state", string(state)),
		logging.String("video_path", result.VideoPath),
		logging.Float64("duration_seconds", result.Duration),
		logging.Bool("crossfaded", result.Crossfaded),
		logging.Bool("dialogue", result.HasDialogue),
		logging.Bool("music", result.MusicPath != ""),
	)
	return result
}

// clipDuration returns the probed clip length, falling back to the declared
// shot duration when probing fails.
func (a *Assembler) clipDuration(ctx context.Context, shot Shot, logger *slog.Logger) (float64, error) {
	declared := shot.Duration
	if a.probe == nil {
		if declared <= 0 {
			return 0, services.Wrap(services.ErrValidation, "assembler", "validate",
				fmt.Sprintf("shot %d has no duration", shot.Number), nil)
		}
		return declared, nil
	}

	measured, err := a.probe(ctx, shot.VideoPath)
	if err == nil && measured > 0 {
		if declared > 0 && math.Abs(measured-declared) > 0.05 {
			logger.Debug("probed clip duration differs from declared",
				logging.Int(logging.FieldShotNumber, shot.Number),
				logging.Float64("declared_seconds", declared),
				logging.Float64("probed_seconds", measured),
			)
		}
		return measured, nil
	}
	if ctx.Err() != nil {
		return 0, services.Wrap(services.ErrCanceled, "assembler", "probe", "canceled", ctx.Err())
	}
	if declared <= 0 {
		if err == nil {
			err = fmt.Errorf("probe reported %.3fs", measured)
		}
		return 0, services.Wrap(services.ErrExternalTool, "assembler", "probe",
			fmt.Sprintf("shot %d duration", shot.Number), err)
	}
	attrs := []logging.Attr{
		logging.Int(logging.FieldShotNumber, shot.Number),
		logging.Float64("declared_seconds", declared),
		logging.String(logging.FieldImpact, "crossfade timing uses the declared duration"),
	}
	if err != nil {
		attrs = append(attrs, logging.Error(err))
	}
	logging.WarnWithContext(logger, "clip duration probe failed; using declared duration", "duration_probe_fallback", attrs...)
	return declared, nil
}

func (a *Assembler) validate(in Input) error {
	if len(in.Shots) == 0 {
		return services.Wrap(services.ErrValidation, "assembler", "validate", "scene has no shots", nil)
	}
	if strings.TrimSpace(in.OutputPath) == "" {
		return services.Wrap(services.ErrValidation, "assembler", "validate", "output path is required", nil)
	}
	for _, shot := range in.Shots {
		if shot.VideoPath == "" {
			return services.Wrap(services.ErrValidation, "assembler", "validate",
				fmt.Sprintf("shot %d has no accepted video", shot.Number), nil)
		}
		if _, err := os.Stat(shot.VideoPath); err != nil {
			return services.Wrap(services.ErrValidation, "assembler", "validate",
				fmt.Sprintf("shot %d video unavailable", shot.Number), err)
		}
	}
	return nil
}

// clips resolves per-boundary transitions and durations. Overlaps are
// limited to half of the shorter neighbouring clip.
func (a *Assembler) clips(ctx context.Context, shots []Shot, logger *slog.Logger) ([]ffmpeg.Clip, error) {
	clips := make([]ffmpeg.Clip, len(shots))
	for i, shot := range shots {
		duration, err := a.clipDuration(ctx, shot, logger)
		if err != nil {
			return nil, err
		}
		transition := strings.ToLower(strings.TrimSpace(shot.Transition))
		if transition == "" {
			transition = a.settings.DefaultTransition
		}
		overlap := shot.TransitionDuration
		if overlap <= 0 {
			overlap = a.settings.DefaultOverlap
		}
		if transition == ffmpeg.TransitionCut {
			overlap = 0
		}
		clips[i] = ffmpeg.Clip{Path: shot.VideoPath, Duration: duration, Transition: transition, Overlap: overlap}
	}
	for i := 0; i < len(clips)-1; i++ {
		limit := math.Min(clips[i].Duration, clips[i+1].Duration) / 2
		if clips[i].Overlap > limit {
			clips[i].Overlap = limit
		}
	}
	clips[len(clips)-1].Overlap = 0
	return clips, nil
}

// dialogueClips returns dialogue placed at each shot's start on the
// crossfaded timeline. Shots without usable audio are skipped with a warning.
func (a *Assembler) dialogueClips(ctx context.Context, shots []Shot, clips []ffmpeg.Clip, workDir string, result *Result, logger *slog.Logger) []ffmpeg.AudioClip {
	offsets := ShotOffsets(clips, result.Crossfaded)
	var out []ffmpeg.AudioClip
	for i, shot := range shots {
		path := ""
		if shot.DialogueAudio != "" {
			if info, err := os.Stat(shot.DialogueAudio); err == nil && info.Size() > 0 {
				path = shot.DialogueAudio
			}
		}
		if path == "" && strings.TrimSpace(shot.DialogueText) != "" {
			if a.tts == nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("shot %d dialogue skipped: no tts command", shot.Number))
				logging.WarnWithContext(logger, "dialogue text has no audio and tts is not configured", "dialogue_skipped",
					logging.Int(logging.FieldShotNumber, shot.Number),
					logging.String(logging.FieldErrorHint, "set assembly.tts_command or provide dialogue_audio"),
					logging.String(logging.FieldImpact, "shot dialogue is silent"),
				)
				continue
			}
			target := filepath.Join(workDir, fmt.Sprintf("shot_%03d_dialogue.wav", shot.Number))
			if err := a.tts.Synthesize(ctx, shot.DialogueText, target); err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("shot %d dialogue synthesis failed", shot.Number))
				logging.WarnWithContext(logger, "dialogue synthesis failed", "tts_failed",
					logging.Int(logging.FieldShotNumber, shot.Number),
					logging.Error(err),
					logging.String(logging.FieldImpact, "shot dialogue is silent"),
				)
				continue
			}
			path = target
		}
		if path != "" {
			out = append(out, ffmpeg.AudioClip{Path: path, Offset: offsets[i]})
		}
	}
	return out
}

// resolveMusic prefers the assigned track, then the mood mapping.
func (a *Assembler) resolveMusic(in Input, logger *slog.Logger) string {
	if in.MusicPath != "" {
		if _, err := os.Stat(in.MusicPath); err == nil {
			return in.MusicPath
		}
		logging.WarnWithContext(logger, "assigned music track missing", "music_missing",
			logging.String("music_path", in.MusicPath),
			logging.String(logging.FieldImpact, "falling back to mood music"),
		)
	}
	if a.settings.MoodMusic == nil || in.Mood == "" {
		return ""
	}
	track, ok := a.settings.MoodMusic(in.Mood)
	if !ok {
		return ""
	}
	if _, err := os.Stat(track); err != nil {
		logging.WarnWithContext(logger, "mood music track missing", "music_missing",
			logging.String("mood", in.Mood),
			logging.String("music_path", track),
			logging.String(logging.FieldImpact, "scene has no music bed"),
		)
		return ""
	}
	return track
}

// ShotOffsets returns each shot's start time. Crossfaded timelines pull each
// shot earlier by the overlaps before it.
func ShotOffsets(clips []ffmpeg.Clip, crossfaded bool) []float64 {
	offsets := make([]float64, len(clips))
	at := 0.0
	for i, clip := range clips {
		offsets[i] = math.Round(at*1000) / 1000
		at += clip.Duration
		if crossfaded && i < len(clips)-1 {
			at -= ffmpeg.EffectiveOverlap(clip)
		}
	}
	return offsets
}

// VideoOnlyPath is where the silent concat for output is written.
func VideoOnlyPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + "_video" + ext
}

func plainDuration(clips []ffmpeg.Clip) float64 {
	total := 0.0
	for _, clip := range clips {
		total += clip.Duration
	}
	return math.Round(total*1000) / 1000
}
