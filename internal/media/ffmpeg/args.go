package ffmpeg

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TransitionCut joins two clips without overlap.
const TransitionCut = "cut"

// Clip is one input to a crossfade chain. Transition and Overlap describe the
// boundary into the next clip and are ignored on the last clip.
type Clip struct {
	Path       string
	Duration   float64
	Transition string
	Overlap    float64
}

// AudioClip is a dialogue file placed at Offset seconds on the scene timeline.
type AudioClip struct {
	Path   string
	Offset float64
}

// Ducking holds sidechain compressor parameters.
type Ducking struct {
	Threshold     float64
	Ratio         float64
	AttackMillis  float64
	ReleaseMillis float64
}

// MixInput describes an audio mix over a video-only file. Either Dialogue or
// Music may be empty, but not both.
type MixInput struct {
	Video       string
	Dialogue    string
	Music       string
	MusicVolume float64
	Ducking     Ducking
}

func baseArgs() []string {
	return []string{"-y", "-hide_banner", "-loglevel", "error"}
}

// LastFrameArgs seeks near the end of video and keeps overwriting out so the
// last decoded frame remains.
func LastFrameArgs(video, out string) []string {
	args := baseArgs()
	return append(args,
		"-sseof", "-1",
		"-i", video,
		"-an",
		"-update", "1",
		"-q:v", "2",
		out,
	)
}

// EffectiveOverlap returns the overlap used at a boundary. Cut boundaries
// never overlap.
func EffectiveOverlap(clip Clip) float64 {
	if strings.EqualFold(clip.Transition, TransitionCut) || clip.Overlap <= 0 {
		return 0
	}
	return clip.Overlap
}

// ChainDuration is the length of the crossfaded result: the sum of clip
// durations minus every boundary overlap.
func ChainDuration(clips []Clip) float64 {
	total := 0.0
	for i, clip := range clips {
		total += clip.Duration
		if i < len(clips)-1 {
			total -= EffectiveOverlap(clip)
		}
	}
	return round3(total)
}

// CrossfadeArgs builds an xfade filter chain. Each boundary uses the clip's
// transition and overlap; cut boundaries use the concat filter instead.
func CrossfadeArgs(clips []Clip, fps int, out string) ([]string, error) {
	if len(clips) == 0 {
		return nil, errors.New("ffmpeg crossfade: no inputs")
	}
	args := baseArgs()
	for _, clip := range clips {
		args = append(args, "-i", clip.Path)
	}

	var graph []string
	for i := range clips {
		norm := "settb=AVTB,format=yuv420p"
		if fps > 0 {
			norm = fmt.Sprintf("fps=%d,%s", fps, norm)
		}
		graph = append(graph, fmt.Sprintf("[%d:v]%s[s%d]", i, norm, i))
	}

	current := "s0"
	length := clips[0].Duration
	for i := 1; i < len(clips); i++ {
		prev := clips[i-1]
		label := fmt.Sprintf("x%d", i)
		overlap := EffectiveOverlap(prev)
		if overlap == 0 {
			graph = append(graph, fmt.Sprintf("[%s][s%d]concat=n=2:v=1:a=0[%s]", current, i, label))
		} else {
			if overlap >= prev.Duration || overlap >= clips[i].Duration {
				return nil, fmt.Errorf("ffmpeg crossfade: overlap %.3fs exceeds clip duration at boundary %d", overlap, i)
			}
			transition := strings.ToLower(strings.TrimSpace(prev.Transition))
			if transition == "" {
				transition = "dissolve"
			}
			graph = append(graph, fmt.Sprintf("[%s][s%d]xfade=transition=%s:duration=%s:offset=%s[%s]",
				current, i, transition, formatSeconds(overlap), formatSeconds(length-overlap), label))
		}
		length += clips[i].Duration - overlap
		current = label
	}

	args = append(args,
		"-filter_complex", strings.Join(graph, ";"),
		"-map", "["+current+"]",
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		out,
	)
	return args, nil
}

// ConcatList renders a concat demuxer list file.
func ConcatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// ConcatListArgs joins the files named in listPath without re-encoding.
func ConcatListArgs(listPath, out string) []string {
	args := baseArgs()
	return append(args,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-an",
		"-c", "copy",
		out,
	)
}

// DialogueTrackArgs delays each clip to its offset and mixes them into one
// track padded to total seconds.
func DialogueTrackArgs(clips []AudioClip, total float64, out string) ([]string, error) {
	if len(clips) == 0 {
		return nil, errors.New("ffmpeg dialogue: no clips")
	}
	args := baseArgs()
	for _, clip := range clips {
		args = append(args, "-i", clip.Path)
	}
	var graph []string
	var labels strings.Builder
	for i, clip := range clips {
		delay := int64(math.Round(math.Max(clip.Offset, 0) * 1000))
		graph = append(graph, fmt.Sprintf("[%d:a]aresample=48000,adelay=%d:all=1[d%d]", i, delay, i))
		fmt.Fprintf(&labels, "[d%d]", i)
	}
	pad := ""
	if total > 0 {
		pad = fmt.Sprintf(",apad=whole_dur=%s,atrim=0:%s", formatSeconds(total), formatSeconds(total))
	}
	if len(clips) == 1 {
		graph = append(graph, fmt.Sprintf("[d0]anull%s[dlg]", pad))
	} else {
		graph = append(graph, fmt.Sprintf("%samix=inputs=%d:duration=longest:normalize=0%s[dlg]", labels.String(), len(clips), pad))
	}
	args = append(args,
		"-filter_complex", strings.Join(graph, ";"),
		"-map", "[dlg]",
		"-c:a", "pcm_s16le",
		out,
	)
	return args, nil
}

// MixArgs keeps dialogue at full volume, lowers music to MusicVolume and
// ducks it with sidechaincompress keyed on dialogue. Video is stream copied.
func MixArgs(in MixInput, out string) ([]string, error) {
	if in.Video == "" {
		return nil, errors.New("ffmpeg mix: video is required")
	}
	if in.Dialogue == "" && in.Music == "" {
		return nil, errors.New("ffmpeg mix: no audio sources")
	}
	args := baseArgs()
	args = append(args, "-i", in.Video)

	var graph string
	switch {
	case in.Dialogue != "" && in.Music != "":
		args = append(args, "-i", in.Dialogue, "-stream_loop", "-1", "-i", in.Music)
		graph = strings.Join([]string{
			fmt.Sprintf("[2:a]aresample=48000,volume=%s[mus]", formatFloat(in.MusicVolume)),
			"[1:a]aresample=48000,asplit=2[dlg][key]",
			fmt.Sprintf("[mus][key]sidechaincompress=threshold=%s:ratio=%s:attack=%s:release=%s[duck]",
				formatFloat(in.Ducking.Threshold), formatFloat(in.Ducking.Ratio),
				formatFloat(in.Ducking.AttackMillis), formatFloat(in.Ducking.ReleaseMillis)),
			"[dlg][duck]amix=inputs=2:duration=first:normalize=0[aout]",
		}, ";")
	case in.Dialogue != "":
		args = append(args, "-i", in.Dialogue)
		graph = "[1:a]aresample=48000,anull[aout]"
	default:
		args = append(args, "-stream_loop", "-1", "-i", in.Music)
		graph = fmt.Sprintf("[1:a]aresample=48000,volume=%s[aout]", formatFloat(in.MusicVolume))
	}

	args = append(args,
		"-filter_complex", graph,
		"-map", "0:v:0",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		out,
	)
	return args, nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(round3(v), 'f', -1, 64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
