package testsupport

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"sync"

	"scenegen/internal/media/ffmpeg"
)

// FakeToolkit stands in for ffmpeg. Outputs are small files whose contents
// record what produced them, so tests can assert on byte identity.
type FakeToolkit struct {
	mu sync.Mutex

	FailCrossfade bool
	FailConcat    bool
	FailDialogue  bool
	FailMix       bool
	FailFrames    bool

	Calls          []string
	CrossfadeClips []ffmpeg.Clip
	DialogueClips  []ffmpeg.AudioClip
	LastMix        *ffmpeg.MixInput
}

func (f *FakeToolkit) record(call string) {
	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	f.mu.Unlock()
}

// CallNames returns the recorded call sequence.
func (f *FakeToolkit) CallNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// ExtractLastFrame writes a tiny PNG.
func (f *FakeToolkit) ExtractLastFrame(_ context.Context, video, out string) error {
	f.record("frame")
	if f.FailFrames {
		return errors.New("fake frame extraction failure")
	}
	if _, err := os.Stat(video); err != nil {
		return err
	}
	return writeTinyPNG(out)
}

// Crossfade implements the assembler toolkit.
func (f *FakeToolkit) Crossfade(_ context.Context, clips []ffmpeg.Clip, out string) error {
	f.record("crossfade")
	f.mu.Lock()
	f.CrossfadeClips = append([]ffmpeg.Clip(nil), clips...)
	f.mu.Unlock()
	if f.FailCrossfade {
		return errors.New("fake crossfade failure")
	}
	paths := make([]string, len(clips))
	for i, c := range clips {
		paths[i] = c.Path
	}
	return os.WriteFile(out, []byte("xfade:"+strings.Join(paths, "|")), 0o644)
}

// ConcatHardCut implements the assembler toolkit.
func (f *FakeToolkit) ConcatHardCut(_ context.Context, paths []string, out string) error {
	f.record("concat")
	if f.FailConcat {
		return errors.New("fake concat failure")
	}
	return os.WriteFile(out, []byte("concat:"+strings.Join(paths, "|")), 0o644)
}

// BuildDialogueTrack implements the assembler toolkit.
func (f *FakeToolkit) BuildDialogueTrack(_ context.Context, clips []ffmpeg.AudioClip, total float64, out string) error {
	f.record("dialogue")
	f.mu.Lock()
	f.DialogueClips = append([]ffmpeg.AudioClip(nil), clips...)
	f.mu.Unlock()
	if f.FailDialogue {
		return errors.New("fake dialogue failure")
	}
	return os.WriteFile(out, []byte(fmt.Sprintf("dialogue:%d:%.3f", len(clips), total)), 0o644)
}

// Mix implements the assembler toolkit.
func (f *FakeToolkit) Mix(_ context.Context, in ffmpeg.MixInput, out string) error {
	f.record("mix")
	f.mu.Lock()
	copied := in
	f.LastMix = &copied
	f.mu.Unlock()
	if f.FailMix {
		// Leave a partial file behind the way a crashed ffmpeg would.
		_ = os.WriteFile(out, []byte("partial"), 0o644)
		return errors.New("fake mix failure")
	}
	return os.WriteFile(out, []byte("mixed"), 0o644)
}

func writeTinyPNG(path string) error {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x * 40), B: uint8(y * 40), A: 255})
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
