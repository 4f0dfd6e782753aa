package continuity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"scenegen/internal/logging"
	"scenegen/internal/services"
)

// FrameTool writes the final frame of a video to an image file.
type FrameTool interface {
	ExtractLastFrame(ctx context.Context, video, out string) error
}

// Extractor pulls validated last frames out of shot videos.
type Extractor struct {
	tool   FrameTool
	logger *slog.Logger
}

// NewExtractor constructs an Extractor over the provided frame tool.
func NewExtractor(tool FrameTool, logger *slog.Logger) *Extractor {
	return &Extractor{tool: tool, logger: logging.NewComponentLogger(logger, "continuity")}
}

// LastFramePath returns where the last frame of video is written.
func LastFramePath(video string) string {
	ext := filepath.Ext(video)
	return strings.TrimSuffix(video, ext) + "_last.png"
}

// ExtractLastFrame extracts and validates the final frame of videoPath. The
// frame must exist, be non-empty, and sniff as an image.
func (e *Extractor) ExtractLastFrame(ctx context.Context, videoPath string) (string, error) {
	if e == nil || e.tool == nil {
		return "", services.Wrap(services.ErrConfiguration, "continuity", "extract", "frame tool unavailable", nil)
	}
	if strings.TrimSpace(videoPath) == "" {
		return "", services.Wrap(services.ErrValidation, "continuity", "extract", "video path is empty", nil)
	}
	out := LastFramePath(videoPath)
	_ = os.Remove(out)
	if err := e.tool.ExtractLastFrame(ctx, videoPath, out); err != nil {
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrCanceled, "continuity", "extract", "frame extraction canceled", ctx.Err())
		}
		return "", services.Wrap(services.ErrExternalTool, "continuity", "extract", "ffmpeg failed", err)
	}
	if err := ValidateImage(out); err != nil {
		_ = os.Remove(out)
		return "", services.Wrap(services.ErrExternalTool, "continuity", "extract", "unusable frame", err)
	}
	logging.WithContext(ctx, e.logger).Debug("last frame extracted",
		logging.String("video", videoPath),
		logging.String("frame", out),
	)
	return out, nil
}

// ValidateImage checks that path exists, is non-empty, and has an image
// signature.
func ValidateImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()

	head := make([]byte, 261)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read frame: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("frame %s is empty", path)
	}
	if !filetype.IsImage(head[:n]) {
		return fmt.Errorf("frame %s is not an image", path)
	}
	return nil
}
