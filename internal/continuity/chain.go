package continuity

import (
	"fmt"
	"strings"

	"scenegen/internal/services"
)

// FirstFrame resolves the first-frame input for a shot. Shot 1 uses the
// source image with no extraction; later shots use the previous shot's last
// frame, which must be present.
func FirstFrame(shotNumber int, sourceImage, previousLastFrame string) (string, error) {
	switch {
	case shotNumber < 1:
		return "", services.Wrap(services.ErrInvariant, "continuity", "first frame",
			fmt.Sprintf("invalid shot number %d", shotNumber), nil)
	case shotNumber == 1:
		if strings.TrimSpace(sourceImage) == "" {
			return "", services.Wrap(services.ErrInvariant, "continuity", "first frame",
				"shot 1 has no source image", nil)
		}
		return sourceImage, nil
	default:
		if strings.TrimSpace(previousLastFrame) == "" {
			return "", services.Wrap(services.ErrInvariant, "continuity", "first frame",
				fmt.Sprintf("shot %d has no last frame from shot %d", shotNumber, shotNumber-1), nil)
		}
		return previousLastFrame, nil
	}
}

// Link is the continuity view of one shot.
type Link struct {
	ShotNumber int
	FirstFrame string
	LastFrame  string
	Completed  bool
}

// VerifyChain checks that every started shot after a completed predecessor
// begins on that predecessor's last frame, and that no shot completes before
// its predecessor.
func VerifyChain(links []Link) error {
	for i := 1; i < len(links); i++ {
		prev, cur := links[i-1], links[i]
		if cur.Completed && !prev.Completed {
			return services.Wrap(services.ErrInvariant, "continuity", "verify",
				fmt.Sprintf("shot %d completed before shot %d", cur.ShotNumber, prev.ShotNumber), nil)
		}
		if !prev.Completed {
			continue
		}
		if prev.LastFrame == "" {
			return services.Wrap(services.ErrInvariant, "continuity", "verify",
				fmt.Sprintf("completed shot %d has no last frame", prev.ShotNumber), nil)
		}
		if cur.FirstFrame == "" && !cur.Completed {
			continue
		}
		if cur.FirstFrame != prev.LastFrame {
			return services.Wrap(services.ErrInvariant, "continuity", "verify",
				fmt.Sprintf("shot %d first frame %q does not match shot %d last frame %q",
					cur.ShotNumber, cur.FirstFrame, prev.ShotNumber, prev.LastFrame), nil)
		}
	}
	return nil
}
