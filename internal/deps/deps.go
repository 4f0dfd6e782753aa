// Package deps locates the external binaries scenegen shells out to.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Requirement is an external binary. Optional binaries only degrade a
// feature when missing.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement after probing.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// MediaRequirements lists ffmpeg and ffprobe, plus the TTS program when a
// TTS command is configured.
func MediaRequirements(ffmpegBinary, ffprobeBinary string, ttsCommand []string) []Requirement {
	reqs := []Requirement{
		{"FFmpeg", ResolveBinary(ffmpegBinary, "ffmpeg"), "Required for frame extraction and scene assembly", false},
		{"FFprobe", ResolveBinary(ffprobeBinary, "ffprobe"), "Required for clip and audio duration probing", false},
	}
	if len(ttsCommand) > 0 {
		if program := strings.TrimSpace(ttsCommand[0]); program != "" {
			reqs = append(reqs, Requirement{"TTS", ResolveBinary(program, program), "Synthesizes dialogue lines without recorded audio", true})
		}
	}
	return reqs
}

// CheckBinaries probes every requirement in order.
func CheckBinaries(reqs []Requirement) []Status {
	out := make([]Status, len(reqs))
	for i, req := range reqs {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		out[i] = probe(req)
	}
	return out
}

func probe(req Requirement) Status {
	st := Status{Requirement: req}
	switch {
	case req.Command == "":
		st.Detail = "command not configured"
	case lookup(req.Command) == "":
		st.Detail = fmt.Sprintf("binary %q not found", req.Command)
	default:
		st.Available = true
	}
	return st
}

// ResolveBinary turns a configured binary into an absolute path, falling
// back to the default name when nothing is configured. Unresolvable values
// are returned as given so they can be reported.
func ResolveBinary(configured, fallback string) string {
	name := strings.TrimSpace(configured)
	if name == "" {
		name = fallback
	}
	if path := lookup(name); path != "" {
		return path
	}
	return name
}

// lookup returns the absolute path of an executable, or "" if there is none.
// Names containing a separator are checked directly instead of via PATH.
func lookup(name string) string {
	if !strings.ContainsRune(name, os.PathSeparator) {
		path, err := exec.LookPath(name)
		if err != nil {
			return ""
		}
		return path
	}
	info, err := os.Stat(name)
	if err != nil || info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return ""
	}
	abs, err := filepath.Abs(name)
	if err != nil {
		return ""
	}
	return abs
}
