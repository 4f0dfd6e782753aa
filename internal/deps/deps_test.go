package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), mode); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinariesReportsEachRequirement(t *testing.T) {
	dir := t.TempDir()
	present := writeStub(t, dir, "present", 0o755)
	notExec := writeStub(t, dir, "plain", 0o644)

	got := CheckBinaries([]Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "NotExecutable", Command: notExec},
		{Name: "Blank", Command: "  "},
	})
	if len(got) != 4 {
		t.Fatalf("expected 4 results, got %d", len(got))
	}
	if !got[0].Available || got[0].Detail != "" {
		t.Fatalf("expected present binary available, got %+v", got[0])
	}
	if got[1].Available || got[1].Detail != `binary "clearly-not-present-binary" not found` {
		t.Fatalf("unexpected missing result: %+v", got[1])
	}
	if got[2].Available {
		t.Fatalf("expected non-executable file to be unavailable")
	}
	if got[3].Available || got[3].Detail != "command not configured" {
		t.Fatalf("unexpected blank result: %+v", got[3])
	}
}

func TestResolveBinary(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeStub(t, dir, "ffmpeg", 0o755)
	ffprobe := writeStub(t, dir, "ffprobe", 0o755)
	t.Setenv("PATH", dir)

	if got := ResolveBinary(ffmpeg, "ffmpeg"); got != ffmpeg {
		t.Fatalf("explicit path: got %q want %q", got, ffmpeg)
	}
	if got := ResolveBinary("", "ffprobe"); got != ffprobe {
		t.Fatalf("PATH lookup: got %q want %q", got, ffprobe)
	}
	if got := ResolveBinary("sox", "sox"); got != "sox" {
		t.Fatalf("unresolved name should be kept, got %q", got)
	}
}

func TestMediaRequirements(t *testing.T) {
	t.Setenv("PATH", "")
	reqs := MediaRequirements("", "", nil)
	if len(reqs) != 2 {
		t.Fatalf("expected ffmpeg and ffprobe requirements, got %d", len(reqs))
	}
	for _, status := range CheckBinaries(reqs) {
		if status.Available {
			t.Fatalf("expected %s to be unavailable with empty PATH", status.Name)
		}
	}

	reqs = MediaRequirements("ffmpeg", "ffprobe", []string{"piper", "--model", "voice.onnx"})
	if len(reqs) != 3 || !reqs[2].Optional || reqs[2].Name != "TTS" || reqs[2].Command != "piper" {
		t.Fatalf("expected optional TTS requirement, got %+v", reqs)
	}
}
