// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect executes ffprobe and returns a Result. Helper methods report the
// container duration, the primary video stream, and whether audio is present,
// which the assembler uses to measure finished scenes and shot clips.
package ffprobe
