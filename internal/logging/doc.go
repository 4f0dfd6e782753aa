// Package logging builds the slog loggers used by the daemon and CLI.
//
// Console output is one line per record with the component as a prefix and
// key=value fields; JSON output uses short ts/level/msg keys. WithContext
// tags a logger with the identifiers carried on a context so every line of a
// scene run can be filtered by scene_id.
package logging
