package logging

import (
	"log/slog"
	"slices"
)

const (
	defaultErrorHint = "check logs for details"
	defaultImpact    = "operation completed with warnings"
)

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact. Values supplied in attrs win over the defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Warn(msg, withEventFields(attrs, eventType, true)...)
}

// ErrorWithContext logs an error that always carries event_type and
// error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Error(msg, withEventFields(attrs, eventType, false)...)
}

func withEventFields(attrs []Attr, eventType string, needImpact bool) []any {
	has := func(key string) bool {
		return slices.ContainsFunc(attrs, func(a Attr) bool { return a.Key == key })
	}
	args := make([]any, 0, len(attrs)+3)
	for _, attr := range attrs {
		args = append(args, attr)
	}
	if !has(FieldEventType) {
		args = append(args, slog.String(FieldEventType, eventType))
	}
	if !has(FieldErrorHint) {
		args = append(args, slog.String(FieldErrorHint, defaultErrorHint))
	}
	if needImpact && !has(FieldImpact) {
		args = append(args, slog.String(FieldImpact, defaultImpact))
	}
	return args
}
