package errors

import (
	"errors"
	"log/slog"
	"strings"
)

// Surface renders err the way failures cross a component boundary: a kind
// tag, a one-line message, and a remediation hint when the error carries
// one. Errors without engine structure surface under the internal
// category so callers always get the same shape.
//
//	StaleRecordError: blob a1b2c3 no longer resolves (hint: run reconcile)
func Surface(err error) string {
	if err == nil {
		return ""
	}

	var ee *EngineError
	if !errors.As(err, &ee) {
		return string(CategoryInternal) + ": " + err.Error()
	}

	var b strings.Builder
	b.WriteString(kindTag(ee))
	b.WriteString(": ")
	b.WriteString(ee.Message)
	if ee.Suggestion != "" {
		b.WriteString(" (hint: ")
		b.WriteString(ee.Suggestion)
		b.WriteString(")")
	}
	return b.String()
}

// kindTag prefers the engine kind; errors minted before kind
// classification existed fall back to their category.
func kindTag(ee *EngineError) string {
	if ee.Kind != "" {
		return string(ee.Kind)
	}
	return string(ee.Category)
}

// LogAttrs flattens err into slog attributes so every component logs
// failures with the same fields: kind, code, retryability, cause chain,
// and whatever detail pairs the error accumulated on its way up.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	var ee *EngineError
	if !errors.As(err, &ee) {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("kind", kindTag(ee)),
		slog.String("code", ee.Code),
		slog.Bool("retryable", ee.Retryable),
		slog.String("message", ee.Message),
	}
	if ee.Cause != nil {
		attrs = append(attrs, slog.String("cause", ee.Cause.Error()))
	}
	for k, v := range ee.Details {
		attrs = append(attrs, slog.String("detail."+k, v))
	}
	return attrs
}
