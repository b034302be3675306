// Package observability sets up structured logging and tracing handles for
// the runner and the gate.
package observability

import (
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger builds a JSON slog logger at the named level. Unknown level
// names fall back to info.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

// Tracer returns a named tracer from the global provider. Without a
// configured SDK this is a no-op tracer, so instrumentation is always safe
// to call.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
