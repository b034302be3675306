package observability

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Levels(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"DEBUG":   slog.LevelDebug,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for name, want := range cases {
		logger := NewLogger(name)
		require.NotNil(t, logger)
		assert.True(t, logger.Enabled(t.Context(), want), "level %q", name)
		if want > slog.LevelDebug {
			assert.False(t, logger.Enabled(t.Context(), want-1), "level %q", name)
		}
	}
}

func TestTracer_NoopWithoutSDK(t *testing.T) {
	tracer := Tracer("test")
	require.NotNil(t, tracer)
	_, span := tracer.Start(t.Context(), "op")
	span.End()
}
