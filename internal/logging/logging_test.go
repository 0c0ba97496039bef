package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("info", "json", &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("routed", "tier", "fast")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "routed", rec["msg"])
	require.Equal(t, "fast", rec["tier"])
}

func TestNew_TextDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", "", &buf)
	require.NoError(t, err)

	logger.Debug("dispatch", "calls", 3)
	require.Contains(t, buf.String(), "msg=dispatch")
	require.Contains(t, buf.String(), "calls=3")
}

func TestNew_Errors(t *testing.T) {
	_, err := New("info", "xml", &bytes.Buffer{})
	require.ErrorContains(t, err, "unknown log format")

	_, err = New("loud", "text", &bytes.Buffer{})
	require.ErrorContains(t, err, "unknown log level")
}
