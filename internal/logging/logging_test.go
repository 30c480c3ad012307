package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_JSONFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("orphan", "id", "B")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "orphan", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "B", line["id"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "text")
	require.NoError(t, err)

	logger.Info("engine starting", "owner_scoped", true)
	assert.Contains(t, buf.String(), `msg="engine starting"`)
	assert.Contains(t, buf.String(), "owner_scoped=true")
}

func TestNew_Pretty(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug", "pretty")
	require.NoError(t, err)

	logger.Debug("snapshot sent", "records", 3)
	assert.Contains(t, buf.String(), "snapshot sent")
	assert.Contains(t, buf.String(), "records")
}

func TestNew_UnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}
