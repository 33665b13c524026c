package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			l := New(&bytes.Buffer{}, "text")
			l.SetLogLevel(tt.in)
			assert.Equal(t, tt.want, l.Level())
		})
	}
}

func TestDefaultLevelHidesWarnings(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "text")
	l.Warn("node unreachable", "node", "n3")
	assert.Empty(t, buf.String())

	l.SetLogLevel("warn")
	l.Warn("node unreachable", "node", "n3")
	assert.Contains(t, buf.String(), "node=n3")
	assert.Contains(t, buf.String(), "timestamp=")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json")
	l.Error("boom", "section", "PVE")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "boom", rec["msg"])
	assert.Equal(t, "PVE", rec["section"])
	assert.Contains(t, rec, "timestamp")
}
