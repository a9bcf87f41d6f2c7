package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/autoquant/backend/pkg/config"
)

func newBufferLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg := &config.Config{Env: "test", LogLevel: level, LogFormat: "json"}
	return NewWithWriter(cfg, &buf), &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"invalid", zerolog.InfoLevel}, // Default
		{"", zerolog.InfoLevel},        // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newBufferLogger("warn")

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown warn")
	log.Error("shown error")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "shown warn", entries[0]["message"])
	assert.Equal(t, "error", entries[1]["level"])
	assert.Equal(t, "autoquant", entries[1]["service"])
	assert.Equal(t, "test", entries[1]["env"])
}

func TestWithFields(t *testing.T) {
	log, buf := newBufferLogger("debug")

	log.WithFields(map[string]interface{}{
		"phase":      "phase3_ai_screening",
		"candidates": 35,
	}).Info("phase3 completed")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "phase3_ai_screening", entries[0]["phase"])
	assert.Equal(t, float64(35), entries[0]["candidates"])
}

func TestWithErrorAndRun(t *testing.T) {
	log, buf := newBufferLogger("debug")

	log.WithRun(42, "trace-abc").WithError(errors.New("boom")).Error("run failed")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, float64(42), entries[0]["run_id"])
	assert.Equal(t, "trace-abc", entries[0]["trace_id"])
	assert.Equal(t, "boom", entries[0]["error"])
}

func TestFormattedMethods(t *testing.T) {
	log, buf := newBufferLogger("debug")

	log.Infof("selected %d of %d", 5, 40)
	log.Warnf("retry %d", 2)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "selected 5 of 40", entries[0]["message"])
	assert.Equal(t, "retry 2", entries[1]["message"])
}

func TestNop(t *testing.T) {
	log := Nop()
	assert.NotPanics(t, func() {
		log.WithField("k", "v").Info("discarded")
	})
}
