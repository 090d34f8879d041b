package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWritersFansOut(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := NewWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("job processed", "job_id", "abc", "stage", "ocr")
	logger.Debug("hidden")

	assert.Contains(t, stderr.String(), "job processed")
	assert.Contains(t, stderr.String(), "job_id=abc")
	assert.NotContains(t, stderr.String(), "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(file.Bytes()), &entry))
	assert.Equal(t, "job processed", entry["msg"])
	assert.Equal(t, "ocr", entry["stage"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestAsynqLoggerWritesThroughSlog(t *testing.T) {
	var stderr, file bytes.Buffer
	adapter := NewAsynqLogger(NewWithWriters(&stderr, &file, slog.LevelDebug))

	adapter.Warn("redis ", "slow")

	out := stderr.String()
	assert.True(t, strings.Contains(out, "redis slow"), out)
	assert.Contains(t, out, "component=asynq")
}
