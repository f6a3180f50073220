package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/floranet-go/internal/logger"
)

func TestSlogLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     logger.LogLevel
		logFunc   func(l logger.Logger)
		wantInLog bool
	}{
		{"debug hidden at info", logger.LogLevelInfo, func(l logger.Logger) { l.Debug("hello") }, false},
		{"info shown at info", logger.LogLevelInfo, func(l logger.Logger) { l.Info("hello") }, true},
		{"trace shown at trace", logger.LogLevelTrace, func(l logger.Logger) { l.Trace("hello") }, true},
		{"warn hidden at error", logger.LogLevelError, func(l logger.Logger) { l.Warn("hello") }, false},
		{"explicit level respected", logger.LogLevelWarn, func(l logger.Logger) { l.Log(logger.LogLevelDebug, "hello") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			tt.logFunc(logger.NewSlogLogger(buf, tt.level, time.UTC))
			assert.Equal(t, tt.wantInLog, strings.Contains(buf.String(), "hello"), buf.String())
		})
	}
}

func TestTraceLevelRenderedByName(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger.NewSlogLogger(buf, logger.LogLevelTrace, time.UTC).Trace("sql query")

	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestModuleAndFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC).
		Module("datastore").
		Module("sqlite").
		With(logger.String("table", "species"))

	log.Info("row inserted", logger.Uint64("id", 7), logger.Float64("confidence", 0.123456))

	out := buf.String()
	assert.Contains(t, out, "module=datastore.sqlite")
	assert.Contains(t, out, "table=species")
	assert.Contains(t, out, "id=7")
	assert.Contains(t, out, "confidence=0.123")
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	ctx := logger.WithTraceID(context.Background(), "req-42")
	base.WithContext(ctx).Info("handled")
	base.WithContext(context.Background()).Info("untraced")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "trace_id=req-42")
	assert.NotContains(t, lines[1], "trace_id")
}

func TestCentralLoggerFileOutputIsJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "floranet.log")
	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "debug"},
		ModuleLevels: map[string]string{"worker": "warn"},
	})
	require.NoError(t, err)

	cl.Module("worker").Info("suppressed by module level")
	cl.Module("moderation").Info("observation verified", logger.Int("observation_id", 3))
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "moderation", record["module"])
	assert.Equal(t, "observation verified", record["msg"])
	assert.InDelta(t, 3, record["observation_id"], 0)
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus_Mons"})
	require.Error(t, err)
}
