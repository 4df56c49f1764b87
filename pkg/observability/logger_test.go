package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/contextkeys"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Debug("debug message")
	assert.Zero(t, buf.Len(), "debug is filtered at info level")

	logger.Info("info message")
	entry := decode(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "info message", entry["msg"])

	buf.Reset()
	logger.Warnf("warn %d", 2)
	assert.Equal(t, "warn 2", decode(t, &buf)["msg"])
}

func TestLogger_SetLevelAppliesToChildren(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)
	child := logger.WithField("component", "jobs")

	child.Debug("hidden")
	assert.Zero(t, buf.Len())

	logger.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, logger.Level())
	child.Debug("visible")
	entry := decode(t, &buf)
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "jobs", entry["component"])

	buf.Reset()
	logger.SetLevel(ErrorLevel)
	child.Warn("hidden again")
	assert.Zero(t, buf.Len())
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithFields(map[string]interface{}{"case_id": "c1", "count": 3}).
		WithError(errors.New("boom")).
		Info("message")

	entry := decode(t, &buf)
	assert.Equal(t, "c1", entry["case_id"])
	assert.Equal(t, float64(3), entry["count"])
	assert.Equal(t, "boom", entry["error"])

	assert.Same(t, logger, logger.WithError(nil))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = contextkeys.WithRequestID(ctx, "01HZX")
	ctx = contextkeys.WithUserID(ctx, "u1")

	assert.Same(t, logger, GetLogger(ctx))
	FromContext(ctx).Info("handled")

	entry := decode(t, &buf)
	assert.Equal(t, "01HZX", entry["request_id"])
	assert.Equal(t, "u1", entry["user_id"])

	assert.NotNil(t, GetLogger(context.Background()), "falls back to a default logger")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		" INFO ":  InfoLevel,
		"warning": WarnLevel,
		"warn":    WarnLevel,
		"error":   ErrorLevel,
		"verbose": InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
	assert.Equal(t, "WARN", WarnLevel.String())
	assert.Equal(t, "INFO", LogLevel(42).String())
}
