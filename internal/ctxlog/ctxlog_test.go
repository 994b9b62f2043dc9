package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_FallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestWithLogger_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug", "json")
	ctx := WithLogger(context.Background(), logger)

	FromContext(ctx).Debug("hello", "fold", 3)
	require.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"fold":3`)
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "text")
	logger.Info("dropped")
	logger.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
