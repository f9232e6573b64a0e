package cmd

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchboard/switchboard/internal/config"
)

func TestParseQuery(t *testing.T) {
	q, err := parseQuery([]string{"type=ACTION", "count=3", "ok=true", "gone=null", "id=00ab"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"type":  "ACTION",
		"count": float64(3),
		"ok":    true,
		"gone":  nil,
		"id":    "00ab",
	}, q)

	q, err = parseQuery(nil)
	require.NoError(t, err)
	assert.Nil(t, q)

	_, err = parseQuery([]string{"novalue"})
	assert.Error(t, err)
}

func TestNewLogHandler(t *testing.T) {
	ctx := context.Background()

	h := newLogHandler(config.LogConfig{Level: "warn"})
	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))

	h = newLogHandler(config.LogConfig{Level: "debug", Format: "json"})
	assert.IsType(t, &slog.JSONHandler{}, h)
	assert.True(t, h.Enabled(ctx, slog.LevelDebug))
}
