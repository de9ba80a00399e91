package webui

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBuffer_ParsesZerologLines(t *testing.T) {
	lb := NewLogBuffer(10)
	logger := zerolog.New(lb)

	logger.Warn().Str("component", "monitor").Msg("Snapshot fetch failed")
	logger.Info().Msg("Alert fired")

	entries := lb.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0].Level)
	assert.Equal(t, "Snapshot fetch failed", entries[0].Message)
	assert.Equal(t, "monitor", entries[0].Component)
	assert.Equal(t, "info", entries[1].Level)
}

func TestLogBuffer_NonJSONLine(t *testing.T) {
	lb := NewLogBuffer(2)
	_, err := lb.Write([]byte("plain text\n"))
	require.NoError(t, err)

	entries := lb.GetEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "plain text", entries[0].Message)
	assert.Equal(t, "info", entries[0].Level)
}

func TestLogBuffer_WrapsAround(t *testing.T) {
	lb := NewLogBuffer(3)
	logger := zerolog.New(lb)
	for i := 0; i < 5; i++ {
		logger.Info().Msg(fmt.Sprintf("line %d", i))
	}

	entries := lb.GetEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, "line 2", entries[0].Message)
	assert.Equal(t, "line 4", entries[2].Message)

	recent := lb.GetRecentEntries(2, "")
	assert.Equal(t, "line 3", recent[0].Message)
}

func TestLogBuffer_LevelFilter(t *testing.T) {
	lb := NewLogBuffer(10)
	logger := zerolog.New(lb)
	logger.Info().Msg("a")
	logger.Error().Msg("b")
	logger.Info().Msg("c")

	errs := lb.GetRecentEntries(10, "error")
	require.Len(t, errs, 1)
	assert.Equal(t, "b", errs[0].Message)
}
