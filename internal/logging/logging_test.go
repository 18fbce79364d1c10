package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(&buf, "debug", "json"), "prices")
	logger.Debug().Str("symbol", "S").Msg("cache hit")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "prices", line["component"])
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "cache hit", line["message"])
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "nonsense", "json")
	logger.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
	logger.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "console")
	logger.Warn().Msg("segment omitted")
	assert.Contains(t, buf.String(), "segment omitted")
	assert.Contains(t, buf.String(), "WRN")
}
