package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "test").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "shown", entry["message"])
	require.Equal(t, "test", entry["component"])
}

func TestValidate(t *testing.T) {
	require.NoError(t, Config{Level: "debug", Format: "console"}.Validate())
	require.Error(t, Config{Level: "loud"}.Validate())
	require.Error(t, Config{Format: "xml"}.Validate())
}
