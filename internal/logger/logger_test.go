package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.WarnLevel,
		"bogus":   zerolog.WarnLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestForVerbosity(t *testing.T) {
	assert.Equal(t, "warn", ForVerbosity(0))
	assert.Equal(t, "info", ForVerbosity(1))
	assert.Equal(t, "debug", ForVerbosity(2))
	assert.Equal(t, "debug", ForVerbosity(5))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", "json", &buf)

	log.Debug().Msg("hidden")
	log.Info().Str("path", "auth/me").Msg("request")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "auth/me", entry["path"])
	assert.Equal(t, "request", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New("debug", "console", &buf)

	log.Debug().Msg("token refreshed")

	out := buf.String()
	assert.Contains(t, out, "token refreshed")
	assert.Contains(t, out, "DBG")
	assert.NotContains(t, out, "\x1b[", "non-terminal output should be uncolored")
}
