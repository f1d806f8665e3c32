// Package logger builds the CLI's structured logger.
package logger

import (
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/rs/zerolog"
)

// New returns a logger writing to w at the given level. format "json" emits
// one JSON object per line; anything else uses the console writer.
func New(level, format string, w io.Writer) zerolog.Logger {
	var out io.Writer = w
	if strings.ToLower(format) != "json" {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(w),
		}
	}
	return zerolog.New(out).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// ForVerbosity maps the -v count to a level: 0 → warn, 1 → info, 2+ → debug.
func ForVerbosity(verbose int) string {
	switch {
	case verbose >= 2:
		return "debug"
	case verbose == 1:
		return "info"
	default:
		return "warn"
	}
}

// ParseLevel parses a level name, defaulting to warn.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.WarnLevel
	}
}

func isTerminal(w io.Writer) bool {
	type fder interface{ Fd() uintptr }
	f, ok := w.(fder)
	if !ok {
		return false
	}
	return term.IsTerminal(f.Fd())
}
