package cli

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// newLogger builds the process logger. "json" in the level string selects
// JSON output, e.g. "debug,json"; otherwise a console writer is used.
func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	jsonOut := false
	for _, part := range strings.Split(strings.ToLower(level), ",") {
		switch strings.TrimSpace(part) {
		case "json":
			jsonOut = true
		case "debug":
			lvl = zerolog.DebugLevel
		case "info":
			lvl = zerolog.InfoLevel
		case "warn", "warning":
			lvl = zerolog.WarnLevel
		case "error", "err":
			lvl = zerolog.ErrorLevel
		case "off", "disabled":
			lvl = zerolog.Disabled
		}
	}
	if !jsonOut {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// httpLogLevel maps the process level onto the HTTP layer's request level.
func httpLogLevel(l zerolog.Logger) string {
	switch l.GetLevel() {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return "debug"
	case zerolog.InfoLevel:
		return "info"
	case zerolog.Disabled:
		return "off"
	default:
		return "error"
	}
}
