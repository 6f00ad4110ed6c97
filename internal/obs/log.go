package obs

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	loggerOnce sync.Once
	logger     zerolog.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *zerolog.Logger {
	loggerOnce.Do(func() {
		logger = zerolog.New(os.Stdout).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	})
	return &logger
}

// SetLevel adjusts the shared logger level. Call during startup, before any
// request handling begins.
func SetLevel(level string) {
	l := Logger()
	*l = l.Level(ParseLevel(level))
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetOutput redirects the shared logger and returns a restore function.
// Intended for tests that need to capture log output.
func SetOutput(w io.Writer) func() {
	l := Logger()
	prev := *l
	*l = l.Output(w)
	return func() { *l = prev }
}

// LogRequest emits one structured line per completed HTTP request.
func LogRequest(fields map[string]any) {
	Logger().Info().Fields(fields).Msg("request_complete")
}
