package logging

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New creates a logger based on the ENV environment variable.
func New() zerolog.Logger {
	env := os.Getenv("ENV")
	if env == "development" || env == "dev" || env == "" {
		return NewDevelopment()
	}
	return NewProduction()
}

// NewDevelopment creates a console logger for interactive use.
func NewDevelopment() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "2006-01-02 15:04:05",
	}
	return zerolog.New(output).With().Timestamp().Logger().Level(levelFromEnv())
}

// NewProduction creates a JSON logger with UNIX timestamps.
func NewProduction() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(levelFromEnv())
}

func levelFromEnv() zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("AUTHHUB_LOG_LEVEL"))) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// FromContext returns a logger tagged with the request id when the context
// carries one.
func FromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	if id := RequestIDFrom(ctx); id != "" {
		return base.With().Str("request_id", id).Logger()
	}
	return base
}
