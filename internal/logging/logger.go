package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var globalLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// New builds the process logger. Development gets a console writer at debug
// level; production writes JSON at info level.
func New(environment string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	var w io.Writer = out
	if environment != "production" {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(w).With().
		Timestamp().
		Str("env", environment).
		Logger()

	if environment != "production" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
	return logger
}

// SetDefault replaces the fallback logger returned by FromContext.
func SetDefault(logger zerolog.Logger) {
	globalLogger = logger
}

// Default returns the fallback logger.
func Default() *zerolog.Logger {
	return &globalLogger
}
