// Package logging builds the service logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New constructs a zerolog.Logger writing to stdout. Development uses a
// human-readable console writer, every other environment emits JSON.
func New(appEnv, level string) zerolog.Logger {
	return NewWithWriter(os.Stdout, appEnv, level)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(out io.Writer, appEnv, level string) zerolog.Logger {
	if appEnv == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(parseLevel(appEnv, level)).
		With().
		Timestamp().
		Str("service", "docshift").
		Logger()
}

func parseLevel(appEnv, level string) zerolog.Level {
	if level != "" {
		if l, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil && l != zerolog.NoLevel {
			return l
		}
	}
	if appEnv == "development" {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
