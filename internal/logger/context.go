// Package logger provides utilities for working with [zerolog.Logger]
// and [context.Context].
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

var ctxLoggerKey = ctxKey{}

// Default is the logger used when no logger has been attached to a
// [context.Context]: timestamped JSON lines on stderr. Unlike the
// non-development mode of [New], it sets no minimum level of its own.
var Default = zerolog.New(os.Stderr).With().Timestamp().Logger()

// InContext returns a copy of ctx carrying l, retrievable with [FromContext].
func InContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey, l)
}

// FromContext retrieves the logger attached to ctx by [InContext], or
// [Default] if none was attached.
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxLoggerKey).(zerolog.Logger); ok {
		return l
	}
	return Default
}

// New constructs a logger for the application: pretty console output in
// dev mode, structured JSON otherwise.
func New(devMode bool) zerolog.Logger {
	if devMode {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel).With().Timestamp().Caller().Logger()
	}
	return zerolog.New(os.Stderr).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

// FatalError logs msg and err at fatal level and terminates the process,
// matching the original application's startup-failure behavior.
func FatalError(msg string, err error) {
	Default.Fatal().Err(err).Msg(msg)
}
