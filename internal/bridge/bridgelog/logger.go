// Package bridgelog defines the minimal structured-logging interface used
// throughout the bridge, backed by zerolog in production
// (see NewZerolog) and a no-op implementation in tests.
package bridgelog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the ambient logging interface every bridge component depends
// on, matching the shape internal/rag/service/options.go uses elsewhere in
// this codebase.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
}

type noopLogger struct{}

func (noopLogger) Info(string, map[string]any)  {}
func (noopLogger) Error(string, map[string]any) {}
func (noopLogger) Debug(string, map[string]any) {}

// Noop returns a Logger that discards everything, used as a safe default
// and in tests.
func Noop() Logger { return noopLogger{} }

type zerologLogger struct {
	logger zerolog.Logger
}

// NewZerolog wraps the global zerolog logger (initialized via Init) as a
// Logger.
func NewZerolog(logger zerolog.Logger) Logger {
	return &zerologLogger{logger: logger}
}

func (z *zerologLogger) Info(msg string, fields map[string]any) {
	z.logger.Info().Fields(fields).Msg(msg)
}

func (z *zerologLogger) Error(msg string, fields map[string]any) {
	z.logger.Error().Fields(fields).Msg(msg)
}

func (z *zerologLogger) Debug(msg string, fields map[string]any) {
	z.logger.Debug().Fields(fields).Msg(msg)
}

// Init configures the global zerolog logger with RFC3339Nano timestamps
// and the given level, matching internal/observability/logging.go's
// InitLogger shape. Returns the configured logger for use with NewZerolog.
func Init(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
