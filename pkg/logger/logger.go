// Package logger provides structured logging for the vault layer.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog logger with a component name and accumulated fields.
type Logger struct {
	zl zerolog.Logger
}

// NewDefault creates a logger for the named component writing to stderr.
// The level is taken from LOG_LEVEL (debug, info, warn, error); default info.
func NewDefault(component string) *Logger {
	return New(component, os.Stderr, levelFromEnv())
}

// New creates a logger for the named component writing to w.
func New(component string, w io.Writer, level zerolog.Level) *Logger {
	zl := zerolog.New(w).Level(level).With().
		Timestamp().
		Str("component", component).
		Logger()
	return &Logger{zl: zl}
}

func levelFromEnv() zerolog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
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

// WithField returns a logger with an additional field attached.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string)                  { l.zl.Debug().Msg(msg) }
func (l *Logger) Debugf(format string, args ...any) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Info(msg string)                   { l.zl.Info().Msg(msg) }
func (l *Logger) Infof(format string, args ...any)  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warn(msg string)                   { l.zl.Warn().Msg(msg) }
func (l *Logger) Warnf(format string, args ...any)  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Error(msg string)                  { l.zl.Error().Msg(msg) }
func (l *Logger) Errorf(format string, args ...any) { l.zl.Error().Msgf(format, args...) }

// Nop returns a logger that discards everything. Useful in tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
