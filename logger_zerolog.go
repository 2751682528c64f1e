package chatsdk

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

type zerologLogger struct {
	zl zerolog.Logger
}

// NewLogger wraps zl so it can be handed to the SDK through WithLogger.
func NewLogger(zl zerolog.Logger) Logger {
	return &zerologLogger{zl: zl}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return NewLogger(zerolog.Nop())
}

func newDefaultLogger() Logger {
	return newWriterLogger(os.Stderr, zerolog.InfoLevel)
}

func newWriterLogger(w io.Writer, level zerolog.Level) Logger {
	return NewLogger(zerolog.New(w).Level(level).With().Timestamp().Str("component", "chatsdk").Logger())
}

func (l *zerologLogger) WithField(key string, value any) Logger {
	return &zerologLogger{zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *zerologLogger) Debug(args ...any) { l.zl.Debug().Msg(fmt.Sprint(args...)) }

func (l *zerologLogger) Debugf(format string, args ...any) { l.zl.Debug().Msgf(format, args...) }

func (l *zerologLogger) Info(args ...any) { l.zl.Info().Msg(fmt.Sprint(args...)) }

func (l *zerologLogger) Infof(format string, args ...any) { l.zl.Info().Msgf(format, args...) }

func (l *zerologLogger) Warn(args ...any) { l.zl.Warn().Msg(fmt.Sprint(args...)) }

func (l *zerologLogger) Warnf(format string, args ...any) { l.zl.Warn().Msgf(format, args...) }

func (l *zerologLogger) Error(args ...any) { l.zl.Error().Msg(fmt.Sprint(args...)) }

func (l *zerologLogger) Errorf(format string, args ...any) { l.zl.Error().Msgf(format, args...) }
