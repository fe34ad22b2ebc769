package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZerologAdapter routes Logger calls to a zerolog.Logger. Key/value args
// become event fields.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter wraps an existing zerolog logger.
func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// NewZerologLogger builds a zerolog-backed Logger writing JSON (or a console
// writer when format is "console") to out.
func NewZerologLogger(level LogLevel, format string, out io.Writer) *ZerologAdapter {
	if out == nil {
		out = os.Stderr
	}
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	zl := zerolog.New(out).With().Timestamp().Logger().Level(zerologLevel(level))
	return NewZerologAdapter(zl)
}

func zerologLevel(l LogLevel) zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// With returns an adapter whose entries carry the given component name.
func (z *ZerologAdapter) With(component string) *ZerologAdapter {
	return &ZerologAdapter{logger: z.logger.With().Str("component", component).Logger()}
}

func (z *ZerologAdapter) Debug(msg string, args ...any) { z.logger.Debug().Fields(args).Msg(msg) }

func (z *ZerologAdapter) Info(msg string, args ...any) { z.logger.Info().Fields(args).Msg(msg) }

func (z *ZerologAdapter) Warn(msg string, args ...any) { z.logger.Warn().Fields(args).Msg(msg) }

func (z *ZerologAdapter) Error(msg string, args ...any) { z.logger.Error().Fields(args).Msg(msg) }
