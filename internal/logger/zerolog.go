// Package logger adapts zerolog to the logging interface the sync
// engine expects.
package logger

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/quillvault/syncwire/synclib"
)

const nameDelimiter = "."

type zeroLogger struct {
	log  zerolog.Logger
	name string
}

func (z zeroLogger) Named(name string) synclib.Logger {
	joined := name
	if z.name != "" {
		joined = z.name + nameDelimiter + name
	}

	return zeroLogger{
		log:  z.log.With().Str("logger", joined).Logger(),
		name: joined,
	}
}

func (z zeroLogger) BindStr(name, value string) synclib.Logger {
	return zeroLogger{
		log:  z.log.With().Str(name, value).Logger(),
		name: z.name,
	}
}

func (z zeroLogger) BindInt(name string, value int) synclib.Logger {
	return zeroLogger{
		log:  z.log.With().Int(name, value).Logger(),
		name: z.name,
	}
}

func (z zeroLogger) Debug(msg string)   { z.log.Debug().Msg(msg) }
func (z zeroLogger) Info(msg string)    { z.log.Info().Msg(msg) }
func (z zeroLogger) Warning(msg string) { z.log.Warn().Msg(msg) }

func (z zeroLogger) DebugError(msg string, err error)   { z.log.Debug().Err(err).Msg(msg) }
func (z zeroLogger) InfoError(msg string, err error)    { z.log.Info().Err(err).Msg(msg) }
func (z zeroLogger) WarningError(msg string, err error) { z.log.Warn().Err(err).Msg(msg) }

// New builds a logger writing JSON lines to the given writer. Debug
// messages are dropped unless debug is set.
func New(out io.Writer, debug bool) synclib.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	log := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()

	return zeroLogger{log: log}
}

// NewNoop builds a logger which discards everything. It is used in
// tests and as a default for optional settings.
func NewNoop() synclib.Logger {
	return zeroLogger{log: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}
