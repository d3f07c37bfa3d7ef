// Package logger builds the zerolog loggers used by the binaries.
package logger

import (
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

type stackTracer interface{ StackTrace() pkgerrors.StackTrace }

func configureErrors() {
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}
}

func level(debug bool) zerolog.Level {
	if debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// New returns a JSON logger on stdout tagged with serviceName. It also
// becomes the global logger so packages logging through zerolog/log share
// its output. Call sites should use .Stack() on error events to include
// stacks.
func New(serviceName string, debug bool) zerolog.Logger {
	return newWithWriter(os.Stdout, serviceName, debug)
}

func newWithWriter(w io.Writer, serviceName string, debug bool) zerolog.Logger {
	configureErrors()
	l := zerolog.New(w).Level(level(debug)).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
	log.Logger = l
	return l
}

// NewConsole returns a human-readable logger on stderr for command line
// tools.
func NewConsole(debug bool) zerolog.Logger {
	l := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}).Level(level(debug)).With().Timestamp().Logger()
	log.Logger = l
	return l
}
