package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var DebugMode bool

var log = zerolog.New(io.Discard)

func Init() {
	if os.Getenv("DEBUG") == "true" {
		DebugMode = true
		SetOutput(os.Stderr)
	} else {
		// By default, discard all logs to prevent TUI corruption
		SetOutput(io.Discard)
	}
}

// SetOutput sets the output destination for the logger
func SetOutput(w io.Writer) {
	out := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()
}

func Debug(format string, v ...interface{}) {
	if DebugMode {
		log.Debug().Msgf(format, v...)
	}
}

func Info(format string, v ...interface{}) {
	log.Info().Msgf(format, v...)
}

func Error(err error, format string, v ...interface{}) {
	log.Error().Err(err).Msgf(format, v...)
}
