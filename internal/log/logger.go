package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func New(environment string) zerolog.Logger {
	return NewWithWriter(os.Stdout, environment)
}

// NewWithWriter builds the portal logger on out. Production logs are JSON lines,
// everything else goes through the console writer.
func NewWithWriter(out io.Writer, environment string) zerolog.Logger {
	var output io.Writer = zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
	if environment == "production" {
		output = out
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", "plantops-portal").
		Str("env", environment).
		Logger()

	if environment != "production" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return logger
}
