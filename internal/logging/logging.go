// Package logging configures the zerolog logger for the predict command.
package logging

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// New builds the root logger for a run. Every line carries a fresh run ID so
// interleaved output from several runs can be told apart. fileFriendly
// disables ANSI color and keeps each event on one plain line, for logs that
// end up in files rather than terminals.
func New(fileFriendly bool) zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    fileFriendly,
	}

	return zerolog.New(writer).
		With().
		Timestamp().
		Str("run_id", uuid.New().String()).
		Logger()
}
