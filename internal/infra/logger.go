package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs the logger for one process. Development gets a
// console writer at debug level, tests are silent and everything else logs
// JSON at info. LOG_LEVEL overrides the level.
func NewLogger(appEnv, process string) zerolog.Logger {
	var out io.Writer = os.Stdout
	level := zerolog.InfoLevel
	switch appEnv {
	case "development":
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	case "test":
		out = io.Discard
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("process", process).
		Logger()
}

// Logger aliases zerolog.Logger so packages can accept a logger without
// importing zerolog themselves.
type Logger = zerolog.Logger
