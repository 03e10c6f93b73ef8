package config

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger configures the global zerolog logger for cfg and returns it.
func SetupLogger(cfg Config) zerolog.Logger {
	return setupLogger(cfg, os.Stderr)
}

func setupLogger(cfg Config, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(cfg.LogLevel)

	out := w
	if cfg.LogFormat == LogFormatConsole {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	logger := zerolog.New(out).With().Timestamp().Str("service", "pairchat").Logger()
	log.Logger = logger
	return logger
}
