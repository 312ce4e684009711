package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/safar/go-rental-store/internal/config"
)

// New builds the process logger from configuration. Text format uses the
// zerolog console writer; anything else writes JSON lines.
func New(cfg config.LogConfig) zerolog.Logger {
	var output io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "text") {
		output = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	level := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "rental-store").
		Logger()
}

func ParseLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
