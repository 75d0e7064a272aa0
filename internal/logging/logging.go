// Package logging builds the diagnostic logger. Diagnostics never go to
// stdout, which carries the operator transition lines.
package logging

import (
	"io"
	"os"

	"github.com/goodtune/focustrack/internal/config"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the logger based on configuration. The returned closer
// releases the log file, if any.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, io.Closer) {
	return New(cfg, os.Stderr)
}

// New is Setup with an explicit console writer.
func New(cfg config.LoggingConfig, console io.Writer) (zerolog.Logger, io.Closer) {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	var out io.Writer = console
	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		// The file always gets JSON so it can be shipped elsewhere.
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	return zerolog.New(out).With().Timestamp().Logger(), closer
}

// ParseLevel maps a configured level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
