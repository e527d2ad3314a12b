// Package logging builds the zerolog logger shared by every command.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Config struct {
	Level  string    // debug, info, warn, error (default info)
	Format string    // console or json (default console)
	Out    io.Writer // default os.Stderr
	// File, when set, also receives every event as JSON lines.
	File string
}

// New returns a logger and a close func for the optional log file.
func New(cfg Config) (zerolog.Logger, func() error, error) {
	noop := func() error { return nil }

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), noop, err
	}

	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	switch strings.ToLower(cfg.Format) {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	case FormatJSON:
	default:
		return zerolog.Nop(), noop, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	closer := noop
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), noop, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), noop, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closer = f.Close
	}

	log := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("app", "tutorgen").
		Logger()
	return log, closer, nil
}

func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", s)
}
