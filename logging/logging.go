// Package logging provides the zerolog loggers used across the server.
//
// Console output is used when stderr is a terminal, JSON otherwise. The
// level comes from configuration or the LOG_LEVEL environment variable.
//
//	log := logging.Default()
//	log.Info().Str("addr", ":8080").Msg("listening")
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var defaultLogger = newDefault()

// Nop discards everything
var Nop = zerolog.Nop()

// Config holds logger options
type Config struct {
	// Level is the minimum level (trace, debug, info, warn, error)
	Level string
	// Format is json, console or auto
	Format string
	// Output is stderr, stdout or a file path
	Output string
}

func newDefault() zerolog.Logger {
	level := levelFromEnv()

	var w io.Writer = os.Stderr
	if isTerminal(os.Stderr) && os.Getenv("LOG_FORMAT") != "json" {
		w = consoleWriter(os.Stderr)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Default returns the process-wide logger
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault replaces the process-wide logger
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
}

// New creates a JSON logger writing to w at the global level
func New(w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.GlobalLevel()).With().Timestamp().Logger()
}

// NewFromConfig builds a logger from cfg. An unopenable output file falls
// back to stderr.
func NewFromConfig(cfg Config) zerolog.Logger {
	level := ParseLevel(cfg.Level)

	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			out = os.Stderr
		} else {
			out = f
		}
	}

	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		out = consoleWriter(out)
	case "json":
	default:
		if f, ok := out.(*os.File); ok && isTerminal(f) {
			out = consoleWriter(out)
		}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// ParseLevel parses a level name, defaulting to info
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.Kitchen,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}
}

func levelFromEnv() zerolog.Level {
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		return ParseLevel(s)
	}
	if os.Getenv("DEBUG") != "" {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
