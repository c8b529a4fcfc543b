// Package logging builds the zerolog loggers shared by the service packages.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the log output encoding.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// New returns a timestamped logger tagged with component, writing to stderr.
// Unknown levels fall back to info.
func New(component string, level string, format Format) zerolog.Logger {
	return NewWithWriter(os.Stderr, component, level, format)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, component string, level string, format Format) zerolog.Logger {
	out := w
	if format != FormatJSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(ParseLevel(level)).With().Timestamp()
	if component != "" {
		ctx = ctx.Str("component", component)
	}
	return ctx.Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Component derives a child logger carrying a component field.
func Component(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
