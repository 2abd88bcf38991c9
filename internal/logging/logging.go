// Package logging builds the [logiface] logger used by the catalog, with a
// choice of backend.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Format names a logging backend.
type Format string

const (
	// FormatJSON writes one JSON object per line, via stumpy.
	FormatJSON Format = "json"
	// FormatConsole writes human-readable lines, via zerolog.
	FormatConsole Format = "console"
	// FormatText writes slog text records, via tint.
	FormatText Format = "text"
)

// Options configures [New].
type Options struct {
	Writer io.Writer
	Format Format
	Level  logiface.Level
	// Color enables ANSI colors, for the console and text formats.
	Color bool
}

// New returns a logger for the given options. A nil Writer discards output.
func New(opts Options) (*logiface.Logger[logiface.Event], error) {
	w := opts.Writer
	if w == nil {
		w = io.Discard
	}
	switch opts.Format {
	case FormatJSON, "":
		return stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(w)),
			stumpy.L.WithLevel(opts.Level),
		).Logger(), nil
	case FormatConsole:
		return newZerolog(w, opts.Level, opts.Color), nil
	case FormatText:
		return newSlog(w, opts.Level, opts.Color), nil
	default:
		return nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}
}

// ParseLevel parses a syslog level keyword, e.g. "info" or "err". Common
// aliases such as "error" and "warn" are accepted.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off", "none":
		return logiface.LevelDisabled, nil
	case "emerg", "emergency":
		return logiface.LevelEmergency, nil
	case "alert":
		return logiface.LevelAlert, nil
	case "crit", "critical":
		return logiface.LevelCritical, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "warning", "warn":
		return logiface.LevelWarning, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "info", "informational", "":
		return logiface.LevelInformational, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "trace":
		return logiface.LevelTrace, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf("logging: unknown level %q", s)
	}
}
