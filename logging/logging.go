// Package logging builds the slog loggers used by the snekgym binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

type Options struct {
	Level     slog.Leveler
	Format    string
	AddSource bool
}

// New returns a logger writing to w in opts.Format. An empty format means text.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddSource}

	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		h = slog.NewTextHandler(w, hopts)
	case FormatJSON:
		h = slog.NewJSONHandler(w, hopts)
	case FormatPretty:
		h = NewPrettyHandler(w, hopts)
	default:
		return nil, fmt.Errorf("unknown log format %q (want text, json or pretty)", opts.Format)
	}
	return slog.New(h), nil
}

// ParseLevel accepts debug, info, warn or error, with optional offsets such
// as "debug-2". An empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("parse log level %q: %w", s, err)
	}
	return l, nil
}
