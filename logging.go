package ctrlffi

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig selects the level, format and destination of the package logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level,omitempty" validate:"omitempty,oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `yaml:"format" json:"format,omitempty" validate:"omitempty,oneof=text json" jsonschema:"enum=text,enum=json"`
	// File receives log lines (appended); empty means stderr.
	File string `yaml:"file" json:"file,omitempty"`
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds a logger writing to w, or to the configured file (or
// stderr) when w is nil. The returned closer is a no-op unless a file
// was opened.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, func() error, error) {
	closer := func() error { return nil }
	if w == nil {
		w = os.Stderr
		if cfg.File != "" {
			f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, closer, err
			}
			w, closer = f, f.Close
		}
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closer, nil
}
