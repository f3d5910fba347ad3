// Package logging wires up the process-wide slog.Logger, mirroring the
// teacher's structured, leveled log/slog usage throughout broker, health
// and app/host. An optional rotating file sink is added via lumberjack
// when a log file path is configured (SPEC_FULL §2 item 9).
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Debug   bool
	LogFile string // empty disables the rotating file sink
}

// New builds a slog.Logger writing to stderr and, when LogFile is set, to a
// lumberjack-rotated file as well. It also calls slog.SetDefault so
// package-level slog.Info/Warn/Error calls route through it, matching the
// teacher's mix of package-level and explicit-logger calls.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if opts.LogFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
