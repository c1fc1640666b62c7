// Package logging configures the process-wide slog.Logger: colorized
// output on a terminal, plain text otherwise.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Options controls Setup.
type Options struct {
	// Level defaults to slog.LevelInfo.
	Level slog.Level
	// Writer defaults to os.Stdout.
	Writer io.Writer
	// InstanceID, when non-empty, is attached to every log line so
	// multiple cozysyncd processes sharing a log sink stay distinguishable.
	InstanceID string
}

// Setup builds a slog.Logger per Options, installs it as the process
// default, and returns it. On a TTY it uses tint for colorized,
// human-friendly output; otherwise it falls back to a plain text handler
// so redirected/piped output stays greppable.
func Setup(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	var handler slog.Handler
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: opts.Level})
	}

	logger := slog.New(handler)
	if opts.InstanceID != "" {
		logger = logger.With("instance", opts.InstanceID)
	}
	slog.SetDefault(logger)
	return logger
}
