package observability

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns the process JSON logger. Debug records are kept only in dev.
func NewLogger(env string) *slog.Logger {
	return NewLoggerTo(os.Stdout, env)
}

func NewLoggerTo(w io.Writer, env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if env == "dev" {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}

	return slog.New(NewContextHandler(slog.NewJSONHandler(w, opts))).With("service", "orderhub")
}
