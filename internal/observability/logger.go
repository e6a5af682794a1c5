package observability

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns the JSON logger every binary installs as the default.
// Each line names the service and environment it came from.
func NewLogger(service, env string) *slog.Logger {
	return newLogger(os.Stdout, service, env)
}

func newLogger(w io.Writer, service, env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}).WithAttrs([]slog.Attr{
		slog.String("service", service),
		slog.String("env", env),
	})

	return slog.New(NewContextHandler(handler))
}
