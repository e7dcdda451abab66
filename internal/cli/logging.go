package cli

import (
	"log/slog"
	"os"
)

// NewLogger configures the driver's structured logger.
func NewLogger(jsonLogs, debug bool) *slog.Logger {
	opts := slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts = slog.HandlerOptions{Level: slog.LevelDebug}
	}

	var handler slog.Handler
	if jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, &opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, &opts)
	}
	return slog.New(handler)
}
