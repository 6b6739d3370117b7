// Package ctxlog provides a context key for safely passing a slog.Logger
// instance through context.Context.
package ctxlog

import (
	"context"
	"log/slog"
	"os"
)

// ctxKey is an unexported type to prevent collisions with context keys from other packages.
type ctxKey struct{}

// loggerKey is the key for the slog.Logger in a context.Context.
var loggerKey = ctxKey{}

// defaultLogger is returned by FromContext when no logger has been attached.
var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// WithLogger returns a new context with the provided logger embedded.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the slog.Logger from a context. If no logger is
// attached it returns defaultLogger rather than panicking: a background
// retry goroutine (internal/scheduler/retry.go) or a test helper routinely
// calls this against a bare context.Background(), and falling back to a
// default is preferable to crashing a retry loop over a missing logger.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return defaultLogger
}
