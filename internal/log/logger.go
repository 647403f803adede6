// Package log wraps log/slog with context-carried trace IDs and fields so
// every log line emitted while processing a webhook delivery carries the
// same correlation metadata.
package log

import (
	"context"
	"log/slog"
)

// FromContext returns the default logger enriched with the trace ID and any
// log fields stored in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if id, ok := ctx.Value(TraceIDKey).(string); ok && id != "" {
		logger = logger.With("trace_id", id)
	}
	for k, v := range ContextFields(ctx) {
		logger = logger.With(k, v)
	}
	return logger
}

// Info logs at Info level with trace metadata extracted from ctx.
func Info(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Info(msg, args...)
}

// Warn logs at Warn level with trace metadata extracted from ctx.
func Warn(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Warn(msg, args...)
}

// Error logs at Error level with trace metadata extracted from ctx.
func Error(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Error(msg, args...)
}

// Debug logs at Debug level with trace metadata extracted from ctx.
func Debug(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Debug(msg, args...)
}
