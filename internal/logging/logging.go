// Package logging provides the process-wide structured logger. Output
// format and level come from the environment so deployments can switch
// to JSON without code changes.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Logger is the global logger instance.
var Logger = newLogger()

type contextKey string

// RequestIDKey is the context key request handlers attach their ID under.
const RequestIDKey contextKey = "request_id"

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("XADVISE_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("XADVISE_LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// WithRequestID stores a request ID on the context for later log
// correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// FromContext returns a logger annotated with the context's request ID,
// when present.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return Logger
	}
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		return Logger.With("request_id", id)
	}
	return Logger
}
