// Package logging configures structured logging with log/slog.
//
// Loggers obtained through FromContext carry the chi request id and, inside a
// connector run, the run id and connector name, so every line written for a
// request can be correlated.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/connectorgw/internal/core"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing to w.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromContext returns the default logger enriched with request context:
// request_id from chi's RequestID middleware, and run_id / connector when
// the context belongs to a connector run.
//
// Usage:
//
//	logger := logging.FromContext(ctx)
//	logger.Info("fetch complete", "call", name, "bytes", len(body))
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if runID := core.RunIDFromContext(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}
	if name := core.ConnectorFromContext(ctx); name != "" {
		logger = logger.With("connector", name)
	}
	return logger
}

// WithRun returns a context tagged with the run id and connector name, and
// a logger that carries both.
//
//	ctx, logger := logging.WithRun(ctx, uuid.NewString(), spec.Name())
//	logger.Info("run started")
func WithRun(ctx context.Context, runID, connector string) (context.Context, *slog.Logger) {
	ctx = core.ContextWithRunID(ctx, runID)
	ctx = core.ContextWithConnector(ctx, connector)
	return ctx, FromContext(ctx)
}

// WithFields returns a logger with additional structured fields.
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
