// Package logger wraps slog with the contextual helpers the rest of the
// engine leans on (run/node-scoped fields, stack traces on Error).
package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger with contextual fields.
type Logger struct {
	*slog.Logger
}

// New creates a new logger. format is "json" for production, anything
// else renders colored console output via tint for local development.
func New(level, format string) *Logger {
	var handler slog.Handler

	logLevel := parseLevel(level)

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
			AddSource:  false,
		})
	}

	return &Logger{Logger: slog.New(handler)}
}

// WithContext returns a logger carrying the workflow/run ID found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if workflowID := ctx.Value(ctxKeyWorkflowID{}); workflowID != nil {
		return &Logger{Logger: l.With("workflow_id", workflowID)}
	}
	return l
}

// WithWorkflow adds workflow_id to the logger context.
func (l *Logger) WithWorkflow(workflowID string) *Logger {
	return &Logger{Logger: l.With("workflow_id", workflowID)}
}

// WithNode adds alias/position to the logger context.
func (l *Logger) WithNode(alias string, position int) *Logger {
	return &Logger{Logger: l.With("alias", alias, "position", position)}
}

// Error logs an error with a stack trace attached.
func (l *Logger) Error(msg string, args ...any) {
	args = append(args, "stack", string(debug.Stack()))
	l.Logger.Error(msg, args...)
}

// ErrorContext logs an error with context and a stack trace attached.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	args = append(args, "stack", string(debug.Stack()))
	l.Logger.ErrorContext(ctx, msg, args...)
}

type ctxKeyWorkflowID struct{}

// ContextWithWorkflow stashes a workflow ID on ctx for WithContext to pick up.
func ContextWithWorkflow(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, ctxKeyWorkflowID{}, workflowID)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
