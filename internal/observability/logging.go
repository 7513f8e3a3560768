package observability

import (
	"context"
	"log/slog"
)

// LogContext holds structured logging context information.
type LogContext struct {
	JobID    string
	WorkType string
	Engine   string
	Company  string
	Stage    string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithJobID adds a job ID to the context.
func WithJobID(ctx context.Context, jobID string) context.Context {
	lc := extractLogContext(ctx)
	lc.JobID = jobID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithWorkType adds a work type to the context.
func WithWorkType(ctx context.Context, workType string) context.Context {
	lc := extractLogContext(ctx)
	lc.WorkType = workType
	return context.WithValue(ctx, logContextKey, lc)
}

// WithEngine adds a backup engine name to the context.
func WithEngine(ctx context.Context, engine string) context.Context {
	lc := extractLogContext(ctx)
	lc.Engine = engine
	return context.WithValue(ctx, logContextKey, lc)
}

// WithCompany adds a company name to the context.
func WithCompany(ctx context.Context, company string) context.Context {
	lc := extractLogContext(ctx)
	lc.Company = company
	return context.WithValue(ctx, logContextKey, lc)
}

// WithStage adds a stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	lc := extractLogContext(ctx)
	lc.Stage = stage
	return context.WithValue(ctx, logContextKey, lc)
}

// extractLogContext retrieves or creates a LogContext from the context.
func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

// getLogAttrs returns slog attributes from the context's LogContext.
func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	attrs := []slog.Attr{}

	if lc.JobID != "" {
		attrs = append(attrs, slog.String("job_id", lc.JobID))
	}
	if lc.WorkType != "" {
		attrs = append(attrs, slog.String("work_type", lc.WorkType))
	}
	if lc.Engine != "" {
		attrs = append(attrs, slog.String("engine", lc.Engine))
	}
	if lc.Company != "" {
		attrs = append(attrs, slog.String("company", lc.Company))
	}
	if lc.Stage != "" {
		attrs = append(attrs, slog.String("stage", lc.Stage))
	}

	return attrs
}

// InfoContext logs an info message with context information.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	allAttrs := append(getLogAttrs(ctx), attrs...)
	slog.LogAttrs(ctx, slog.LevelInfo, msg, allAttrs...)
}

// WarnContext logs a warning message with context information.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	allAttrs := append(getLogAttrs(ctx), attrs...)
	slog.LogAttrs(ctx, slog.LevelWarn, msg, allAttrs...)
}

// ErrorContext logs an error message with context information.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	allAttrs := append(getLogAttrs(ctx), attrs...)
	slog.LogAttrs(ctx, slog.LevelError, msg, allAttrs...)
}

// DebugContext logs a debug message with context information.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	allAttrs := append(getLogAttrs(ctx), attrs...)
	slog.LogAttrs(ctx, slog.LevelDebug, msg, allAttrs...)
}

// GetContext returns the structured log context from the provided context.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}
