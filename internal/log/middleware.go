package log

import (
	"context"
	"log/slog"
	"net/http"

	"smartbudget/internal/core"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// Middleware creates HTTP middleware that adds a logger to the request context
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Add logger to request context
			ctx := context.WithValue(r.Context(), LoggerContextKey, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	// Return default logger if not found
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogHTTPEnd logs the completion of an HTTP request. A logger stored in ctx
// (carrying the request id) takes precedence.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	logger := sl.logger
	if l, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		logger = l
	}

	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogEvaluation logs the outcome of one user evaluation
func (sl *StructuredLogger) LogEvaluation(ctx context.Context, userID string, result core.AnomalyResult, created int) {
	fields := NewFields().
		WithUser(userID).
		WithResult(result).
		WithOperation(OpEvaluate).
		WithComponent(ComponentEvaluator)
	fields[FieldAlertsCreated] = created

	sl.logger.Logger.InfoContext(ctx, "Evaluation completed", fields.ToSlice()...)
}

// LogAlertCreated logs a newly persisted alert
func (sl *StructuredLogger) LogAlertCreated(ctx context.Context, a core.AlertRecord) {
	fields := NewFields().
		WithAlert(a).
		WithOperation(OpCreate).
		WithComponent(ComponentAlert)

	sl.logger.Logger.InfoContext(ctx, "Alert created", fields.ToSlice()...)
}

// LogError logs an error with structured context. An empty component
// falls back to the wrapped logger's own.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	if component == "" {
		component = sl.logger.Component()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)

	sl.logger.Logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
