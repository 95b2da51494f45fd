package log

import (
	"context"
	"log/slog"
	"net/http"

	"rimborsi/internal/core"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// WithLogger returns a copy of ctx carrying logger
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
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

// LogHTTPStart logs the start of an HTTP request
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.Header.Get("User-Agent")).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.DebugContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs the completion of an HTTP request
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, "").
		WithHTTPResponse(statusCode, durationMs).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogExpenseCreated logs successful expense creation
func (sl *StructuredLogger) LogExpenseCreated(ctx context.Context, e core.Expense) {
	fields := NewFields().
		WithExpense(e.ID, e.OwnerID, e.CategoryID, e.Amount.StringFixed(2), e.Currency).
		WithOperation(OpCreate).
		WithComponent(ComponentExpense)

	sl.logger.InfoContext(ctx, "Expense created", fields.ToSlice()...)
}

// LogBudgetExceeded logs a budget threshold crossing at warn level
func (sl *StructuredLogger) LogBudgetExceeded(ctx context.Context, ev core.BudgetExceededEvent) {
	sl.logger.WarnContext(ctx, "Budget threshold exceeded",
		FieldComponent, ComponentBudget,
		FieldBudgetType, ev.BudgetType,
		FieldWindow, ev.Window,
		FieldPeriod, ev.Period(),
		FieldExpenseID, ev.ExpenseID,
		FieldOwnerID, ev.UserID,
		FieldTotalBefore, ev.CurrentTotal.StringFixed(2),
		FieldTotalAfter, ev.NewTotal.StringFixed(2),
		FieldBudgetLimit, ev.BudgetLimit.StringFixed(2),
		FieldCurrency, ev.Currency)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)
	allFields[FieldErrorKind] = core.KindOf(err).String()

	sl.logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
