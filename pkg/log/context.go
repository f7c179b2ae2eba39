package log

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	accountIDKey contextKey = "account_id"
	loggerKey    contextKey = "logger"
)

// ContextWithRequestID returns a copy of ctx carrying the request ID.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stored in ctx.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// ContextWithAccountID returns a copy of ctx carrying the authenticated account ID.
func ContextWithAccountID(ctx context.Context, accountID int64) context.Context {
	return context.WithValue(ctx, accountIDKey, accountID)
}

// AccountIDFromContext returns the authenticated account ID stored in ctx.
func AccountIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(accountIDKey).(int64)
	return id, ok
}

// ContextFields returns the request ID and account ID fields found in ctx.
func ContextFields(ctx context.Context) []Field {
	var fields []Field
	if id, ok := RequestIDFromContext(ctx); ok {
		fields = append(fields, String(FieldRequestID, id))
	}
	if id, ok := AccountIDFromContext(ctx); ok {
		fields = append(fields, Int64(FieldAccountID, id))
	}
	return fields
}

// ToContext stores a logger in ctx.
func ToContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return NewNop()
}
