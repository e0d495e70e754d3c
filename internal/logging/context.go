package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return Default()
	}
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext attaches traceID and a logger carrying it to ctx.
// An empty traceID gets a freshly generated one.
func WithTraceContext(ctx context.Context, traceID string) (context.Context, *Logger) {
	if traceID == "" {
		traceID = GenerateTraceID()
	}
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// TraceIDFromContext returns the trace ID stored by WithTraceContext.
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// APIContext creates a logger context for API operations
func APIContext(method, path string, statusCode int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
	}).WithComponent("api")
}

// DashboardContext creates a logger context for dashboard builds
func DashboardContext(userID string, timeframes []string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"user_id":    userID,
		"timeframes": timeframes,
	}).WithComponent("dashboard")
}

// RecordContext creates a logger context for record store operations
func RecordContext(kind, userID, recordID string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"kind":      kind,
		"user_id":   userID,
		"record_id": recordID,
	}).WithComponent("records")
}

// WebSocketContext creates a logger context for WebSocket operations
func WebSocketContext(userID string) *Logger {
	return Default().WithField("user_id", userID).WithComponent("websocket")
}

// DatabaseContext creates a logger context for database operations
func DatabaseContext(operation, table string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}).WithComponent("database")
}
