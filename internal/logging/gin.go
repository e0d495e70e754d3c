package logging

import (
	"time"

	"github.com/gin-gonic/gin"
)

// TraceHeader carries the request trace id in both directions.
const TraceHeader = "X-Trace-ID"

// GinMiddleware attaches a trace-scoped logger to every request context and
// logs the request once it completes. An incoming X-Trace-ID is kept.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx, l := WithTraceContext(c.Request.Context(), c.GetHeader(TraceHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, TraceIDFromContext(ctx))

		c.Next()

		status := c.Writer.Status()
		entry := l.WithComponent("http").WithDuration(time.Since(start)).WithFields(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status_code": status,
			"client_ip":   c.ClientIP(),
		})
		if userID := c.GetString("user_id"); userID != "" {
			entry = entry.WithField("user_id", userID)
		}

		switch {
		case status >= 500:
			entry.Error("Request completed")
		case status >= 400:
			entry.Warn("Request completed")
		default:
			entry.Info("Request completed")
		}
	}
}
