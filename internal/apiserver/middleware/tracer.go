// Package middleware carries the gin middleware shared by every route.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/crowdrank/crowdrank-backend/pkg/logging"
)

const (
	// TraceIDHeader carries the trace id on requests and responses.
	TraceIDHeader = "X-Trace-ID"

	// TraceIDKey is the gin context key holding the trace id.
	TraceIDKey = "trace_id"

	// LoggerKey is the gin context key holding the request-scoped logger.
	LoggerKey = "logger"
)

// TraceMiddleware assigns every request a trace id, honoring one supplied
// by the caller, and stores a logger carrying it in the context.
func TraceMiddleware(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Set(LoggerKey, logger.WithTraceID(traceID))
		c.Header(TraceIDHeader, traceID)

		c.Next()
	}
}

// GetTraceID returns the request's trace id, or empty when the trace
// middleware did not run.
func GetTraceID(c *gin.Context) string {
	if traceID, ok := c.Get(TraceIDKey); ok {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// GetLogger returns the request-scoped logger, falling back to the given
// logger when the trace middleware did not run.
func GetLogger(c *gin.Context, fallback logging.Logger) logging.Logger {
	if value, ok := c.Get(LoggerKey); ok {
		if requestLogger, ok := value.(logging.Logger); ok {
			return requestLogger
		}
	}
	return fallback
}
