// Package middleware provides gin middleware for request tracing and logging.
package middleware

import (
	"context"
	"strings"
	"time"

	"agent-event-gateway/internal/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Logging adds a trace ID to every request and logs request completion.
// Trace IDs are taken from the Cloud Run trace header when present, then
// X-Trace-ID, then generated.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Cloud-Trace-Context")
		if traceID != "" {
			// Cloud Run format: "TRACE_ID/SPAN_ID;o=TRACE_TRUE"
			if slashIndex := strings.Index(traceID, "/"); slashIndex != -1 {
				traceID = traceID[:slashIndex]
			}
		} else {
			traceID = c.GetHeader("X-Trace-ID")
			if traceID == "" {
				traceID = uuid.New().String()
			}
		}

		c.Set("trace_id", traceID)
		c.Header("X-Trace-ID", traceID)

		ctx := context.WithValue(c.Request.Context(), log.TraceIDKey, traceID)
		c.Request = c.Request.WithContext(ctx)

		startTime := time.Now()
		log.Debug(ctx, "Request started",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"user_agent", c.Request.UserAgent(),
			"remote_addr", c.ClientIP(),
		)

		c.Next()

		log.Info(c.Request.Context(), "Request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", time.Since(startTime).Seconds(),
		)
	}
}
