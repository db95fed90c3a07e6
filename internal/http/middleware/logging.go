package middleware

import (
	"time"

	"zerosum_client/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger attaches a request-scoped logger to the request context and
// logs one line per request. An incoming X-Request-ID is reused.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		l := logger.With("request_id", id, "method", c.Request.Method, "path", c.Request.URL.Path)
		c.Request = c.Request.WithContext(logger.NewContext(c.Request.Context(), l))

		c.Next()

		status := c.Writer.Status()
		args := []any{"status", status, "duration", time.Since(start).Round(time.Microsecond), "ip", c.ClientIP()}
		switch {
		case status >= 500:
			l.Error("request", args...)
		case status >= 400:
			l.Warn("request", args...)
		default:
			l.Debug("request", args...)
		}
	}
}
