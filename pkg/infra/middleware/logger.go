package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	mwopts "github.com/kart-io/chainrag/pkg/options/middleware"
)

// AccessLog writes one line per request: error level for 5xx, warn for 4xx
// and slow requests, info otherwise.
func AccessLog(opts mwopts.LoggerOptions) gin.HandlerFunc {
	skip := make(map[string]bool, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"remote_addr", c.ClientIP(),
			"bytes", c.Writer.Size(),
			"latency_ms", latency.Milliseconds(),
		}
		if id := GetRequestID(c.Request.Context()); id != "" {
			fields = append(fields, "request_id", id)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		slow := opts.SlowThreshold > 0 && latency >= opts.SlowThreshold
		switch {
		case status >= 500:
			logger.Errorw("HTTP request", fields...)
		case status >= 400:
			logger.Warnw("HTTP request", fields...)
		case slow:
			logger.Warnw("Slow HTTP request", fields...)
		default:
			logger.Infow("HTTP request", fields...)
		}
	}
}
