package apirouter

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wayposthq/waypost/internal/logging"
	"go.uber.org/zap"
)

// LoggerMiddleware logs one line per request once the handler chain has run.
// 5xx responses log at error with the last recorded error attached.
func LoggerMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		if query := c.Request.URL.RawQuery; query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if last := c.Errors.Last(); last != nil {
			fields = append(fields, zap.Error(last.Err))
		}

		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			logger.Ctx(ctx).Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Ctx(ctx).Warn("request", fields...)
		default:
			logger.Ctx(ctx).Info("request", fields...)
		}
	}
}
