package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/giftcard-ledger/pkg/logger"
	"go.uber.org/zap"
)

// RequestLogger writes one structured line per request. Probe paths are
// skipped; 5xx responses log at error level and 4xx at warn.
func RequestLogger(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
		}
		if userID, err := GetUserID(c); err == nil {
			fields = append(fields, zap.String("user_id", userID.String()))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		reqLogger := logger.WithContext(c.Request.Context())
		switch {
		case status >= http.StatusInternalServerError:
			reqLogger.Error("request failed", fields...)
		case status >= http.StatusBadRequest:
			reqLogger.Warn("request rejected", fields...)
		default:
			reqLogger.Info("request completed", fields...)
		}
	}
}
