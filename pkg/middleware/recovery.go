package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/richxcame/giftcard-ledger/pkg/common"
	"github.com/richxcame/giftcard-ledger/pkg/logger"
	"go.uber.org/zap"
)

var panicsRecovered = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "giftcards",
		Name:      "http_panics_recovered_total",
		Help:      "Panics recovered while serving HTTP requests",
	},
	[]string{"endpoint"},
)

// Recovery turns a handler panic into a 500 envelope carrying the request's
// correlation ID, so a client report can be matched to the logged stack.
// Run it after CorrelationID.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			// the client went away mid-response; nothing left to answer
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				c.Abort()
				return
			}

			endpoint := c.FullPath()
			if endpoint == "" {
				endpoint = "not_found"
			}
			panicsRecovered.WithLabelValues(endpoint).Inc()

			requestID := GetCorrelationID(c)
			logger.WithContext(c.Request.Context()).Error("Panic recovered",
				zap.String("panic", fmt.Sprint(rec)),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("request_id", requestID),
				zap.Stack("stack"),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			common.ErrorResponseWithRequestID(c, http.StatusInternalServerError, "internal server error", requestID)
			c.Abort()
		}()

		c.Next()
	}
}
