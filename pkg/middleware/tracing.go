package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/giftcard-ledger/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Tracing opens a span per request, continuing any trace the caller sent.
// Responses with a 5xx status mark the span as failed.
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "not_found"
		}

		ctx := tracing.ExtractHTTP(c.Request.Context(), c.Request.Header)
		ctx, span := tracing.Start(ctx, c.Request.Method+" "+route,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.String("request.id", GetCorrelationID(c)),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		var err error
		if status >= http.StatusInternalServerError {
			err = fmt.Errorf("%d %s", status, http.StatusText(status))
		}
		tracing.End(span, err)
	}
}
