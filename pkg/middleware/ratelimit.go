package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/giftcard-ledger/pkg/common"
	"github.com/richxcame/giftcard-ledger/pkg/logger"
	"github.com/richxcame/giftcard-ledger/pkg/ratelimit"
	"go.uber.org/zap"
)

// RateLimit enforces per-identity request budgets. Authenticated callers are
// keyed by user id, everyone else by client IP. Limiter errors fail open.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		identity := c.ClientIP()
		identityType := ratelimit.IdentityAnonymous
		if userID, err := GetUserID(c); err == nil {
			identity = userID.String()
			identityType = ratelimit.IdentityAuthenticated
		}

		rule := limiter.RuleFor(endpoint, identityType)
		result, err := limiter.Allow(c.Request.Context(), endpoint, identity, rule, identityType)
		if err != nil {
			logger.WithContext(c.Request.Context()).Warn("rate limiter unavailable, allowing request",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			seconds := int(math.Ceil(result.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			common.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}
