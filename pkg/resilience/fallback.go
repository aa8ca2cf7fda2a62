package resilience

import (
	"context"

	"github.com/richxcame/giftcard-ledger/pkg/logger"
	"go.uber.org/zap"
)

// FallbackFunc decides the result of a call rejected by an open breaker.
type FallbackFunc func(ctx context.Context, err error) (interface{}, error)

// NoopFallback returns ErrCircuitOpen without additional handling.
func NoopFallback(ctx context.Context, err error) (interface{}, error) {
	return nil, ErrCircuitOpen
}

// GracefulDegradation returns ErrCircuitOpen and logs which dependency is degraded.
// Callers that keep their own last-known-good value use it to decide when to serve it.
func GracefulDegradation(serviceName string) FallbackFunc {
	return func(ctx context.Context, err error) (interface{}, error) {
		logger.WithContext(ctx).Warn("circuit breaker open, dependency degraded",
			zap.String("service", serviceName),
			zap.Error(err),
		)
		return nil, ErrCircuitOpen
	}
}
