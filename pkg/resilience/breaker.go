package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/richxcame/giftcard-ledger/pkg/logger"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when a call is rejected by an open breaker.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Operation is a unit of work protected by a breaker or a retry loop.
type Operation func(ctx context.Context) (interface{}, error)

// Settings tunes a circuit breaker.
type Settings struct {
	Name             string
	Interval         time.Duration // window after which closed-state counts reset
	Timeout          time.Duration // time spent open before probing again
	FailureThreshold uint32        // consecutive failures that trip the breaker
	SuccessThreshold uint32        // trial requests allowed through while half-open
	IsFailure        func(error) bool // nil counts every error
}

// CircuitBreaker wraps gobreaker with metrics, logging and a fallback.
type CircuitBreaker struct {
	name     string
	cb        *gobreaker.CircuitBreaker
	fallback  FallbackFunc
	isFailure func(error) bool
}

// NewCircuitBreaker builds a breaker; a nil fallback behaves like NoopFallback.
func NewCircuitBreaker(settings Settings, fallback FallbackFunc) *CircuitBreaker {
	name := nextBreakerName(settings.Name)
	if fallback == nil {
		fallback = NoopFallback
	}

	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	maxRequests := settings.SuccessThreshold
	if maxRequests == 0 {
		maxRequests = 1
	}

	b := &CircuitBreaker{name: name, fallback: fallback, isFailure: settings.IsFailure}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return settings.IsFailure != nil && !settings.IsFailure(err)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			recordBreakerStateChange(name, from, to)
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	recordBreakerState(name, gobreaker.StateClosed)

	return b
}

// Name returns the breaker name used in metrics.
func (b *CircuitBreaker) Name() string {
	return b.name
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() gobreaker.State {
	return b.cb.State()
}

// Execute runs op through the breaker. When the breaker rejects the call the
// fallback decides the outcome.
func (b *CircuitBreaker) Execute(ctx context.Context, op Operation) (interface{}, error) {
	recordBreakerRequest(b.name)

	result, err := b.cb.Execute(func() (interface{}, error) {
		return op(ctx)
	})
	if err == nil {
		return result, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		recordBreakerFallback(b.name)
		return b.fallback(ctx, err)
	}

	if b.isFailure == nil || b.isFailure(err) {
		recordBreakerFailure(b.name)
	}
	return nil, err
}
