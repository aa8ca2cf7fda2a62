package oracle

import (
	"context"
	"sync"
	"time"
)

// StaticOracle serves a fixed, admin-adjustable answer. It backs local and
// test deployments the way a mock aggregator does.
type StaticOracle struct {
	mu       sync.RWMutex
	answer   int64
	decimals uint8
	now      func() time.Time
}

// NewStaticOracle creates a static oracle.
func NewStaticOracle(answer int64, decimals uint8) *StaticOracle {
	return &StaticOracle{
		answer:   answer,
		decimals: decimals,
		now:      time.Now,
	}
}

// WithNow overrides the clock used for UpdatedAt.
func (o *StaticOracle) WithNow(now func() time.Time) *StaticOracle {
	o.now = now
	return o
}

// SetAnswer replaces the served answer.
func (o *StaticOracle) SetAnswer(answer int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.answer = answer
}

// LatestRate returns the configured answer stamped with the current time.
func (o *StaticOracle) LatestRate(ctx context.Context) (Rate, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	rate := Rate{Answer: o.answer, Decimals: o.decimals, UpdatedAt: o.now()}
	recordRate("static", rate)
	if rate.Answer <= 0 {
		recordRequest("static", resultInvalid)
		return Rate{}, ErrInvalidRate
	}
	recordRequest("static", resultOK)
	return rate, nil
}
