// Package oracle provides USD prices for the native settlement asset.
package oracle

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRate is returned when a source produces a non-positive answer.
var ErrInvalidRate = errors.New("oracle: invalid rate")

// Rate is one reading of the native asset price in USD. Answer carries
// Decimals implied decimal places, so 2000_00000000 with 8 decimals is $2000.
type Rate struct {
	Answer    int64     `json:"answer"`
	Decimals  uint8     `json:"decimals"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Fresh reports whether the reading is no older than maxAge at now.
// A non-positive maxAge disables the check.
func (r Rate) Fresh(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return true
	}
	return now.Sub(r.UpdatedAt) <= maxAge
}

// PriceOracle is any source of the latest native/USD rate.
type PriceOracle interface {
	LatestRate(ctx context.Context) (Rate, error)
}
