package pricing

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// USDDecimals is the number of implied decimals of every USD amount (cents).
const USDDecimals = 2

// DefaultNativeDecimals is the precision of the native settlement asset (wei-like).
const DefaultNativeDecimals = 18

var (
	// ErrInvalidOracleRate is returned for a non-positive oracle answer
	ErrInvalidOracleRate = errors.New("invalid oracle rate")
	// ErrInvalidAmount is returned for negative, fractional or overflowing amounts
	ErrInvalidAmount = errors.New("invalid amount")
)

// RoundingMode defines how a fractional native amount is resolved
type RoundingMode int

const (
	RoundingModeCeiling RoundingMode = iota // Always round up
	RoundingModeFloor                       // Always round down
)

// Converter converts between USD cents and native asset units
type Converter struct {
	nativeDecimals uint8
	nativeScale    *big.Int
}

// NewConverter creates a converter for a native asset with the given precision
func NewConverter(nativeDecimals uint8) *Converter {
	return &Converter{
		nativeDecimals: nativeDecimals,
		nativeScale:    pow10(nativeDecimals),
	}
}

// NativeDecimals returns the precision of the native asset
func (c *Converter) NativeDecimals() uint8 {
	return c.nativeDecimals
}

// QuoteNativeAmount returns the native amount that must be paid for usdCents,
// given an oracle answer of rateAnswer USD per native unit scaled by 10^rateDecimals.
// The result is always rounded up so that a payment of exactly the quote never
// under-pays.
func (c *Converter) QuoteNativeAmount(usdCents int64, rateAnswer int64, rateDecimals uint8) (*big.Int, error) {
	if rateAnswer <= 0 {
		return nil, ErrInvalidOracleRate
	}
	if usdCents < 0 {
		return nil, ErrInvalidAmount
	}

	// native = usdCents * 10^native * 10^rateDecimals / (rateAnswer * 10^2)
	num := big.NewInt(usdCents)
	num.Mul(num, c.nativeScale)
	num.Mul(num, pow10(rateDecimals))

	den := big.NewInt(rateAnswer)
	den.Mul(den, pow10(USDDecimals))

	return divide(num, den, RoundingModeCeiling), nil
}

// USDValue returns the USD value in cents of a native amount, rounded down
func (c *Converter) USDValue(native *big.Int, rateAnswer int64, rateDecimals uint8) (int64, error) {
	if rateAnswer <= 0 {
		return 0, ErrInvalidOracleRate
	}
	if native == nil || native.Sign() < 0 {
		return 0, ErrInvalidAmount
	}

	num := new(big.Int).Mul(native, big.NewInt(rateAnswer))
	num.Mul(num, pow10(USDDecimals))

	den := new(big.Int).Mul(c.nativeScale, pow10(rateDecimals))

	cents := divide(num, den, RoundingModeFloor)
	if !cents.IsInt64() {
		return 0, ErrInvalidAmount
	}
	return cents.Int64(), nil
}

// FormatNative renders a native amount in whole units, e.g. "0.05"
func (c *Converter) FormatNative(native *big.Int) string {
	if native == nil {
		return "0"
	}
	return decimal.NewFromBigInt(native, -int32(c.nativeDecimals)).String()
}

// ParseNative parses a whole-unit native amount such as "0.3" into base units
func (c *Converter) ParseNative(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if d.IsNegative() {
		return nil, ErrInvalidAmount
	}

	scaled := d.Shift(int32(c.nativeDecimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: more than %d decimals", ErrInvalidAmount, c.nativeDecimals)
	}
	return scaled.BigInt(), nil
}

// FormatUSD renders cents as a dollar string with two decimals, e.g. "100.00"
func FormatUSD(cents int64) string {
	return decimal.New(cents, -USDDecimals).StringFixed(USDDecimals)
}

// ParseUSD parses a dollar string such as "70.00" into cents
func ParseUSD(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if d.IsNegative() {
		return 0, ErrInvalidAmount
	}

	scaled := d.Shift(USDDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: more than %d decimals", ErrInvalidAmount, USDDecimals)
	}
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, ErrInvalidAmount
	}
	return scaled.IntPart(), nil
}

// MulUSD multiplies a USD amount by a quantity, failing on overflow
func MulUSD(cents int64, quantity uint64) (int64, error) {
	if cents < 0 {
		return 0, ErrInvalidAmount
	}
	total := new(big.Int).Mul(big.NewInt(cents), new(big.Int).SetUint64(quantity))
	if !total.IsInt64() {
		return 0, ErrInvalidAmount
	}
	return total.Int64(), nil
}

// divide divides two non-negative integers using the given rounding mode
func divide(num, den *big.Int, mode RoundingMode) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if mode == RoundingModeCeiling && r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
