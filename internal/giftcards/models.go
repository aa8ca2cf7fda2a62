package giftcards

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/giftcard-ledger/internal/oracle"
)

const (
	// Month and Year are fixed lengths; card lifetimes do not follow the calendar.
	Month = 30 * 24 * time.Hour
	Year  = 365 * 24 * time.Hour
)

// Template is a shop-defined gift card blueprint.
type Template struct {
	ID                    uint64    `json:"id"`
	InitialSupply         uint64    `json:"initial_supply"`
	RemainingSupply       uint64    `json:"remaining_supply"`
	FaceValueCents        int64     `json:"face_value_cents"`
	ListPriceCents        int64     `json:"list_price_cents"`
	ActivationDelayMonths uint32    `json:"activation_delay_months"`
	ExpiryYears           uint32    `json:"expiry_years"`
	Active                bool      `json:"active"`
	CreatedAt             time.Time `json:"created_at"`
}

// ActivationDelay is the wait between purchase and the first redemption.
func (t Template) ActivationDelay() time.Duration {
	return time.Duration(t.ActivationDelayMonths) * Month
}

// Lifetime is the time after purchase during which redemption is allowed.
func (t Template) Lifetime() time.Duration {
	return time.Duration(t.ExpiryYears) * Year
}

// CardState is derived from the purchase time and the template rules.
type CardState string

const (
	CardStatePending    CardState = "pending"
	CardStateRedeemable CardState = "redeemable"
	CardStateExpired    CardState = "expired"
)

// GiftCard is one minted, individually owned card.
type GiftCard struct {
	ID               uint64    `json:"id"`
	TemplateID       uint64    `json:"template_id"`
	BalanceCents     int64     `json:"balance_cents"`
	ResalePriceCents int64     `json:"resale_price_cents"`
	Sellable         bool      `json:"sellable"`
	PurchasedAt      time.Time `json:"purchased_at"`
	Owner            uuid.UUID `json:"owner"`
}

// ExpiresAt is the last instant at which the card can be redeemed.
func (c GiftCard) ExpiresAt(t Template) time.Time {
	return c.PurchasedAt.Add(t.Lifetime())
}

// ActivatesAt is the first instant at which the card can be redeemed.
func (c GiftCard) ActivatesAt(t Template) time.Time {
	return c.PurchasedAt.Add(t.ActivationDelay())
}

// State reports the card's redemption state at now.
func (c GiftCard) State(t Template, now time.Time) CardState {
	switch {
	case now.After(c.ExpiresAt(t)):
		return CardStateExpired
	case now.Before(c.ActivatesAt(t)):
		return CardStatePending
	default:
		return CardStateRedeemable
	}
}

// Redemption is one entry of a card's audit trail.
type Redemption struct {
	CardID            uint64    `json:"card_id"`
	AmountCents       int64     `json:"amount_cents"`
	BalanceAfterCents int64     `json:"balance_after_cents"`
	Reference         string    `json:"reference"`
	RedeemedAt        time.Time `json:"redeemed_at"`
}

// Receipt describes a completed purchase.
type Receipt struct {
	CardIDs     []uint64    `json:"card_ids"`
	TemplateID  uint64      `json:"template_id"`
	Quantity    uint64      `json:"quantity"`
	Buyer       uuid.UUID   `json:"buyer"`
	TotalCents  int64       `json:"total_cents"`
	Required    *big.Int    `json:"required"`
	Paid        *big.Int    `json:"paid"`
	Excess      *big.Int    `json:"excess"`
	Rate        oracle.Rate `json:"rate"`
	PurchasedAt time.Time   `json:"purchased_at"`
}

// Quote is a read-only price preview.
type Quote struct {
	TemplateID uint64      `json:"template_id"`
	Quantity   uint64      `json:"quantity"`
	TotalCents int64       `json:"total_cents"`
	Native     *big.Int    `json:"native"`
	Rate       oracle.Rate `json:"rate"`
}

// Listing is a card offered for resale with its price in the native asset.
type Listing struct {
	Card        GiftCard `json:"card"`
	PriceNative *big.Int `json:"price_native,omitempty"`
}

// ========================================
// REQUEST TYPES
// ========================================

// CreateTemplateRequest is the admin payload for a new template
type CreateTemplateRequest struct {
	InitialSupply         uint64 `json:"initial_supply" validate:"gte=0"`
	ActivationDelayMonths uint32 `json:"activation_delay_months" validate:"gte=0,lte=1200"`
	ExpiryYears           uint32 `json:"expiry_years" validate:"gte=1,lte=100"`
	FaceValue             string `json:"face_value" validate:"required,usd_amount"`
	ListPrice             string `json:"list_price" validate:"required,usd_amount"`
}

// SetActiveRequest toggles a template
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// SetSupplyRequest overrides a supply counter
type SetSupplyRequest struct {
	Value *uint64 `json:"value" validate:"required"`
}

// PurchaseRequest buys cards from a template
type PurchaseRequest struct {
	TemplateID *uint64 `json:"template_id" validate:"required"`
	Quantity   uint64  `json:"quantity" validate:"required,gte=1,lte=1000"`
	Payment    string  `json:"payment" validate:"required,native_amount"`
}

// TransferRequest moves a card to another holder
type TransferRequest struct {
	To string `json:"to" validate:"required,uuid"`
}

// ResaleRequest sets the resale flag and price
type ResaleRequest struct {
	Sellable *bool  `json:"sellable" validate:"required"`
	Price    string `json:"price" validate:"omitempty,usd_amount"`
}

// ResalePriceRequest sets the resale price only
type ResalePriceRequest struct {
	Price string `json:"price" validate:"required,usd_amount"`
}

// RedeemRequest consumes part of a card balance
type RedeemRequest struct {
	Amount    string `json:"amount" validate:"required,usd_amount"`
	Reference string `json:"reference" validate:"max=128"`
}

// WithdrawRequest moves custody funds out of the shop account
type WithdrawRequest struct {
	Amount string `json:"amount" validate:"required,native_amount"`
	To     string `json:"to" validate:"required,uuid"`
}
