package giftcards

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/giftcard-ledger/internal/pricing"
	"github.com/richxcame/giftcard-ledger/pkg/common"
)

// TemplateView is the API representation of a template
type TemplateView struct {
	ID                    uint64    `json:"id"`
	InitialSupply         uint64    `json:"initial_supply"`
	RemainingSupply       uint64    `json:"remaining_supply"`
	FaceValue             string    `json:"face_value"`
	ListPrice             string    `json:"list_price"`
	ActivationDelayMonths uint32    `json:"activation_delay_months"`
	ExpiryYears           uint32    `json:"expiry_years"`
	Active                bool      `json:"active"`
	CreatedAt             time.Time `json:"created_at"`
}

// CardView is the API representation of a card
type CardView struct {
	ID          uint64    `json:"id"`
	TemplateID  uint64    `json:"template_id"`
	Owner       uuid.UUID `json:"owner"`
	Balance     string    `json:"balance"`
	ResalePrice string    `json:"resale_price"`
	Sellable    bool      `json:"sellable"`
	State       CardState `json:"state"`
	PurchasedAt time.Time `json:"purchased_at"`
	ActivatesAt time.Time `json:"activates_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenURI    string    `json:"token_uri,omitempty"`
}

// ListingView is a resale offer
type ListingView struct {
	CardID      uint64 `json:"card_id"`
	TemplateID  uint64 `json:"template_id"`
	Owner       string `json:"owner"`
	Balance     string `json:"balance"`
	Price       string `json:"price"`
	PriceNative string `json:"price_native,omitempty"`
}

// ReceiptView is the API representation of a purchase
type ReceiptView struct {
	CardIDs     []uint64  `json:"card_ids"`
	TemplateID  uint64    `json:"template_id"`
	Quantity    uint64    `json:"quantity"`
	Total       string    `json:"total"`
	Required    string    `json:"required"`
	Paid        string    `json:"paid"`
	PaidUSD     string    `json:"paid_usd"`
	Excess      string    `json:"excess"`
	RateAnswer  int64     `json:"rate_answer"`
	RateDecimal uint8     `json:"rate_decimals"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// QuoteView is a price preview
type QuoteView struct {
	TemplateID uint64 `json:"template_id"`
	Quantity   uint64 `json:"quantity"`
	Total      string `json:"total"`
	Native     string `json:"native"`
	RateAnswer int64  `json:"rate_answer"`
}

// RedemptionView is one audit trail entry
type RedemptionView struct {
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	Reference    string    `json:"reference,omitempty"`
	RedeemedAt   time.Time `json:"redeemed_at"`
}

func newTemplateView(t Template) TemplateView {
	return TemplateView{
		ID:                    t.ID,
		InitialSupply:         t.InitialSupply,
		RemainingSupply:       t.RemainingSupply,
		FaceValue:             pricing.FormatUSD(t.FaceValueCents),
		ListPrice:             pricing.FormatUSD(t.ListPriceCents),
		ActivationDelayMonths: t.ActivationDelayMonths,
		ExpiryYears:           t.ExpiryYears,
		Active:                t.Active,
		CreatedAt:             t.CreatedAt,
	}
}

func newTemplateViews(templates []Template) []TemplateView {
	views := make([]TemplateView, 0, len(templates))
	for _, t := range templates {
		views = append(views, newTemplateView(t))
	}
	return views
}

func newCardView(d CardDetails) CardView {
	return CardView{
		ID:          d.ID,
		TemplateID:  d.TemplateID,
		Owner:       d.Owner,
		Balance:     pricing.FormatUSD(d.BalanceCents),
		ResalePrice: pricing.FormatUSD(d.ResalePriceCents),
		Sellable:    d.Sellable,
		State:       d.State,
		PurchasedAt: d.PurchasedAt,
		ActivatesAt: d.ActivatesAt,
		ExpiresAt:   d.ExpiresAt,
		TokenURI:    d.TokenURI,
	}
}

func newListingView(l Listing, converter *pricing.Converter) ListingView {
	view := ListingView{
		CardID:     l.Card.ID,
		TemplateID: l.Card.TemplateID,
		Owner:      l.Card.Owner.String(),
		Balance:    pricing.FormatUSD(l.Card.BalanceCents),
		Price:      pricing.FormatUSD(l.Card.ResalePriceCents),
	}
	if l.PriceNative != nil {
		view.PriceNative = converter.FormatNative(l.PriceNative)
	}
	return view
}

func newReceiptView(r *Receipt, converter *pricing.Converter) ReceiptView {
	view := ReceiptView{
		CardIDs:     r.CardIDs,
		TemplateID:  r.TemplateID,
		Quantity:    r.Quantity,
		Total:       pricing.FormatUSD(r.TotalCents),
		Required:    converter.FormatNative(r.Required),
		Paid:        converter.FormatNative(r.Paid),
		Excess:      converter.FormatNative(r.Excess),
		RateAnswer:  r.Rate.Answer,
		RateDecimal: r.Rate.Decimals,
		PurchasedAt: r.PurchasedAt,
	}
	if cents, err := converter.USDValue(r.Paid, r.Rate.Answer, r.Rate.Decimals); err == nil {
		view.PaidUSD = pricing.FormatUSD(cents)
	}
	return view
}

func newRedemptionViews(trail []Redemption) []RedemptionView {
	views := make([]RedemptionView, 0, len(trail))
	for _, r := range trail {
		views = append(views, RedemptionView{
			Amount:       pricing.FormatUSD(r.AmountCents),
			BalanceAfter: pricing.FormatUSD(r.BalanceAfterCents),
			Reference:    r.Reference,
			RedeemedAt:   r.RedeemedAt,
		})
	}
	return views
}

// toAppError maps ledger errors onto the HTTP error envelope.
func toAppError(err error) *common.AppError {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return common.NewNotFoundError(err.Error(), err)
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNotOwner):
		return common.NewAppError(http.StatusForbidden, err.Error(), err)
	case errors.Is(err, ErrInsufficientPayment):
		return common.NewPaymentRequiredError(err.Error(), err)
	case errors.Is(err, ErrInvalidOracleRate), errors.Is(err, ErrOracleUnavailable):
		return common.NewAppError(http.StatusServiceUnavailable, "price oracle unavailable", err)
	case errors.Is(err, ErrJournalUnavailable):
		return common.NewAppError(http.StatusServiceUnavailable, "ledger journal unavailable", err)
	case errors.Is(err, ErrSupplyExhausted),
		errors.Is(err, ErrTemplateInactive),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrNotYetActivatable),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInsufficientCustody):
		return common.NewConflictError(err.Error())
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidRecipient),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, pricing.ErrInvalidAmount):
		return common.NewBadRequestError(err.Error(), err)
	default:
		return common.NewInternalError("internal error", err)
	}
}
