package giftcards

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// EventType names a ledger state change. Types double as event bus subjects.
type EventType string

const (
	EventTemplateCreated            EventType = "template.created"
	EventTemplateActiveSet          EventType = "template.active_set"
	EventTemplateRemainingSupplySet EventType = "template.remaining_supply_set"
	EventTemplateInitialSupplySet   EventType = "template.initial_supply_set"
	EventCardsMinted                EventType = "cards.minted"
	EventCardTransferred            EventType = "card.transferred"
	EventCardRedeemed               EventType = "card.redeemed"
	EventCardResaleSet              EventType = "card.resale_set"
	EventCustodyWithdrawn           EventType = "custody.withdrawn"
)

// Change is a validated state change ready to be journaled and applied.
type Change interface {
	Type() EventType
}

type TemplateCreated struct {
	Template Template `json:"template"`
}

type TemplateActiveSet struct {
	TemplateID uint64 `json:"template_id"`
	Active     bool   `json:"active"`
}

type TemplateRemainingSupplySet struct {
	TemplateID uint64 `json:"template_id"`
	Value      uint64 `json:"value"`
}

type TemplateInitialSupplySet struct {
	TemplateID uint64 `json:"template_id"`
	Value      uint64 `json:"value"`
}

// CardsMinted records a purchase. Paid is the native amount taken into custody
// as a base-10 string; it is empty for mints that carry no payment.
type CardsMinted struct {
	TemplateID     uint64    `json:"template_id"`
	Owner          uuid.UUID `json:"owner"`
	FirstCardID    uint64    `json:"first_card_id"`
	Quantity       uint64    `json:"quantity"`
	FaceValueCents int64     `json:"face_value_cents"`
	PurchasedAt    time.Time `json:"purchased_at"`
	Paid           string    `json:"paid,omitempty"`
}

// CardIDs lists the ids of the minted cards.
func (c CardsMinted) CardIDs() []uint64 {
	ids := make([]uint64, 0, c.Quantity)
	for i := uint64(0); i < c.Quantity; i++ {
		ids = append(ids, c.FirstCardID+i)
	}
	return ids
}

type CardTransferred struct {
	CardID uint64    `json:"card_id"`
	From   uuid.UUID `json:"from"`
	To     uuid.UUID `json:"to"`
}

type CardRedeemed struct {
	Redemption
}

// CardResaleSet changes the resale flag and, when UpdatePrice is set, the price.
type CardResaleSet struct {
	CardID      uint64 `json:"card_id"`
	Sellable    bool   `json:"sellable"`
	PriceCents  int64  `json:"price_cents"`
	UpdatePrice bool   `json:"update_price"`
}

type CustodyWithdrawn struct {
	Amount string    `json:"amount"`
	To     uuid.UUID `json:"to"`
}

func (TemplateCreated) Type() EventType            { return EventTemplateCreated }
func (TemplateActiveSet) Type() EventType          { return EventTemplateActiveSet }
func (TemplateRemainingSupplySet) Type() EventType { return EventTemplateRemainingSupplySet }
func (TemplateInitialSupplySet) Type() EventType   { return EventTemplateInitialSupplySet }
func (CardsMinted) Type() EventType                { return EventCardsMinted }
func (CardTransferred) Type() EventType            { return EventCardTransferred }
func (CardRedeemed) Type() EventType               { return EventCardRedeemed }
func (CardResaleSet) Type() EventType              { return EventCardResaleSet }
func (CustodyWithdrawn) Type() EventType           { return EventCustodyWithdrawn }

// Record is the persisted form of a Change.
type Record struct {
	ID         uuid.UUID       `json:"id"`
	Type       EventType       `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewRecord encodes change for the journal.
func NewRecord(change Change, occurredAt time.Time) (Record, error) {
	payload, err := json.Marshal(change)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s: %w", change.Type(), err)
	}
	return Record{
		ID:         uuid.New(),
		Type:       change.Type(),
		Payload:    payload,
		OccurredAt: occurredAt.UTC(),
	}, nil
}

// Change decodes the record payload.
func (r Record) Change() (Change, error) {
	switch r.Type {
	case EventTemplateCreated:
		return decodeChange[TemplateCreated](r)
	case EventTemplateActiveSet:
		return decodeChange[TemplateActiveSet](r)
	case EventTemplateRemainingSupplySet:
		return decodeChange[TemplateRemainingSupplySet](r)
	case EventTemplateInitialSupplySet:
		return decodeChange[TemplateInitialSupplySet](r)
	case EventCardsMinted:
		return decodeChange[CardsMinted](r)
	case EventCardTransferred:
		return decodeChange[CardTransferred](r)
	case EventCardRedeemed:
		return decodeChange[CardRedeemed](r)
	case EventCardResaleSet:
		return decodeChange[CardResaleSet](r)
	case EventCustodyWithdrawn:
		return decodeChange[CustodyWithdrawn](r)
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrCorruptJournal, r.Type)
	}
}

func decodeChange[T Change](r Record) (Change, error) {
	var change T
	if err := json.Unmarshal(r.Payload, &change); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCorruptJournal, r.Type, err)
	}
	return change, nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: bad amount %q", ErrCorruptJournal, s)
	}
	return v, nil
}
