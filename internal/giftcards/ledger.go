package giftcards

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Ledger owns minted cards, their ownership and the shop's custody balance.
// Like Registry it is not safe for concurrent use.
type Ledger struct {
	registry    *Registry
	cards       []GiftCard // card id n is stored at index n-1
	holdings    map[uuid.UUID]map[uint64]struct{}
	redemptions map[uint64][]Redemption
	custody     *big.Int
}

// NewLedger creates an empty ledger over registry.
func NewLedger(registry *Registry) *Ledger {
	return &Ledger{
		registry:    registry,
		holdings:    make(map[uuid.UUID]map[uint64]struct{}),
		redemptions: make(map[uint64][]Redemption),
		custody:     new(big.Int),
	}
}

// Mint creates quantity cards from a template for owner.
func (l *Ledger) Mint(templateID uint64, owner uuid.UUID, quantity uint64, now time.Time) ([]uint64, error) {
	change, err := l.planMint(templateID, owner, quantity, now, nil)
	if err != nil {
		return nil, err
	}
	if err := l.applyMint(change); err != nil {
		return nil, err
	}
	return change.CardIDs(), nil
}

// Transfer moves a card from its current owner to another holder.
func (l *Ledger) Transfer(cardID uint64, from, to uuid.UUID) error {
	change, err := l.planTransfer(cardID, from, to)
	if err != nil {
		return err
	}
	return l.applyTransfer(change)
}

// ReduceBalance consumes part of a card balance and returns the new balance.
func (l *Ledger) ReduceBalance(caller uuid.UUID, cardID uint64, amountCents int64, reference string, now time.Time) (int64, error) {
	change, err := l.planReduceBalance(caller, cardID, amountCents, reference, now)
	if err != nil {
		return 0, err
	}
	if err := l.applyRedeemed(change); err != nil {
		return 0, err
	}
	return change.BalanceAfterCents, nil
}

// SetResale sets the resale flag. Enabling also sets the price; disabling
// keeps the stored price.
func (l *Ledger) SetResale(caller uuid.UUID, cardID uint64, sellable bool, priceCents int64) error {
	change, err := l.planSetResale(caller, cardID, sellable, priceCents)
	if err != nil {
		return err
	}
	return l.applyResale(change)
}

// SetResalePrice sets the resale price without touching the flag.
func (l *Ledger) SetResalePrice(caller uuid.UUID, cardID uint64, priceCents int64) error {
	change, err := l.planSetResalePrice(caller, cardID, priceCents)
	if err != nil {
		return err
	}
	return l.applyResale(change)
}

// Withdraw moves native funds out of custody.
func (l *Ledger) Withdraw(caller uuid.UUID, amount *big.Int, to uuid.UUID) error {
	change, err := l.planWithdraw(caller, amount, to)
	if err != nil {
		return err
	}
	return l.applyWithdraw(change)
}

// ========================================
// READS
// ========================================

// Get returns a copy of the card.
func (l *Ledger) Get(cardID uint64) (*GiftCard, error) {
	card, err := l.lookup(cardID)
	if err != nil {
		return nil, err
	}
	copied := *card
	return &copied, nil
}

// OwnerOf returns the current holder of a card.
func (l *Ledger) OwnerOf(cardID uint64) (uuid.UUID, error) {
	card, err := l.lookup(cardID)
	if err != nil {
		return uuid.Nil, err
	}
	return card.Owner, nil
}

// BalanceOf returns how many cards owner holds.
func (l *Ledger) BalanceOf(owner uuid.UUID) int {
	return len(l.holdings[owner])
}

// CardsOf returns the cards owner holds in ascending id order.
func (l *Ledger) CardsOf(owner uuid.UUID) []GiftCard {
	ids := make([]uint64, 0, len(l.holdings[owner]))
	for id := range l.holdings[owner] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	cards := make([]GiftCard, 0, len(ids))
	for _, id := range ids {
		cards = append(cards, l.cards[id-1])
	}
	return cards
}

// ForSale returns the cards flagged for resale in ascending id order.
func (l *Ledger) ForSale() []GiftCard {
	var listed []GiftCard
	for _, card := range l.cards {
		if card.Sellable {
			listed = append(listed, card)
		}
	}
	return listed
}

// Redemptions returns the audit trail of a card, oldest first.
func (l *Ledger) Redemptions(cardID uint64) ([]Redemption, error) {
	if _, err := l.lookup(cardID); err != nil {
		return nil, err
	}
	trail := make([]Redemption, len(l.redemptions[cardID]))
	copy(trail, l.redemptions[cardID])
	return trail, nil
}

// Custody returns the native amount held by the shop.
func (l *Ledger) Custody() *big.Int {
	return new(big.Int).Set(l.custody)
}

// Len returns the number of cards ever minted.
func (l *Ledger) Len() int {
	return len(l.cards)
}

func (l *Ledger) lookup(cardID uint64) (*GiftCard, error) {
	if cardID == 0 || cardID > uint64(len(l.cards)) {
		return nil, fmt.Errorf("card %d: %w", cardID, ErrNotFound)
	}
	return &l.cards[cardID-1], nil
}

// ========================================
// PLANNING
// ========================================

func (l *Ledger) planMint(templateID uint64, owner uuid.UUID, quantity uint64, now time.Time, paid *big.Int) (CardsMinted, error) {
	if quantity == 0 {
		return CardsMinted{}, ErrInvalidQuantity
	}
	if owner == uuid.Nil {
		return CardsMinted{}, fmt.Errorf("%w: owner must be set", ErrInvalidRecipient)
	}
	t, err := l.registry.lookup(templateID)
	if err != nil {
		return CardsMinted{}, err
	}
	if quantity > t.RemainingSupply {
		return CardsMinted{}, fmt.Errorf("%w: template %d has %d left, requested %d", ErrSupplyExhausted, templateID, t.RemainingSupply, quantity)
	}

	change := CardsMinted{
		TemplateID:     templateID,
		Owner:          owner,
		FirstCardID:    uint64(len(l.cards)) + 1,
		Quantity:       quantity,
		FaceValueCents: t.FaceValueCents,
		PurchasedAt:    now.UTC(),
	}
	if paid != nil {
		change.Paid = paid.String()
	}
	return change, nil
}

func (l *Ledger) planTransfer(cardID uint64, from, to uuid.UUID) (CardTransferred, error) {
	card, err := l.lookup(cardID)
	if err != nil {
		return CardTransferred{}, err
	}
	if card.Owner != from {
		return CardTransferred{}, fmt.Errorf("card %d: %w", cardID, ErrNotOwner)
	}
	if to == uuid.Nil {
		return CardTransferred{}, fmt.Errorf("%w: recipient must be set", ErrInvalidRecipient)
	}
	return CardTransferred{CardID: cardID, From: from, To: to}, nil
}

func (l *Ledger) planReduceBalance(caller uuid.UUID, cardID uint64, amountCents int64, reference string, now time.Time) (CardRedeemed, error) {
	if err := l.registry.authorize(caller); err != nil {
		return CardRedeemed{}, err
	}
	card, err := l.lookup(cardID)
	if err != nil {
		return CardRedeemed{}, err
	}
	if amountCents <= 0 {
		return CardRedeemed{}, ErrInvalidAmount
	}
	t, err := l.registry.lookup(card.TemplateID)
	if err != nil {
		return CardRedeemed{}, err
	}

	switch card.State(*t, now) {
	case CardStateExpired:
		return CardRedeemed{}, fmt.Errorf("card %d expired at %s: %w", cardID, card.ExpiresAt(*t).Format(time.RFC3339), ErrExpired)
	case CardStatePending:
		return CardRedeemed{}, fmt.Errorf("card %d activates at %s: %w", cardID, card.ActivatesAt(*t).Format(time.RFC3339), ErrNotYetActivatable)
	}

	if amountCents > card.BalanceCents {
		return CardRedeemed{}, fmt.Errorf("card %d holds %d cents, requested %d: %w", cardID, card.BalanceCents, amountCents, ErrInsufficientBalance)
	}

	return CardRedeemed{Redemption: Redemption{
		CardID:            cardID,
		AmountCents:       amountCents,
		BalanceAfterCents: card.BalanceCents - amountCents,
		Reference:         reference,
		RedeemedAt:        now.UTC(),
	}}, nil
}

func (l *Ledger) planSetResale(caller uuid.UUID, cardID uint64, sellable bool, priceCents int64) (CardResaleSet, error) {
	card, err := l.lookup(cardID)
	if err != nil {
		return CardResaleSet{}, err
	}
	if card.Owner != caller {
		return CardResaleSet{}, fmt.Errorf("card %d: %w", cardID, ErrNotOwner)
	}
	if sellable && priceCents < 0 {
		return CardResaleSet{}, ErrInvalidAmount
	}
	return CardResaleSet{CardID: cardID, Sellable: sellable, PriceCents: priceCents, UpdatePrice: sellable}, nil
}

func (l *Ledger) planSetResalePrice(caller uuid.UUID, cardID uint64, priceCents int64) (CardResaleSet, error) {
	card, err := l.lookup(cardID)
	if err != nil {
		return CardResaleSet{}, err
	}
	if card.Owner != caller {
		return CardResaleSet{}, fmt.Errorf("card %d: %w", cardID, ErrNotOwner)
	}
	if priceCents < 0 {
		return CardResaleSet{}, ErrInvalidAmount
	}
	return CardResaleSet{CardID: cardID, Sellable: card.Sellable, PriceCents: priceCents, UpdatePrice: true}, nil
}

func (l *Ledger) planWithdraw(caller uuid.UUID, amount *big.Int, to uuid.UUID) (CustodyWithdrawn, error) {
	if err := l.registry.authorize(caller); err != nil {
		return CustodyWithdrawn{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return CustodyWithdrawn{}, ErrInvalidAmount
	}
	if to == uuid.Nil {
		return CustodyWithdrawn{}, fmt.Errorf("%w: recipient must be set", ErrInvalidRecipient)
	}
	if amount.Cmp(l.custody) > 0 {
		return CustodyWithdrawn{}, fmt.Errorf("custody holds %s, requested %s: %w", l.custody, amount, ErrInsufficientCustody)
	}
	return CustodyWithdrawn{Amount: amount.String(), To: to}, nil
}

// ========================================
// APPLYING
// ========================================

// Apply performs a planned or journaled change. Template changes are
// forwarded to the registry.
func (l *Ledger) Apply(change Change) error {
	switch c := change.(type) {
	case TemplateCreated:
		return l.registry.insert(c.Template)
	case TemplateActiveSet:
		return l.registry.setActive(c.TemplateID, c.Active)
	case TemplateRemainingSupplySet:
		return l.registry.setRemainingSupply(c.TemplateID, c.Value)
	case TemplateInitialSupplySet:
		return l.registry.setInitialSupply(c.TemplateID, c.Value)
	case CardsMinted:
		return l.applyMint(c)
	case CardTransferred:
		return l.applyTransfer(c)
	case CardRedeemed:
		return l.applyRedeemed(c)
	case CardResaleSet:
		return l.applyResale(c)
	case CustodyWithdrawn:
		return l.applyWithdraw(c)
	default:
		return fmt.Errorf("%w: unsupported change %T", ErrCorruptJournal, change)
	}
}

func (l *Ledger) applyMint(c CardsMinted) error {
	if c.FirstCardID != uint64(len(l.cards))+1 {
		return fmt.Errorf("%w: first card id %d, expected %d", ErrCorruptJournal, c.FirstCardID, len(l.cards)+1)
	}
	if c.Owner == uuid.Nil || c.Quantity == 0 {
		return fmt.Errorf("%w: mint without owner or quantity", ErrCorruptJournal)
	}
	paid, err := parseAmount(c.Paid)
	if err != nil {
		return err
	}
	if err := l.registry.decrementOnMint(c.TemplateID, c.Quantity); err != nil {
		return err
	}

	for _, id := range c.CardIDs() {
		l.cards = append(l.cards, GiftCard{
			ID:           id,
			TemplateID:   c.TemplateID,
			BalanceCents: c.FaceValueCents,
			PurchasedAt:  c.PurchasedAt,
			Owner:        c.Owner,
		})
		l.hold(c.Owner, id)
	}
	l.custody.Add(l.custody, paid)
	return nil
}

func (l *Ledger) applyTransfer(c CardTransferred) error {
	card, err := l.lookup(c.CardID)
	if err != nil {
		return err
	}
	if card.Owner != c.From {
		return fmt.Errorf("%w: card %d owner mismatch", ErrCorruptJournal, c.CardID)
	}
	l.release(c.From, c.CardID)
	card.Owner = c.To
	l.hold(c.To, c.CardID)
	// a listing belongs to the seller; the new owner relists explicitly
	card.Sellable = false
	return nil
}

func (l *Ledger) applyRedeemed(c CardRedeemed) error {
	card, err := l.lookup(c.CardID)
	if err != nil {
		return err
	}
	if c.AmountCents <= 0 || c.AmountCents > card.BalanceCents {
		return fmt.Errorf("%w: redemption of %d cents on card %d", ErrCorruptJournal, c.AmountCents, c.CardID)
	}
	card.BalanceCents -= c.AmountCents
	l.redemptions[c.CardID] = append(l.redemptions[c.CardID], c.Redemption)
	return nil
}

func (l *Ledger) applyResale(c CardResaleSet) error {
	card, err := l.lookup(c.CardID)
	if err != nil {
		return err
	}
	card.Sellable = c.Sellable
	if c.UpdatePrice {
		card.ResalePriceCents = c.PriceCents
	}
	return nil
}

func (l *Ledger) applyWithdraw(c CustodyWithdrawn) error {
	amount, err := parseAmount(c.Amount)
	if err != nil {
		return err
	}
	if amount.Cmp(l.custody) > 0 {
		return fmt.Errorf("%w: withdrawal exceeds custody", ErrCorruptJournal)
	}
	l.custody.Sub(l.custody, amount)
	return nil
}

func (l *Ledger) hold(owner uuid.UUID, cardID uint64) {
	if l.holdings[owner] == nil {
		l.holdings[owner] = make(map[uint64]struct{})
	}
	l.holdings[owner][cardID] = struct{}{}
}

func (l *Ledger) release(owner uuid.UUID, cardID uint64) {
	delete(l.holdings[owner], cardID)
	if len(l.holdings[owner]) == 0 {
		delete(l.holdings, owner)
	}
}
