package giftcards

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/giftcard-ledger/internal/oracle"
	"github.com/richxcame/giftcard-ledger/internal/pricing"
	"github.com/richxcame/giftcard-ledger/pkg/eventbus"
	"github.com/richxcame/giftcard-ledger/pkg/logger"
	"github.com/richxcame/giftcard-ledger/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	eventSource = "giftcards"

	defaultJournalTimeout = 5 * time.Second
)

// Option configures a Service.
type Option func(*Service)

// WithJournal persists every change before it is applied.
func WithJournal(j Journal) Option {
	return func(s *Service) { s.journal = j }
}

// WithPublisher announces committed changes.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithTokenURI sets the static metadata URI served for every card.
func WithTokenURI(uri string) Option {
	return func(s *Service) { s.tokenURI = uri }
}

// WithMaxRateAge rejects oracle readings older than age. Zero disables the check.
func WithMaxRateAge(age time.Duration) Option {
	return func(s *Service) { s.maxRateAge = age }
}

// WithJournalTimeout bounds each journal write. Writes are detached from the
// caller's cancellation so a dropped request cannot cut a commit short.
func WithJournalTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.journalTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the marketplace: it composes the registry, the ledger, the
// oracle and the pricing converter, and serializes every operation.
type Service struct {
	mu         sync.Mutex
	registry   *Registry
	ledger     *Ledger
	oracle     oracle.PriceOracle
	converter  *pricing.Converter
	journal    Journal
	publisher  Publisher
	tokenURI   string
	maxRateAge time.Duration
	now        func() time.Time

	journalTimeout time.Duration
	// records whose append failed and whose removal has not succeeded yet;
	// nothing else is journaled until they are gone
	unsettled []Record
}

// NewService creates a marketplace administered by admin.
func NewService(admin uuid.UUID, priceOracle oracle.PriceOracle, converter *pricing.Converter, opts ...Option) *Service {
	registry := NewRegistry(admin)
	s := &Service{
		registry:  registry,
		ledger:    NewLedger(registry),
		oracle:    priceOracle,
		converter: converter,
		journal:   NopJournal{},
		publisher: nopPublisher{},
		now:       time.Now,

		journalTimeout: defaultJournalTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	registry.now = s.now
	return s
}

// Restore rebuilds state from the journal. It must run before the service
// takes requests.
func (s *Service) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry.Len() > 0 || s.ledger.Len() > 0 {
		return errors.New("restore requires an empty ledger")
	}

	var applied int
	err := s.journal.Replay(ctx, func(record Record) error {
		change, err := record.Change()
		if err != nil {
			return err
		}
		if err := s.ledger.Apply(change); err != nil {
			return fmt.Errorf("replay %s %s: %w", record.Type, record.ID, err)
		}
		applied++
		return nil
	})
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	logger.Info("ledger restored from journal",
		zap.Int("events", applied),
		zap.Int("templates", s.registry.Len()),
		zap.Int("cards", s.ledger.Len()),
	)
	return nil
}

// commit journals and applies a validated change, then publishes it.
// Callers hold s.mu.
func (s *Service) commit(ctx context.Context, change Change) (err error) {
	record, err := NewRecord(change, s.now())
	if err != nil {
		return err
	}

	ctx, span := tracing.Start(ctx, "giftcards.commit",
		attribute.String("event.type", string(record.Type)),
		attribute.String("event.id", record.ID.String()),
	)
	defer func() { tracing.End(span, err) }()

	if err := s.settle(ctx); err != nil {
		return err
	}

	journalCtx, cancel := s.journalContext(ctx)
	start := time.Now()
	err = s.journal.Append(journalCtx, record)
	journalAppendDuration.Observe(time.Since(start).Seconds())
	cancel()
	if err != nil {
		s.discard(ctx, record)
		return fmt.Errorf("persist %s: %w", record.Type, err)
	}

	if err := s.ledger.Apply(change); err != nil {
		logger.WithContext(ctx).Error("journaled change could not be applied",
			zap.String("event_id", record.ID.String()),
			zap.String("type", string(record.Type)),
			zap.Error(err),
		)
		return err
	}

	event := &eventbus.Event{
		ID:        record.ID.String(),
		Type:      string(record.Type),
		Source:    eventSource,
		Timestamp: record.OccurredAt,
		Data:      record.Payload,
	}
	// the change is committed; a departed caller must not drop its event
	if err := s.publisher.Publish(context.WithoutCancel(ctx), string(record.Type), event); err != nil {
		logger.WithContext(ctx).Warn("failed to publish ledger event",
			zap.String("event_id", record.ID.String()),
			zap.String("type", string(record.Type)),
			zap.Error(err),
		)
	}
	return nil
}

// journalContext keeps ctx values (trace, request id) but not its
// cancellation, and applies the journal timeout.
func (s *Service) journalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.journalTimeout)
}

// discard removes a record whose append failed, since the write may have
// landed anyway. A record that cannot be removed blocks later commits.
func (s *Service) discard(ctx context.Context, record Record) {
	journalCtx, cancel := s.journalContext(ctx)
	defer cancel()

	if err := s.journal.Discard(journalCtx, record.ID); err != nil {
		s.unsettled = append(s.unsettled, record)
		logger.WithContext(ctx).Error("failed to discard unacknowledged ledger event",
			zap.String("event_id", record.ID.String()),
			zap.String("type", string(record.Type)),
			zap.Error(err),
		)
	}
}

// settle retries the removal of unsettled records. Callers hold s.mu.
func (s *Service) settle(ctx context.Context) error {
	if len(s.unsettled) == 0 {
		return nil
	}

	journalCtx, cancel := s.journalContext(ctx)
	defer cancel()

	remaining := s.unsettled[:0]
	for _, record := range s.unsettled {
		if err := s.journal.Discard(journalCtx, record.ID); err != nil {
			remaining = append(remaining, record)
			continue
		}
		logger.WithContext(ctx).Info("discarded unacknowledged ledger event",
			zap.String("event_id", record.ID.String()),
			zap.String("type", string(record.Type)),
		)
	}
	s.unsettled = remaining

	if len(remaining) > 0 {
		return fmt.Errorf("%w: %d unacknowledged events pending removal", ErrJournalUnavailable, len(remaining))
	}
	return nil
}

// ========================================
// TEMPLATE ADMINISTRATION
// ========================================

// CreateTemplate registers a new active template.
func (s *Service) CreateTemplate(ctx context.Context, caller uuid.UUID, initialSupply uint64, activationDelayMonths, expiryYears uint32, faceValueCents, listPriceCents int64) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	change, err := s.registry.planCreate(caller, initialSupply, activationDelayMonths, expiryYears, faceValueCents, listPriceCents, s.now())
	if err == nil {
		err = s.commit(ctx, change)
	}
	recordOutcome("create_template", err)
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("gift card template created",
		zap.Uint64("template_id", change.Template.ID),
		zap.Uint64("initial_supply", initialSupply),
		zap.Int64("face_value_cents", faceValueCents),
	)
	t := change.Template
	return &t, nil
}

// SetTemplateActive toggles whether a template can be purchased.
func (s *Service) SetTemplateActive(ctx context.Context, caller uuid.UUID, templateID uint64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	change, err := s.registry.planSetActive(caller, templateID, active)
	if err == nil {
		err = s.commit(ctx, change)
	}
	recordOutcome("set_template_active", err)
	return err
}

// SetRemainingSupply overrides a template's remaining supply.
func (s *Service) SetRemainingSupply(ctx context.Context, caller uuid.UUID, templateID, value uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	change, err := s.registry.planSetRemainingSupply(caller, templateID, value)
	if err == nil {
		err = s.commit(ctx, change)
	}
	recordOutcome("set_remaining_supply", err)
	return err
}

// SetInitialSupply overrides a template's initial supply.
func (s *Service) SetInitialSupply(ctx context.Context, caller uuid.UUID, templateID, value uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	change, err := s.registry.planSetInitialSupply(caller, templateID, value)
	if err == nil {
		err = s.commit(ctx, change)
	}
	recordOutcome("set_initial_supply", err)
	return err
}

// ListActiveTemplates returns the purchasable templates.
func (s *Service) ListActiveTemplates() []Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.ListActive()
}

// ListTemplates returns every template, active or not.
func (s *Service) ListTemplates() []Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.List()
}

// GetTemplate returns one template.
func (s *Service) GetTemplate(templateID uint64) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Get(templateID)
}

// ========================================
// PURCHASE
// ========================================

// Buy mints quantity cards for buyer after checking the native payment
// against the oracle-priced face value. Payment above the requirement is kept.
func (s *Service) Buy(ctx context.Context, templateID uint64, buyer uuid.UUID, quantity uint64, paid *big.Int) (*Receipt, error) {
	ctx, span := tracing.Start(ctx, "giftcards.Buy",
		attribute.Int64("template.id", int64(templateID)),
		attribute.Int64("quantity", int64(quantity)),
	)
	receipt, err := s.buy(ctx, templateID, buyer, quantity, paid)
	tracing.End(span, err)
	recordOutcome("buy", err)
	if err != nil {
		logger.WithContext(ctx).Info("gift card purchase rejected",
			zap.Uint64("template_id", templateID),
			zap.String("buyer", buyer.String()),
			zap.Uint64("quantity", quantity),
			zap.Error(err),
		)
		return nil, err
	}

	cardsMintedTotal.WithLabelValues(strconv.FormatUint(templateID, 10)).Add(float64(quantity))
	logger.WithContext(ctx).Info("gift cards purchased",
		zap.Uint64("template_id", templateID),
		zap.String("buyer", buyer.String()),
		zap.Uint64s("card_ids", receipt.CardIDs),
		zap.String("required", receipt.Required.String()),
		zap.String("paid", receipt.Paid.String()),
	)
	return receipt, nil
}

func (s *Service) buy(ctx context.Context, templateID uint64, buyer uuid.UUID, quantity uint64, paid *big.Int) (*Receipt, error) {
	if paid == nil {
		paid = new(big.Int)
	}
	if paid.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	// Reject unknown and inactive templates before reading the oracle.
	s.mu.Lock()
	_, err := s.purchasable(templateID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rate, err := s.latestRate(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.purchasable(templateID)
	if err != nil {
		return nil, err
	}
	if quantity == 0 {
		return nil, ErrInvalidQuantity
	}

	total, err := pricing.MulUSD(t.FaceValueCents, quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	required, err := s.converter.QuoteNativeAmount(total, rate.Answer, rate.Decimals)
	if err != nil {
		return nil, err
	}
	if paid.Cmp(required) < 0 {
		return nil, fmt.Errorf("%w: required %s, paid %s", ErrInsufficientPayment, required, paid)
	}

	change, err := s.ledger.planMint(templateID, buyer, quantity, s.now(), paid)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, change); err != nil {
		return nil, err
	}

	return &Receipt{
		CardIDs:     change.CardIDs(),
		TemplateID:  templateID,
		Quantity:    quantity,
		Buyer:       buyer,
		TotalCents:  total,
		Required:    required,
		Paid:        new(big.Int).Set(paid),
		Excess:      new(big.Int).Sub(paid, required),
		Rate:        rate,
		PurchasedAt: change.PurchasedAt,
	}, nil
}

// Quote previews the native amount for quantity cards at the current rate.
func (s *Service) Quote(ctx context.Context, templateID uint64, quantity uint64) (*Quote, error) {
	if quantity == 0 {
		return nil, ErrInvalidQuantity
	}

	s.mu.Lock()
	t, err := s.registry.Get(templateID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	total, err := pricing.MulUSD(t.FaceValueCents, quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	rate, err := s.latestRate(ctx)
	if err != nil {
		return nil, err
	}
	native, err := s.converter.QuoteNativeAmount(total, rate.Answer, rate.Decimals)
	if err != nil {
		return nil, err
	}

	return &Quote{TemplateID: templateID, Quantity: quantity, TotalCents: total, Native: native, Rate: rate}, nil
}

func (s *Service) purchasable(templateID uint64) (*Template, error) {
	t, err := s.registry.lookup(templateID)
	if err != nil {
		return nil, err
	}
	if !t.Active {
		return nil, fmt.Errorf("template %d: %w", templateID, ErrTemplateInactive)
	}
	return t, nil
}

// latestRate takes one oracle reading and rejects unusable ones.
func (s *Service) latestRate(ctx context.Context) (oracle.Rate, error) {
	rate, err := s.oracle.LatestRate(ctx)
	if err != nil {
		if errors.Is(err, oracle.ErrInvalidRate) {
			return oracle.Rate{}, fmt.Errorf("%w: %v", ErrInvalidOracleRate, err)
		}
		return oracle.Rate{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if rate.Answer <= 0 {
		return oracle.Rate{}, fmt.Errorf("%w: answer %d", ErrInvalidOracleRate, rate.Answer)
	}
	if !rate.Fresh(s.now(), s.maxRateAge) {
		return oracle.Rate{}, fmt.Errorf("%w: reading from %s is older than %s", ErrInvalidOracleRate, rate.UpdatedAt.Format(time.RFC3339), s.maxRateAge)
	}
	return rate, nil
}

// ========================================
// CARD OPERATIONS
// ========================================

// Redeem consumes part of a card balance on behalf of the shop admin.
func (s *Service) Redeem(ctx context.Context, caller uuid.UUID, cardID uint64, amountCents int64, reference string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	change, err := s.ledger.planReduceBalance(caller, cardID, amountCents, reference, s.now())
	if err == nil {
		err = s.commit(ctx, change)
	}
	recordOutcome("redeem", err)
	if err != nil {
		return 0, err
	}

	redeemedCentsTotal.Add(float64(amountCents))
	logger.WithContext(ctx).Info("gift card redeemed",
		zap.Uint64("card_id", cardID),
		zap.Int64("amount_cents", amountCents),
		zap.Int64("balance_cents", change.BalanceAfterCents),
		zap.String("reference", reference),
	)
	return change.BalanceAfterCents, nil
}

// SetSellable sets the resale flag; enabling also sets the price.
func (s *Service) SetSellable(ctx context.Context, caller uuid.UUID, cardID uint64, sellable bool, priceCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	change, err := s.ledger.planSetResale(caller, cardID, sellable, priceCents)
	if err == nil {
		err = s.commit(ctx, change)
	}
	recordOutcome("set_sellable", err)
	return err
}

// SetSellPrice sets the resale price only.
func (s *Service) SetSellPrice(ctx context.Context, caller uuid.UUID, cardID uint64, priceCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	change, err := s.ledger.planSetResalePrice(caller, cardID, priceCents)
	if err == nil {
		err = s.commit(ctx, change)
	}
	recordOutcome("set_sell_price", err)
	return err
}

// Transfer moves a card owned by caller to another holder.
func (s *Service) Transfer(ctx context.Context, caller uuid.UUID, cardID uint64, to uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	change, err := s.ledger.planTransfer(cardID, caller, to)
	if err == nil {
		err = s.commit(ctx, change)
	}
	recordOutcome("transfer", err)
	if err != nil {
		return err
	}

	logger.WithContext(ctx).Info("gift card transferred",
		zap.Uint64("card_id", cardID),
		zap.String("from", caller.String()),
		zap.String("to", to.String()),
	)
	return nil
}

// ========================================
// CUSTODY
// ========================================

// Custody returns the native amount collected from purchases and not withdrawn.
func (s *Service) Custody() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Custody()
}

// Withdraw moves custody funds to the given account.
func (s *Service) Withdraw(ctx context.Context, caller uuid.UUID, amount *big.Int, to uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	change, err := s.ledger.planWithdraw(caller, amount, to)
	if err == nil {
		err = s.commit(ctx, change)
	}
	recordOutcome("withdraw", err)
	if err != nil {
		return err
	}

	logger.WithContext(ctx).Info("custody withdrawn",
		zap.String("amount", change.Amount),
		zap.String("to", to.String()),
	)
	return nil
}

// ========================================
// READS
// ========================================

// CardDetails is a card with its derived state.
type CardDetails struct {
	GiftCard
	State       CardState `json:"state"`
	ActivatesAt time.Time `json:"activates_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenURI    string    `json:"token_uri"`
}

// GetCard returns a card with its derived state.
func (s *Service) GetCard(cardID uint64) (*CardDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.ledger.lookup(cardID)
	if err != nil {
		return nil, err
	}
	return s.details(card)
}

// CardsOf returns the cards held by owner.
func (s *Service) CardsOf(owner uuid.UUID) ([]CardDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards := s.ledger.CardsOf(owner)
	result := make([]CardDetails, 0, len(cards))
	for i := range cards {
		d, err := s.details(&cards[i])
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, nil
}

// OwnerOf returns the holder of a card.
func (s *Service) OwnerOf(cardID uint64) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.OwnerOf(cardID)
}

// BalanceOf returns the number of cards owner holds.
func (s *Service) BalanceOf(owner uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.BalanceOf(owner)
}

// Redemptions returns a card's redemption history.
func (s *Service) Redemptions(cardID uint64) ([]Redemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Redemptions(cardID)
}

// TokenURI returns the metadata URI of an existing card.
func (s *Service) TokenURI(cardID uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ledger.lookup(cardID); err != nil {
		return "", err
	}
	return s.tokenURI, nil
}

// ForSale lists cards offered for resale. Prices carry a native preview when
// the oracle can be read; otherwise the listing is returned without it.
func (s *Service) ForSale(ctx context.Context) []Listing {
	s.mu.Lock()
	cards := s.ledger.ForSale()
	s.mu.Unlock()

	listings := make([]Listing, 0, len(cards))
	if len(cards) == 0 {
		return listings
	}

	rate, err := s.latestRate(ctx)
	if err != nil {
		logger.WithContext(ctx).Warn("resale listing without native prices", zap.Error(err))
	}
	for _, card := range cards {
		listing := Listing{Card: card}
		if err == nil {
			if native, qErr := s.converter.QuoteNativeAmount(card.ResalePriceCents, rate.Answer, rate.Decimals); qErr == nil {
				listing.PriceNative = native
			}
		}
		listings = append(listings, listing)
	}
	return listings
}

func (s *Service) details(card *GiftCard) (*CardDetails, error) {
	t, err := s.registry.lookup(card.TemplateID)
	if err != nil {
		return nil, err
	}
	return &CardDetails{
		GiftCard:    *card,
		State:       card.State(*t, s.now()),
		ActivatesAt: card.ActivatesAt(*t),
		ExpiresAt:   card.ExpiresAt(*t),
		TokenURI:    s.tokenURI,
	}, nil
}
