package giftcards

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/giftcard-ledger/internal/oracle"
	"github.com/richxcame/giftcard-ledger/internal/pricing"
	"github.com/richxcame/giftcard-ledger/pkg/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// ========================================
// TEST DOUBLES
// ========================================

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: purchaseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memJournal stores every appended record. onAppend runs after the record
// is stored and its error is returned to the caller, like a write whose
// acknowledgement was lost.
type memJournal struct {
	mu         sync.Mutex
	records    []Record
	onAppend   func(ctx context.Context, record Record) error
	discardErr error
}

func (j *memJournal) Append(ctx context.Context, record Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, record)
	if j.onAppend != nil {
		return j.onAppend(ctx, record)
	}
	return nil
}

func (j *memJournal) Discard(ctx context.Context, id uuid.UUID) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.discardErr != nil {
		return j.discardErr
	}
	for i, r := range j.records {
		if r.ID == id {
			j.records = append(j.records[:i], j.records[i+1:]...)
			break
		}
	}
	return nil
}

func (j *memJournal) Replay(ctx context.Context, fn func(Record) error) error {
	j.mu.Lock()
	records := append([]Record(nil), j.records...)
	j.mu.Unlock()
	for _, r := range records {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (j *memJournal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.records)
}

type mockJournal struct {
	mock.Mock
}

func (m *mockJournal) Append(ctx context.Context, record Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockJournal) Discard(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockJournal) Replay(ctx context.Context, fn func(Record) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventbus.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, event *eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type failingOracle struct {
	err error
}

func (o failingOracle) LatestRate(ctx context.Context) (oracle.Rate, error) {
	return oracle.Rate{}, o.err
}

// ========================================
// FIXTURES
// ========================================

const ethUSD = 2000_00000000 // $2000.00000000, 8 decimals

type fixture struct {
	service   *Service
	clock     *testClock
	oracle    *oracle.StaticOracle
	journal   *memJournal
	publisher *recordingPublisher
	converter *pricing.Converter
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		clock:     newTestClock(),
		journal:   &memJournal{},
		publisher: &recordingPublisher{},
		converter: pricing.NewConverter(pricing.DefaultNativeDecimals),
	}
	f.oracle = oracle.NewStaticOracle(ethUSD, 8).WithNow(f.clock.Now)

	base := []Option{
		WithJournal(f.journal),
		WithPublisher(f.publisher),
		WithClock(f.clock.Now),
		WithTokenURI("ipfs://giftcards/metadata.json"),
	}
	f.service = NewService(testAdmin, f.oracle, f.converter, append(base, opts...)...)
	return f
}

// createTemplate adds a $100 template with no activation delay and a one year lifetime.
func (f *fixture) createTemplate(t *testing.T) uint64 {
	t.Helper()
	tpl, err := f.service.CreateTemplate(context.Background(), testAdmin, 100, 0, 1, 10000, 12000)
	require.NoError(t, err)
	return tpl.ID
}

func (f *fixture) ether(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := f.converter.ParseNative(s)
	require.NoError(t, err)
	return v
}

func (f *fixture) buy(t *testing.T, templateID uint64, buyer uuid.UUID, quantity uint64, payment string) *Receipt {
	t.Helper()
	receipt, err := f.service.Buy(context.Background(), templateID, buyer, quantity, f.ether(t, payment))
	require.NoError(t, err)
	return receipt
}

// ========================================
// SCENARIOS
// ========================================

func TestService_CreateTemplate(t *testing.T) {
	f := newFixture(t)

	tpl, err := f.service.CreateTemplate(context.Background(), testAdmin, 100, 1, 1, 10000, 12000)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), tpl.FaceValueCents)
	assert.Equal(t, int64(12000), tpl.ListPriceCents)
	assert.Equal(t, purchaseTime, tpl.CreatedAt)
	assert.Equal(t, 1, f.journal.Len())
	assert.Equal(t, []string{string(EventTemplateCreated)}, f.publisher.Types())

	_, err = f.service.CreateTemplate(context.Background(), testAlice, 100, 1, 1, 10000, 12000)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, f.journal.Len())
}

func TestService_BuyOne(t *testing.T) {
	f := newFixture(t)
	id := f.createTemplate(t)

	receipt := f.buy(t, id, testAlice, 1, "0.05")

	require.Equal(t, []uint64{1}, receipt.CardIDs)
	assert.Equal(t, int64(10000), receipt.TotalCents)
	assert.Equal(t, f.ether(t, "0.05"), receipt.Required)
	assert.Zero(t, receipt.Excess.Sign())
	assert.Equal(t, int64(ethUSD), receipt.Rate.Answer)

	card, err := f.service.GetCard(1)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), card.BalanceCents)
	assert.Zero(t, card.ResalePriceCents)
	assert.False(t, card.Sellable)
	assert.Equal(t, testAlice, card.Owner)
	assert.Equal(t, CardStateRedeemable, card.State)

	tpl, _ := f.service.GetTemplate(id)
	assert.Equal(t, uint64(99), tpl.RemainingSupply)
	assert.Equal(t, f.ether(t, "0.05"), f.service.Custody())
}

func TestService_BuyRetainsExcessPayment(t *testing.T) {
	f := newFixture(t)
	id := f.createTemplate(t)

	receipt := f.buy(t, id, testAlice, 3, "0.3")

	assert.Equal(t, []uint64{1, 2, 3}, receipt.CardIDs)
	assert.Equal(t, int64(30000), receipt.TotalCents)
	assert.Equal(t, f.ether(t, "0.15"), receipt.Required)
	assert.Equal(t, f.ether(t, "0.3"), receipt.Paid)
	assert.Equal(t, f.ether(t, "0.15"), receipt.Excess)
	assert.Equal(t, f.ether(t, "0.3"), f.service.Custody())
	assert.Equal(t, 3, f.service.BalanceOf(testAlice))
}

func TestService_BuyInsufficientPaymentLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	id := f.createTemplate(t)
	records := f.journal.Len()

	short := new(big.Int).Sub(f.ether(t, "0.05"), big.NewInt(1))
	_, err := f.service.Buy(context.Background(), id, testAlice, 1, short)
	assert.ErrorIs(t, err, ErrInsufficientPayment)

	tpl, _ := f.service.GetTemplate(id)
	assert.Equal(t, uint64(100), tpl.RemainingSupply)
	assert.Zero(t, f.service.BalanceOf(testAlice))
	assert.Zero(t, f.service.Custody().Sign())
	assert.Equal(t, records, f.journal.Len())
}

func TestService_BuyErrors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, f *fixture, id uint64)
		template uint64
		quantity uint64
		paid     *big.Int
		oracle   oracle.PriceOracle
		wantErr  error
	}{
		{
			name:     "unknown template",
			template: 9,
			quantity: 1,
			paid:     big.NewInt(1e18),
			wantErr:  ErrNotFound,
		},
		{
			name: "inactive template",
			setup: func(t *testing.T, f *fixture, id uint64) {
				require.NoError(t, f.service.SetTemplateActive(context.Background(), testAdmin, id, false))
			},
			quantity: 1,
			paid:     big.NewInt(1e18),
			wantErr:  ErrTemplateInactive,
		},
		{
			name:     "zero quantity",
			quantity: 0,
			paid:     big.NewInt(1e18),
			wantErr:  ErrInvalidQuantity,
		},
		{
			name:     "negative payment",
			quantity: 1,
			paid:     big.NewInt(-1),
			wantErr:  ErrInvalidAmount,
		},
		{
			name:     "missing payment",
			quantity: 1,
			wantErr:  ErrInsufficientPayment,
		},
		{
			name: "supply exhausted",
			setup: func(t *testing.T, f *fixture, id uint64) {
				require.NoError(t, f.service.SetRemainingSupply(context.Background(), testAdmin, id, 2))
			},
			quantity: 3,
			paid:     big.NewInt(1e18),
			wantErr:  ErrSupplyExhausted,
		},
		{
			name: "zero oracle answer",
			setup: func(t *testing.T, f *fixture, id uint64) {
				f.oracle.SetAnswer(0)
			},
			quantity: 1,
			paid:     big.NewInt(1e18),
			wantErr:  ErrInvalidOracleRate,
		},
		{
			name:     "oracle unreachable",
			oracle:   failingOracle{err: errors.New("connection refused")},
			quantity: 1,
			paid:     big.NewInt(1e18),
			wantErr:  ErrOracleUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.oracle != nil {
				f.service.oracle = tt.oracle
			}
			id := f.createTemplate(t)
			if tt.setup != nil {
				tt.setup(t, f, id)
			}
			templateID := id
			if tt.template != 0 {
				templateID = tt.template
			}
			records := f.journal.Len()

			_, err := f.service.Buy(context.Background(), templateID, testAlice, tt.quantity, tt.paid)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Zero(t, f.service.BalanceOf(testAlice))
			assert.Zero(t, f.service.Custody().Sign())
			assert.Equal(t, records, f.journal.Len())
		})
	}
}

func TestService_BuyRejectsStaleRate(t *testing.T) {
	f := newFixture(t, WithMaxRateAge(time.Hour))
	id := f.createTemplate(t)

	stale := oracle.NewStaticOracle(ethUSD, 8).WithNow(func() time.Time {
		return f.clock.Now().Add(-2 * time.Hour)
	})
	f.service.oracle = stale

	_, err := f.service.Buy(context.Background(), id, testAlice, 1, f.ether(t, "1"))
	assert.ErrorIs(t, err, ErrInvalidOracleRate)
	assert.Zero(t, f.service.BalanceOf(testAlice))
}

func TestService_Redeem(t *testing.T) {
	f := newFixture(t)
	id := f.createTemplate(t)
	f.buy(t, id, testAlice, 1, "0.08")

	balance, err := f.service.Redeem(context.Background(), testAdmin, 1, 7000, "order-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), balance)

	card, _ := f.service.GetCard(1)
	assert.Equal(t, int64(3000), card.BalanceCents)

	trail, err := f.service.Redemptions(1)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "order-1", trail[0].Reference)

	_, err = f.service.Redeem(context.Background(), testAlice, 1, 100, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestService_RedeemAfterExpiry(t *testing.T) {
	f := newFixture(t)
	tpl, err := f.service.CreateTemplate(context.Background(), testAdmin, 100, 1, 1, 10000, 12000)
	require.NoError(t, err)
	f.buy(t, tpl.ID, testAlice, 1, "0.05")

	f.clock.Advance(366 * 24 * time.Hour)

	_, err = f.service.Redeem(context.Background(), testAdmin, 1, 100, "")
	assert.ErrorIs(t, err, ErrExpired)

	card, _ := f.service.GetCard(1)
	assert.Equal(t, CardStateExpired, card.State)
	assert.Equal(t, int64(10000), card.BalanceCents)
}

func TestService_SetSellable(t *testing.T) {
	f := newFixture(t)
	id := f.createTemplate(t)
	f.buy(t, id, testAlice, 1, "0.05")

	require.NoError(t, f.service.SetSellable(context.Background(), testAlice, 1, true, 15000))

	card, _ := f.service.GetCard(1)
	assert.True(t, card.Sellable)
	assert.Equal(t, int64(15000), card.ResalePriceCents)

	require.NoError(t, f.service.SetSellPrice(context.Background(), testAlice, 1, 14000))
	card, _ = f.service.GetCard(1)
	assert.Equal(t, int64(14000), card.ResalePriceCents)

	assert.ErrorIs(t, f.service.SetSellable(context.Background(), testBob, 1, false, 0), ErrNotOwner)
}

func TestService_DeactivateTemplate(t *testing.T) {
	f := newFixture(t)
	id := f.createTemplate(t)
	f.buy(t, id, testAlice, 1, "0.05")
	require.Len(t, f.service.ListActiveTemplates(), 1)

	require.NoError(t, f.service.SetTemplateActive(context.Background(), testAdmin, id, false))

	assert.Len(t, f.service.ListActiveTemplates(), 0)
	assert.Len(t, f.service.ListTemplates(), 1)

	card, err := f.service.GetCard(1)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), card.BalanceCents)
	assert.Equal(t, testAlice, card.Owner)

	_, err = f.service.Redeem(context.Background(), testAdmin, 1, 100, "")
	assert.NoError(t, err)
}

// ========================================
// PERSISTENCE AND PUBLICATION
// ========================================

func TestService_JournalFailureLeavesNoTrace(t *testing.T) {
	journal := &mockJournal{}
	journal.On("Append", mock.Anything, mock.MatchedBy(func(r Record) bool {
		return r.Type == EventTemplateCreated
	})).Return(nil)
	journal.On("Append", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	journal.On("Discard", mock.Anything, mock.Anything).Return(nil)

	f := newFixture(t, WithJournal(journal))
	id := f.createTemplate(t)
	published := len(f.publisher.Types())

	_, err := f.service.Buy(context.Background(), id, testAlice, 2, f.ether(t, "0.1"))
	require.Error(t, err)

	tpl, _ := f.service.GetTemplate(id)
	assert.Equal(t, uint64(100), tpl.RemainingSupply)
	assert.Zero(t, f.service.BalanceOf(testAlice))
	assert.Zero(t, f.service.Custody().Sign())
	assert.Len(t, f.publisher.Types(), published)
	journal.AssertExpectations(t)
}

// failOnce makes the first append of kind fail after the record was stored.
func failOnce(kind EventType, err error) func(context.Context, Record) error {
	var failed bool
	return func(ctx context.Context, r Record) error {
		if r.Type == kind && !failed {
			failed = true
			return err
		}
		return nil
	}
}

func TestService_UnacknowledgedAppendIsDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createTemplate(t)
	f.journal.onAppend = failOnce(EventCardsMinted, context.Canceled)

	_, err := f.service.Buy(ctx, id, testAlice, 2, f.ether(t, "0.1"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.journal.Len())

	receipt := f.buy(t, id, testBob, 1, "0.05")
	assert.Equal(t, []uint64{1}, receipt.CardIDs)

	restored := NewService(testAdmin, f.oracle, f.converter, WithJournal(f.journal), WithClock(f.clock.Now))
	require.NoError(t, restored.Restore(ctx))
	assert.Zero(t, restored.BalanceOf(testAlice))
	assert.Equal(t, 1, restored.BalanceOf(testBob))
	assert.Equal(t, f.service.Custody(), restored.Custody())
	tpl, err := restored.GetTemplate(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), tpl.RemainingSupply)
}

func TestService_JournalWriteOutlivesCancelledRequest(t *testing.T) {
	f := newFixture(t, WithJournalTimeout(2*time.Second))
	var seenErr error
	var deadline time.Time
	var hasDeadline bool
	f.journal.onAppend = func(ctx context.Context, r Record) error {
		seenErr = ctx.Err()
		deadline, hasDeadline = ctx.Deadline()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	before := time.Now()
	_, err := f.service.CreateTemplate(ctx, testAdmin, 10, 0, 1, 5000, 6000)
	require.NoError(t, err)

	assert.NoError(t, seenErr)
	require.True(t, hasDeadline)
	assert.WithinDuration(t, before.Add(2*time.Second), deadline, time.Second)
	assert.Equal(t, 1, f.journal.Len())
	assert.Len(t, f.service.ListTemplates(), 1)
	assert.Equal(t, []string{string(EventTemplateCreated)}, f.publisher.Types())
}

func TestService_UndiscardedRecordBlocksCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createTemplate(t)
	f.journal.onAppend = failOnce(EventCardsMinted, errors.New("i/o timeout"))
	f.journal.discardErr = errors.New("connection refused")

	_, err := f.service.Buy(ctx, id, testAlice, 1, f.ether(t, "0.05"))
	require.Error(t, err)
	assert.Equal(t, 2, f.journal.Len())

	_, err = f.service.Buy(ctx, id, testBob, 1, f.ether(t, "0.05"))
	require.ErrorIs(t, err, ErrJournalUnavailable)
	assert.Equal(t, 2, f.journal.Len())
	assert.Zero(t, f.service.BalanceOf(testBob))

	f.journal.discardErr = nil
	receipt := f.buy(t, id, testBob, 1, "0.05")
	assert.Equal(t, []uint64{1}, receipt.CardIDs)
	assert.Equal(t, 2, f.journal.Len())

	restored := NewService(testAdmin, f.oracle, f.converter, WithJournal(f.journal), WithClock(f.clock.Now))
	require.NoError(t, restored.Restore(ctx))
	assert.Zero(t, restored.BalanceOf(testAlice))
	assert.Equal(t, 1, restored.BalanceOf(testBob))
}

func TestService_BuyRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	f := newFixture(t)
	id := f.createTemplate(t)
	f.buy(t, id, testAlice, 1, "0.05")
	_, err := f.service.Buy(context.Background(), id, testAlice, 1, f.ether(t, "0.01"))
	require.ErrorIs(t, err, ErrInsufficientPayment)

	var buys, commits []sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		switch span.Name() {
		case "giftcards.Buy":
			buys = append(buys, span)
		case "giftcards.commit":
			commits = append(commits, span)
		}
	}
	require.Len(t, buys, 2)
	require.Len(t, commits, 2)

	minted := commits[1]
	assert.Equal(t, buys[0].SpanContext().SpanID(), minted.Parent().SpanID())
	assert.Contains(t, minted.Attributes(), attribute.String("event.type", string(EventCardsMinted)))
	assert.Equal(t, codes.Unset, buys[0].Status().Code)
	assert.Equal(t, codes.Error, buys[1].Status().Code)
}

func TestService_PublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("nats: no servers available")

	id := f.createTemplate(t)
	receipt := f.buy(t, id, testAlice, 1, "0.05")

	assert.Equal(t, []uint64{1}, receipt.CardIDs)
	assert.Equal(t, 2, f.journal.Len())
}

func TestService_PublishesCommittedEvents(t *testing.T) {
	f := newFixture(t)
	id := f.createTemplate(t)
	f.buy(t, id, testAlice, 1, "0.05")
	require.NoError(t, f.service.Transfer(context.Background(), testAlice, 1, testBob))

	assert.Equal(t, []string{
		string(EventTemplateCreated),
		string(EventCardsMinted),
		string(EventCardTransferred),
	}, f.publisher.Types())

	event := f.publisher.events[1]
	assert.Equal(t, eventSource, event.Source)
	assert.Equal(t, f.journal.records[1].ID.String(), event.ID)
	assert.JSONEq(t, string(f.journal.records[1].Payload), string(event.Data))
}

func TestService_Restore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createTemplate(t)
	f.buy(t, id, testAlice, 2, "0.2")
	require.NoError(t, f.service.Transfer(ctx, testAlice, 2, testBob))
	_, err := f.service.Redeem(ctx, testAdmin, 1, 2500, "till")
	require.NoError(t, err)
	require.NoError(t, f.service.SetSellable(ctx, testBob, 2, true, 9000))
	require.NoError(t, f.service.Withdraw(ctx, testAdmin, f.ether(t, "0.05"), testAdmin))

	restored := NewService(testAdmin, f.oracle, f.converter, WithJournal(f.journal), WithClock(f.clock.Now))
	require.NoError(t, restored.Restore(ctx))

	assert.Equal(t, f.service.ListTemplates(), restored.ListTemplates())
	assert.Equal(t, f.ether(t, "0.15"), restored.Custody())

	alice, err := restored.CardsOf(testAlice)
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, int64(7500), alice[0].BalanceCents)

	owner, err := restored.OwnerOf(2)
	require.NoError(t, err)
	assert.Equal(t, testBob, owner)
	assert.Len(t, restored.ForSale(ctx), 1)

	// The restored service continues the id sequences.
	receipt := f.buyOn(t, restored, id, testAlice, 1, "0.05")
	assert.Equal(t, []uint64{3}, receipt.CardIDs)

	assert.Error(t, restored.Restore(ctx))
}

func (f *fixture) buyOn(t *testing.T, s *Service, templateID uint64, buyer uuid.UUID, quantity uint64, payment string) *Receipt {
	t.Helper()
	receipt, err := s.Buy(context.Background(), templateID, buyer, quantity, f.ether(t, payment))
	require.NoError(t, err)
	return receipt
}

func TestService_RestoreRejectsCorruptJournal(t *testing.T) {
	journal := &memJournal{}
	rec, err := NewRecord(CardTransferred{CardID: 1, From: testAlice, To: testBob}, purchaseTime)
	require.NoError(t, err)
	require.NoError(t, journal.Append(context.Background(), rec))

	s := NewService(testAdmin, oracle.NewStaticOracle(ethUSD, 8), pricing.NewConverter(18), WithJournal(journal))
	assert.ErrorIs(t, s.Restore(context.Background()), ErrNotFound)
}

// ========================================
// READS
// ========================================

func TestService_ForSale(t *testing.T) {
	f := newFixture(t)
	id := f.createTemplate(t)
	f.buy(t, id, testAlice, 2, "0.1")
	require.NoError(t, f.service.SetSellable(context.Background(), testAlice, 2, true, 15000))

	listings := f.service.ForSale(context.Background())
	require.Len(t, listings, 1)
	assert.Equal(t, uint64(2), listings[0].Card.ID)
	assert.Equal(t, f.ether(t, "0.075"), listings[0].PriceNative)

	f.oracle.SetAnswer(0)
	listings = f.service.ForSale(context.Background())
	require.Len(t, listings, 1)
	assert.Nil(t, listings[0].PriceNative)
}

func TestService_Quote(t *testing.T) {
	f := newFixture(t)
	id := f.createTemplate(t)

	quote, err := f.service.Quote(context.Background(), id, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), quote.TotalCents)
	assert.Equal(t, f.ether(t, "0.15"), quote.Native)

	_, err = f.service.Quote(context.Background(), id, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.service.Quote(context.Background(), 5, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	// Quotes never mutate state.
	tpl, _ := f.service.GetTemplate(id)
	assert.Equal(t, uint64(100), tpl.RemainingSupply)
}

func TestService_TokenURI(t *testing.T) {
	f := newFixture(t)
	id := f.createTemplate(t)
	f.buy(t, id, testAlice, 1, "0.05")

	uri, err := f.service.TokenURI(1)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://giftcards/metadata.json", uri)

	_, err = f.service.TokenURI(2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ConcurrentPurchases(t *testing.T) {
	f := newFixture(t)
	id := f.createTemplate(t)
	require.NoError(t, f.service.SetRemainingSupply(context.Background(), testAdmin, id, 25))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded, exhausted int
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Buy(context.Background(), id, testAlice, 1, big.NewInt(1e17))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrSupplyExhausted):
				exhausted++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, succeeded)
	assert.Equal(t, 15, exhausted)
	assert.Equal(t, 25, f.service.BalanceOf(testAlice))

	tpl, _ := f.service.GetTemplate(id)
	assert.Zero(t, tpl.RemainingSupply)

	cards, err := f.service.CardsOf(testAlice)
	require.NoError(t, err)
	for i, card := range cards {
		assert.Equal(t, uint64(i+1), card.ID)
	}
}
