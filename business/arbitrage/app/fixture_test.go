package app

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	ledgerApp "github.com/fd1az/crossarb/business/ledger/app"
	"github.com/fd1az/crossarb/business/ledger/infra/memory"
	venueApp "github.com/fd1az/crossarb/business/venue/app"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
	"github.com/fd1az/crossarb/business/venue/infra/paper"
	"github.com/fd1az/crossarb/internal/logger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var btcUSD = venueDomain.NewMarket("BTC", "USD")

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

type fakeSettings struct {
	trading           bool
	cancelStray       bool
	maxPairs          int
	minProfit         decimal.Decimal
	maxTradeSize      decimal.Decimal
	suspicious        decimal.Decimal
	buyFactor         decimal.Decimal
	sellFactor        decimal.Decimal
	orderCheckDelay   time.Duration
	reconcileInterval time.Duration
	blocked           map[string]bool
	refreshErr        error
	refreshes         int
}

func newSettings() *fakeSettings {
	return &fakeSettings{
		trading:           true,
		cancelStray:       true,
		minProfit:         decimal.Zero,
		maxTradeSize:      d("1000"),
		suspicious:        d("10"),
		buyFactor:         d("1.01"),
		sellFactor:        d("0.99"),
		orderCheckDelay:   5 * time.Second,
		reconcileInterval: 2 * time.Second,
	}
}

func (s *fakeSettings) Refresh(context.Context) error {
	s.refreshes++
	return s.refreshErr
}

func (s *fakeSettings) TradingEnabled() bool { return s.trading }
func (s *fakeSettings) CancelStrayOrders() bool { return s.cancelStray }
func (s *fakeSettings) MaxPairsPerRun() int { return s.maxPairs }
func (s *fakeSettings) MinProfit() decimal.Decimal { return s.minProfit }
func (s *fakeSettings) MaxTradeSize() decimal.Decimal { return s.maxTradeSize }
func (s *fakeSettings) SuspiciousPriceDifference() decimal.Decimal { return s.suspicious }
func (s *fakeSettings) BuyRateFactor() decimal.Decimal { return s.buyFactor }
func (s *fakeSettings) SellRateFactor() decimal.Decimal { return s.sellFactor }
func (s *fakeSettings) OrderCheckDelay() time.Duration { return s.orderCheckDelay }
func (s *fakeSettings) ReconcileInterval() time.Duration { return s.reconcileInterval }
func (s *fakeSettings) IsBlocked(asset string) bool { return s.blocked[asset] }

type withdrawal struct {
	src, tgt string
	symbol   string
	amount   decimal.Decimal
}

type fakeFunds struct {
	txFee       decimal.Decimal
	inTransit   map[string]bool
	managed     bool
	manageErr   error
	managePanic bool
	manages     int
	withdrawals []withdrawal
}

func (f *fakeFunds) Manage(ctx context.Context, deposits, withdrawals map[string][]venueDomain.Transfer) (bool, error) {
	f.manages++
	if f.managePanic {
		panic("manage exploded")
	}
	return f.managed, f.manageErr
}

func (f *fakeFunds) SafeTxFee(venueApp.Venue, string, decimal.Decimal) decimal.Decimal {
	return f.txFee
}

func (f *fakeFunds) Withdraw(ctx context.Context, src, tgt venueApp.Venue, symbol string, amount decimal.Decimal) error {
	f.withdrawals = append(f.withdrawals, withdrawal{src: src.ID(), tgt: tgt.ID(), symbol: symbol, amount: amount})
	return nil
}

func (f *fakeFunds) InTransit(symbol string) bool { return f.inTransit[symbol] }

type alert struct {
	priority Priority
	title    string
	message  string
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []alert
}

func (a *recordingAlerter) Alert(ctx context.Context, priority Priority, title, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert{priority: priority, title: title, message: message})
}

func (a *recordingAlerter) titled(title string) []alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []alert
	for _, x := range a.alerts {
		if x.title == title {
			out = append(out, x)
		}
	}
	return out
}

// fakeClock advances on Sleep instead of blocking. onSleep runs after each
// sleep with the number of sleeps so far.
type fakeClock struct {
	now     time.Time
	sleeps  []time.Duration
	onSleep func(n int) error
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, dur time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, dur)
	c.now = c.now.Add(dur)
	if c.onSleep != nil {
		return c.onSleep(len(c.sleeps))
	}
	return nil
}

// scriptedVenue wraps a paper venue with failure injection and call
// recording.
type scriptedVenue struct {
	*paper.Venue

	mu         sync.Mutex
	sellErr    error
	buyFails   int // first n buys fail
	buyCalls   int
	sellCalls  int
	bookCalls  []venueDomain.Market
	blockBooks map[venueDomain.Market]bool
	// hang, when set, makes blocked books wait on it and ignore ctx.
	hang chan struct{}
}

func (v *scriptedVenue) Sell(ctx context.Context, tradeable, currency string, rate, amount decimal.Decimal) (string, error) {
	v.mu.Lock()
	v.sellCalls++
	err := v.sellErr
	v.mu.Unlock()
	if err != nil {
		return "", err
	}
	return v.Venue.Sell(ctx, tradeable, currency, rate, amount)
}

func (v *scriptedVenue) Buy(ctx context.Context, tradeable, currency string, rate, amount decimal.Decimal) (string, error) {
	v.mu.Lock()
	v.buyCalls++
	fail := v.buyCalls <= v.buyFails
	v.mu.Unlock()
	if fail {
		return "", context.DeadlineExceeded
	}
	return v.Venue.Buy(ctx, tradeable, currency, rate, amount)
}

func (v *scriptedVenue) GetOrderbook(ctx context.Context, tradeable, currency string) (*venueDomain.Orderbook, error) {
	m := venueDomain.NewMarket(tradeable, currency)
	v.mu.Lock()
	v.bookCalls = append(v.bookCalls, m)
	block := v.blockBooks[m]
	hang := v.hang
	v.mu.Unlock()
	if block && hang != nil {
		<-hang
		return nil, nil
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return v.Venue.GetOrderbook(ctx, tradeable, currency)
}

func (v *scriptedVenue) visited() []venueDomain.Market {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]venueDomain.Market(nil), v.bookCalls...)
}

// newVenue creates a zero-fee venue with a minimum order of 1 and the
// balances refreshed into its wallet snapshot.
func newVenue(t *testing.T, id string, markets []venueDomain.Market, balances map[string]decimal.Decimal) *scriptedVenue {
	t.Helper()
	p := paper.NewVenue(paper.Config{
		ID:       id,
		Fees:     venueDomain.FeeSchedule{Taker: decimal.Zero, SmallestOrder: d("1")},
		Markets:  markets,
		Balances: balances,
	}, nil, testLogger())
	if err := p.RefreshWallets(context.Background()); err != nil {
		t.Fatalf("RefreshWallets: %v", err)
	}
	return &scriptedVenue{Venue: p, blockBooks: map[venueDomain.Market]bool{}}
}

func offer(price, amount string) venueDomain.Offer {
	return venueDomain.Offer{Price: d(price), Amount: d(amount)}
}

func book(venueID string, m venueDomain.Market, ask, bid venueDomain.Offer) *venueDomain.Orderbook {
	return &venueDomain.Orderbook{VenueID: venueID, Market: m, BestAsk: ask, BestBid: bid}
}

type ledgerFixture struct {
	store   *memory.Store
	service *ledgerApp.Service
	matcher *ledgerApp.Matcher
}

func newLedger() ledgerFixture {
	store := memory.NewStore()
	return ledgerFixture{
		store:   store,
		service: ledgerApp.NewService(store, store, testLogger()),
		matcher: ledgerApp.NewMatcher(store, testLogger()),
	}
}

func newRegistry(t *testing.T, venues ...venueApp.Venue) *venueApp.Registry {
	t.Helper()
	r, err := venueApp.NewRegistry(venues...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}
