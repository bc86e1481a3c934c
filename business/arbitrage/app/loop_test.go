package app

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/fd1az/crossarb/business/arbitrage/domain"
	"github.com/fd1az/crossarb/internal/apperror"
)

type loopFixture struct {
	loop     *Loop
	settings *fakeSettings
	funds    *fakeFunds
	alerter  *recordingAlerter
	clock    *fakeClock
	ledger   ledgerFixture
	a, b     *scriptedVenue
}

func newLoopFixture(t *testing.T, threshold int) loopFixture {
	t.Helper()
	f := loopFixture{
		settings: newSettings(),
		funds:    &fakeFunds{},
		alerter:  &recordingAlerter{},
		clock:    newClock(),
		ledger:   newLedger(),
		a:        newVenue(t, "a", nil, nil),
		b:        newVenue(t, "b", nil, nil),
	}
	registry := newRegistry(t, f.a, f.b)
	log := testLogger()

	checker := NewChecker(f.settings, f.funds, f.ledger.service, &recordingExecutor{}, f.alerter, log)
	scanner, err := NewScanner(registry, f.settings, f.funds, checker, rand.New(rand.NewSource(1)), time.Second, log)
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	loop, err := NewLoop(
		LoopConfig{ErrorAlertThreshold: threshold},
		registry,
		f.settings,
		NewHousekeeper(registry, f.settings, log),
		f.funds,
		scanner,
		f.ledger.service,
		f.alerter,
		f.clock,
		log,
	)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	f.loop = loop
	return f
}

func TestLoop_Pairs(t *testing.T) {
	f := newLoopFixture(t, 10)
	pairs := f.loop.Pairs()
	if len(pairs) != 1 || pairs[0] != (domain.VenuePair{A: "a", B: "b"}) {
		t.Errorf("pairs = %v", pairs)
	}
}

func TestLoop_TickRecordsRun(t *testing.T) {
	f := newLoopFixture(t, 10)
	ctx := context.Background()

	if err := f.loop.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	st, _ := f.ledger.service.GetStats(ctx)
	if st.Ticks != 1 || !st.LastRun.Equal(f.clock.now) {
		t.Errorf("stats = %+v, want one tick at %s", st, f.clock.now)
	}
	if !f.loop.LastRun().Equal(f.clock.now) {
		t.Errorf("last run = %s", f.loop.LastRun())
	}
	if f.settings.refreshes != 1 {
		t.Errorf("settings refreshed %d times, want 1", f.settings.refreshes)
	}
	if want := f.clock.now.Add(time.Hour); !f.loop.State().NextMarketRefresh.Equal(want) {
		t.Errorf("next market refresh = %s, want %s", f.loop.State().NextMarketRefresh, want)
	}
	if !f.loop.State().WalletsRefreshed {
		t.Error("wallets should be refreshed")
	}
}

func TestLoop_ErrorCounterResetsAfterSuccess(t *testing.T) {
	f := newLoopFixture(t, 10)
	ctx := context.Background()
	f.funds.manageErr = errors.New("exchange down")

	for i := 0; i < 3; i++ {
		if err := f.loop.Tick(ctx); err == nil {
			t.Fatal("expected tick error")
		}
	}
	if got := f.loop.ErrorCount(); got != 3 {
		t.Fatalf("error count = %d, want 3", got)
	}
	if !f.loop.LastRun().IsZero() {
		t.Error("failed ticks must not set the last run")
	}

	f.funds.manageErr = nil
	if err := f.loop.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := f.loop.ErrorCount(); got != 0 {
		t.Errorf("error count = %d, want 0", got)
	}
	if f.loop.State().ErrorCount != 0 {
		t.Errorf("state error count = %d, want 0", f.loop.State().ErrorCount)
	}
}

func TestLoop_AlertsAtThreshold(t *testing.T) {
	f := newLoopFixture(t, 3)
	f.funds.manageErr = errors.New("exchange down")

	for i := 0; i < 6; i++ {
		f.loop.Tick(context.Background())
	}

	got := f.alerter.titled("Control loop failing")
	if len(got) != 1 {
		t.Fatalf("alerts = %d, want exactly 1", len(got))
	}
	if got[0].priority != PriorityHigh {
		t.Errorf("priority = %s, want high", got[0].priority)
	}
}

func TestLoop_PanicIsRecovered(t *testing.T) {
	f := newLoopFixture(t, 10)
	ctx := context.Background()
	f.funds.managePanic = true

	err := f.loop.Tick(ctx)
	if !apperror.HasCode(err, apperror.CodeTickPanic) {
		t.Fatalf("err = %v, want tick panic", err)
	}
	if f.loop.ErrorCount() != 1 {
		t.Errorf("error count = %d, want 1", f.loop.ErrorCount())
	}

	f.funds.managePanic = false
	if err := f.loop.Tick(ctx); err != nil {
		t.Fatalf("Tick after panic: %v", err)
	}
}

func TestLoop_ManagedFundsSkipScan(t *testing.T) {
	f := newLoopFixture(t, 10)
	ctx := context.Background()
	f.funds.managed = true

	if err := f.loop.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	st, _ := f.ledger.service.GetStats(ctx)
	if st.Ticks != 0 {
		t.Errorf("stats ticks = %d, want 0 when funds were moved", st.Ticks)
	}
	if f.loop.State().Ticks != 1 {
		t.Errorf("state ticks = %d, want 1", f.loop.State().Ticks)
	}
}

func TestLoop_WaitsWhilePaused(t *testing.T) {
	f := newLoopFixture(t, 10)
	ctx := context.Background()
	f.ledger.service.SetPaused(ctx, true)
	f.clock.onSleep = func(n int) error {
		if n == 2 {
			return f.ledger.service.SetPaused(ctx, false)
		}
		return nil
	}

	if err := f.loop.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(f.clock.sleeps) != 2 {
		t.Fatalf("sleeps = %v, want two pause polls", f.clock.sleeps)
	}
	for _, s := range f.clock.sleeps {
		if s != 3*time.Second {
			t.Errorf("poll interval = %s, want 3s", s)
		}
	}
	st, _ := f.ledger.service.GetStats(ctx)
	if st.Ticks != 1 || st.Paused {
		t.Errorf("stats = %+v, want one tick and resumed", st)
	}
}

func TestLoop_CancelsStrayOrdersAfterTrade(t *testing.T) {
	f := newLoopFixture(t, 10)
	ctx := context.Background()
	f.loop.State().TradeHappened = true

	if err := f.loop.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if f.loop.State().TradeHappened {
		t.Error("trade flag should be cleared once stray orders are cancelled")
	}
}

func TestLoop_RunStopsOnCancel(t *testing.T) {
	f := newLoopFixture(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	f.clock.onSleep = func(n int) error {
		if n == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	if err := f.loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := f.loop.State().Ticks; got != 3 {
		t.Errorf("ticks = %d, want 3", got)
	}
}

func TestLoop_RefreshFailureKeepsTicking(t *testing.T) {
	f := newLoopFixture(t, 10)
	f.settings.refreshErr = errors.New("redis gone")

	if err := f.loop.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}
