package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/business/arbitrage/domain"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
)

type traderFixture struct {
	trader   *Trader
	settings *fakeSettings
	funds    *fakeFunds
	alerter  *recordingAlerter
	clock    *fakeClock
	ledger   ledgerFixture
	src, tgt *scriptedVenue
}

// newTraderFixture sets up the two-venue BTC/USD scenario: the source asks
// 100 for askDepth, the target bids 102 for 1. Fees are zero.
func newTraderFixture(t *testing.T, askDepth string, srcUSD string) traderFixture {
	t.Helper()
	markets := []venueDomain.Market{btcUSD}
	src := newVenue(t, "alpha", markets, map[string]decimal.Decimal{"USD": d(srcUSD)})
	tgt := newVenue(t, "beta", markets, map[string]decimal.Decimal{"BTC": d("5")})
	src.SetBook(btcUSD, offer("100", askDepth), offer("99", "2"))
	tgt.SetBook(btcUSD, offer("103", "1"), offer("102", "1"))

	f := traderFixture{
		settings: newSettings(),
		funds:    &fakeFunds{txFee: decimal.Zero},
		alerter:  &recordingAlerter{},
		clock:    newClock(),
		ledger:   newLedger(),
		src:      src,
		tgt:      tgt,
	}
	trader, err := NewTrader(f.settings, f.funds, f.ledger.matcher, f.ledger.service, nil, f.alerter, f.clock, testLogger())
	if err != nil {
		t.Fatalf("NewTrader: %v", err)
	}
	f.trader = trader
	return f
}

func (f traderFixture) opportunity(askDepth string) domain.Opportunity {
	return domain.Opportunity{
		Direction: domain.Direction{Source: "alpha", Target: "beta"},
		Market:    btcUSD,
		SourceAsk: offer("100", askDepth),
		TargetBid: offer("102", "1"),
	}
}

func TestTrader_ExecutesCrossing(t *testing.T) {
	f := newTraderFixture(t, "2", "1000")

	res, executed, err := f.trader.Execute(context.Background(), f.src, f.tgt, f.opportunity("2"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !executed {
		t.Fatal("expected the trade to be executed")
	}

	if !res.TradeAmount.Equal(d("1")) {
		t.Errorf("trade amount = %s, want 1", res.TradeAmount)
	}
	if !res.ExpectedProfit.Equal(d("2")) {
		t.Errorf("expected profit = %s, want 2", res.ExpectedProfit)
	}
	if res.SellRate.GreaterThan(d("102")) {
		t.Errorf("sell rate %s above the bid", res.SellRate)
	}
	if res.BuyRate.LessThan(d("100")) {
		t.Errorf("buy rate %s below the ask", res.BuyRate)
	}
	if res.SellOrderID == "" || res.BuyOrderID == "" {
		t.Fatalf("orders not placed: sell %q buy %q", res.SellOrderID, res.BuyOrderID)
	}
	if res.BuyAttempts != 1 || res.Inconsistent {
		t.Errorf("attempts=%d inconsistent=%v", res.BuyAttempts, res.Inconsistent)
	}
	if res.ReconcileRounds != 1 {
		t.Errorf("reconcile rounds = %d, want 1 when fills are complete", res.ReconcileRounds)
	}
	if !res.Cost.Equal(d("100")) || !res.Revenue.Equal(d("102")) {
		t.Errorf("cost %s revenue %s, want 100 and 102", res.Cost, res.Revenue)
	}
	if !res.CalculatedProfit().Equal(d("2")) || !res.ProfitLoss.Equal(d("2")) {
		t.Errorf("calculated %s booked %s, want 2", res.CalculatedProfit(), res.ProfitLoss)
	}
	if !res.Before.SourceCurrency.Equal(d("1000")) || !res.After.SourceCurrency.Equal(d("900")) {
		t.Errorf("source USD %s → %s, want 1000 → 900", res.Before.SourceCurrency, res.After.SourceCurrency)
	}

	if len(f.clock.sleeps) != 1 || f.clock.sleeps[0] != 5*time.Second {
		t.Errorf("sleeps = %v, want one order check delay", f.clock.sleeps)
	}
	if len(f.funds.withdrawals) != 1 {
		t.Fatalf("withdrawals = %d, want 1", len(f.funds.withdrawals))
	}
	w := f.funds.withdrawals[0]
	if w.src != "alpha" || w.tgt != "beta" || w.symbol != "BTC" || !w.amount.Equal(d("1")) {
		t.Errorf("withdrawal = %+v", w)
	}
	if trades := f.ledger.store.Trades(); len(trades) != 1 {
		t.Errorf("trades = %d, want 1", len(trades))
	}
	if len(f.alerter.alerts) != 0 {
		t.Errorf("unexpected alerts: %+v", f.alerter.alerts)
	}
}

func TestTrader_ShallowAskCapsAmount(t *testing.T) {
	f := newTraderFixture(t, "0.5", "1000")

	res, executed, err := f.trader.Execute(context.Background(), f.src, f.tgt, f.opportunity("0.5"))
	if err != nil || !executed {
		t.Fatalf("executed=%v err=%v", executed, err)
	}
	if !res.TradeAmount.Equal(d("0.5")) {
		t.Errorf("trade amount = %s, want 0.5", res.TradeAmount)
	}
	if !res.ExpectedProfit.Equal(d("1")) {
		t.Errorf("expected profit = %s, want 1", res.ExpectedProfit)
	}
}

func TestTrader_AmountRoundsDown(t *testing.T) {
	f := newTraderFixture(t, "2", "1000")
	f.settings.maxTradeSize = d("66.666666667")

	res, executed, err := f.trader.Execute(context.Background(), f.src, f.tgt, f.opportunity("2"))
	if err != nil || !executed {
		t.Fatalf("executed=%v err=%v", executed, err)
	}
	if !res.TradeAmount.Equal(d("0.66666666")) {
		t.Errorf("trade amount = %s, want 0.66666666", res.TradeAmount)
	}
	if notional := res.TradeAmount.Mul(d("100")); notional.GreaterThan(f.settings.maxTradeSize) {
		t.Errorf("buy notional %s exceeds the max trade size %s", notional, f.settings.maxTradeSize)
	}
}

func TestTrader_FailedSellSkipsBuy(t *testing.T) {
	f := newTraderFixture(t, "2", "1000")
	f.tgt.sellErr = errors.New("rejected")

	res, executed, err := f.trader.Execute(context.Background(), f.src, f.tgt, f.opportunity("2"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if executed {
		t.Error("a failed sell must not count as a trade")
	}
	if f.src.buyCalls != 0 {
		t.Errorf("buy calls = %d, want 0", f.src.buyCalls)
	}
	if res.SellOrderID != "" || len(f.funds.withdrawals) != 0 {
		t.Errorf("unexpected side effects: %+v", res)
	}
}

func TestTrader_BuyRetries(t *testing.T) {
	tests := []struct {
		name             string
		buyFails         int
		wantCalls        int
		wantInconsistent bool
	}{
		{name: "first attempt", buyFails: 0, wantCalls: 1},
		{name: "third attempt", buyFails: 2, wantCalls: 3},
		{name: "never", buyFails: 100, wantCalls: MaxBuyAttempts, wantInconsistent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTraderFixture(t, "2", "1000")
			f.src.buyFails = tt.buyFails

			res, executed, _ := f.trader.Execute(context.Background(), f.src, f.tgt, f.opportunity("2"))
			if !executed {
				t.Fatal("a placed sell counts as executed")
			}
			if f.src.buyCalls != tt.wantCalls || res.BuyAttempts != tt.wantCalls {
				t.Errorf("buy calls=%d attempts=%d, want %d", f.src.buyCalls, res.BuyAttempts, tt.wantCalls)
			}
			if res.Inconsistent != tt.wantInconsistent {
				t.Errorf("inconsistent = %v, want %v", res.Inconsistent, tt.wantInconsistent)
			}

			if len(f.clock.sleeps) == 0 || f.clock.sleeps[0] != 5*time.Second {
				t.Errorf("sleeps = %v, want the order check delay before cancelling", f.clock.sleeps)
			}

			alerts := f.alerter.titled("Inconsistent execution")
			if tt.wantInconsistent {
				if len(alerts) != 1 || alerts[0].priority != PriorityHigh {
					t.Errorf("alerts = %+v, want one high priority", alerts)
				}
				if res.BuyOrderID != "" || len(f.funds.withdrawals) != 0 {
					t.Error("nothing bought, nothing to withdraw")
				}
				return
			}
			if len(alerts) != 0 {
				t.Errorf("unexpected alerts: %+v", alerts)
			}
		})
	}
}

func TestTrader_SizingGuards(t *testing.T) {
	tests := []struct {
		name   string
		srcUSD string
		setup  func(*traderFixture)
	}{
		{
			name:   "source funds without headroom",
			srcUSD: "50",
		},
		{
			name:   "profit under half the minimum",
			srcUSD: "1000",
			setup:  func(f *traderFixture) { f.settings.minProfit = d("5") },
		},
		{
			name:   "transfer fee eats the amount",
			srcUSD: "1000",
			setup:  func(f *traderFixture) { f.funds.txFee = d("1") },
		},
		{
			name:   "trade size cap below minimum order",
			srcUSD: "1000",
			setup:  func(f *traderFixture) { f.settings.maxTradeSize = d("0.5") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTraderFixture(t, "2", tt.srcUSD)
			if tt.setup != nil {
				tt.setup(&f)
			}

			_, executed, err := f.trader.Execute(context.Background(), f.src, f.tgt, f.opportunity("2"))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if executed {
				t.Error("trade should not be entered")
			}
			if f.tgt.sellCalls != 0 || f.src.buyCalls != 0 {
				t.Errorf("orders placed: sells=%d buys=%d", f.tgt.sellCalls, f.src.buyCalls)
			}
		})
	}
}

func TestTrader_RestingOrdersAreCancelled(t *testing.T) {
	f := newTraderFixture(t, "2", "1000")
	// The bid moved away: the sell rests on the book.
	f.tgt.SetBook(btcUSD, offer("103", "1"), offer("90", "1"))

	res, executed, _ := f.trader.Execute(context.Background(), f.src, f.tgt, f.opportunity("2"))
	if !executed {
		t.Fatal("expected the sell to be placed")
	}
	if f.tgt.OpenOrders() != 0 {
		t.Error("resting sell should have been cancelled")
	}
	if got := f.alerter.titled("Order not filled"); len(got) != 1 {
		t.Errorf("order not filled alerts = %d, want 1", len(got))
	}
	if res.ReconcileRounds != len(ReconcileSchedule) {
		t.Errorf("reconcile rounds = %d, want %d while the sell has no fills", res.ReconcileRounds, len(ReconcileSchedule))
	}

	// Order check delay, then 2, 4 and 8 reconcile intervals.
	want := []time.Duration{5 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	if len(f.clock.sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", f.clock.sleeps, want)
	}
	for i := range want {
		if f.clock.sleeps[i] != want[i] {
			t.Errorf("sleep %d = %s, want %s", i, f.clock.sleeps[i], want[i])
		}
	}
}
