package app

import (
	"context"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/business/arbitrage/domain"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
)

type scannerFixture struct {
	scanner  *Scanner
	settings *fakeSettings
	funds    *fakeFunds
	ledger   ledgerFixture
	a, b     *scriptedVenue
	pairs    []domain.VenuePair
}

func newScannerFixture(t *testing.T, markets []venueDomain.Market, seed int64, timeout time.Duration) scannerFixture {
	t.Helper()
	f := scannerFixture{
		settings: newSettings(),
		funds:    &fakeFunds{inTransit: map[string]bool{}},
		ledger:   newLedger(),
		a:        newVenue(t, "a", markets, map[string]decimal.Decimal{"USD": d("1000")}),
		b:        newVenue(t, "b", markets, map[string]decimal.Decimal{"BTC": d("5")}),
		pairs:    []domain.VenuePair{{A: "a", B: "b"}},
	}
	f.settings.trading = false

	checker := NewChecker(f.settings, f.funds, f.ledger.service, &recordingExecutor{}, &recordingAlerter{}, testLogger())
	scanner, err := NewScanner(newRegistry(t, f.a, f.b), f.settings, f.funds, checker, rand.New(rand.NewSource(seed)), timeout, testLogger())
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	f.scanner = scanner
	return f
}

func usdMarkets(tradeables ...string) []venueDomain.Market {
	out := make([]venueDomain.Market, len(tradeables))
	for i, s := range tradeables {
		out[i] = venueDomain.NewMarket(s, "USD")
	}
	return out
}

func TestScanner_TimeoutSkipsMarket(t *testing.T) {
	tests := []struct {
		name      string
		ignoreCtx bool
	}{
		{name: "venue honours cancellation"},
		{name: "venue ignores cancellation", ignoreCtx: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := usdMarkets("BTC", "ETH")
			f := newScannerFixture(t, ms, 1, 20*time.Millisecond)
			btc, eth := ms[0], ms[1]

			f.a.SetBook(btc, offer("100", "1"), offer("99", "1"))
			f.b.SetBook(btc, offer("103", "1"), offer("102", "1"))
			f.a.SetBook(eth, offer("10", "1"), offer("9", "1"))
			f.b.SetBook(eth, offer("11", "1"), offer("10.5", "1"))
			f.b.blockBooks[eth] = true
			if tt.ignoreCtx {
				f.b.hang = make(chan struct{})
				t.Cleanup(func() { close(f.b.hang) })
			}

			state := domain.NewLoopState([]string{"a", "b"})
			start := time.Now()
			traded, err := f.scanner.Scan(context.Background(), state, f.pairs)
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			if traded {
				t.Error("trading is disabled")
			}
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Errorf("scan took %s, the stuck fetch should be abandoned", elapsed)
			}

			tracks := f.ledger.store.Tracks()
			if len(tracks) != 1 || tracks[0].Asset != "BTC" {
				t.Errorf("tracks = %+v, want only BTC after ETH timed out", tracks)
			}
		})
	}
}

func TestScanner_SkipsBlockedAndInTransit(t *testing.T) {
	ms := usdMarkets("BTC", "ETH")
	f := newScannerFixture(t, ms, 1, time.Second)
	f.settings.blocked = map[string]bool{"BTC": true}
	f.funds.inTransit["ETH"] = true

	state := domain.NewLoopState([]string{"a", "b"})
	if _, err := f.scanner.Scan(context.Background(), state, f.pairs); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := f.a.visited(); len(got) != 0 {
		t.Errorf("books fetched for %v, want none", got)
	}
}

func TestScanner_MaxPairsPerRun(t *testing.T) {
	ms := usdMarkets("BTC", "ETH", "LTC", "XRP")
	f := newScannerFixture(t, ms, 7, time.Second)
	f.settings.maxPairs = 2

	state := domain.NewLoopState([]string{"a", "b"})
	f.scanner.Scan(context.Background(), state, f.pairs)

	if got := f.a.visited(); len(got) != 2 {
		t.Errorf("visited %d markets, want 2", len(got))
	}
}

func TestScanner_SeedReplaysOrder(t *testing.T) {
	ms := usdMarkets("BTC", "ETH", "LTC", "XRP", "ADA", "DOT")

	scanOrder := func(seed int64) []venueDomain.Market {
		f := newScannerFixture(t, ms, seed, time.Second)
		state := domain.NewLoopState([]string{"a", "b"})
		for i := 0; i < 3; i++ {
			f.scanner.Scan(context.Background(), state, f.pairs)
		}
		return f.a.visited()
	}

	first, second := scanOrder(42), scanOrder(42)
	if len(first) != 3*len(ms) {
		t.Fatalf("visited %d markets, want %d", len(first), 3*len(ms))
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same seed gave different orders:\n%v\n%v", first, second)
	}
}

func TestScanner_StopsAtFirstTrade(t *testing.T) {
	ms := usdMarkets("BTC", "ETH")
	f := newScannerFixture(t, ms, 3, time.Second)
	f.settings.trading = true
	for _, m := range ms {
		f.a.SetBook(m, offer("100", "1"), offer("99", "1"))
		f.b.SetBook(m, offer("103", "1"), offer("102", "1"))
	}

	state := domain.NewLoopState([]string{"a", "b"})
	traded, err := f.scanner.Scan(context.Background(), state, f.pairs)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !traded {
		t.Fatal("expected a trade")
	}
	if got := f.a.visited(); len(got) != 1 {
		t.Errorf("visited %v after the first trade, want one market", got)
	}
}
