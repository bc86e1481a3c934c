package domain

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/internal/apperror"
)

func TestNewVenuePairs(t *testing.T) {
	tests := []struct {
		ids  []string
		want int
	}{
		{ids: nil, want: 0},
		{ids: []string{"a"}, want: 0},
		{ids: []string{"a", "b"}, want: 1},
		{ids: []string{"a", "b", "c"}, want: 3},
		{ids: []string{"a", "b", "c", "d", "e"}, want: 10},
	}

	for _, tt := range tests {
		pairs, err := NewVenuePairs(tt.ids)
		if err != nil {
			t.Fatalf("%v: %v", tt.ids, err)
		}
		if len(pairs) != tt.want {
			t.Errorf("%v: %d pairs, want %d", tt.ids, len(pairs), tt.want)
		}

		seen := map[[2]string]bool{}
		for _, p := range pairs {
			if p.A == p.B {
				t.Errorf("pair %s joins a venue with itself", p)
			}
			key := [2]string{p.A, p.B}
			if p.B < p.A {
				key = [2]string{p.B, p.A}
			}
			if seen[key] {
				t.Errorf("pair %s listed twice", p)
			}
			seen[key] = true
		}
	}
}

func TestNewVenuePairs_Invalid(t *testing.T) {
	for _, ids := range [][]string{{"a", "a"}, {"a", ""}} {
		_, err := NewVenuePairs(ids)
		if !apperror.HasCode(err, apperror.CodeInvalidVenuePair) {
			t.Errorf("%q: err = %v, want invalid venue pair", ids, err)
		}
	}
}

func TestVenuePair_Directions(t *testing.T) {
	dirs := VenuePair{A: "a", B: "b"}.Directions()
	if dirs[0] != (Direction{Source: "a", Target: "b"}) {
		t.Errorf("first direction = %s", dirs[0])
	}
	if dirs[1] != dirs[0].Reverse() {
		t.Errorf("second direction = %s, want %s", dirs[1], dirs[0].Reverse())
	}
}

func TestLoopState_NotifyPriceDiff(t *testing.T) {
	s := NewLoopState([]string{"a", "b"})

	if !s.NotifyPriceDiff("BTC") {
		t.Error("first notification should be new")
	}
	if s.NotifyPriceDiff("BTC") {
		t.Error("second notification for BTC should be suppressed")
	}
	if !s.NotifyPriceDiff("ETH") {
		t.Error("ETH is a different asset")
	}
	if len(s.Deposits) != 2 || len(s.Withdrawals) != 2 {
		t.Errorf("transfer views = %d/%d, want one per venue", len(s.Deposits), len(s.Withdrawals))
	}
}

func TestTradeResult_Deltas(t *testing.T) {
	d := decimal.RequireFromString
	r := TradeResult{
		Before:  Balances{SourceCurrency: d("1000"), TargetTradeable: d("5")},
		After:   Balances{SourceCurrency: d("900"), TargetCurrency: d("102"), SourceTradeable: d("1"), TargetTradeable: d("4")},
		Cost:    d("100"),
		Revenue: d("102"),
	}

	if !r.CurrencyDelta().Equal(d("2")) {
		t.Errorf("currency delta = %s, want 2", r.CurrencyDelta())
	}
	if !r.TradeableDelta().IsZero() {
		t.Errorf("tradeable delta = %s, want 0", r.TradeableDelta())
	}
	if !r.CalculatedProfit().Equal(d("2")) {
		t.Errorf("calculated profit = %s, want 2", r.CalculatedProfit())
	}
	if r.Placed() {
		t.Error("no order ids, nothing placed")
	}
}
