package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseMarket(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Market
		wantErr bool
	}{
		{name: "upper", input: "BTC_USDT", want: Market{"BTC", "USDT"}},
		{name: "lower_is_normalised", input: "eth_btc", want: Market{"ETH", "BTC"}},
		{name: "missing_separator", input: "BTCUSDT", wantErr: true},
		{name: "empty_currency", input: "BTC_", wantErr: true},
		{name: "empty_tradeable", input: "_USDT", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMarket(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMarket(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMarket(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	m := NewMarket("ltc", "btc")
	if m.String() != "LTC_BTC" || m.Symbol() != "LTCBTC" {
		t.Errorf("String/Symbol = %s/%s", m.String(), m.Symbol())
	}
}

func TestFeeSchedule(t *testing.T) {
	fees := FeeSchedule{Taker: d("0.001"), SmallestOrder: d("0.0001")}

	tests := []struct {
		name string
		fn   func(decimal.Decimal) decimal.Decimal
		in   string
		want string
	}{
		{"add_fee_to_price", fees.AddFeeToPrice, "100", "100.1"},
		{"deduct_fee_from_buy", fees.DeductFeeFromAmountBuy, "2", "1.998"},
		{"deduct_fee_from_sell", fees.DeductFeeFromAmountSell, "102", "101.898"},
		{"rounds_to_eight_digits", fees.AddFeeToPrice, "0.123456789", "0.12358025"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(d(tt.in)); !got.Equal(d(tt.want)) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	zero := FeeSchedule{}
	if got := zero.AddFeeToPrice(d("100")); !got.Equal(d("100")) {
		t.Errorf("zero fee AddFeeToPrice = %s, want 100", got)
	}
}

func TestSumFills(t *testing.T) {
	m := NewMarket("BTC", "USDT")
	fills := []Fill{
		{Market: m, Side: SideBuy, Price: d("100"), Amount: d("0.5"), Fee: d("0.05"), FeeAsset: "USDT"},
		{Market: m, Side: SideBuy, Price: d("102"), Amount: d("0.5"), Fee: d("0.001"), FeeAsset: "BTC"},
	}

	got := SumFills(fills)
	if !got.Amount.Equal(d("1")) {
		t.Errorf("Amount = %s, want 1", got.Amount)
	}
	if !got.Notional.Equal(d("101")) {
		t.Errorf("Notional = %s, want 101", got.Notional)
	}
	if !got.AveragePrice().Equal(d("101")) {
		t.Errorf("AveragePrice = %s, want 101", got.AveragePrice())
	}
	if !got.Cost().Equal(d("101.05")) {
		t.Errorf("Cost = %s, want 101.05", got.Cost())
	}
	if !got.Revenue().Equal(d("100.95")) {
		t.Errorf("Revenue = %s, want 100.95", got.Revenue())
	}
	if !got.AssetFees.Equal(d("0.001")) {
		t.Errorf("AssetFees = %s, want 0.001", got.AssetFees)
	}

	if avg := SumFills(nil).AveragePrice(); !avg.IsZero() {
		t.Errorf("empty AveragePrice = %s, want 0", avg)
	}
}

func TestWallets(t *testing.T) {
	w := Wallets{"BTC": d("1"), "USDT": d("0"), "ETH": d("2")}

	if got := w.Get("btc"); !got.Equal(d("1")) {
		t.Errorf("Get(btc) = %s, want 1", got)
	}
	if got := w.Get("XRP"); !got.IsZero() {
		t.Errorf("Get(XRP) = %s, want 0", got)
	}

	c := w.Clone()
	c["BTC"] = d("5")
	if !w.Get("BTC").Equal(d("1")) {
		t.Error("Clone shares storage")
	}

	assets := w.Assets()
	if len(assets) != 2 || assets[0] != "BTC" || assets[1] != "ETH" {
		t.Errorf("Assets = %v, want [BTC ETH]", assets)
	}
}

func TestOrderbook_Validate(t *testing.T) {
	ob := &Orderbook{
		VenueID: "a",
		Market:  NewMarket("BTC", "USDT"),
		BestAsk: Offer{Price: d("100"), Amount: d("1")},
		BestBid: Offer{Price: d("99"), Amount: d("1")},
	}
	if err := ob.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !ob.Spread().Equal(d("-1")) {
		t.Errorf("Spread = %s, want -1", ob.Spread())
	}

	ob.BestBid.Amount = decimal.Zero
	if err := ob.Validate(); err == nil {
		t.Error("expected error for empty bid")
	}
}
