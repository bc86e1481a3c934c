package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/internal/asset"
)

// Side represents the side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide parses "buy" or "sell" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(s)) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("invalid side %q", s)
}

// Fill is one execution against an order.
type Fill struct {
	TradeID    string
	OrderID    string
	VenueID    string
	Market     Market
	Side       Side
	Price      decimal.Decimal
	Amount     decimal.Decimal
	Fee        decimal.Decimal
	FeeAsset   string
	ExecutedAt time.Time
}

// Notional returns price x amount.
func (f Fill) Notional() decimal.Decimal {
	return asset.Format(f.Price.Mul(f.Amount))
}

// FillTotals aggregates the fills of an order.
type FillTotals struct {
	Amount       decimal.Decimal // base asset executed
	Notional     decimal.Decimal // currency value before fees
	CurrencyFees decimal.Decimal // fees charged in the currency
	AssetFees    decimal.Decimal // fees charged in the tradeable asset
}

// SumFills totals fills of one market.
func SumFills(fills []Fill) FillTotals {
	var t FillTotals
	for _, f := range fills {
		t.Amount = t.Amount.Add(f.Amount)
		t.Notional = t.Notional.Add(f.Price.Mul(f.Amount))
		switch asset.Symbol(f.FeeAsset) {
		case f.Market.Currency:
			t.CurrencyFees = t.CurrencyFees.Add(f.Fee)
		case f.Market.Tradeable:
			t.AssetFees = t.AssetFees.Add(f.Fee)
		}
	}
	t.Amount = asset.Format(t.Amount)
	t.Notional = asset.Format(t.Notional)
	return t
}

// AveragePrice returns the volume weighted price, zero when nothing filled.
func (t FillTotals) AveragePrice() decimal.Decimal {
	if t.Amount.IsZero() {
		return decimal.Zero
	}
	return asset.Format(t.Notional.Div(t.Amount))
}

// Cost returns the currency paid for a buy, fees included.
func (t FillTotals) Cost() decimal.Decimal {
	return asset.Format(t.Notional.Add(t.CurrencyFees))
}

// Revenue returns the currency received for a sell, net of fees.
func (t FillTotals) Revenue() decimal.Decimal {
	return asset.Format(t.Notional.Sub(t.CurrencyFees))
}
