// Package domain contains the core domain types for the venue context.
package domain

import (
	"fmt"
	"strings"

	"github.com/fd1az/crossarb/internal/asset"
)

// Market is a tradeable asset quoted in a currency, e.g. BTC priced in USDT.
type Market struct {
	Tradeable string
	Currency  string
}

// NewMarket creates a market with normalised symbols.
func NewMarket(tradeable, currency string) Market {
	return Market{
		Tradeable: asset.Symbol(tradeable),
		Currency:  asset.Symbol(currency),
	}
}

// ParseMarket parses the "TRADEABLE_CURRENCY" form.
func ParseMarket(s string) (Market, error) {
	tradeable, currency, ok := strings.Cut(s, "_")
	if !ok || strings.TrimSpace(tradeable) == "" || strings.TrimSpace(currency) == "" {
		return Market{}, fmt.Errorf("invalid market %q", s)
	}
	return NewMarket(tradeable, currency), nil
}

// String returns the market as "TRADEABLE_CURRENCY".
func (m Market) String() string {
	return m.Tradeable + "_" + m.Currency
}

// Symbol returns the concatenated exchange symbol ("BTCUSDT").
func (m Market) Symbol() string {
	return m.Tradeable + m.Currency
}

// IsZero reports whether the market is unset.
func (m Market) IsZero() bool {
	return m.Tradeable == "" && m.Currency == ""
}
