package domain

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/internal/asset"
)

// Wallets maps asset symbol to available balance.
type Wallets map[string]decimal.Decimal

// Get returns the balance of symbol, zero if absent.
func (w Wallets) Get(symbol string) decimal.Decimal {
	if b, ok := w[asset.Symbol(symbol)]; ok {
		return b
	}
	return decimal.Zero
}

// Clone returns an independent copy.
func (w Wallets) Clone() Wallets {
	out := make(Wallets, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Assets returns the symbols with a positive balance, sorted.
func (w Wallets) Assets() []string {
	out := make([]string, 0, len(w))
	for k, v := range w {
		if v.IsPositive() {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
