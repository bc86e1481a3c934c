package domain

import (
	"github.com/shopspring/decimal"

	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
)

// Balances are the wallet figures an execution touches.
type Balances struct {
	SourceCurrency  decimal.Decimal
	SourceTradeable decimal.Decimal
	TargetCurrency  decimal.Decimal
	TargetTradeable decimal.Decimal
}

// TradeResult records one execution from sizing to reconciliation.
type TradeResult struct {
	Direction
	Market venueDomain.Market

	Before Balances
	After  Balances

	TradeAmount    decimal.Decimal // tradeable bought on the source
	BoughtAmount   decimal.Decimal // after the source fee
	SellAmount     decimal.Decimal // sold on the target
	TxFee          decimal.Decimal
	BuyRate        decimal.Decimal
	SellRate       decimal.Decimal
	ExpectedProfit decimal.Decimal

	SellOrderID string
	BuyOrderID  string
	BuyAttempts int

	BuyFills        []venueDomain.Fill
	SellFills       []venueDomain.Fill
	ReconcileRounds int
	Cost            decimal.Decimal // currency spent on the source
	Revenue         decimal.Decimal // currency received on the target
	ProfitLoss      decimal.Decimal

	// Inconsistent is set when the sell was placed but no buy could be.
	Inconsistent bool
}

// Placed reports whether any order reached a venue.
func (r TradeResult) Placed() bool {
	return r.SellOrderID != "" || r.BuyOrderID != ""
}

// CurrencyDelta returns the currency gained across both venues.
func (r TradeResult) CurrencyDelta() decimal.Decimal {
	before := r.Before.SourceCurrency.Add(r.Before.TargetCurrency)
	after := r.After.SourceCurrency.Add(r.After.TargetCurrency)
	return after.Sub(before)
}

// TradeableDelta returns the tradeable gained across both venues.
func (r TradeResult) TradeableDelta() decimal.Decimal {
	before := r.Before.SourceTradeable.Add(r.Before.TargetTradeable)
	after := r.After.SourceTradeable.Add(r.After.TargetTradeable)
	return after.Sub(before)
}

// CalculatedProfit returns the currency delta implied by the order prices:
// revenue on the target minus cost on the source.
func (r TradeResult) CalculatedProfit() decimal.Decimal {
	return r.Revenue.Sub(r.Cost)
}
