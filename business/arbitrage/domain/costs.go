package domain

import (
	"github.com/shopspring/decimal"
)

// Rejection explains why a simulated trade was not profitable.
type Rejection string

const (
	RejectNone         Rejection = ""
	RejectNoSpread     Rejection = "no_spread"
	RejectNoAmount     Rejection = "no_amount"
	RejectBelowMinBuy  Rejection = "below_min_buy"
	RejectBelowMinSell Rejection = "below_min_sell"
	RejectUnprofitable Rejection = "unprofitable"
)

// Fees is the fee model of one venue.
type Fees interface {
	AddFeeToPrice(price decimal.Decimal) decimal.Decimal
	DeductFeeFromAmountBuy(amount decimal.Decimal) decimal.Decimal
	DeductFeeFromAmountSell(price decimal.Decimal) decimal.Decimal
	SmallestOrderSize() decimal.Decimal
}

// SimulationInput holds everything needed to price one crossing.
type SimulationInput struct {
	SourceFees Fees
	TargetFees Fees
	Ask        decimal.Decimal // source best ask price
	Bid        decimal.Decimal // target best bid price
	Amount     decimal.Decimal // tradeable to buy on the source
	TxFee      decimal.Decimal // safe transfer fee, in the tradeable
}

// Simulation is the priced outcome. Profit is zero whenever Rejection is
// set.
type Simulation struct {
	Profit    decimal.Decimal
	BuyCost   decimal.Decimal // currency paid on the source, fee included
	Received  decimal.Decimal // tradeable received on the source
	Proceeds  decimal.Decimal // currency received on the target, fee deducted
	Rejection Rejection
}

// Rejected reports whether the crossing is not tradeable.
func (s Simulation) Rejected() bool {
	return s.Rejection != RejectNone
}
