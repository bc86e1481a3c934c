package domain

import (
	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/internal/asset"
)

var one = decimal.NewFromInt(1)

// FeeSchedule applies a venue's taker fee and minimum order notional.
type FeeSchedule struct {
	Taker         decimal.Decimal // fraction, 0.001 = 0.1%
	SmallestOrder decimal.Decimal // in the quote currency
}

// AddFeeToPrice returns the currency cost of a buy including the fee.
func (f FeeSchedule) AddFeeToPrice(price decimal.Decimal) decimal.Decimal {
	return asset.Format(price.Mul(one.Add(f.Taker)))
}

// DeductFeeFromAmountBuy returns the asset amount received by a buy.
func (f FeeSchedule) DeductFeeFromAmountBuy(amount decimal.Decimal) decimal.Decimal {
	return asset.Format(amount.Mul(one.Sub(f.Taker)))
}

// DeductFeeFromAmountSell returns the currency received by a sell.
func (f FeeSchedule) DeductFeeFromAmountSell(price decimal.Decimal) decimal.Decimal {
	return asset.Format(price.Mul(one.Sub(f.Taker)))
}

// SmallestOrderSize returns the minimum order notional.
func (f FeeSchedule) SmallestOrderSize() decimal.Decimal {
	return f.SmallestOrder
}
