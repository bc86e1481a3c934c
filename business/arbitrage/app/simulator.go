package app

import (
	"github.com/fd1az/crossarb/business/arbitrage/domain"
	"github.com/fd1az/crossarb/internal/asset"
)

// Simulate prices buying in.Amount at the source ask, moving it to the
// target and selling it at the target bid. The result is either rejected
// or carries a non-negative profit.
func Simulate(in domain.SimulationInput) domain.Simulation {
	if in.Bid.LessThanOrEqual(in.Ask) {
		return domain.Simulation{Rejection: domain.RejectNoSpread}
	}
	if !in.Amount.IsPositive() {
		return domain.Simulation{Rejection: domain.RejectNoAmount}
	}

	sim := domain.Simulation{
		BuyCost:  in.SourceFees.AddFeeToPrice(in.Amount.Mul(in.Ask)),
		Received: in.SourceFees.DeductFeeFromAmountBuy(in.Amount),
	}
	if sim.BuyCost.LessThan(in.SourceFees.SmallestOrderSize()) {
		sim.Rejection = domain.RejectBelowMinBuy
		return sim
	}

	arrived := asset.Format(sim.Received.Sub(in.TxFee))
	if !arrived.IsPositive() {
		sim.Rejection = domain.RejectNoAmount
		return sim
	}

	sim.Proceeds = in.TargetFees.DeductFeeFromAmountSell(arrived.Mul(in.Bid))
	if sim.Proceeds.LessThan(in.TargetFees.SmallestOrderSize()) {
		sim.Rejection = domain.RejectBelowMinSell
		return sim
	}

	profit := asset.Format(sim.Proceeds.Sub(sim.BuyCost))
	if profit.IsNegative() {
		sim.Rejection = domain.RejectUnprofitable
		return sim
	}
	sim.Profit = profit
	return sim
}
