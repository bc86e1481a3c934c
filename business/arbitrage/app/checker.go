package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/business/arbitrage/domain"
	venueApp "github.com/fd1az/crossarb/business/venue/app"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
	"github.com/fd1az/crossarb/internal/asset"
	"github.com/fd1az/crossarb/internal/logger"
)

// Executor carries out a profitable opportunity.
type Executor interface {
	Execute(ctx context.Context, src, tgt venueApp.Venue, opp domain.Opportunity) (domain.TradeResult, bool, error)
}

// Checker evaluates one direction of a crossed market and hands profitable
// opportunities to the executor.
type Checker struct {
	settings Settings
	funds    FundManager
	stats    StatsStore
	executor Executor
	alerter  Alerter
	logger   logger.LoggerInterface
}

// NewChecker creates a Checker.
func NewChecker(settings Settings, funds FundManager, stats StatsStore, executor Executor, alerter Alerter, log logger.LoggerInterface) *Checker {
	return &Checker{
		settings: settings,
		funds:    funds,
		stats:    stats,
		executor: executor,
		alerter:  alerter,
		logger:   log,
	}
}

// CheckAndTrade buys on src at srcBook's ask and sells on tgt at tgtBook's
// bid when that clears the minimum profit. It returns true only when a
// trade was executed.
func (c *Checker) CheckAndTrade(ctx context.Context, state *domain.LoopState, src, tgt venueApp.Venue, srcBook, tgtBook *venueDomain.Orderbook) (bool, error) {
	ask, bid := srcBook.BestAsk, tgtBook.BestBid
	if bid.Price.LessThanOrEqual(ask.Price) {
		return false, nil
	}

	market := srcBook.Market
	c.checkPriceDifference(ctx, state, src, tgt, market, ask.Price, bid.Price)

	amount := asset.Format(asset.Min(ask.Amount, bid.Amount))
	txFee := c.funds.SafeTxFee(src, market.Tradeable, src.DeductFeeFromAmountBuy(amount))
	sim := Simulate(domain.SimulationInput{
		SourceFees: src,
		TargetFees: tgt,
		Ask:        ask.Price,
		Bid:        bid.Price,
		Amount:     amount,
		TxFee:      txFee,
	})

	c.logger.Debug(ctx, "spread",
		"market", market.String(),
		"source", src.ID(),
		"target", tgt.ID(),
		"spread", asset.String(bid.Price.Sub(ask.Price)),
		"amount", asset.String(amount),
		"profit", asset.String(sim.Profit),
		"rejection", sim.Rejection,
	)

	if sim.Rejected() || sim.Profit.LessThan(c.settings.MinProfit()) {
		return false, nil
	}

	opp := domain.Opportunity{
		Direction: domain.Direction{Source: src.ID(), Target: tgt.ID()},
		Market:    market,
		Amount:    amount,
		Profit:    sim.Profit,
		SourceAsk: ask,
		TargetBid: bid,
	}

	if err := c.stats.SaveTrack(ctx, market.Tradeable, amount, sim.Profit, tgt.ID()); err != nil {
		c.logger.Warn(ctx, "failed to save track", "market", market.String(), "error", err)
	}

	if !c.settings.TradingEnabled() {
		c.logger.Info(ctx, "opportunity found, trading disabled",
			"market", market.String(), "direction", opp.String(), "profit", asset.String(sim.Profit))
		return false, nil
	}

	_, executed, err := c.executor.Execute(ctx, src, tgt, opp)
	return executed, err
}

// checkPriceDifference alerts once per tradeable when the crossing is so
// wide it is more likely a broken market than an opportunity.
func (c *Checker) checkPriceDifference(ctx context.Context, state *domain.LoopState, src, tgt venueApp.Venue, market venueDomain.Market, ask, bid decimal.Decimal) {
	if bid.Sub(ask).Abs().LessThanOrEqual(asset.DustThreshold) {
		return
	}
	limit := c.settings.SuspiciousPriceDifference()
	pct := asset.PercentDiff(bid, ask, ask)
	if pct.LessThanOrEqual(limit) {
		return
	}
	if !state.NotifyPriceDiff(market.Tradeable) {
		return
	}

	c.logger.Warn(ctx, "suspicious price difference",
		"market", market.String(), "source", src.ID(), "target", tgt.ID(),
		"ask", asset.String(ask), "bid", asset.String(bid), "percent", pct.StringFixed(2))
	c.alerter.Alert(ctx, PriorityNormal, "Suspicious price difference",
		fmt.Sprintf("%s differs by %s%% (over %s%%) between %s and %s. Check that the coins are the same and both markets are up.",
			market, pct.StringFixed(2), limit.String(), src.Name(), tgt.Name()))
}
