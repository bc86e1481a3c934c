package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/crossarb/business/arbitrage/domain"
	venueApp "github.com/fd1az/crossarb/business/venue/app"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
	"github.com/fd1az/crossarb/internal/apperror"
	"github.com/fd1az/crossarb/internal/asset"
	"github.com/fd1az/crossarb/internal/logger"
)

// MaxBuyAttempts is the buy placement budget once the sell is on the book.
const MaxBuyAttempts = 5

var (
	// ReconcileSchedule multiplies the reconcile interval before each
	// round after the first.
	ReconcileSchedule = []int{1, 2, 4, 8}

	fundsHeadroom = decimal.RequireFromString("1.01")
	half          = decimal.RequireFromString("0.5")

	errNoOrderID = errors.New("venue returned no order id")
)

// Trader sizes and executes an opportunity against the live wallets, then
// reconciles the fills and sends the bought coins to the target venue.
type Trader struct {
	settings   Settings
	funds      FundManager
	reconciler Reconciler
	stats      StatsStore
	reporter   Reporter
	alerter    Alerter
	clock      Clock
	logger     logger.LoggerInterface
	tracer     trace.Tracer

	trades       metric.Int64Counter
	inconsistent metric.Int64Counter
}

// NewTrader creates a Trader. reporter may be nil.
func NewTrader(settings Settings, funds FundManager, reconciler Reconciler, stats StatsStore, reporter Reporter, alerter Alerter, clock Clock, log logger.LoggerInterface) (*Trader, error) {
	meter := otel.Meter(instrumentationName)
	trades, err := meter.Int64Counter(
		"arbitrage_trades_total",
		metric.WithDescription("Executions that placed at least the sell order"),
	)
	if err != nil {
		return nil, err
	}
	inconsistent, err := meter.Int64Counter(
		"arbitrage_inconsistent_executions_total",
		metric.WithDescription("Executions where the sell was placed but the buy never was"),
	)
	if err != nil {
		return nil, err
	}

	return &Trader{
		settings:     settings,
		funds:        funds,
		reconciler:   reconciler,
		stats:        stats,
		reporter:     reporter,
		alerter:      alerter,
		clock:        clock,
		logger:       log,
		tracer:       otel.Tracer(instrumentationName),
		trades:       trades,
		inconsistent: inconsistent,
	}, nil
}

// plan is the sized trade.
type plan struct {
	maxSource   decimal.Decimal
	maxTarget   decimal.Decimal
	tradeAmount decimal.Decimal
	buyPrice    decimal.Decimal
	bought      decimal.Decimal
	txFee       decimal.Decimal
	sellAmount  decimal.Decimal
	sellPrice   decimal.Decimal
	profit      decimal.Decimal
	buyRate     decimal.Decimal
	sellRate    decimal.Decimal
}

// Execute places the sell on tgt first and only then the buy on src. It
// returns true when the sell was placed, whatever happened afterwards.
func (t *Trader) Execute(ctx context.Context, src, tgt venueApp.Venue, opp domain.Opportunity) (domain.TradeResult, bool, error) {
	ctx, span := t.tracer.Start(ctx, "arbitrage.execute", trace.WithAttributes(
		attribute.String("market", opp.Market.String()),
		attribute.String("source", src.ID()),
		attribute.String("target", tgt.ID()),
	))
	defer span.End()

	m := opp.Market
	res := domain.TradeResult{
		Direction: opp.Direction,
		Market:    m,
		Before:    balances(src, tgt, m),
	}

	p, reason := t.size(src, tgt, opp, res.Before)
	t.logPlan(ctx, opp, res.Before, p)
	if reason != "" {
		t.logger.Info(ctx, "not entering trade", "market", m.String(), "direction", opp.String(), "reason", reason)
		return res, false, nil
	}

	res.TradeAmount = p.tradeAmount
	res.BoughtAmount = p.bought
	res.SellAmount = p.sellAmount
	res.TxFee = p.txFee
	res.BuyRate = p.buyRate
	res.SellRate = p.sellRate
	res.ExpectedProfit = p.profit

	sellID, err := tgt.Sell(ctx, m.Tradeable, m.Currency, p.sellRate, p.sellAmount)
	if err == nil && sellID == "" {
		err = errNoOrderID
	}
	if err != nil {
		t.logger.Warn(ctx, "sell order failed, not attempting a buy",
			"market", m.String(), "venue", tgt.ID(), "error", err)
		return res, false, nil
	}
	res.SellOrderID = sellID
	t.logger.Info(ctx, "placed sell order", "venue", tgt.ID(), "order_id", sellID,
		"amount", asset.String(p.sellAmount), "rate", asset.String(p.sellRate))

	res.BuyOrderID, res.BuyAttempts = t.placeBuy(ctx, src, m, p.buyRate, p.tradeAmount)
	if res.BuyOrderID == "" {
		t.flagInconsistent(ctx, span, &res)
	} else {
		t.logger.Info(ctx, "placed buy order, waiting for execution", "venue", src.ID(), "order_id", res.BuyOrderID,
			"amount", asset.String(p.tradeAmount), "rate", asset.String(p.buyRate), "attempts", res.BuyAttempts)
	}
	if err := t.clock.Sleep(ctx, t.settings.OrderCheckDelay()); err != nil {
		return res, true, err
	}

	t.cancelLeftover(ctx, tgt, m, venueDomain.SideSell, res.SellOrderID)
	if res.BuyOrderID != "" {
		t.cancelLeftover(ctx, src, m, venueDomain.SideBuy, res.BuyOrderID)
	}

	status := "executed"
	if res.Inconsistent {
		status = "inconsistent"
	}
	t.trades.Add(ctx, 1, metric.WithAttributes(attribute.String("market", m.String()), attribute.String("status", status)))

	err = t.settle(ctx, src, tgt, &res)
	if err != nil {
		span.RecordError(err)
	}
	return res, true, err
}

// size applies the live balances to the opportunity. A non-empty reason
// means the trade must not be entered.
func (t *Trader) size(src, tgt venueApp.Venue, opp domain.Opportunity, before domain.Balances) (plan, string) {
	ask, bid := opp.SourceAsk, opp.TargetBid
	var p plan

	affordable := asset.Min(t.settings.MaxTradeSize(), before.SourceCurrency)
	p.maxSource = asset.Min(affordable.Div(ask.Price), ask.Amount)
	p.maxTarget = asset.Min(before.TargetTradeable, bid.Amount)
	// Rounded down so the amount never exceeds what is affordable.
	p.tradeAmount = asset.FormatFloor(asset.Min(p.maxSource, p.maxTarget))

	p.buyPrice = src.AddFeeToPrice(p.tradeAmount.Mul(ask.Price))
	p.bought = src.DeductFeeFromAmountBuy(p.tradeAmount)
	p.txFee = t.funds.SafeTxFee(src, opp.Market.Tradeable, p.bought)
	p.sellAmount = asset.Format(p.bought.Sub(p.txFee))
	p.sellPrice = tgt.DeductFeeFromAmountSell(p.sellAmount.Mul(bid.Price))
	p.profit = asset.Format(p.sellPrice.Sub(p.buyPrice))

	switch {
	case !p.tradeAmount.IsPositive() || !p.sellAmount.IsPositive():
		return p, "nothing to trade with the available funds"
	case before.SourceCurrency.LessThan(p.buyPrice.Mul(fundsHeadroom)):
		return p, "requiring more " + opp.Market.Currency
	case p.profit.LessThan(t.settings.MinProfit().Mul(half)):
		return p, "requiring more " + opp.Market.Tradeable
	case p.buyPrice.LessThan(src.SmallestOrderSize()):
		return p, "buy price is below the minimum order size"
	case p.sellPrice.LessThan(tgt.SmallestOrderSize()):
		return p, "sell price is below the minimum order size"
	}

	p.buyRate = asset.Format(ask.Price.Mul(t.settings.BuyRateFactor()))
	p.sellRate = asset.Format(bid.Price.Mul(t.settings.SellRateFactor()))
	if p.sellRate.Mul(p.sellAmount).LessThan(tgt.SmallestOrderSize()) {
		p.sellRate = asset.Format(tgt.SmallestOrderSize().Div(p.sellAmount).Add(asset.Unit))
	}
	return p, ""
}

func (t *Trader) logPlan(ctx context.Context, opp domain.Opportunity, before domain.Balances, p plan) {
	t.logger.Info(ctx, "trade plan",
		"market", opp.Market.String(),
		"direction", opp.String(),
		"source_funds", asset.String(before.SourceCurrency),
		"target_funds", asset.String(before.TargetTradeable),
		"target_max", asset.String(p.maxTarget),
		"source_max", asset.String(p.maxSource),
		"buy_rate", asset.String(opp.SourceAsk.Price),
		"buy_amount", asset.String(p.tradeAmount),
		"bought_amount", asset.String(p.bought),
		"buy_price", asset.String(p.buyPrice),
		"sell_rate", asset.String(opp.TargetBid.Price),
		"sell_amount", asset.String(p.sellAmount),
		"sell_price", asset.String(p.sellPrice),
		"tx_fee", asset.String(p.txFee),
		"profit", asset.String(p.profit),
	)
}

// placeBuy tries the buy up to MaxBuyAttempts times with no delay between
// attempts.
func (t *Trader) placeBuy(ctx context.Context, src venueApp.Venue, m venueDomain.Market, rate, amount decimal.Decimal) (string, int) {
	attempts := 0
	id, err := backoff.Retry(ctx, func() (string, error) {
		attempts++
		id, err := src.Buy(ctx, m.Tradeable, m.Currency, rate, amount)
		if err == nil && id == "" {
			err = errNoOrderID
		}
		if err != nil {
			t.logger.Warn(ctx, "buy order failed", "venue", src.ID(), "market", m.String(),
				"attempt", attempts, "max_attempts", MaxBuyAttempts, "error", err)
			return "", err
		}
		return id, nil
	},
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(MaxBuyAttempts),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		return "", attempts
	}
	return id, attempts
}

func (t *Trader) flagInconsistent(ctx context.Context, span trace.Span, res *domain.TradeResult) {
	res.Inconsistent = true
	err := apperror.New(apperror.CodeExecutionInconsistent,
		apperror.WithContextf("%s: sold %s %s on %s, buy failed %d times on %s",
			res.Market, asset.String(res.SellAmount), res.Market.Tradeable, res.Target, res.BuyAttempts, res.Source))

	span.RecordError(err)
	span.SetStatus(codes.Error, "execution inconsistent")
	t.inconsistent.Add(ctx, 1, metric.WithAttributes(attribute.String("market", res.Market.String())))
	t.logger.Error(ctx, "buy order failed after the sell was placed",
		"execution_inconsistent", true,
		"market", res.Market.String(),
		"sell_order_id", res.SellOrderID,
		"attempts", res.BuyAttempts,
		"error", err)
	t.alerter.Alert(ctx, PriorityHigh, "Inconsistent execution", err.Error())
}

// cancelLeftover cancels what is still open of an order. A successful
// cancel means the order did not fill within the check delay.
func (t *Trader) cancelLeftover(ctx context.Context, v venueApp.Venue, m venueDomain.Market, side venueDomain.Side, orderID string) {
	cancelled, err := v.CancelOrder(ctx, m.Tradeable, m.Currency, orderID)
	if err != nil {
		t.logger.Warn(ctx, "cancel order failed", "venue", v.ID(), "order_id", orderID, "error", err)
		return
	}
	if cancelled {
		msg := fmt.Sprintf("A %s order on %s was not filled within the order check delay (%s). Increase it if this happens regularly.",
			side, v.Name(), t.settings.OrderCheckDelay())
		t.logger.Warn(ctx, "order not filled", "venue", v.ID(), "order_id", orderID, "side", side)
		t.alerter.Alert(ctx, PriorityNormal, "Order not filled", msg)
	}
}

// settle reconciles fills on an increasing schedule, records the outcome
// and withdraws the bought coins to the target.
func (t *Trader) settle(ctx context.Context, src, tgt venueApp.Venue, res *domain.TradeResult) error {
	var errs []error
	m := res.Market

	for i, mult := range ReconcileSchedule {
		if i > 0 {
			if err := t.clock.Sleep(ctx, time.Duration(mult)*t.settings.ReconcileInterval()); err != nil {
				return errors.Join(append(errs, err)...)
			}
		}
		res.ReconcileRounds = i + 1

		for _, v := range []venueApp.Venue{src, tgt} {
			if err := v.RefreshWallets(ctx); err != nil {
				t.logger.Warn(ctx, "wallet refresh failed", "venue", v.ID(), "error", err)
			}
		}

		buyFills, buyErr := t.reconciler.HandlePostTradeTasks(ctx, src, m.Tradeable, m.Currency, venueDomain.SideBuy, res.BuyOrderID, res.TradeAmount)
		sellFills, sellErr := t.reconciler.HandlePostTradeTasks(ctx, tgt, m.Tradeable, m.Currency, venueDomain.SideSell, res.SellOrderID, res.SellAmount)
		if buyErr != nil || sellErr != nil {
			t.logger.Warn(ctx, "reconciliation round failed", "round", res.ReconcileRounds, "error", errors.Join(buyErr, sellErr))
			if i == len(ReconcileSchedule)-1 {
				errs = append(errs, buyErr, sellErr)
			}
			continue
		}
		res.BuyFills, res.SellFills = buyFills, sellFills

		buyDone := res.BuyOrderID == "" || venueDomain.SumFills(buyFills).Amount.GreaterThanOrEqual(res.TradeAmount)
		sellDone := venueDomain.SumFills(sellFills).Amount.GreaterThanOrEqual(res.SellAmount)
		if buyDone && sellDone {
			break
		}
	}

	var err error
	if res.BuyOrderID != "" {
		if res.Cost, err = src.FilledOrderPrice(ctx, venueDomain.SideBuy, m.Tradeable, m.Currency, res.BuyOrderID); err != nil {
			errs = append(errs, err)
		}
	}
	if res.Revenue, err = tgt.FilledOrderPrice(ctx, venueDomain.SideSell, m.Tradeable, m.Currency, res.SellOrderID); err != nil {
		errs = append(errs, err)
	}

	if res.ProfitLoss, err = t.reconciler.SaveProfitLoss(ctx, src, tgt, res.BuyFills, res.SellFills, res.TxFee); err != nil {
		errs = append(errs, err)
	}

	res.After = balances(src, tgt, m)
	t.report(ctx, *res)

	if err := t.stats.SaveTrade(ctx, m.Tradeable, m.Currency, res.SellAmount, src.ID(), tgt.ID()); err != nil {
		errs = append(errs, err)
	}

	if res.BuyOrderID != "" {
		if err := t.funds.Withdraw(ctx, src, tgt, m.Tradeable, res.BoughtAmount); err != nil {
			t.logger.Error(ctx, "withdrawal after trade failed", "asset", m.Tradeable,
				"source", src.ID(), "target", tgt.ID(), "amount", asset.String(res.BoughtAmount), "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// report logs the before/after summary and hands it to the reporter.
func (t *Trader) report(ctx context.Context, res domain.TradeResult) {
	sourceCurrencyAfter := res.Before.SourceCurrency.Sub(res.Cost)
	targetCurrencyAfter := res.Before.TargetCurrency.Add(res.Revenue)
	tradeableDelta := res.After.SourceTradeable.Sub(res.Before.SourceTradeable).
		Add(res.After.TargetTradeable.Sub(res.Before.TargetTradeable))

	t.logger.Info(ctx, "trade summary",
		"market", res.Market.String(),
		"direction", res.Direction.String(),
		"sell_order_id", res.SellOrderID,
		"buy_order_id", res.BuyOrderID,
		"buy_attempts", res.BuyAttempts,
		"inconsistent", res.Inconsistent,
		"reconcile_rounds", res.ReconcileRounds,
		"source_currency_before", asset.String(res.Before.SourceCurrency),
		"source_currency_after", asset.String(sourceCurrencyAfter),
		"target_currency_before", asset.String(res.Before.TargetCurrency),
		"target_currency_after", asset.String(targetCurrencyAfter),
		"source_tradeable_before", asset.String(res.Before.SourceTradeable),
		"source_tradeable_after", asset.String(res.After.SourceTradeable),
		"target_tradeable_before", asset.String(res.Before.TargetTradeable),
		"target_tradeable_after", asset.String(res.After.TargetTradeable),
		"tradeable_delta", asset.String(tradeableDelta),
		"tradeable_delta_net_tx", asset.String(tradeableDelta.Sub(res.TxFee)),
		"calculated_pnl", asset.String(res.CalculatedProfit()),
		"profit_loss", asset.String(res.ProfitLoss),
	)

	if t.reporter != nil {
		t.reporter.ReportTrade(ctx, res)
	}
}

func balances(src, tgt venueApp.Venue, m venueDomain.Market) domain.Balances {
	sw, tw := src.Wallets(), tgt.Wallets()
	return domain.Balances{
		SourceCurrency:  sw.Get(m.Currency),
		SourceTradeable: sw.Get(m.Tradeable),
		TargetCurrency:  tw.Get(m.Currency),
		TargetTradeable: tw.Get(m.Tradeable),
	}
}
