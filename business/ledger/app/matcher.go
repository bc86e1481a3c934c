package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/business/ledger/domain"
	venueApp "github.com/fd1az/crossarb/business/venue/app"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
	"github.com/fd1az/crossarb/internal/apperror"
	"github.com/fd1az/crossarb/internal/asset"
	"github.com/fd1az/crossarb/internal/logger"
)

// Matcher collects the fills of placed orders and books the realized
// profit or loss of a trade.
type Matcher struct {
	store  Store
	logger logger.LoggerInterface
	now    func() time.Time
}

// NewMatcher creates a Matcher.
func NewMatcher(store Store, log logger.LoggerInterface) *Matcher {
	return &Matcher{
		store:  store,
		logger: log,
		now:    time.Now,
	}
}

// HandlePostTradeTasks fetches and stores the fills of orderID. An empty
// orderID yields no fills.
func (m *Matcher) HandlePostTradeTasks(ctx context.Context, v venueApp.Venue, tradeable, currency string, side venueDomain.Side, orderID string, requested decimal.Decimal) ([]venueDomain.Fill, error) {
	if orderID == "" {
		return nil, nil
	}

	fills, err := v.OrderFills(ctx, tradeable, currency, orderID)
	if err != nil {
		return nil, apperror.New(apperror.CodeReconciliationFailed,
			apperror.WithContextf("%s %s order %s on %s", side, venueDomain.NewMarket(tradeable, currency), orderID, v.ID()),
			apperror.WithCause(err))
	}

	totals := venueDomain.SumFills(fills)
	if totals.Amount.GreaterThan(asset.Format(requested)) {
		m.logger.Warn(ctx, "order filled above the requested amount",
			"venue", v.ID(), "order_id", orderID, "side", side,
			"filled", asset.String(totals.Amount), "requested", asset.String(requested))
	}
	m.logger.Debug(ctx, "order fills collected",
		"venue", v.ID(), "order_id", orderID, "side", side,
		"fills", len(fills), "filled", asset.String(totals.Amount))

	if len(fills) == 0 {
		return fills, nil
	}
	if err := m.store.SaveFills(ctx, fills); err != nil {
		return fills, apperror.New(apperror.CodeLedgerWriteFailed, apperror.WithContext("fills"), apperror.WithCause(err))
	}
	return fills, nil
}

// SaveProfitLoss computes the currency profit of a trade from its fills and
// stores it. txFee is the transfer fee in the tradeable asset reserved for
// moving the bought amount back; tradeable left over beyond it is valued at
// the average buy price.
func (m *Matcher) SaveProfitLoss(ctx context.Context, src, tgt venueApp.Venue, buyFills, sellFills []venueDomain.Fill, txFee decimal.Decimal) (decimal.Decimal, error) {
	if len(buyFills) == 0 && len(sellFills) == 0 {
		return decimal.Zero, nil
	}

	pl := ComputeProfitLoss(buyFills, sellFills, txFee)
	pl.ID = uuid.NewString()
	pl.SourceVenue = src.ID()
	pl.TargetVenue = tgt.ID()
	pl.At = m.now()

	if err := m.store.SaveProfitLoss(ctx, pl); err != nil {
		return pl.Profit, apperror.New(apperror.CodeLedgerWriteFailed, apperror.WithContext("profit/loss"), apperror.WithCause(err))
	}
	return pl.Profit, nil
}

// ComputeProfitLoss is the pure part of SaveProfitLoss.
func ComputeProfitLoss(buyFills, sellFills []venueDomain.Fill, txFee decimal.Decimal) domain.ProfitLoss {
	buy := venueDomain.SumFills(buyFills)
	sell := venueDomain.SumFills(sellFills)

	var market venueDomain.Market
	switch {
	case len(buyFills) > 0:
		market = buyFills[0].Market
	case len(sellFills) > 0:
		market = sellFills[0].Market
	}

	left := buy.Amount.Sub(buy.AssetFees).Sub(sell.Amount).Sub(sell.AssetFees).Sub(txFee)
	price := buy.AveragePrice()
	if price.IsZero() {
		price = sell.AveragePrice()
	}
	residual := asset.Format(left.Mul(price))

	cost := buy.Cost()
	revenue := sell.Revenue()
	return domain.ProfitLoss{
		Tradeable: market.Tradeable,
		Currency:  market.Currency,
		Cost:      cost,
		Revenue:   revenue,
		Residual:  residual,
		Profit:    asset.Format(revenue.Sub(cost).Add(residual)),
	}
}
