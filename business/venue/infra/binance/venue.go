package binance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/crossarb/business/venue/app"
	"github.com/fd1az/crossarb/business/venue/domain"
	"github.com/fd1az/crossarb/internal/apperror"
	"github.com/fd1az/crossarb/internal/asset"
	"github.com/fd1az/crossarb/internal/logger"
)

var (
	_ app.Venue      = (*Venue)(nil)
	_ app.Withdrawer = (*Venue)(nil)
)

const (
	depthLimit    = 5
	historyWindow = 24 * time.Hour
	withdrawTime  = "2006-01-02 15:04:05"
)

// Config holds the venue settings.
type Config struct {
	ID          string
	Name        string
	Fees        domain.FeeSchedule
	QuoteAssets []string // empty = every quote asset
	REST        RESTConfig
	// Stream is optional; without it books come from REST depth.
	Stream *StreamConfig
}

type marketInfo struct {
	market      domain.Market
	tickSize    decimal.Decimal
	stepSize    decimal.Decimal
	minNotional decimal.Decimal
}

// Venue is the Binance spot venue.
type Venue struct {
	cfg    Config
	rest   *RESTClient
	stream *Stream
	assets *asset.Registry
	logger logger.LoggerInterface
	tracer trace.Tracer
	now    func() time.Time

	mu      sync.RWMutex
	markets map[string]marketInfo // keyed by exchange symbol
	list    []domain.Market
	wallets domain.Wallets
}

// NewVenue creates the venue. Markets are loaded lazily.
func NewVenue(cfg Config, assets *asset.Registry, log logger.LoggerInterface) (*Venue, error) {
	if cfg.ID == "" {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("venue id is required"))
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	if assets == nil {
		assets = asset.DefaultRegistry()
	}

	rest, err := NewRESTClient(cfg.REST, log)
	if err != nil {
		return nil, err
	}

	v := &Venue{
		cfg:     cfg,
		rest:    rest,
		assets:  assets,
		logger:  log,
		tracer:  rest.tracer,
		now:     time.Now,
		markets: make(map[string]marketInfo),
		wallets: domain.Wallets{},
	}

	if cfg.Stream != nil && len(cfg.Stream.Symbols) > 0 {
		v.stream, err = NewStream(*cfg.Stream, log)
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Connect opens the book ticker stream when one is configured.
func (v *Venue) Connect(ctx context.Context) error {
	if v.stream == nil {
		return nil
	}
	return v.stream.Connect(ctx)
}

// Close releases the stream.
func (v *Venue) Close() error {
	if v.stream == nil {
		return nil
	}
	return v.stream.Close()
}

func (v *Venue) ID() string   { return v.cfg.ID }
func (v *Venue) Name() string { return v.cfg.Name }

func (v *Venue) AddFeeToPrice(price decimal.Decimal) decimal.Decimal {
	return v.cfg.Fees.AddFeeToPrice(price)
}

func (v *Venue) DeductFeeFromAmountBuy(amount decimal.Decimal) decimal.Decimal {
	return v.cfg.Fees.DeductFeeFromAmountBuy(amount)
}

func (v *Venue) DeductFeeFromAmountSell(price decimal.Decimal) decimal.Decimal {
	return v.cfg.Fees.DeductFeeFromAmountSell(price)
}

func (v *Venue) SmallestOrderSize() decimal.Decimal {
	return v.cfg.Fees.SmallestOrderSize()
}

// RefreshExchangeData reloads the tradeable markets and their filters.
func (v *Venue) RefreshExchangeData(ctx context.Context) error {
	ctx, span := v.tracer.Start(ctx, "binance.refresh_exchange_data")
	defer span.End()

	info, err := v.rest.ExchangeInfo(ctx)
	if err != nil {
		return err
	}

	quotes := make(map[string]bool, len(v.cfg.QuoteAssets))
	for _, q := range v.cfg.QuoteAssets {
		quotes[asset.Symbol(q)] = true
	}

	markets := make(map[string]marketInfo, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || !s.IsSpotTradingAllowed {
			continue
		}
		if len(quotes) > 0 && !quotes[asset.Symbol(s.QuoteAsset)] {
			continue
		}
		mi, err := parseMarketInfo(s)
		if err != nil {
			v.logger.Warn(ctx, "skipping market with unparseable filters", "venue", v.cfg.ID, "symbol", s.Symbol, "error", err)
			continue
		}
		markets[s.Symbol] = mi
	}

	list := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		list = append(list, m.market)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].String() < list[j].String() })

	v.mu.Lock()
	v.markets = markets
	v.list = list
	v.mu.Unlock()

	span.SetAttributes(attribute.Int("markets", len(list)))
	return nil
}

func parseMarketInfo(s SymbolInfo) (marketInfo, error) {
	info := marketInfo{market: domain.NewMarket(s.BaseAsset, s.QuoteAsset)}
	var err error
	for _, f := range s.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			info.tickSize, err = parseDecimal("tickSize", f.TickSize)
		case "LOT_SIZE":
			info.stepSize, err = parseDecimal("stepSize", f.StepSize)
		case "MIN_NOTIONAL", "NOTIONAL":
			info.minNotional, err = parseDecimal("minNotional", f.MinNotional)
		}
		if err != nil {
			return info, err
		}
	}
	return info, nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s %q: %w", field, s, err)
	}
	return d, nil
}

// malformed reports a venue response field that could not be parsed.
func (v *Venue) malformed(what string, err error) error {
	return apperror.New(apperror.CodeVenueAPIError,
		apperror.WithContextf("%s: malformed %s", v.cfg.ID, what),
		apperror.WithCause(err))
}

// TradeablePairs returns the tradeable markets, loading them on first use.
func (v *Venue) TradeablePairs(ctx context.Context) ([]domain.Market, error) {
	v.mu.RLock()
	loaded := len(v.list) > 0
	v.mu.RUnlock()

	if !loaded {
		if err := v.RefreshExchangeData(ctx); err != nil {
			return nil, err
		}
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]domain.Market, len(v.list))
	copy(out, v.list)
	return out, nil
}

func (v *Venue) marketInfo(tradeable, currency string) (marketInfo, error) {
	m := domain.NewMarket(tradeable, currency)
	v.mu.RLock()
	info, ok := v.markets[m.Symbol()]
	v.mu.RUnlock()
	if !ok {
		return marketInfo{}, apperror.New(apperror.CodeMarketNotFound,
			apperror.WithContextf("%s on %s", m, v.cfg.ID))
	}
	return info, nil
}

// GetOrderbook returns the top of book, from the stream when it is fresh
// and from REST depth otherwise.
func (v *Venue) GetOrderbook(ctx context.Context, tradeable, currency string) (*domain.Orderbook, error) {
	m := domain.NewMarket(tradeable, currency)
	ctx, span := v.tracer.Start(ctx, "binance.get_orderbook",
		trace.WithAttributes(attribute.String("market", m.String())),
	)
	defer span.End()

	if v.stream != nil {
		if bid, bidQty, ask, askQty, at, ok := v.stream.Quote(m.Symbol()); ok {
			span.SetAttributes(attribute.String("source", "websocket"))
			return &domain.Orderbook{
				VenueID:   v.cfg.ID,
				Market:    m,
				BestAsk:   domain.Offer{Price: ask, Amount: askQty},
				BestBid:   domain.Offer{Price: bid, Amount: bidQty},
				FetchedAt: at,
			}, nil
		}
	}

	depth, err := v.rest.GetDepth(ctx, m.Symbol(), depthLimit)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeOrderbookFetchFailed, m.String())
	}
	bids, err := ParseOrderbookLevels(depth.Bids)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidOrderbook, apperror.WithCause(err), apperror.WithContext("failed to parse bid levels"))
	}
	asks, err := ParseOrderbookLevels(depth.Asks)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidOrderbook, apperror.WithCause(err), apperror.WithContext("failed to parse ask levels"))
	}
	span.SetAttributes(attribute.String("source", "rest"))

	if len(bids) == 0 || len(asks) == 0 {
		return nil, nil
	}

	return &domain.Orderbook{
		VenueID:   v.cfg.ID,
		Market:    m,
		BestAsk:   domain.Offer{Price: asks[0].Price, Amount: asks[0].Quantity},
		BestBid:   domain.Offer{Price: bids[0].Price, Amount: bids[0].Quantity},
		FetchedAt: v.now(),
	}, nil
}

// Wallets returns the balances captured by the last refresh.
func (v *Venue) Wallets() domain.Wallets {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.wallets.Clone()
}

// RefreshWallets reloads free balances.
func (v *Venue) RefreshWallets(ctx context.Context) error {
	account, err := v.rest.Account(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeWalletRefreshFailed, v.cfg.ID)
	}

	wallets := make(domain.Wallets, len(account.Balances))
	for _, b := range account.Balances {
		free, err := asset.Parse(b.Free)
		if err != nil {
			v.logger.Warn(ctx, "unparseable balance", "venue", v.cfg.ID, "asset", b.Asset, "free", b.Free)
			continue
		}
		wallets[asset.Symbol(b.Asset)] = free
	}

	v.mu.Lock()
	v.wallets = wallets
	v.mu.Unlock()
	return nil
}

// RecentDeposits returns deposits of the last 24 hours.
func (v *Venue) RecentDeposits(ctx context.Context) ([]domain.Transfer, error) {
	records, err := v.rest.DepositHistory(ctx, v.now().Add(-historyWindow))
	if err != nil {
		return nil, err
	}

	out := make([]domain.Transfer, 0, len(records))
	for _, r := range records {
		amount, err := parseDecimal("amount", r.Amount)
		if err != nil {
			return nil, v.malformed("deposit "+r.ID, err)
		}
		out = append(out, domain.Transfer{
			ID:      r.ID,
			Asset:   asset.Symbol(r.Coin),
			Amount:  asset.Format(amount),
			Address: r.Address,
			TxID:    r.TxID,
			Status:  depositStatus(r.Status),
			At:      time.UnixMilli(r.InsertTime),
		})
	}
	return out, nil
}

// RecentWithdrawals returns withdrawals of the last 24 hours.
func (v *Venue) RecentWithdrawals(ctx context.Context) ([]domain.Transfer, error) {
	records, err := v.rest.WithdrawHistory(ctx, v.now().Add(-historyWindow))
	if err != nil {
		return nil, err
	}

	out := make([]domain.Transfer, 0, len(records))
	for _, r := range records {
		amount, err := parseDecimal("amount", r.Amount)
		if err != nil {
			return nil, v.malformed("withdrawal "+r.ID, err)
		}
		at, err := time.ParseInLocation(withdrawTime, r.ApplyTime, time.UTC)
		if err != nil {
			return nil, v.malformed("withdrawal "+r.ID, fmt.Errorf("applyTime %q: %w", r.ApplyTime, err))
		}
		out = append(out, domain.Transfer{
			ID:      r.ID,
			Asset:   asset.Symbol(r.Coin),
			Amount:  asset.Format(amount),
			Address: r.Address,
			TxID:    r.TxID,
			Status:  withdrawStatus(r.Status),
			At:      at,
		})
	}
	return out, nil
}

// Binance deposit status: 0 pending, 1 success, 6 credited but locked,
// 7 wrong deposit, 8 waiting user confirmation.
func depositStatus(code int) domain.TransferStatus {
	switch code {
	case 1:
		return domain.TransferCompleted
	case 0, 6, 8:
		return domain.TransferPending
	default:
		return domain.TransferFailed
	}
}

// Binance withdraw status: 0 email sent, 1 cancelled, 2 awaiting approval,
// 3 rejected, 4 processing, 5 failure, 6 completed.
func withdrawStatus(code int) domain.TransferStatus {
	switch code {
	case 6:
		return domain.TransferCompleted
	case 0, 2, 4:
		return domain.TransferPending
	default:
		return domain.TransferFailed
	}
}

// Buy places a limit buy.
func (v *Venue) Buy(ctx context.Context, tradeable, currency string, rate, amount decimal.Decimal) (string, error) {
	return v.placeOrder(ctx, domain.SideBuy, tradeable, currency, rate, amount)
}

// Sell places a limit sell.
func (v *Venue) Sell(ctx context.Context, tradeable, currency string, rate, amount decimal.Decimal) (string, error) {
	return v.placeOrder(ctx, domain.SideSell, tradeable, currency, rate, amount)
}

func (v *Venue) placeOrder(ctx context.Context, side domain.Side, tradeable, currency string, rate, amount decimal.Decimal) (string, error) {
	info, err := v.marketInfo(tradeable, currency)
	if err != nil {
		return "", err
	}

	ctx, span := v.tracer.Start(ctx, "binance.place_order",
		trace.WithAttributes(
			attribute.String("market", info.market.String()),
			attribute.String("side", string(side)),
		),
	)
	defer span.End()

	// A buy rounds its price down and a sell rounds up; both stay on the
	// crossing side of the book because the book itself is on the tick grid.
	price := roundToStep(rate, info.tickSize, side == domain.SideSell)
	qty := roundToStep(amount, info.stepSize, false)

	if !qty.IsPositive() || !price.IsPositive() {
		return "", apperror.New(apperror.CodeOrderPlacementFailed,
			apperror.WithContextf("%s %s: quantity %s at %s rounds to nothing", side, info.market, amount, rate))
	}
	if info.minNotional.IsPositive() && qty.Mul(price).LessThan(info.minNotional) {
		return "", apperror.New(apperror.CodeOrderPlacementFailed,
			apperror.WithContextf("%s %s: notional %s below %s", side, info.market, qty.Mul(price), info.minNotional))
	}

	resp, err := v.rest.NewLimitOrder(ctx, info.market.Symbol(), strings.ToUpper(string(side)), price.String(), qty.String())
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeOrderPlacementFailed, info.market.String())
	}

	id := strconv.FormatInt(resp.OrderID, 10)
	v.logger.Info(ctx, "order placed",
		"venue", v.cfg.ID,
		"market", info.market.String(),
		"side", side,
		"price", price.String(),
		"quantity", qty.String(),
		"order_id", id,
		"status", resp.Status)
	return id, nil
}

func roundToStep(v, step decimal.Decimal, up bool) decimal.Decimal {
	if !step.IsPositive() {
		return asset.Format(v)
	}
	q := v.Div(step)
	if up {
		q = q.Ceil()
	} else {
		q = q.Floor()
	}
	return q.Mul(step)
}

func parseOrderID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, apperror.New(apperror.CodeInvalidInput, apperror.WithContextf("order id %q", id), apperror.WithCause(err))
	}
	return n, nil
}

// CancelOrder cancels an order; false means it was no longer open.
func (v *Venue) CancelOrder(ctx context.Context, tradeable, currency, orderID string) (bool, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return false, err
	}
	ok, err := v.rest.CancelOrder(ctx, domain.NewMarket(tradeable, currency).Symbol(), id)
	if err != nil {
		return false, apperror.Wrap(err, apperror.CodeOrderCancelFailed, orderID)
	}
	return ok, nil
}

// OrderFills returns the executions of an order.
func (v *Venue) OrderFills(ctx context.Context, tradeable, currency, orderID string) ([]domain.Fill, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}
	m := domain.NewMarket(tradeable, currency)
	trades, err := v.rest.MyTrades(ctx, m.Symbol(), id)
	if err != nil {
		return nil, err
	}

	fills := make([]domain.Fill, 0, len(trades))
	for _, t := range trades {
		price, err := parseDecimal("price", t.Price)
		if err != nil {
			return nil, v.malformed("fill", err)
		}
		qty, err := parseDecimal("qty", t.Qty)
		if err != nil {
			return nil, v.malformed("fill", err)
		}
		fee, err := parseDecimal("commission", t.Commission)
		if err != nil {
			return nil, v.malformed("fill", err)
		}
		side := domain.SideSell
		if t.IsBuyer {
			side = domain.SideBuy
		}
		fills = append(fills, domain.Fill{
			TradeID:    strconv.FormatInt(t.ID, 10),
			OrderID:    orderID,
			VenueID:    v.cfg.ID,
			Market:     m,
			Side:       side,
			Price:      price,
			Amount:     qty,
			Fee:        fee,
			FeeAsset:   asset.Symbol(t.CommissionAsset),
			ExecutedAt: time.UnixMilli(t.Time),
		})
	}
	return fills, nil
}

// FilledOrderPrice returns the currency spent or received by an order.
func (v *Venue) FilledOrderPrice(ctx context.Context, side domain.Side, tradeable, currency, orderID string) (decimal.Decimal, error) {
	fills, err := v.OrderFills(ctx, tradeable, currency, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	totals := domain.SumFills(fills)
	if side == domain.SideBuy {
		return totals.Cost(), nil
	}
	return totals.Revenue(), nil
}

// CancelAllOrders cancels every open order on the account.
func (v *Venue) CancelAllOrders(ctx context.Context) error {
	orders, err := v.rest.OpenOrders(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, o := range orders {
		ok, err := v.rest.CancelOrder(ctx, o.Symbol, o.OrderID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			v.logger.Warn(ctx, "cancelled stray order", "venue", v.cfg.ID, "symbol", o.Symbol, "order_id", o.OrderID)
		}
	}
	return errors.Join(errs...)
}

// Withdraw sends amount of a coin to address on the asset's network.
func (v *Venue) Withdraw(ctx context.Context, symbol string, amount decimal.Decimal, address string) (string, error) {
	a := v.assets.Lookup(symbol)
	id, err := v.rest.Withdraw(ctx, a.Symbol(), a.Network(), address, asset.Format(amount).String())
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeWithdrawFailed, a.Symbol())
	}
	return id, nil
}

// DepositAddress returns the deposit address of symbol.
func (v *Venue) DepositAddress(ctx context.Context, symbol string) (string, error) {
	a := v.assets.Lookup(symbol)
	return v.rest.DepositAddress(ctx, a.Symbol(), a.Network())
}
