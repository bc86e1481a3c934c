// Package paper implements a simulated venue for dry runs. Orders fill
// against the current book, balances live in memory and withdrawals travel
// over a shared Network.
package paper

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

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

const historyWindow = 24 * time.Hour

// QuoteSource supplies reference books, typically a public exchange feed.
type QuoteSource interface {
	GetOrderbook(ctx context.Context, tradeable, currency string) (*domain.Orderbook, error)
}

// Config holds the paper venue settings.
type Config struct {
	ID       string
	Name     string
	Fees     domain.FeeSchedule
	Markets  []domain.Market
	Balances map[string]decimal.Decimal
	// Skew shifts source prices, e.g. 0.002 quotes 0.2% higher.
	Skew   decimal.Decimal
	Source QuoteSource
}

type order struct {
	id       string
	market   domain.Market
	side     domain.Side
	price    decimal.Decimal
	amount   decimal.Decimal
	reserved decimal.Decimal
}

type arrival struct {
	transfer domain.Transfer
	due      time.Time
}

// Venue is an in-memory venue.
type Venue struct {
	cfg     Config
	network *Network
	logger  logger.LoggerInterface
	now     func() time.Time

	mu          sync.RWMutex
	books       map[domain.Market]*domain.Orderbook
	balances    domain.Wallets // live
	snapshot    domain.Wallets // as of last RefreshWallets
	open        map[string]*order
	fills       map[string][]domain.Fill
	deposits    []domain.Transfer
	withdrawals []domain.Transfer
	arrivals    []arrival
}

// NewVenue creates a paper venue attached to network.
func NewVenue(cfg Config, network *Network, log logger.LoggerInterface) *Venue {
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	markets := append([]domain.Market(nil), cfg.Markets...)
	sort.Slice(markets, func(i, j int) bool { return markets[i].String() < markets[j].String() })
	cfg.Markets = markets

	balances := make(domain.Wallets, len(cfg.Balances))
	for k, v := range cfg.Balances {
		balances[asset.Symbol(k)] = asset.Format(v)
	}

	return &Venue{
		cfg:      cfg,
		network:  network,
		logger:   log,
		now:      time.Now,
		books:    make(map[domain.Market]*domain.Orderbook),
		balances: balances,
		snapshot: balances.Clone(),
		open:     make(map[string]*order),
		fills:    make(map[string][]domain.Fill),
	}
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

// SetBook pins the top of book for a market, overriding the source.
func (v *Venue) SetBook(m domain.Market, ask, bid domain.Offer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.books[m] = &domain.Orderbook{
		VenueID:   v.cfg.ID,
		Market:    m,
		BestAsk:   ask,
		BestBid:   bid,
		FetchedAt: v.now(),
	}
}

// SetBalance overwrites a live balance.
func (v *Venue) SetBalance(symbol string, amount decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[asset.Symbol(symbol)] = asset.Format(amount)
}

func (v *Venue) TradeablePairs(ctx context.Context) ([]domain.Market, error) {
	return append([]domain.Market(nil), v.cfg.Markets...), nil
}

// RefreshExchangeData is a no-op: paper markets are fixed by configuration.
func (v *Venue) RefreshExchangeData(ctx context.Context) error {
	return nil
}

func (v *Venue) hasMarket(m domain.Market) bool {
	for _, x := range v.cfg.Markets {
		if x == m {
			return true
		}
	}
	return false
}

// GetOrderbook returns the pinned book or the skewed source book.
func (v *Venue) GetOrderbook(ctx context.Context, tradeable, currency string) (*domain.Orderbook, error) {
	m := domain.NewMarket(tradeable, currency)
	if !v.hasMarket(m) {
		return nil, apperror.New(apperror.CodeMarketNotFound, apperror.WithContextf("%s on %s", m, v.cfg.ID))
	}

	v.mu.RLock()
	pinned, ok := v.books[m]
	v.mu.RUnlock()
	if ok {
		ob := *pinned
		ob.FetchedAt = v.now()
		return &ob, nil
	}

	if v.cfg.Source == nil {
		return nil, nil
	}
	src, err := v.cfg.Source.GetOrderbook(ctx, tradeable, currency)
	if err != nil || src == nil {
		return nil, err
	}

	factor := decimal.NewFromInt(1).Add(v.cfg.Skew)
	return &domain.Orderbook{
		VenueID:   v.cfg.ID,
		Market:    m,
		BestAsk:   domain.Offer{Price: asset.Format(src.BestAsk.Price.Mul(factor)), Amount: src.BestAsk.Amount},
		BestBid:   domain.Offer{Price: asset.Format(src.BestBid.Price.Mul(factor)), Amount: src.BestBid.Amount},
		FetchedAt: v.now(),
	}, nil
}

// Wallets returns the balances as of the last refresh.
func (v *Venue) Wallets() domain.Wallets {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshot.Clone()
}

// RefreshWallets settles due deposits and snapshots the balances.
func (v *Venue) RefreshWallets(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	pending := v.arrivals[:0]
	for _, a := range v.arrivals {
		if now.Before(a.due) {
			pending = append(pending, a)
			continue
		}
		v.balances[a.transfer.Asset] = v.balances.Get(a.transfer.Asset).Add(a.transfer.Amount)
		v.setDepositStatus(a.transfer.ID, domain.TransferCompleted)
	}
	v.arrivals = pending

	v.snapshot = v.balances.Clone()
	return nil
}

func (v *Venue) setDepositStatus(id string, status domain.TransferStatus) {
	for i := range v.deposits {
		if v.deposits[i].ID == id {
			v.deposits[i].Status = status
		}
	}
}

func (v *Venue) receive(t domain.Transfer, due time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deposits = append(v.deposits, t)
	v.arrivals = append(v.arrivals, arrival{transfer: t, due: due})
}

func (v *Venue) RecentDeposits(ctx context.Context) ([]domain.Transfer, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return recent(v.deposits, v.now().Add(-historyWindow)), nil
}

func (v *Venue) RecentWithdrawals(ctx context.Context) ([]domain.Transfer, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return recent(v.withdrawals, v.now().Add(-historyWindow)), nil
}

func recent(all []domain.Transfer, since time.Time) []domain.Transfer {
	out := make([]domain.Transfer, 0, len(all))
	for _, t := range all {
		if !t.At.Before(since) {
			out = append(out, t)
		}
	}
	return out
}

func (v *Venue) Buy(ctx context.Context, tradeable, currency string, rate, amount decimal.Decimal) (string, error) {
	return v.place(ctx, domain.SideBuy, domain.NewMarket(tradeable, currency), rate, amount)
}

func (v *Venue) Sell(ctx context.Context, tradeable, currency string, rate, amount decimal.Decimal) (string, error) {
	return v.place(ctx, domain.SideSell, domain.NewMarket(tradeable, currency), rate, amount)
}

// place reserves funds and fills immediately when the limit crosses the
// current book. Otherwise the order rests until cancelled.
func (v *Venue) place(ctx context.Context, side domain.Side, m domain.Market, rate, amount decimal.Decimal) (string, error) {
	rate, amount = asset.Format(rate), asset.Format(amount)
	if !rate.IsPositive() || !amount.IsPositive() {
		return "", apperror.New(apperror.CodeOrderPlacementFailed,
			apperror.WithContextf("%s %s: non-positive rate or amount", side, m))
	}
	if rate.Mul(amount).LessThan(v.SmallestOrderSize()) {
		return "", apperror.New(apperror.CodeOrderPlacementFailed,
			apperror.WithContextf("%s %s: below minimum order size", side, m))
	}

	book, err := v.GetOrderbook(ctx, m.Tradeable, m.Currency)
	if err != nil {
		return "", err
	}

	o := &order{id: uuid.NewString(), market: m, side: side, price: rate, amount: amount}

	v.mu.Lock()
	defer v.mu.Unlock()

	reserveAsset := m.Tradeable
	o.reserved = amount
	if side == domain.SideBuy {
		reserveAsset = m.Currency
		o.reserved = asset.Format(rate.Mul(amount))
	}
	if v.balances.Get(reserveAsset).LessThan(o.reserved) {
		return "", apperror.New(apperror.CodeInsufficientBalance,
			apperror.WithContextf("%s: need %s %s, have %s", v.cfg.ID, o.reserved, reserveAsset, v.balances.Get(reserveAsset)))
	}
	v.balances[reserveAsset] = v.balances.Get(reserveAsset).Sub(o.reserved)

	if book != nil && crosses(side, rate, book) {
		v.fill(o, book)
	} else {
		v.open[o.id] = o
	}

	v.logger.Info(ctx, "paper order placed",
		"venue", v.cfg.ID, "market", m.String(), "side", side,
		"price", rate.String(), "amount", amount.String(), "order_id", o.id)
	return o.id, nil
}

func crosses(side domain.Side, rate decimal.Decimal, book *domain.Orderbook) bool {
	if side == domain.SideBuy {
		return book.BestAsk.IsValid() && rate.GreaterThanOrEqual(book.BestAsk.Price)
	}
	return book.BestBid.IsValid() && rate.LessThanOrEqual(book.BestBid.Price)
}

// fill executes o at the best opposite price. Buys pay the fee in the
// received asset, sells in the currency.
func (v *Venue) fill(o *order, book *domain.Orderbook) {
	m := o.market
	f := domain.Fill{
		TradeID:    uuid.NewString(),
		OrderID:    o.id,
		VenueID:    v.cfg.ID,
		Market:     m,
		Side:       o.side,
		Amount:     o.amount,
		ExecutedAt: v.now(),
	}

	if o.side == domain.SideBuy {
		f.Price = book.BestAsk.Price
		spent := asset.Format(f.Price.Mul(o.amount))
		received := v.cfg.Fees.DeductFeeFromAmountBuy(o.amount)
		f.Fee = asset.Format(o.amount.Sub(received))
		f.FeeAsset = m.Tradeable
		v.balances[m.Currency] = v.balances.Get(m.Currency).Add(o.reserved.Sub(spent))
		v.balances[m.Tradeable] = v.balances.Get(m.Tradeable).Add(received)
	} else {
		f.Price = book.BestBid.Price
		gross := asset.Format(f.Price.Mul(o.amount))
		net := v.cfg.Fees.DeductFeeFromAmountSell(gross)
		f.Fee = asset.Format(gross.Sub(net))
		f.FeeAsset = m.Currency
		v.balances[m.Currency] = v.balances.Get(m.Currency).Add(net)
	}

	v.fills[o.id] = append(v.fills[o.id], f)
}

func (v *Venue) CancelOrder(ctx context.Context, tradeable, currency, orderID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cancel(orderID), nil
}

func (v *Venue) cancel(orderID string) bool {
	o, ok := v.open[orderID]
	if !ok {
		return false
	}
	delete(v.open, orderID)

	refund := o.market.Tradeable
	if o.side == domain.SideBuy {
		refund = o.market.Currency
	}
	v.balances[refund] = v.balances.Get(refund).Add(o.reserved)
	return true
}

func (v *Venue) CancelAllOrders(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id := range v.open {
		v.cancel(id)
		v.logger.Warn(ctx, "cancelled stray order", "venue", v.cfg.ID, "order_id", id)
	}
	return nil
}

// OpenOrders returns the number of resting orders.
func (v *Venue) OpenOrders() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.open)
}

func (v *Venue) OrderFills(ctx context.Context, tradeable, currency, orderID string) ([]domain.Fill, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]domain.Fill(nil), v.fills[orderID]...), nil
}

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

// DepositAddress registers and returns this venue's address for symbol.
func (v *Venue) DepositAddress(ctx context.Context, symbol string) (string, error) {
	if v.network == nil {
		return "", apperror.New(apperror.CodeWithdrawUnsupported, apperror.WithContext(v.cfg.ID))
	}
	return v.network.register(v, symbol), nil
}

// Withdraw debits amount and sends it over the paper network.
func (v *Venue) Withdraw(ctx context.Context, symbol string, amount decimal.Decimal, address string) (string, error) {
	if v.network == nil {
		return "", apperror.New(apperror.CodeWithdrawUnsupported, apperror.WithContext(v.cfg.ID))
	}
	symbol = asset.Symbol(symbol)
	amount = asset.Format(amount)

	v.mu.Lock()
	if v.balances.Get(symbol).LessThan(amount) {
		have := v.balances.Get(symbol)
		v.mu.Unlock()
		return "", apperror.New(apperror.CodeInsufficientBalance,
			apperror.WithContextf("%s: withdraw %s %s, have %s", v.cfg.ID, amount, symbol, have))
	}
	v.balances[symbol] = v.balances.Get(symbol).Sub(amount)
	v.mu.Unlock()

	t, err := v.network.send(v, symbol, amount, address)
	if err != nil {
		v.mu.Lock()
		v.balances[symbol] = v.balances.Get(symbol).Add(amount)
		v.mu.Unlock()
		return "", err
	}

	v.mu.Lock()
	t.Status = domain.TransferCompleted
	v.withdrawals = append(v.withdrawals, t)
	v.mu.Unlock()
	return t.ID, nil
}
