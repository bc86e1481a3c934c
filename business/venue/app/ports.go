// Package app contains port definitions and services for the venue context.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/business/venue/domain"
)

// Venue is a trading venue as seen by the arbitrage core.
type Venue interface {
	ID() string
	Name() string

	// TradeablePairs returns the markets that can be traded, sorted.
	TradeablePairs(ctx context.Context) ([]domain.Market, error)

	// GetOrderbook returns a fresh top-of-book snapshot. A nil book with a
	// nil error means the market has no quotes.
	GetOrderbook(ctx context.Context, tradeable, currency string) (*domain.Orderbook, error)

	// Wallets returns the balances captured by the last RefreshWallets.
	Wallets() domain.Wallets
	RefreshWallets(ctx context.Context) error
	RecentDeposits(ctx context.Context) ([]domain.Transfer, error)
	RecentWithdrawals(ctx context.Context) ([]domain.Transfer, error)

	AddFeeToPrice(price decimal.Decimal) decimal.Decimal
	DeductFeeFromAmountBuy(amount decimal.Decimal) decimal.Decimal
	DeductFeeFromAmountSell(price decimal.Decimal) decimal.Decimal
	SmallestOrderSize() decimal.Decimal

	// Buy and Sell place limit orders and return the venue order id. An
	// empty id with a nil error means the venue declined the order.
	Buy(ctx context.Context, tradeable, currency string, rate, amount decimal.Decimal) (string, error)
	Sell(ctx context.Context, tradeable, currency string, rate, amount decimal.Decimal) (string, error)

	// CancelOrder returns true if an open order was cancelled.
	CancelOrder(ctx context.Context, tradeable, currency, orderID string) (bool, error)

	// FilledOrderPrice returns the currency spent (buy) or received (sell)
	// by the order, fees included.
	FilledOrderPrice(ctx context.Context, side domain.Side, tradeable, currency, orderID string) (decimal.Decimal, error)
	OrderFills(ctx context.Context, tradeable, currency, orderID string) ([]domain.Fill, error)

	CancelAllOrders(ctx context.Context) error
	RefreshExchangeData(ctx context.Context) error
}

// Withdrawer is implemented by venues that can move funds out.
type Withdrawer interface {
	Withdraw(ctx context.Context, asset string, amount decimal.Decimal, address string) (string, error)
	DepositAddress(ctx context.Context, asset string) (string, error)
}
