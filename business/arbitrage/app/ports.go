// Package app contains application services and port definitions for the arbitrage context.
package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/business/arbitrage/domain"
	ledgerDomain "github.com/fd1az/crossarb/business/ledger/domain"
	venueApp "github.com/fd1az/crossarb/business/venue/app"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
)

// Settings are the runtime trading parameters, re-read once per tick.
type Settings interface {
	Refresh(ctx context.Context) error
	TradingEnabled() bool
	CancelStrayOrders() bool
	MaxPairsPerRun() int
	MinProfit() decimal.Decimal
	MaxTradeSize() decimal.Decimal
	SuspiciousPriceDifference() decimal.Decimal
	BuyRateFactor() decimal.Decimal
	SellRateFactor() decimal.Decimal
	OrderCheckDelay() time.Duration
	ReconcileInterval() time.Duration
	IsBlocked(asset string) bool
}

// FundManager moves funds between venues.
type FundManager interface {
	// Manage returns true when it moved funds this tick; trading is then
	// skipped.
	Manage(ctx context.Context, deposits, withdrawals map[string][]venueDomain.Transfer) (bool, error)
	SafeTxFee(v venueApp.Venue, symbol string, amount decimal.Decimal) decimal.Decimal
	Withdraw(ctx context.Context, src, tgt venueApp.Venue, symbol string, amount decimal.Decimal) error
	InTransit(symbol string) bool
}

// Reconciler matches venue fills against placed orders.
type Reconciler interface {
	HandlePostTradeTasks(ctx context.Context, v venueApp.Venue, tradeable, currency string, side venueDomain.Side, orderID string, requested decimal.Decimal) ([]venueDomain.Fill, error)
	SaveProfitLoss(ctx context.Context, src, tgt venueApp.Venue, buyFills, sellFills []venueDomain.Fill, txFee decimal.Decimal) (decimal.Decimal, error)
}

// StatsStore persists run statistics, tracks and trades.
type StatsStore interface {
	GetStats(ctx context.Context) (ledgerDomain.Stats, error)
	SaveStats(ctx context.Context, st ledgerDomain.Stats) error
	IsPaused(ctx context.Context) (bool, error)
	SaveTrack(ctx context.Context, tradeable string, amount, profit decimal.Decimal, targetVenue string) error
	SaveTrade(ctx context.Context, tradeable, currency string, sellAmount decimal.Decimal, sourceVenue, targetVenue string) error
}

// Priority of an operator alert.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// Alerter raises operator-visible alerts.
type Alerter interface {
	Alert(ctx context.Context, priority Priority, title, message string)
}

// Reporter renders the summary of an execution.
type Reporter interface {
	ReportTrade(ctx context.Context, result domain.TradeResult)
}

// Clock abstracts time so the blocking waits can be driven by tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Sleep blocks for d or until ctx is done.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
