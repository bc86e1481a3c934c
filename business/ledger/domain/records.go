// Package domain holds the records written after opportunities and trades.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Track records a profitable opportunity, traded or not.
type Track struct {
	ID     string
	Asset  string
	Amount decimal.Decimal
	Profit decimal.Decimal
	Venue  string // target venue
	At     time.Time
}

// Trade records an executed arbitrage.
type Trade struct {
	ID          string
	Tradeable   string
	Currency    string
	SellAmount  decimal.Decimal
	SourceVenue string
	TargetVenue string
	At          time.Time
}

// ProfitLoss is the realized outcome of one trade computed from fills.
type ProfitLoss struct {
	ID          string
	SourceVenue string
	TargetVenue string
	Tradeable   string
	Currency    string
	Cost        decimal.Decimal // buy notional plus currency fees
	Revenue     decimal.Decimal // sell notional minus currency fees
	// Residual is the tradeable left over after fees and the transfer fee,
	// valued at the average buy price. Negative when more was sold than bought.
	Residual decimal.Decimal
	Profit   decimal.Decimal
	At       time.Time
}

// Stats is the process-wide statistics record.
type Stats struct {
	LastRun time.Time
	Ticks   int64
	Tracks  int64
	Trades  int64
	Paused  bool
}

// Stat field names shared by the stores.
const (
	StatLastRun = "last_run"
	StatTicks   = "ticks"
	StatTracks  = "tracks"
	StatTrades  = "trades"
	StatPaused  = "paused"
)
