package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Offer is one side of the top of book.
type Offer struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// IsValid reports whether the offer has a positive price and amount.
func (o Offer) IsValid() bool {
	return o.Price.IsPositive() && o.Amount.IsPositive()
}

// Orderbook is a top-of-book snapshot for one market on one venue.
// Snapshots are taken per check and never reused across ticks.
type Orderbook struct {
	VenueID   string
	Market    Market
	BestAsk   Offer
	BestBid   Offer
	FetchedAt time.Time
}

// Validate checks that both sides are usable.
func (ob *Orderbook) Validate() error {
	if !ob.BestAsk.IsValid() {
		return fmt.Errorf("%s %s: invalid ask %s@%s", ob.VenueID, ob.Market, ob.BestAsk.Amount, ob.BestAsk.Price)
	}
	if !ob.BestBid.IsValid() {
		return fmt.Errorf("%s %s: invalid bid %s@%s", ob.VenueID, ob.Market, ob.BestBid.Amount, ob.BestBid.Price)
	}
	return nil
}

// Spread returns bid - ask. Positive means the book is crossed.
func (ob *Orderbook) Spread() decimal.Decimal {
	return ob.BestBid.Price.Sub(ob.BestAsk.Price)
}
