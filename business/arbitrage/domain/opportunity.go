package domain

import (
	"github.com/shopspring/decimal"

	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
)

// Opportunity is a profitable crossing found by the checker. It lives for
// one check and is never persisted.
type Opportunity struct {
	Direction
	Market    venueDomain.Market
	Amount    decimal.Decimal
	Profit    decimal.Decimal
	SourceAsk venueDomain.Offer
	TargetBid venueDomain.Offer
}

// Spread returns target bid - source ask.
func (o Opportunity) Spread() decimal.Decimal {
	return o.TargetBid.Price.Sub(o.SourceAsk.Price)
}
