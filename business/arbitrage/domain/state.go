package domain

import (
	"time"

	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
)

// LoopState is owned by the control loop and passed into every tick. Only
// the loop goroutine touches it.
type LoopState struct {
	NextMarketRefresh time.Time
	WalletsRefreshed  bool
	TradeHappened     bool
	ErrorCount        int

	// Recent transfers per venue id, captured on every wallet refresh
	// after the first.
	Deposits    map[string][]venueDomain.Transfer
	Withdrawals map[string][]venueDomain.Transfer

	// Tradeables already alerted for a suspicious price difference.
	PriceDiffNotified map[string]struct{}

	LastRun time.Time
	Ticks   int64
}

// NewLoopState returns a state with an empty transfer view per venue.
func NewLoopState(venueIDs []string) *LoopState {
	s := &LoopState{
		Deposits:          make(map[string][]venueDomain.Transfer, len(venueIDs)),
		Withdrawals:       make(map[string][]venueDomain.Transfer, len(venueIDs)),
		PriceDiffNotified: make(map[string]struct{}),
	}
	for _, id := range venueIDs {
		s.Deposits[id] = []venueDomain.Transfer{}
		s.Withdrawals[id] = []venueDomain.Transfer{}
	}
	return s
}

// NotifyPriceDiff records symbol and reports whether it was new.
func (s *LoopState) NotifyPriceDiff(symbol string) bool {
	if _, ok := s.PriceDiffNotified[symbol]; ok {
		return false
	}
	s.PriceDiffNotified[symbol] = struct{}{}
	return true
}
