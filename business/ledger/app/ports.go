// Package app contains the ledger services and the ports they depend on.
package app

import (
	"context"
	"time"

	"github.com/fd1az/crossarb/business/ledger/domain"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
)

// Store persists ledger records. Writes are idempotent on record ids and,
// for fills, on (venue, order, trade id).
type Store interface {
	SaveTrack(ctx context.Context, t domain.Track) error
	SaveTrade(ctx context.Context, t domain.Trade) error
	SaveFills(ctx context.Context, fills []venueDomain.Fill) error
	SaveProfitLoss(ctx context.Context, pl domain.ProfitLoss) error
}

// StatsStore keeps the statistics record and the pause flag.
type StatsStore interface {
	GetStats(ctx context.Context) (domain.Stats, error)
	// SaveStats writes every field except Paused.
	SaveStats(ctx context.Context, s domain.Stats) error
	Incr(ctx context.Context, field string, delta int64) error
	SetPaused(ctx context.Context, paused bool) error
}

// Locker hands out short exclusive leases.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
