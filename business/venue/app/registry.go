package app

import (
	"context"
	"time"

	"github.com/fd1az/crossarb/internal/apperror"
	"github.com/fd1az/crossarb/internal/health"
)

// Registry holds the configured venues in configuration order.
type Registry struct {
	venues []Venue
	byID   map[string]Venue
}

// NewRegistry indexes venues by id. Duplicate ids are rejected.
func NewRegistry(venues ...Venue) (*Registry, error) {
	r := &Registry{
		venues: make([]Venue, 0, len(venues)),
		byID:   make(map[string]Venue, len(venues)),
	}
	for _, v := range venues {
		if v == nil {
			return nil, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("nil venue"))
		}
		if _, dup := r.byID[v.ID()]; dup {
			return nil, apperror.New(apperror.CodeInvalidVenuePair,
				apperror.WithContextf("duplicate venue id %q", v.ID()))
		}
		r.byID[v.ID()] = v
		r.venues = append(r.venues, v)
	}
	return r, nil
}

// All returns the venues in registration order.
func (r *Registry) All() []Venue {
	out := make([]Venue, len(r.venues))
	copy(out, r.venues)
	return out
}

// Get returns the venue with id.
func (r *Registry) Get(id string) (Venue, error) {
	v, ok := r.byID[id]
	if !ok {
		return nil, apperror.New(apperror.CodeVenueUnknown, apperror.WithContext(id))
	}
	return v, nil
}

// Withdrawer returns the withdrawal capability of venue id.
func (r *Registry) Withdrawer(id string) (Withdrawer, error) {
	v, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	w, ok := v.(Withdrawer)
	if !ok {
		return nil, apperror.New(apperror.CodeWithdrawUnsupported, apperror.WithContext(id))
	}
	return w, nil
}

// Len returns the number of venues.
func (r *Registry) Len() int {
	return len(r.venues)
}

// HealthCheck reports a venue healthy when its market list can be loaded.
func HealthCheck(v Venue, timeout time.Duration) health.CheckFunc {
	return func(ctx context.Context) (bool, string) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		markets, err := v.TradeablePairs(ctx)
		if err != nil {
			return false, err.Error()
		}
		if len(markets) == 0 {
			return false, "no tradeable markets"
		}
		return true, "ok"
	}
}
