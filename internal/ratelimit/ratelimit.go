// Package ratelimit provides a request-weight limiter for venue REST APIs,
// built on golang.org/x/time/rate.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter spends request weight against a per-minute budget.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerMinute units of weight per
// minute with a burst of 10% of the budget. A non-positive budget disables
// limiting.
func New(requestsPerMinute int) *Limiter {
	if requestsPerMinute <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}

	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst),
	}
}

// Wait blocks until one unit of weight is available or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// WaitN blocks until weight units are available. Weight above the burst is
// clamped so heavy endpoints still go through.
func (l *Limiter) WaitN(ctx context.Context, weight int) error {
	if burst := l.limiter.Burst(); l.limiter.Limit() != rate.Inf && weight > burst {
		weight = burst
	}
	return l.limiter.WaitN(ctx, weight)
}

// Allow reports whether one unit may be spent now.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
