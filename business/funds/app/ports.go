// Package app contains the fund manager and the ports it depends on.
package app

import (
	"context"
	"time"
)

// Locker hands out short exclusive leases.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
