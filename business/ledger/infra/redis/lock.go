package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fd1az/crossarb/internal/apperror"
)

// unlockLua deletes the lock only if the caller still holds it.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Locker takes short leases with SETNX so two processes never withdraw the
// same asset at once.
type Locker struct {
	rdb      *redis.Client
	keys     Keys
	unlockSc *redis.Script
}

// NewLocker creates a Locker.
func NewLocker(rdb *redis.Client, keys Keys) *Locker {
	return &Locker{
		rdb:      rdb,
		keys:     keys,
		unlockSc: redis.NewScript(unlockLua),
	}
}

// Acquire takes key for ttl and returns the release function, which is
// safe to call more than once. A held lock fails with CodeWithdrawLocked.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := l.keys.Lock(key)

	ok, err := l.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, apperror.New(apperror.CodeWithdrawLocked, apperror.WithContext(key))
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		// The caller's context may already be cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.unlockSc.Run(unlockCtx, l.rdb, []string{lk}, token).Err()
	}, nil
}
