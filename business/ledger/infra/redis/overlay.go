package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fd1az/crossarb/internal/config"
)

var _ config.Overlay = (*Overlay)(nil)

// Overlay serves runtime trading overrides from a Redis hash, e.g.
// HSET crossarb:config min_profit 0.0002.
type Overlay struct {
	rdb  *redis.Client
	keys Keys
}

// NewOverlay creates an Overlay.
func NewOverlay(rdb *redis.Client, keys Keys) *Overlay {
	return &Overlay{rdb: rdb, keys: keys}
}

func (o *Overlay) Values(ctx context.Context) (map[string]string, error) {
	vals, err := o.rdb.HGetAll(ctx, o.keys.Config()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get config overlay: %w", err)
	}
	return vals, nil
}
