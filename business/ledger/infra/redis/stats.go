package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fd1az/crossarb/business/ledger/app"
	"github.com/fd1az/crossarb/business/ledger/domain"
)

var _ app.StatsStore = (*StatsStore)(nil)

// StatsStore implements app.StatsStore with a hash for the counters and a
// separate key for the pause flag, so operators can pause with a plain
// SET <prefix>:paused 1.
type StatsStore struct {
	rdb  *redis.Client
	keys Keys
}

// NewStatsStore creates a StatsStore.
func NewStatsStore(rdb *redis.Client, keys Keys) *StatsStore {
	return &StatsStore{rdb: rdb, keys: keys}
}

func (s *StatsStore) GetStats(ctx context.Context) (domain.Stats, error) {
	vals, err := s.rdb.HGetAll(ctx, s.keys.Stats()).Result()
	if err != nil {
		return domain.Stats{}, fmt.Errorf("redis: get stats: %w", err)
	}
	st, err := parseStats(vals)
	if err != nil {
		return domain.Stats{}, err
	}

	paused, err := s.rdb.Get(ctx, s.keys.Paused()).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return domain.Stats{}, fmt.Errorf("redis: get paused flag: %w", err)
	default:
		st.Paused = isTrue(paused)
	}
	return st, nil
}

func (s *StatsStore) SaveStats(ctx context.Context, st domain.Stats) error {
	if err := s.rdb.HSet(ctx, s.keys.Stats(), statsFields(st)).Err(); err != nil {
		return fmt.Errorf("redis: save stats: %w", err)
	}
	return nil
}

func (s *StatsStore) Incr(ctx context.Context, field string, delta int64) error {
	if err := s.rdb.HIncrBy(ctx, s.keys.Stats(), field, delta).Err(); err != nil {
		return fmt.Errorf("redis: incr %s: %w", field, err)
	}
	return nil
}

func (s *StatsStore) SetPaused(ctx context.Context, paused bool) error {
	var err error
	if paused {
		err = s.rdb.Set(ctx, s.keys.Paused(), "1", 0).Err()
	} else {
		err = s.rdb.Del(ctx, s.keys.Paused()).Err()
	}
	if err != nil {
		return fmt.Errorf("redis: set paused: %w", err)
	}
	return nil
}

func statsFields(st domain.Stats) map[string]any {
	fields := map[string]any{
		domain.StatTicks:  strconv.FormatInt(st.Ticks, 10),
		domain.StatTracks: strconv.FormatInt(st.Tracks, 10),
		domain.StatTrades: strconv.FormatInt(st.Trades, 10),
	}
	if !st.LastRun.IsZero() {
		fields[domain.StatLastRun] = strconv.FormatInt(st.LastRun.Unix(), 10)
	}
	return fields
}

func parseStats(vals map[string]string) (domain.Stats, error) {
	var st domain.Stats
	ints := map[string]*int64{
		domain.StatTicks:  &st.Ticks,
		domain.StatTracks: &st.Tracks,
		domain.StatTrades: &st.Trades,
	}
	for field, dst := range ints {
		raw, ok := vals[field]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.Stats{}, fmt.Errorf("redis: stats field %s: %w", field, err)
		}
		*dst = n
	}
	if raw, ok := vals[domain.StatLastRun]; ok {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.Stats{}, fmt.Errorf("redis: stats field %s: %w", domain.StatLastRun, err)
		}
		st.LastRun = time.Unix(sec, 0)
	}
	if raw, ok := vals[domain.StatPaused]; ok {
		st.Paused = isTrue(raw)
	}
	return st, nil
}

func isTrue(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
