package redis

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fd1az/crossarb/business/ledger/domain"
	"github.com/fd1az/crossarb/internal/apperror"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestLocker_AcquireRelease(t *testing.T) {
	mr, rdb := newTestRedis(t)
	keys := NewKeys("x")
	l := NewLocker(rdb, keys)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "withdraw:BTC", 30*time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !mr.Exists(keys.Lock("withdraw:BTC")) {
		t.Fatal("lock key not set")
	}
	if ttl := mr.TTL(keys.Lock("withdraw:BTC")); ttl != 30*time.Second {
		t.Errorf("ttl = %s, want 30s", ttl)
	}

	if _, err := l.Acquire(ctx, "withdraw:BTC", 30*time.Second); !apperror.HasCode(err, apperror.CodeWithdrawLocked) {
		t.Errorf("second Acquire err = %v, want withdraw locked", err)
	}
	if rel, err := l.Acquire(ctx, "withdraw:ETH", 30*time.Second); err != nil {
		t.Errorf("other asset: %v", err)
	} else {
		rel()
	}

	release()
	release()
	if mr.Exists(keys.Lock("withdraw:BTC")) {
		t.Error("lock key still set after release")
	}

	again, err := l.Acquire(ctx, "withdraw:BTC", 30*time.Second)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again()
}

func TestLocker_ReleaseKeepsAnotherHoldersLease(t *testing.T) {
	mr, rdb := newTestRedis(t)
	keys := NewKeys("x")
	l := NewLocker(rdb, keys)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "withdraw:BTC", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)

	current, err := l.Acquire(ctx, "withdraw:BTC", time.Minute)
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	held, _ := mr.Get(keys.Lock("withdraw:BTC"))

	stale()
	if got, _ := mr.Get(keys.Lock("withdraw:BTC")); got != held {
		t.Errorf("expired holder released the new lease: %q, want %q", got, held)
	}
	current()
	if mr.Exists(keys.Lock("withdraw:BTC")) {
		t.Error("lock key still set")
	}
}

func TestStatsStore(t *testing.T) {
	_, rdb := newTestRedis(t)
	keys := NewKeys("x")
	s := NewStatsStore(rdb, keys)
	ctx := context.Background()

	st, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats on empty hash: %v", err)
	}
	if st != (domain.Stats{}) {
		t.Errorf("empty stats = %+v", st)
	}

	lastRun := time.Unix(1700000000, 0)
	if err := s.SaveStats(ctx, domain.Stats{LastRun: lastRun, Ticks: 5}); err != nil {
		t.Fatalf("SaveStats: %v", err)
	}
	if err := s.Incr(ctx, domain.StatTrades, 2); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	st, err = s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if st.Ticks != 5 || st.Trades != 2 || !st.LastRun.Equal(lastRun) || st.Paused {
		t.Errorf("stats = %+v", st)
	}
}

func TestStatsStore_PauseFlag(t *testing.T) {
	mr, rdb := newTestRedis(t)
	keys := NewKeys("x")
	s := NewStatsStore(rdb, keys)
	ctx := context.Background()

	paused := func() bool {
		t.Helper()
		st, err := s.GetStats(ctx)
		if err != nil {
			t.Fatalf("GetStats: %v", err)
		}
		return st.Paused
	}

	if err := s.SetPaused(ctx, true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	if v, _ := mr.Get(keys.Paused()); v != "1" || !paused() {
		t.Errorf("paused key = %q, want 1 and paused", v)
	}

	// Operators clear it by hand as often as through the store.
	mr.Set(keys.Paused(), "0")
	if paused() {
		t.Error(`"0" should read as not paused`)
	}
	mr.Set(keys.Paused(), "true")
	if !paused() {
		t.Error(`"true" should read as paused`)
	}

	if err := s.SetPaused(ctx, false); err != nil {
		t.Fatalf("SetPaused(false): %v", err)
	}
	if mr.Exists(keys.Paused()) || paused() {
		t.Error("pause key should be deleted")
	}
}

func TestOverlay_Values(t *testing.T) {
	mr, rdb := newTestRedis(t)
	keys := NewKeys("x")
	o := NewOverlay(rdb, keys)
	ctx := context.Background()

	vals, err := o.Values(ctx)
	if err != nil || len(vals) != 0 {
		t.Fatalf("empty overlay = %v, %v", vals, err)
	}

	mr.HSet(keys.Config(), "min_profit", "0.0002", "enabled", "false")
	vals, err = o.Values(ctx)
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	want := map[string]string{"min_profit": "0.0002", "enabled": "false"}
	if !reflect.DeepEqual(vals, want) {
		t.Errorf("values = %v, want %v", vals, want)
	}
}
