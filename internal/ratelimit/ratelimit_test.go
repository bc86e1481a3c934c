package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_BurstThenThrottle(t *testing.T) {
	l := New(60) // 1/s, burst 6

	for i := 0; i < 6; i++ {
		if !l.Allow() {
			t.Fatalf("request %d should be within burst", i)
		}
	}
	if l.Allow() {
		t.Error("request beyond burst should be throttled")
	}
}

func TestLimiter_WaitNClampsToBurst(t *testing.T) {
	l := New(600) // burst 60

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := l.WaitN(ctx, 200); err != nil {
		t.Fatalf("WaitN above burst: %v", err)
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(0)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	for i := 0; i < 1000; i++ {
		if err := l.WaitN(ctx, 50); err != nil {
			t.Fatalf("disabled limiter blocked: %v", err)
		}
	}
}
