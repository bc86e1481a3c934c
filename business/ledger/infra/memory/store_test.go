package memory

import (
	"context"
	"testing"
	"time"

	"github.com/fd1az/crossarb/business/ledger/domain"
	"github.com/fd1az/crossarb/internal/apperror"
)

func TestStore_RejectsMissingIDs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.SaveTrack(ctx, domain.Track{}); err == nil {
		t.Error("SaveTrack without id should fail")
	}
	if err := s.SaveTrade(ctx, domain.Trade{}); err == nil {
		t.Error("SaveTrade without id should fail")
	}
	if err := s.SaveProfitLoss(ctx, domain.ProfitLoss{}); err == nil {
		t.Error("SaveProfitLoss without id should fail")
	}
	if err := s.Incr(ctx, "bogus", 1); err == nil {
		t.Error("Incr of unknown field should fail")
	}
}

func TestLocker(t *testing.T) {
	l := NewLocker()
	now := time.Unix(0, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	release, err := l.Acquire(ctx, "withdraw:BTC", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "withdraw:BTC", time.Minute); !apperror.HasCode(err, apperror.CodeWithdrawLocked) {
		t.Fatalf("second Acquire err = %v, want locked", err)
	}
	if _, err := l.Acquire(ctx, "withdraw:ETH", time.Minute); err != nil {
		t.Errorf("other key should be free: %v", err)
	}

	release()
	release()
	if _, err := l.Acquire(ctx, "withdraw:BTC", time.Minute); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := l.Acquire(ctx, "withdraw:BTC", time.Minute); err != nil {
		t.Errorf("Acquire after expiry: %v", err)
	}
}
