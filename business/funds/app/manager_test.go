package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/business/ledger/infra/memory"
	venueApp "github.com/fd1az/crossarb/business/venue/app"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
	"github.com/fd1az/crossarb/business/venue/infra/paper"
	"github.com/fd1az/crossarb/internal/apperror"
	"github.com/fd1az/crossarb/internal/asset"
	"github.com/fd1az/crossarb/internal/logger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	manager *Manager
	locker  *memory.Locker
	alpha   *paper.Venue
	beta    *paper.Venue
}

func newFixture(t *testing.T, cfg Config, alpha, beta map[string]decimal.Decimal) fixture {
	t.Helper()
	log := logger.New(io.Discard, logger.LevelError, "test", nil)
	assets := asset.DefaultRegistry()
	network := paper.NewNetwork(0, assets)

	a := paper.NewVenue(paper.Config{ID: "alpha", Balances: alpha}, network, log)
	b := paper.NewVenue(paper.Config{ID: "beta", Balances: beta}, network, log)
	registry, err := venueApp.NewRegistry(a, b)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	locker := memory.NewLocker()
	if cfg.TxFeeSafetyFactor.IsZero() {
		cfg.TxFeeSafetyFactor = d("1.1")
	}
	m, err := NewManager(registry, assets, locker, cfg, log)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return fixture{manager: m, locker: locker, alpha: a, beta: b}
}

func transfers(ctx context.Context, t *testing.T, vs ...venueApp.Venue) (deposits, withdrawals map[string][]venueDomain.Transfer) {
	t.Helper()
	deposits = map[string][]venueDomain.Transfer{}
	withdrawals = map[string][]venueDomain.Transfer{}
	for _, v := range vs {
		if err := v.RefreshWallets(ctx); err != nil {
			t.Fatalf("RefreshWallets: %v", err)
		}
		dep, err := v.RecentDeposits(ctx)
		if err != nil {
			t.Fatalf("RecentDeposits: %v", err)
		}
		wd, err := v.RecentWithdrawals(ctx)
		if err != nil {
			t.Fatalf("RecentWithdrawals: %v", err)
		}
		deposits[v.ID()] = dep
		withdrawals[v.ID()] = wd
	}
	return deposits, withdrawals
}

func TestManager_SafeTxFee(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	tests := []struct {
		asset string
		want  string
	}{
		{"BTC", "0.00055"},
		{"usdt", "11"},
		{"DOGE", "0"},
	}
	for _, tt := range tests {
		if got := f.manager.SafeTxFee(f.alpha, tt.asset, d("1")); !got.Equal(d(tt.want)) {
			t.Errorf("SafeTxFee(%s) = %s, want %s", tt.asset, got, tt.want)
		}
	}
}

func TestManager_WithdrawTracksTransit(t *testing.T) {
	f := newFixture(t, Config{},
		map[string]decimal.Decimal{"BTC": d("1")},
		map[string]decimal.Decimal{})
	ctx := context.Background()

	if err := f.manager.Withdraw(ctx, f.alpha, f.beta, "btc", d("0.5")); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if !f.manager.InTransit("BTC") {
		t.Fatal("BTC should be in transit")
	}

	deposits, withdrawals := transfers(ctx, t, f.alpha, f.beta)
	if got := f.beta.Wallets().Get("BTC"); !got.Equal(d("0.4995")) {
		t.Errorf("beta BTC = %s, want 0.4995", got)
	}

	moved, err := f.manager.Manage(ctx, deposits, withdrawals)
	if err != nil || moved {
		t.Fatalf("Manage = %v, %v", moved, err)
	}
	if f.manager.InTransit("BTC") {
		t.Error("BTC should have arrived")
	}
}

func TestManager_WithdrawRejections(t *testing.T) {
	f := newFixture(t, Config{},
		map[string]decimal.Decimal{"BTC": d("1")},
		map[string]decimal.Decimal{})
	ctx := context.Background()

	err := f.manager.Withdraw(ctx, f.alpha, f.beta, "BTC", d("0.0001"))
	if !apperror.HasCode(err, apperror.CodeWithdrawFailed) {
		t.Errorf("below minimum: err = %v", err)
	}

	release, err := f.locker.Acquire(ctx, "withdraw:alpha:BTC", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	err = f.manager.Withdraw(ctx, f.alpha, f.beta, "BTC", d("0.5"))
	if !apperror.HasCode(err, apperror.CodeWithdrawLocked) {
		t.Errorf("locked: err = %v", err)
	}
	release()

	if f.manager.InTransit("BTC") {
		t.Error("rejected withdrawals must not be tracked")
	}
}

func TestManager_Rebalance(t *testing.T) {
	cfg := Config{
		RebalanceEnabled: true,
		RebalanceAssets:  []string{"USDT"},
		ImbalanceRatio:   d("4"),
	}
	f := newFixture(t, cfg,
		map[string]decimal.Decimal{"USDT": d("1000")},
		map[string]decimal.Decimal{"USDT": d("100")})
	ctx := context.Background()

	moved, err := f.manager.Manage(ctx, nil, nil)
	if err != nil {
		t.Fatalf("Manage: %v", err)
	}
	if !moved {
		t.Fatal("expected a rebalance")
	}
	if err := f.alpha.RefreshWallets(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.alpha.Wallets().Get("USDT"); !got.Equal(d("550")) {
		t.Errorf("alpha USDT = %s, want 550", got)
	}

	// Nothing more moves while the transfer is on its way.
	moved, err = f.manager.Manage(ctx, nil, nil)
	if err != nil || moved {
		t.Errorf("second Manage = %v, %v; want false", moved, err)
	}
}

func TestManager_RebalanceWithinRatio(t *testing.T) {
	cfg := Config{
		RebalanceEnabled: true,
		RebalanceAssets:  []string{"USDT"},
		ImbalanceRatio:   d("4"),
	}
	f := newFixture(t, cfg,
		map[string]decimal.Decimal{"USDT": d("300")},
		map[string]decimal.Decimal{"USDT": d("100")})

	moved, err := f.manager.Manage(context.Background(), nil, nil)
	if err != nil || moved {
		t.Errorf("Manage = %v, %v; want false", moved, err)
	}
}
