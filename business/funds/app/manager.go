package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	venueApp "github.com/fd1az/crossarb/business/venue/app"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
	"github.com/fd1az/crossarb/internal/apperror"
	"github.com/fd1az/crossarb/internal/asset"
	"github.com/fd1az/crossarb/internal/logger"
)

const meterName = "funds"

// Config holds the fund manager settings.
type Config struct {
	RebalanceEnabled bool
	RebalanceAssets  []string
	// ImbalanceRatio triggers a rebalance when the largest balance of an
	// asset exceeds the smallest by this factor.
	ImbalanceRatio    decimal.Decimal
	TxFeeSafetyFactor decimal.Decimal
	PendingTimeout    time.Duration
	LockTTL           time.Duration
}

// transit is a withdrawal that has not arrived yet.
type transit struct {
	id     string
	asset  string
	amount decimal.Decimal
	source string
	target string
	at     time.Time
}

// Manager moves funds between venues: it withdraws bought coins to the
// venue they were sold on, tracks those transfers until they arrive and
// evens out balances that drifted too far apart.
type Manager struct {
	venues *venueApp.Registry
	assets *asset.Registry
	locker Locker
	cfg    Config
	logger logger.LoggerInterface
	now    func() time.Time

	withdrawals metric.Int64Counter

	mu        sync.Mutex
	inTransit []transit
	matched   map[string]struct{} // deposit ids already credited
}

// NewManager creates a Manager.
func NewManager(venues *venueApp.Registry, assets *asset.Registry, locker Locker, cfg Config, log logger.LoggerInterface) (*Manager, error) {
	if cfg.TxFeeSafetyFactor.LessThan(decimal.NewFromInt(1)) {
		cfg.TxFeeSafetyFactor = decimal.NewFromInt(1)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}

	withdrawals, err := otel.Meter(meterName).Int64Counter(
		"funds_withdrawals_total",
		metric.WithDescription("Withdrawals requested between venues"),
	)
	if err != nil {
		return nil, err
	}

	return &Manager{
		venues:      venues,
		assets:      assets,
		locker:      locker,
		cfg:         cfg,
		logger:      log,
		now:         time.Now,
		withdrawals: withdrawals,
		matched:     make(map[string]struct{}),
	}, nil
}

// SafeTxFee returns the withdrawal fee for moving amount of symbol off v,
// padded by the safety factor and rounded up.
func (m *Manager) SafeTxFee(v venueApp.Venue, symbol string, amount decimal.Decimal) decimal.Decimal {
	fee := m.assets.WithdrawFee(symbol).Mul(m.cfg.TxFeeSafetyFactor)
	return asset.FormatCeil(fee)
}

// InTransit reports whether a withdrawal of symbol is still on its way.
func (m *Manager) InTransit(symbol string) bool {
	symbol = asset.Symbol(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.inTransit {
		if t.asset == symbol {
			return true
		}
	}
	return false
}

// Withdraw moves amount of symbol from src to the deposit address of tgt.
func (m *Manager) Withdraw(ctx context.Context, src, tgt venueApp.Venue, symbol string, amount decimal.Decimal) error {
	symbol = asset.Symbol(symbol)
	amount = asset.Format(amount)

	id, err := m.withdraw(ctx, src, tgt, symbol, amount)
	status := "ok"
	if err != nil {
		status = string(apperror.GetCode(err))
	}
	m.withdrawals.Add(ctx, 1, metric.WithAttributes(
		attribute.String("asset", symbol),
		attribute.String("source", src.ID()),
		attribute.String("target", tgt.ID()),
		attribute.String("status", status),
	))
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.inTransit = append(m.inTransit, transit{
		id:     id,
		asset:  symbol,
		amount: amount,
		source: src.ID(),
		target: tgt.ID(),
		at:     m.now(),
	})
	m.mu.Unlock()

	m.logger.Info(ctx, "withdrawal requested",
		"asset", symbol, "amount", asset.String(amount),
		"source", src.ID(), "target", tgt.ID(), "withdraw_id", id)
	return nil
}

func (m *Manager) withdraw(ctx context.Context, src, tgt venueApp.Venue, symbol string, amount decimal.Decimal) (string, error) {
	a := m.assets.Lookup(symbol)
	if !amount.IsPositive() {
		return "", apperror.New(apperror.CodeWithdrawFailed, apperror.WithContextf("%s amount %s", symbol, amount))
	}
	if amount.LessThan(a.MinWithdraw()) {
		return "", apperror.New(apperror.CodeWithdrawFailed,
			apperror.WithContextf("%s %s below minimum withdrawal %s", asset.String(amount), symbol, a.MinWithdraw()))
	}

	from, err := m.venues.Withdrawer(src.ID())
	if err != nil {
		return "", err
	}
	to, err := m.venues.Withdrawer(tgt.ID())
	if err != nil {
		return "", err
	}

	release, err := m.locker.Acquire(ctx, "withdraw:"+src.ID()+":"+symbol, m.cfg.LockTTL)
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeWithdrawLocked, symbol)
	}
	defer release()

	address, err := to.DepositAddress(ctx, symbol)
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeInvalidDepositAddress, tgt.ID())
	}
	if err := a.ValidateAddress(address); err != nil {
		return "", apperror.New(apperror.CodeInvalidDepositAddress, apperror.WithContext(tgt.ID()), apperror.WithCause(err))
	}

	id, err := from.Withdraw(ctx, symbol, amount, address)
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeWithdrawFailed, src.ID())
	}
	return id, nil
}

// Manage settles arrived transfers and rebalances drifted assets. It
// returns true when it started a rebalance, in which case the caller skips
// trading for this tick.
func (m *Manager) Manage(ctx context.Context, deposits, withdrawals map[string][]venueDomain.Transfer) (bool, error) {
	m.settle(ctx, deposits, withdrawals)

	if !m.cfg.RebalanceEnabled {
		return false, nil
	}
	for _, symbol := range m.cfg.RebalanceAssets {
		symbol = asset.Symbol(symbol)
		if m.InTransit(symbol) {
			continue
		}
		moved, err := m.rebalance(ctx, symbol)
		if err != nil {
			return false, apperror.New(apperror.CodeFundManagementFailed, apperror.WithContext(symbol), apperror.WithCause(err))
		}
		if moved {
			return true, nil
		}
	}
	return false, nil
}

// settle drops in-transit withdrawals that arrived, failed or timed out.
func (m *Manager) settle(ctx context.Context, deposits, withdrawals map[string][]venueDomain.Transfer) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.inTransit[:0]
	for _, t := range m.inTransit {
		switch {
		case m.failed(t, withdrawals[t.source]):
			m.logger.Warn(ctx, "withdrawal failed", "asset", t.asset, "source", t.source, "withdraw_id", t.id)
		case m.arrived(t, deposits[t.target]):
			m.logger.Info(ctx, "transfer arrived", "asset", t.asset, "source", t.source, "target", t.target,
				"took", now.Sub(t.at).Truncate(time.Second))
		case m.cfg.PendingTimeout > 0 && now.Sub(t.at) > m.cfg.PendingTimeout:
			m.logger.Warn(ctx, "transfer did not arrive in time, no longer tracking it",
				"asset", t.asset, "source", t.source, "target", t.target, "withdraw_id", t.id)
		default:
			kept = append(kept, t)
		}
	}
	m.inTransit = kept
}

func (m *Manager) failed(t transit, withdrawals []venueDomain.Transfer) bool {
	for _, w := range withdrawals {
		if w.ID == t.id && w.Status == venueDomain.TransferFailed {
			return true
		}
	}
	return false
}

// arrived matches the oldest unclaimed completed deposit of the same asset
// that landed after the withdrawal was requested.
func (m *Manager) arrived(t transit, deposits []venueDomain.Transfer) bool {
	candidates := make([]venueDomain.Transfer, 0, len(deposits))
	for _, dep := range deposits {
		if asset.Symbol(dep.Asset) != t.asset || dep.Status != venueDomain.TransferCompleted {
			continue
		}
		if dep.At.Before(t.at.Add(-time.Minute)) || dep.Amount.GreaterThan(t.amount) {
			continue
		}
		if _, seen := m.matched[dep.ID]; seen {
			continue
		}
		candidates = append(candidates, dep)
	}
	if len(candidates) == 0 {
		return false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].At.Before(candidates[j].At) })
	m.matched[candidates[0].ID] = struct{}{}
	return true
}

// rebalance withdraws half the difference from the richest to the poorest
// venue when the ratio between them exceeds ImbalanceRatio.
func (m *Manager) rebalance(ctx context.Context, symbol string) (bool, error) {
	var rich, poor venueApp.Venue
	var most, least decimal.Decimal
	for _, v := range m.venues.All() {
		if _, ok := v.(venueApp.Withdrawer); !ok {
			continue
		}
		bal := v.Wallets().Get(symbol)
		if rich == nil || bal.GreaterThan(most) {
			rich, most = v, bal
		}
		if poor == nil || bal.LessThan(least) {
			poor, least = v, bal
		}
	}
	if rich == nil || rich == poor || !most.IsPositive() {
		return false, nil
	}
	if least.IsPositive() && most.Div(least).LessThanOrEqual(m.cfg.ImbalanceRatio) {
		return false, nil
	}

	amount := asset.Format(most.Sub(least).Div(decimal.NewFromInt(2)))
	a := m.assets.Lookup(symbol)
	if amount.LessThan(a.MinWithdraw()) || amount.LessThanOrEqual(a.WithdrawFee()) {
		m.logger.Debug(ctx, "imbalance too small to move", "asset", symbol, "amount", asset.String(amount))
		return false, nil
	}

	m.logger.Info(ctx, "rebalancing",
		"asset", symbol, "from", rich.ID(), "to", poor.ID(),
		"from_balance", asset.String(most), "to_balance", asset.String(least), "amount", asset.String(amount))
	if err := m.Withdraw(ctx, rich, poor, symbol, amount); err != nil {
		return false, err
	}
	return true, nil
}
