package app

import (
	"context"
	"errors"

	"github.com/fd1az/crossarb/business/arbitrage/domain"
	venueApp "github.com/fd1az/crossarb/business/venue/app"
	"github.com/fd1az/crossarb/internal/apperror"
	"github.com/fd1az/crossarb/internal/logger"
)

// Housekeeper runs the per-tick maintenance on every venue. A failing venue
// does not stop the others; the errors are joined.
type Housekeeper struct {
	venues   *venueApp.Registry
	settings Settings
	logger   logger.LoggerInterface
}

// NewHousekeeper creates a Housekeeper.
func NewHousekeeper(venues *venueApp.Registry, settings Settings, log logger.LoggerInterface) *Housekeeper {
	return &Housekeeper{venues: venues, settings: settings, logger: log}
}

// RefreshWallets reloads balances. Every refresh after the first also
// captures the recent transfers into state.
func (h *Housekeeper) RefreshWallets(ctx context.Context, state *domain.LoopState) error {
	var errs []error
	for _, v := range h.venues.All() {
		if err := v.RefreshWallets(ctx); err != nil {
			h.logger.Warn(ctx, "wallet refresh failed", "venue", v.ID(), "error", err)
			errs = append(errs, apperror.Wrap(err, apperror.CodeWalletRefreshFailed, v.ID()))
		}
	}

	if state.WalletsRefreshed {
		if err := h.CaptureTransfers(ctx, state); err != nil {
			errs = append(errs, err)
		}
	}
	state.WalletsRefreshed = true
	return errors.Join(errs...)
}

// CaptureTransfers stores each venue's recent deposits and withdrawals. A
// venue whose history cannot be read keeps its previous lists.
func (h *Housekeeper) CaptureTransfers(ctx context.Context, state *domain.LoopState) error {
	var errs []error
	for _, v := range h.venues.All() {
		deposits, err := v.RecentDeposits(ctx)
		if err != nil {
			h.logger.Warn(ctx, "failed to query recent deposits", "venue", v.ID(), "error", err)
			errs = append(errs, err)
		} else {
			state.Deposits[v.ID()] = deposits
		}

		withdrawals, err := v.RecentWithdrawals(ctx)
		if err != nil {
			h.logger.Warn(ctx, "failed to query recent withdrawals", "venue", v.ID(), "error", err)
			errs = append(errs, err)
		} else {
			state.Withdrawals[v.ID()] = withdrawals
		}
	}
	return errors.Join(errs...)
}

// RefreshMarkets reloads market metadata.
func (h *Housekeeper) RefreshMarkets(ctx context.Context) error {
	h.logger.Info(ctx, "refreshing trading pairs")

	var errs []error
	for _, v := range h.venues.All() {
		if err := v.RefreshExchangeData(ctx); err != nil {
			h.logger.Warn(ctx, "market refresh failed", "venue", v.ID(), "error", err)
			errs = append(errs, err)
			continue
		}
		markets, err := v.TradeablePairs(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		h.logger.Info(ctx, "tradeable pairs", "venue", v.ID(), "count", len(markets))
	}
	return errors.Join(errs...)
}

// CancelStrayOrders cancels every open order after a tick that traded, when
// enabled.
func (h *Housekeeper) CancelStrayOrders(ctx context.Context, state *domain.LoopState) error {
	if !state.TradeHappened || !h.settings.CancelStrayOrders() {
		return nil
	}

	h.logger.Info(ctx, "cancelling stray orders")
	var errs []error
	for _, v := range h.venues.All() {
		if err := v.CancelAllOrders(ctx); err != nil {
			h.logger.Warn(ctx, "cancel all orders failed", "venue", v.ID(), "error", err)
			errs = append(errs, apperror.Wrap(err, apperror.CodeOrderCancelFailed, v.ID()))
		}
	}
	state.TradeHappened = false
	return errors.Join(errs...)
}
