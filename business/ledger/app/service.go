package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/business/ledger/domain"
	"github.com/fd1az/crossarb/internal/apperror"
	"github.com/fd1az/crossarb/internal/asset"
	"github.com/fd1az/crossarb/internal/logger"
)

// Service records opportunities and trades and exposes the statistics the
// control loop reads every tick.
type Service struct {
	store  Store
	stats  StatsStore
	logger logger.LoggerInterface
	now    func() time.Time
}

// NewService creates a Service.
func NewService(store Store, stats StatsStore, log logger.LoggerInterface) *Service {
	return &Service{
		store:  store,
		stats:  stats,
		logger: log,
		now:    time.Now,
	}
}

// GetStats returns the statistics record.
func (s *Service) GetStats(ctx context.Context) (domain.Stats, error) {
	st, err := s.stats.GetStats(ctx)
	if err != nil {
		return domain.Stats{}, apperror.New(apperror.CodeStatsUnavailable, apperror.WithCause(err))
	}
	return st, nil
}

// SaveStats writes the statistics record.
func (s *Service) SaveStats(ctx context.Context, st domain.Stats) error {
	if err := s.stats.SaveStats(ctx, st); err != nil {
		return apperror.New(apperror.CodeStatsUnavailable, apperror.WithCause(err))
	}
	return nil
}

// IsPaused reports whether trading has been paused by an operator.
func (s *Service) IsPaused(ctx context.Context) (bool, error) {
	st, err := s.GetStats(ctx)
	if err != nil {
		return false, err
	}
	return st.Paused, nil
}

// SetPaused sets or clears the pause flag.
func (s *Service) SetPaused(ctx context.Context, paused bool) error {
	if err := s.stats.SetPaused(ctx, paused); err != nil {
		return apperror.New(apperror.CodeStatsUnavailable, apperror.WithCause(err))
	}
	return nil
}

// SaveTrack records a profitable opportunity on targetVenue.
func (s *Service) SaveTrack(ctx context.Context, tradeable string, amount, profit decimal.Decimal, targetVenue string) error {
	t := domain.Track{
		ID:     uuid.NewString(),
		Asset:  asset.Symbol(tradeable),
		Amount: asset.Format(amount),
		Profit: asset.Format(profit),
		Venue:  targetVenue,
		At:     s.now(),
	}
	if err := s.store.SaveTrack(ctx, t); err != nil {
		return apperror.New(apperror.CodeLedgerWriteFailed, apperror.WithContext("track"), apperror.WithCause(err))
	}
	s.incr(ctx, domain.StatTracks)
	return nil
}

// SaveTrade records an executed trade.
func (s *Service) SaveTrade(ctx context.Context, tradeable, currency string, sellAmount decimal.Decimal, sourceVenue, targetVenue string) error {
	t := domain.Trade{
		ID:          uuid.NewString(),
		Tradeable:   asset.Symbol(tradeable),
		Currency:    asset.Symbol(currency),
		SellAmount:  asset.Format(sellAmount),
		SourceVenue: sourceVenue,
		TargetVenue: targetVenue,
		At:          s.now(),
	}
	if err := s.store.SaveTrade(ctx, t); err != nil {
		return apperror.New(apperror.CodeLedgerWriteFailed, apperror.WithContext("trade"), apperror.WithCause(err))
	}
	s.incr(ctx, domain.StatTrades)
	return nil
}

// Counters are best effort; the record itself is already stored.
func (s *Service) incr(ctx context.Context, field string) {
	if err := s.stats.Incr(ctx, field, 1); err != nil {
		s.logger.Warn(ctx, "failed to update statistics", "field", field, "error", err)
	}
}
