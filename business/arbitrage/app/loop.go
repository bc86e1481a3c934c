package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/crossarb/business/arbitrage/domain"
	venueApp "github.com/fd1az/crossarb/business/venue/app"
	"github.com/fd1az/crossarb/internal/apperror"
	"github.com/fd1az/crossarb/internal/logger"
)

// LoopConfig holds the control loop timing.
type LoopConfig struct {
	Interval              time.Duration
	MarketRefreshInterval time.Duration
	PausePollInterval     time.Duration
	ErrorAlertThreshold   int
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.MarketRefreshInterval <= 0 {
		c.MarketRefreshInterval = time.Hour
	}
	if c.PausePollInterval <= 0 {
		c.PausePollInterval = 3 * time.Second
	}
	if c.ErrorAlertThreshold <= 0 {
		c.ErrorAlertThreshold = 10
	}
	return c
}

// Loop is the control loop. It owns the LoopState; only the goroutine
// running Tick or Run may touch it.
type Loop struct {
	cfg         LoopConfig
	state       *domain.LoopState
	pairs       []domain.VenuePair
	settings    Settings
	housekeeper *Housekeeper
	funds       FundManager
	scanner     *Scanner
	stats       StatsStore
	alerter     Alerter
	clock       Clock
	logger      logger.LoggerInterface

	// Mirrors of state for health checks running on other goroutines.
	lastRun    atomic.Int64
	errorCount atomic.Int64

	ticks        metric.Int64Counter
	tickDuration metric.Float64Histogram
}

// NewLoop creates a Loop over every pair of registered venues.
func NewLoop(cfg LoopConfig, venues *venueApp.Registry, settings Settings, housekeeper *Housekeeper, funds FundManager, scanner *Scanner, stats StatsStore, alerter Alerter, clock Clock, log logger.LoggerInterface) (*Loop, error) {
	ids := make([]string, 0, venues.Len())
	for _, v := range venues.All() {
		ids = append(ids, v.ID())
	}
	pairs, err := domain.NewVenuePairs(ids)
	if err != nil {
		return nil, err
	}

	meter := otel.Meter(instrumentationName)
	ticks, err := meter.Int64Counter(
		"arbitrage_ticks_total",
		metric.WithDescription("Control loop ticks by outcome"),
	)
	if err != nil {
		return nil, err
	}
	tickDuration, err := meter.Float64Histogram(
		"arbitrage_tick_duration_seconds",
		metric.WithDescription("Duration of a control loop tick"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Loop{
		cfg:          cfg.withDefaults(),
		state:        domain.NewLoopState(ids),
		pairs:        pairs,
		settings:     settings,
		housekeeper:  housekeeper,
		funds:        funds,
		scanner:      scanner,
		stats:        stats,
		alerter:      alerter,
		clock:        clock,
		logger:       log,
		ticks:        ticks,
		tickDuration: tickDuration,
	}, nil
}

// Pairs returns the venue pairs the loop scans.
func (l *Loop) Pairs() []domain.VenuePair {
	return append([]domain.VenuePair(nil), l.pairs...)
}

// State returns the loop state. Callers must not use it concurrently with
// Tick.
func (l *Loop) State() *domain.LoopState {
	return l.state
}

// LastRun returns when the last tick completed without error.
func (l *Loop) LastRun() time.Time {
	ns := l.lastRun.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ErrorCount returns the number of consecutive failed ticks.
func (l *Loop) ErrorCount() int {
	return int(l.errorCount.Load())
}

// Run ticks until ctx is done. The next tick is scheduled only after the
// previous one returned.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info(ctx, "control loop started", "pairs", len(l.pairs), "interval", l.cfg.Interval)
	for {
		l.Tick(ctx)
		if err := l.clock.Sleep(ctx, l.cfg.Interval); err != nil {
			l.logger.Info(ctx, "control loop stopped", "ticks", l.state.Ticks)
			return nil
		}
	}
}

// Tick runs one cycle. Failures and panics are recovered, counted and
// returned; they never stop the loop.
func (l *Loop) Tick(ctx context.Context) (err error) {
	start := l.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(ctx, "tick panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = apperror.New(apperror.CodeTickPanic, apperror.WithContext(fmt.Sprint(r)))
		}
		l.finishTick(ctx, start, err)
	}()

	return l.tick(ctx)
}

func (l *Loop) tick(ctx context.Context) error {
	s := l.state

	if err := l.settings.Refresh(ctx); err != nil {
		l.logger.Warn(ctx, "config refresh failed, keeping previous values", "error", err)
	}

	now := l.clock.Now()
	if !now.Before(s.NextMarketRefresh) {
		if !s.WalletsRefreshed {
			if err := l.housekeeper.RefreshWallets(ctx, s); err != nil {
				return err
			}
		}
		if err := l.housekeeper.RefreshMarkets(ctx); err != nil {
			return err
		}
		s.NextMarketRefresh = now.Add(l.cfg.MarketRefreshInterval)
	}

	if err := l.housekeeper.RefreshWallets(ctx, s); err != nil {
		return err
	}

	managed, err := l.funds.Manage(ctx, s.Deposits, s.Withdrawals)
	if err != nil {
		return err
	}
	if managed {
		l.logger.Info(ctx, "funds moved this tick, skipping scan")
		return nil
	}

	if err := l.housekeeper.CancelStrayOrders(ctx, s); err != nil {
		return err
	}

	traded, err := l.scanner.Scan(ctx, s, l.pairs)
	if traded {
		s.TradeHappened = true
	}
	if err != nil {
		return err
	}

	return l.updateRunTimestamp(ctx)
}

// updateRunTimestamp records the run in the statistics and blocks while
// the operator pause flag is set.
func (l *Loop) updateRunTimestamp(ctx context.Context) error {
	first := true
	for {
		paused, err := l.stats.IsPaused(ctx)
		if err != nil {
			return err
		}
		if !paused {
			break
		}
		if first {
			l.logger.Info(ctx, "paused, waiting to be resumed")
			first = false
		}
		if err := l.clock.Sleep(ctx, l.cfg.PausePollInterval); err != nil {
			return err
		}
	}
	if !first {
		l.logger.Info(ctx, "resumed")
	}

	st, err := l.stats.GetStats(ctx)
	if err != nil {
		return err
	}
	st.LastRun = l.clock.Now()
	st.Ticks++
	return l.stats.SaveStats(ctx, st)
}

func (l *Loop) finishTick(ctx context.Context, start time.Time, err error) {
	s := l.state
	s.Ticks++

	status := "ok"
	if err != nil {
		status = "error"
		if apperror.HasCode(err, apperror.CodeTickPanic) {
			status = "panic"
		}

		s.ErrorCount++
		l.logger.Error(ctx, "error during main loop", "consecutive_errors", s.ErrorCount, "error", err)
		if s.ErrorCount == l.cfg.ErrorAlertThreshold {
			l.alerter.Alert(ctx, PriorityHigh, "Control loop failing",
				fmt.Sprintf("%d consecutive ticks failed, last error: %v", s.ErrorCount, err))
		}
	} else {
		s.ErrorCount = 0
		s.LastRun = l.clock.Now()
		l.lastRun.Store(s.LastRun.UnixNano())
	}
	l.errorCount.Store(int64(s.ErrorCount))

	attrs := metric.WithAttributes(attribute.String("status", status))
	l.ticks.Add(ctx, 1, attrs)
	l.tickDuration.Record(ctx, l.clock.Now().Sub(start).Seconds(), attrs)
}
