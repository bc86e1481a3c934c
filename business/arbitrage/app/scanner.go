package app

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/crossarb/business/arbitrage/domain"
	venueApp "github.com/fd1az/crossarb/business/venue/app"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
	"github.com/fd1az/crossarb/internal/apperror"
	"github.com/fd1az/crossarb/internal/logger"
)

const (
	instrumentationName = "arbitrage"

	// DefaultFetchTimeout bounds fetching both books of one market.
	DefaultFetchTimeout = 10 * time.Second
)

// Scanner walks venue pairs and their common markets looking for crossed
// books.
type Scanner struct {
	venues   *venueApp.Registry
	settings Settings
	funds    FundManager
	checker  *Checker
	rng      *rand.Rand
	timeout  time.Duration
	logger   logger.LoggerInterface
	tracer   trace.Tracer

	timeouts metric.Int64Counter
}

// NewScanner creates a Scanner. rng drives every shuffle, so a seeded
// source replays the same scan order.
func NewScanner(venues *venueApp.Registry, settings Settings, funds FundManager, checker *Checker, rng *rand.Rand, timeout time.Duration, log logger.LoggerInterface) (*Scanner, error) {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	timeouts, err := otel.Meter(instrumentationName).Int64Counter(
		"arbitrage_orderbook_timeouts_total",
		metric.WithDescription("Markets skipped because fetching their books took too long"),
	)
	if err != nil {
		return nil, err
	}

	return &Scanner{
		venues:   venues,
		settings: settings,
		funds:    funds,
		checker:  checker,
		rng:      rng,
		timeout:  timeout,
		logger:   log,
		tracer:   otel.Tracer(instrumentationName),
		timeouts: timeouts,
	}, nil
}

// Scan checks pairs in random order and stops at the first executed trade.
// It returns true when a trade happened.
func (s *Scanner) Scan(ctx context.Context, state *domain.LoopState, pairs []domain.VenuePair) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "arbitrage.scan", trace.WithAttributes(attribute.Int("pairs", len(pairs))))
	defer span.End()

	order := append([]domain.VenuePair(nil), pairs...)
	s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for _, p := range order {
		a, err := s.venues.Get(p.A)
		if err != nil {
			return false, err
		}
		b, err := s.venues.Get(p.B)
		if err != nil {
			return false, err
		}

		traded, err := s.scanPair(ctx, state, a, b)
		if traded {
			span.SetAttributes(attribute.String("traded_pair", p.String()))
			return true, err
		}
	}
	return false, nil
}

func (s *Scanner) scanPair(ctx context.Context, state *domain.LoopState, a, b venueApp.Venue) (bool, error) {
	markets, err := s.commonMarkets(ctx, a, b)
	if err != nil {
		s.logger.Warn(ctx, "failed to load markets", "pair", a.ID()+"/"+b.ID(), "error", err)
		return false, nil
	}

	s.rng.Shuffle(len(markets), func(i, j int) { markets[i], markets[j] = markets[j], markets[i] })
	if limit := s.settings.MaxPairsPerRun(); limit > 0 && len(markets) > limit {
		markets = markets[:limit]
	}

	s.logger.Debug(ctx, "checking venue pair", "a", a.ID(), "b", b.ID(), "markets", len(markets))

	for _, m := range markets {
		traded, err := s.checkMarket(ctx, state, a, b, m)
		if traded {
			return true, err
		}
		if err != nil {
			s.logger.Error(ctx, "market check failed", "market", m.String(), "error", err)
		}
	}
	return false, nil
}

// commonMarkets returns the markets listed on both venues, sorted.
func (s *Scanner) commonMarkets(ctx context.Context, a, b venueApp.Venue) ([]venueDomain.Market, error) {
	ma, err := a.TradeablePairs(ctx)
	if err != nil {
		return nil, err
	}
	mb, err := b.TradeablePairs(ctx)
	if err != nil {
		return nil, err
	}

	onB := make(map[venueDomain.Market]struct{}, len(mb))
	for _, m := range mb {
		onB[m] = struct{}{}
	}
	common := make([]venueDomain.Market, 0, len(ma))
	for _, m := range ma {
		if _, ok := onB[m]; ok {
			common = append(common, m)
			delete(onB, m)
		}
	}
	sort.Slice(common, func(i, j int) bool { return common[i].String() < common[j].String() })
	return common, nil
}

func (s *Scanner) checkMarket(ctx context.Context, state *domain.LoopState, a, b venueApp.Venue, m venueDomain.Market) (bool, error) {
	if s.settings.IsBlocked(m.Tradeable) {
		s.logger.Debug(ctx, "skipping blocked market", "market", m.String())
		return false, nil
	}
	if s.funds.InTransit(m.Tradeable) {
		s.logger.Debug(ctx, "skipping market with funds in transit", "market", m.String())
		return false, nil
	}

	bookA, bookB, err := s.fetchBooks(ctx, a, b, m)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeOrderbookTimeout) {
			s.timeouts.Add(ctx, 1, metric.WithAttributes(attribute.String("market", m.String())))
		}
		s.logger.Warn(ctx, "skipping market", "market", m.String(), "a", a.ID(), "b", b.ID(), "error", err)
		return false, nil
	}
	if bookA == nil || bookB == nil {
		s.logger.Debug(ctx, "received invalid orderbook, skipping", "market", m.String())
		return false, nil
	}

	traded, err := s.checker.CheckAndTrade(ctx, state, a, b, bookA, bookB)
	if traded || err != nil {
		return traded, err
	}
	return s.checker.CheckAndTrade(ctx, state, b, a, bookB, bookA)
}

type bookPair struct {
	a, b *venueDomain.Orderbook
	err  error
}

// fetchBooks loads both books concurrently. The deadline is enforced here
// rather than trusted to the venues: a call that overruns is abandoned and
// its result discarded.
func (s *Scanner) fetchBooks(ctx context.Context, a, b venueApp.Venue, m venueDomain.Market) (*venueDomain.Orderbook, *venueDomain.Orderbook, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan bookPair, 1)
	go func() {
		var res bookPair
		g, gctx := errgroup.WithContext(fetchCtx)
		g.Go(func() error {
			ob, err := fetchBook(gctx, a, m)
			res.a = ob
			return err
		})
		g.Go(func() error {
			ob, err := fetchBook(gctx, b, m)
			res.b = ob
			return err
		})
		res.err = g.Wait()
		done <- res
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return nil, nil, apperror.New(apperror.CodeOrderbookTimeout,
				apperror.WithContextf("%s after %s", m, s.timeout), apperror.WithCause(res.err))
		}
		return res.a, res.b, res.err
	case <-timer.C:
		return nil, nil, apperror.New(apperror.CodeOrderbookTimeout, apperror.WithContextf("%s after %s", m, s.timeout))
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// fetchBook returns nil for an empty or unusable book.
func fetchBook(ctx context.Context, v venueApp.Venue, m venueDomain.Market) (*venueDomain.Orderbook, error) {
	ob, err := v.GetOrderbook(ctx, m.Tradeable, m.Currency)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeOrderbookFetchFailed, v.ID()+" "+m.String())
	}
	if ob == nil || ob.Validate() != nil {
		return nil, nil
	}
	return ob, nil
}
