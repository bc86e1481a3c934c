// Package memory keeps ledger records and statistics in process memory. It
// backs dry runs and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fd1az/crossarb/business/ledger/app"
	"github.com/fd1az/crossarb/business/ledger/domain"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
	"github.com/fd1az/crossarb/internal/apperror"
)

var (
	_ app.Store      = (*Store)(nil)
	_ app.StatsStore = (*Store)(nil)
)

type fillKey struct {
	venue, order, trade string
}

// Store implements app.Store and app.StatsStore.
type Store struct {
	mu    sync.RWMutex
	stats domain.Stats

	tracks      map[string]domain.Track
	trades      map[string]domain.Trade
	fills       map[fillKey]venueDomain.Fill
	profitLoss  map[string]domain.ProfitLoss
	trackOrder  []string
	tradeOrder  []string
	fillOrder   []fillKey
	profitOrder []string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		tracks:     make(map[string]domain.Track),
		trades:     make(map[string]domain.Trade),
		fills:      make(map[fillKey]venueDomain.Fill),
		profitLoss: make(map[string]domain.ProfitLoss),
	}
}

func (s *Store) SaveTrack(_ context.Context, t domain.Track) error {
	if t.ID == "" {
		return apperror.New(apperror.CodeInvalidInput, apperror.WithContext("track id is required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[t.ID]; !ok {
		s.trackOrder = append(s.trackOrder, t.ID)
	}
	s.tracks[t.ID] = t
	return nil
}

func (s *Store) SaveTrade(_ context.Context, t domain.Trade) error {
	if t.ID == "" {
		return apperror.New(apperror.CodeInvalidInput, apperror.WithContext("trade id is required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trades[t.ID]; !ok {
		s.tradeOrder = append(s.tradeOrder, t.ID)
	}
	s.trades[t.ID] = t
	return nil
}

// SaveFills ignores fills it has already seen.
func (s *Store) SaveFills(_ context.Context, fills []venueDomain.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fills {
		k := fillKey{f.VenueID, f.OrderID, f.TradeID}
		if _, ok := s.fills[k]; ok {
			continue
		}
		s.fills[k] = f
		s.fillOrder = append(s.fillOrder, k)
	}
	return nil
}

func (s *Store) SaveProfitLoss(_ context.Context, pl domain.ProfitLoss) error {
	if pl.ID == "" {
		return apperror.New(apperror.CodeInvalidInput, apperror.WithContext("profit/loss id is required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profitLoss[pl.ID]; !ok {
		s.profitOrder = append(s.profitOrder, pl.ID)
	}
	s.profitLoss[pl.ID] = pl
	return nil
}

func (s *Store) GetStats(context.Context) (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats, nil
}

func (s *Store) SaveStats(_ context.Context, st domain.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.Paused = s.stats.Paused
	s.stats = st
	return nil
}

func (s *Store) Incr(_ context.Context, field string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch field {
	case domain.StatTicks:
		s.stats.Ticks += delta
	case domain.StatTracks:
		s.stats.Tracks += delta
	case domain.StatTrades:
		s.stats.Trades += delta
	default:
		return apperror.New(apperror.CodeInvalidInput, apperror.WithContextf("unknown stat %q", field))
	}
	return nil
}

func (s *Store) SetPaused(_ context.Context, paused bool) error {
	s.mu.Lock()
	s.stats.Paused = paused
	s.mu.Unlock()
	return nil
}

// Tracks returns the stored tracks in insertion order.
func (s *Store) Tracks() []domain.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Track, 0, len(s.trackOrder))
	for _, id := range s.trackOrder {
		out = append(out, s.tracks[id])
	}
	return out
}

// Trades returns the stored trades in insertion order.
func (s *Store) Trades() []domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Trade, 0, len(s.tradeOrder))
	for _, id := range s.tradeOrder {
		out = append(out, s.trades[id])
	}
	return out
}

// Fills returns the stored fills in insertion order.
func (s *Store) Fills() []venueDomain.Fill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]venueDomain.Fill, 0, len(s.fillOrder))
	for _, k := range s.fillOrder {
		out = append(out, s.fills[k])
	}
	return out
}

// ProfitLoss returns the stored outcomes in insertion order.
func (s *Store) ProfitLoss() []domain.ProfitLoss {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ProfitLoss, 0, len(s.profitOrder))
	for _, id := range s.profitOrder {
		out = append(out, s.profitLoss[id])
	}
	return out
}

// Locker is an in-process lock with expiry, used when no Redis is
// configured.
type Locker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocker creates a Locker.
func NewLocker() *Locker {
	return &Locker{held: make(map[string]time.Time), now: time.Now}
}

// Acquire takes key for ttl. It fails with CodeWithdrawLocked while another
// holder's lease is live.
func (l *Locker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, apperror.New(apperror.CodeWithdrawLocked, apperror.WithContext(key))
	}
	until := now.Add(ttl)
	l.held[key] = until

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.held[key].Equal(until) {
				delete(l.held, key)
			}
			l.mu.Unlock()
		})
	}, nil
}
