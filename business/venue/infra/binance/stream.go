package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/crossarb/internal/apperror"
	"github.com/fd1az/crossarb/internal/logger"
	"github.com/fd1az/crossarb/internal/wsconn"
)

const (
	// Binance WebSocket endpoints
	BaseWSURL   = "wss://stream.binance.com:9443"
	BaseWSURLUS = "wss://stream.binance.us:9443"

	// Keep-alive interval (Binance requires message every 3 min)
	keepAliveInterval = 2 * time.Minute
)

// StreamConfig holds configuration for the book ticker stream.
type StreamConfig struct {
	BaseURL      string
	Symbols      []string      // initial symbols, e.g. "BTCUSDT"
	StaleTimeout time.Duration // quotes older than this are ignored
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type quote struct {
	bid     level
	ask     level
	updated time.Time
}

type level struct {
	price  decimal.Decimal
	amount decimal.Decimal
}

type streamMetrics struct {
	messagesReceived metric.Int64Counter
	parseErrors      metric.Int64Counter
	subscriptions    metric.Int64UpDownCounter
}

// Stream keeps the latest best bid/ask per symbol from the bookTicker
// streams. Reads are served from memory.
type Stream struct {
	config StreamConfig
	logger logger.LoggerInterface

	conn   *wsconn.Client
	connMu sync.RWMutex

	quotes   map[string]quote
	quotesMu sync.RWMutex

	subscriptions map[string]struct{}
	subsMu        sync.RWMutex
	nextID        atomic.Int64

	stopKeepAlive chan struct{}
	stopOnce      sync.Once

	tracer  trace.Tracer
	metrics *streamMetrics
	now     func() time.Time
}

// NewStream creates a book ticker stream. It does not connect.
func NewStream(cfg StreamConfig, log logger.LoggerInterface) (*Stream, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseWSURL
	}
	if cfg.StaleTimeout == 0 {
		cfg.StaleTimeout = 5 * time.Second
	}

	s := &Stream{
		config:        cfg,
		logger:        log,
		quotes:        make(map[string]quote),
		subscriptions: make(map[string]struct{}),
		stopKeepAlive: make(chan struct{}),
		tracer:        otel.Tracer(tracerName),
		now:           time.Now,
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *Stream) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &streamMetrics{}

	s.metrics.messagesReceived, err = meter.Int64Counter(
		"binance_messages_total",
		metric.WithDescription("Total messages received"),
	)
	if err != nil {
		return err
	}

	s.metrics.parseErrors, err = meter.Int64Counter(
		"binance_parse_errors_total",
		metric.WithDescription("Message parse errors"),
	)
	if err != nil {
		return err
	}

	s.metrics.subscriptions, err = meter.Int64UpDownCounter(
		"binance_subscriptions",
		metric.WithDescription("Active subscriptions"),
	)
	return err
}

// Connect opens the combined stream for the configured symbols.
func (s *Stream) Connect(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "binance.stream.connect",
		trace.WithAttributes(attribute.StringSlice("symbols", s.config.Symbols)),
	)
	defer span.End()

	wsURL, err := s.buildStreamURL()
	if err != nil {
		return err
	}

	wsCfg := wsconn.DefaultConfig(wsURL, "binance")
	wsCfg.ReadTimeout = s.config.ReadTimeout
	if s.config.WriteTimeout > 0 {
		wsCfg.WriteTimeout = s.config.WriteTimeout
	}

	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return apperror.New(apperror.CodeVenueConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to create wsconn"))
	}
	conn.OnMessage(s.handleMessage)
	conn.OnReconnect(s.resubscribe)
	conn.OnStateChange(func(state wsconn.State, err error) {
		if err != nil {
			s.logger.Warn(context.Background(), "binance stream state changed", "state", state, "error", err)
		}
	})

	if err := conn.ConnectWithRetry(ctx); err != nil {
		conn.Close()
		return apperror.New(apperror.CodeVenueConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to connect to Binance stream"))
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.subsMu.Lock()
	for _, sym := range s.config.Symbols {
		s.subscriptions[BookTickerStream(sym)] = struct{}{}
	}
	s.subsMu.Unlock()
	s.metrics.subscriptions.Add(ctx, int64(len(s.config.Symbols)))

	go s.keepAlive(context.WithoutCancel(ctx))

	s.logger.Info(ctx, "binance stream connected", "url", wsURL, "symbols", s.config.Symbols)
	return nil
}

// buildStreamURL constructs the combined streams WebSocket URL.
func (s *Stream) buildStreamURL() (string, error) {
	if len(s.config.Symbols) == 0 {
		return "", apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no symbols configured"))
	}

	streams := make([]string, 0, len(s.config.Symbols))
	for _, sym := range s.config.Symbols {
		streams = append(streams, BookTickerStream(sym))
	}

	u, err := url.Parse(s.config.BaseURL)
	if err != nil {
		return "", err
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// Subscribe adds book ticker streams for symbols.
func (s *Stream) Subscribe(ctx context.Context, symbols ...string) error {
	streams := make([]string, 0, len(symbols))
	s.subsMu.RLock()
	for _, sym := range symbols {
		if _, ok := s.subscriptions[BookTickerStream(sym)]; !ok {
			streams = append(streams, BookTickerStream(sym))
		}
	}
	s.subsMu.RUnlock()
	if len(streams) == 0 {
		return nil
	}

	if err := s.send(ctx, "SUBSCRIBE", streams); err != nil {
		return err
	}

	s.subsMu.Lock()
	for _, st := range streams {
		s.subscriptions[st] = struct{}{}
	}
	s.subsMu.Unlock()
	s.metrics.subscriptions.Add(ctx, int64(len(streams)))
	return nil
}

// resubscribe restores streams added after the initial connect.
func (s *Stream) resubscribe(ctx context.Context) error {
	s.subsMu.RLock()
	streams := make([]string, 0, len(s.subscriptions))
	for st := range s.subscriptions {
		streams = append(streams, st)
	}
	s.subsMu.RUnlock()
	sort.Strings(streams)

	s.logger.Info(ctx, "binance stream reconnected", "streams", len(streams))
	if len(streams) == 0 {
		return nil
	}
	return s.send(ctx, "SUBSCRIBE", streams)
}

func (s *Stream) send(ctx context.Context, method string, params []string) error {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return apperror.New(apperror.CodeVenueConnectionFailed,
			apperror.WithContext("not connected"))
	}

	req := WSRequest{Method: method, Params: params, ID: s.nextID.Add(1)}
	if err := conn.SendJSON(ctx, req); err != nil {
		return apperror.New(apperror.CodeVenueConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext(strings.ToLower(method)+" failed"))
	}
	return nil
}

// handleMessage processes incoming WebSocket messages.
func (s *Stream) handleMessage(ctx context.Context, data []byte) {
	s.metrics.messagesReceived.Add(ctx, 1)

	var event StreamEvent
	if err := json.Unmarshal(data, &event); err != nil || event.Stream == "" {
		// Subscription confirmations carry only an id.
		var resp WSResponse
		if json.Unmarshal(data, &resp) == nil && resp.ID != 0 {
			return
		}
		s.metrics.parseErrors.Add(ctx, 1)
		s.logger.Debug(ctx, "failed to parse message", "data", string(data[:min(len(data), 200)]))
		return
	}

	if !strings.HasSuffix(event.Stream, "@bookTicker") {
		return
	}

	var ticker BookTickerEvent
	if err := json.Unmarshal(event.Data, &ticker); err != nil {
		s.metrics.parseErrors.Add(ctx, 1)
		return
	}
	s.handleBookTicker(ctx, &ticker)
}

func (s *Stream) handleBookTicker(ctx context.Context, event *BookTickerEvent) {
	bid, bidQty, ask, askQty, err := event.Parse()
	if err != nil {
		s.metrics.parseErrors.Add(ctx, 1)
		s.logger.Debug(ctx, "failed to parse book ticker", "symbol", event.Symbol, "error", err)
		return
	}

	s.quotesMu.Lock()
	s.quotes[strings.ToUpper(event.Symbol)] = quote{
		bid:     level{price: bid, amount: bidQty},
		ask:     level{price: ask, amount: askQty},
		updated: s.now(),
	}
	s.quotesMu.Unlock()
}

// Quote returns the cached best bid/ask for symbol when it is fresh.
func (s *Stream) Quote(symbol string) (bid, bidQty, ask, askQty decimal.Decimal, at time.Time, ok bool) {
	s.quotesMu.RLock()
	q, found := s.quotes[strings.ToUpper(symbol)]
	s.quotesMu.RUnlock()

	if !found || s.now().Sub(q.updated) > s.config.StaleTimeout {
		return
	}
	return q.bid.price, q.bid.amount, q.ask.price, q.ask.amount, q.updated, true
}

// keepAlive sends periodic requests to keep the connection alive.
func (s *Stream) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopKeepAlive:
			return
		case <-ticker.C:
			if err := s.send(ctx, "LIST_SUBSCRIPTIONS", nil); err != nil {
				s.logger.Warn(ctx, "keep-alive failed", "error", err)
			}
		}
	}
}

// IsConnected returns whether the stream is connected.
func (s *Stream) IsConnected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conn != nil && s.conn.IsConnected()
}

// Close closes the stream connection.
func (s *Stream) Close() error {
	s.stopOnce.Do(func() { close(s.stopKeepAlive) })

	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
