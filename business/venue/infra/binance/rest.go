package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/crossarb/internal/apperror"
	"github.com/fd1az/crossarb/internal/circuitbreaker"
	"github.com/fd1az/crossarb/internal/httpclient"
	"github.com/fd1az/crossarb/internal/logger"
	"github.com/fd1az/crossarb/internal/ratelimit"
)

const (
	tracerName = "binance"
	meterName  = "binance"

	// Binance REST API endpoints
	BaseAPIURL   = "https://api.binance.com"
	BaseAPIURLUS = "https://api.binance.us"

	// Endpoints
	exchangeInfoEndpoint    = "/api/v3/exchangeInfo"
	depthEndpoint           = "/api/v3/depth"
	accountEndpoint         = "/api/v3/account"
	orderEndpoint           = "/api/v3/order"
	openOrdersEndpoint      = "/api/v3/openOrders"
	myTradesEndpoint        = "/api/v3/myTrades"
	depositHistoryEndpoint  = "/sapi/v1/capital/deposit/hisrec"
	withdrawHistoryEndpoint = "/sapi/v1/capital/withdraw/history"
	withdrawEndpoint        = "/sapi/v1/capital/withdraw/apply"
	depositAddressEndpoint  = "/sapi/v1/capital/deposit/address"

	// Default HTTP client settings
	httpTimeout       = 10 * time.Second
	defaultRecvWindow = 5 * time.Second
	defaultWeightRPM  = 1200
)

// RESTConfig holds configuration for the Binance REST client.
type RESTConfig struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	RecvWindow        time.Duration
	Timeout           time.Duration
	RequestsPerMinute int // request weight budget
	HTTPClient        *http.Client
}

// RESTClient is a signed, rate limited Binance REST client.
type RESTClient struct {
	client  httpclient.Client
	config  RESTConfig
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker[*httpclient.Response]
	logger  logger.LoggerInterface
	tracer  trace.Tracer
	now     func() time.Time
}

// NewRESTClient creates a new Binance REST client.
func NewRESTClient(cfg RESTConfig, log logger.LoggerInterface) (*RESTClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseAPIURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = httpTimeout
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = defaultRecvWindow
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = defaultWeightRPM
	}

	tracer := otel.Tracer(tracerName)

	opts := []httpclient.ClientOption{
		httpclient.WithProviderName("binance"),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(cfg.Timeout),
		httpclient.WithTraceOptions(tracer, httpclient.TraceRequest, httpclient.TraceResponse),
		httpclient.WithHeaders(map[string]string{
			"Accept":       "application/json",
			"X-MBX-APIKEY": cfg.APIKey,
		}),
		httpclient.WithSigner("signature", hmacSigner(cfg.APISecret)),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, httpclient.WithHTTPClient(cfg.HTTPClient))
	}

	client, err := httpclient.NewInstrumentedClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	breakerCfg := circuitbreaker.DefaultConfig("binance:" + cfg.BaseURL)
	breakerCfg.IsSuccessful = isBreakerSuccess
	breakerCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "binance circuit breaker state changed",
			"breaker", name, "from", from.String(), "to", to.String())
	}

	return &RESTClient{
		client:  client,
		config:  cfg,
		limiter: ratelimit.New(cfg.RequestsPerMinute),
		breaker: circuitbreaker.New[*httpclient.Response](breakerCfg),
		logger:  log,
		tracer:  tracer,
		now:     time.Now,
	}, nil
}

func hmacSigner(secret string) httpclient.SignFunc {
	return func(payload string) string {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(payload))
		return hex.EncodeToString(mac.Sum(nil))
	}
}

// isBreakerSuccess keeps API-level rejections from tripping the breaker;
// only transport failures and throttling count.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *BinanceAPIError
	return errors.As(err, &apiErr) && apiErr.Code != errCodeTooManyRequests
}

type call struct {
	method   string
	endpoint string
	weight   int
	signed   bool
	params   map[string]string
	result   any
}

func (c *RESTClient) do(ctx context.Context, in call) error {
	ctx, span := c.tracer.Start(ctx, "binance.http."+in.endpoint,
		trace.WithAttributes(
			attribute.String("method", in.method),
			attribute.Bool("signed", in.signed),
		),
	)
	defer span.End()

	if err := c.limiter.WaitN(ctx, in.weight); err != nil {
		return apperror.New(apperror.CodeRateLimitExceeded, apperror.WithCause(err), apperror.WithContext(in.endpoint))
	}

	_, err := c.breaker.Execute(func() (*httpclient.Response, error) {
		opts := []httpclient.RequestOption{
			httpclient.WithLabels(httpclient.NewLabel("endpoint", in.endpoint)),
			httpclient.WithResponseErrorHandler(binanceErrorHandler),
		}
		if in.signed {
			opts = append(opts, httpclient.Signed())
		}

		req := c.client.NewRequestWithOptions(opts...).SetQueryParams(in.params)
		if in.signed {
			req.SetQueryParam("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10)).
				SetQueryParam("recvWindow", strconv.FormatInt(c.config.RecvWindow.Milliseconds(), 10))
		}
		if in.result != nil {
			req.SetResult(in.result)
		}

		switch in.method {
		case http.MethodPost:
			return req.Post(ctx, in.endpoint)
		case http.MethodDelete:
			return req.Delete(ctx, in.endpoint)
		default:
			return req.Get(ctx, in.endpoint)
		}
	})
	if err != nil {
		span.RecordError(err)
		var apiErr *BinanceAPIError
		if errors.As(err, &apiErr) {
			code := apperror.CodeVenueAPIError
			if apiErr.Code == errCodeInsufficientBalance {
				code = apperror.CodeInsufficientBalance
			}
			return apperror.External(code, in.endpoint, err)
		}
		if apperror.IsAppError(err) {
			return err
		}
		return apperror.External(apperror.CodeVenueConnectionFailed, in.endpoint, err)
	}
	return nil
}

// ExchangeInfo returns all symbols and their trading rules.
func (c *RESTClient) ExchangeInfo(ctx context.Context) (*ExchangeInfo, error) {
	var result ExchangeInfo
	err := c.do(ctx, call{method: http.MethodGet, endpoint: exchangeInfoEndpoint, weight: 20, result: &result})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetDepth fetches the top levels of the orderbook.
func (c *RESTClient) GetDepth(ctx context.Context, symbol string, limit int) (*DepthResponse, error) {
	var result DepthResponse
	err := c.do(ctx, call{
		method:   http.MethodGet,
		endpoint: depthEndpoint,
		weight:   5,
		params:   map[string]string{"symbol": symbol, "limit": strconv.Itoa(limit)},
		result:   &result,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Account returns the account balances.
func (c *RESTClient) Account(ctx context.Context) (*AccountResponse, error) {
	var result AccountResponse
	err := c.do(ctx, call{method: http.MethodGet, endpoint: accountEndpoint, weight: 20, signed: true, result: &result})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// NewLimitOrder places a GTC limit order.
func (c *RESTClient) NewLimitOrder(ctx context.Context, symbol, side, price, quantity string) (*OrderResponse, error) {
	var result OrderResponse
	err := c.do(ctx, call{
		method:   http.MethodPost,
		endpoint: orderEndpoint,
		weight:   1,
		signed:   true,
		params: map[string]string{
			"symbol":           symbol,
			"side":             side,
			"type":             "LIMIT",
			"timeInForce":      "GTC",
			"price":            price,
			"quantity":         quantity,
			"newOrderRespType": "RESULT",
		},
		result: &result,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetOrder queries one order.
func (c *RESTClient) GetOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error) {
	var result OrderResponse
	err := c.do(ctx, call{
		method:   http.MethodGet,
		endpoint: orderEndpoint,
		weight:   4,
		signed:   true,
		params:   map[string]string{"symbol": symbol, "orderId": strconv.FormatInt(orderID, 10)},
		result:   &result,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelOrder cancels an open order. ok is false when the order was already
// closed or unknown.
func (c *RESTClient) CancelOrder(ctx context.Context, symbol string, orderID int64) (ok bool, err error) {
	err = c.do(ctx, call{
		method:   http.MethodDelete,
		endpoint: orderEndpoint,
		weight:   1,
		signed:   true,
		params:   map[string]string{"symbol": symbol, "orderId": strconv.FormatInt(orderID, 10)},
	})
	if err != nil {
		var apiErr *BinanceAPIError
		if errors.As(err, &apiErr) && (apiErr.Code == errCodeUnknownOrder || apiErr.Code == errCodeNoSuchOrder) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// OpenOrders lists open orders across all symbols.
func (c *RESTClient) OpenOrders(ctx context.Context) ([]OrderResponse, error) {
	var result []OrderResponse
	err := c.do(ctx, call{method: http.MethodGet, endpoint: openOrdersEndpoint, weight: 80, signed: true, result: &result})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MyTrades returns the executions of one order.
func (c *RESTClient) MyTrades(ctx context.Context, symbol string, orderID int64) ([]Trade, error) {
	var result []Trade
	err := c.do(ctx, call{
		method:   http.MethodGet,
		endpoint: myTradesEndpoint,
		weight:   20,
		signed:   true,
		params:   map[string]string{"symbol": symbol, "orderId": strconv.FormatInt(orderID, 10)},
		result:   &result,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DepositHistory returns deposits since the given time.
func (c *RESTClient) DepositHistory(ctx context.Context, since time.Time) ([]DepositRecord, error) {
	var result []DepositRecord
	err := c.do(ctx, call{
		method:   http.MethodGet,
		endpoint: depositHistoryEndpoint,
		weight:   1,
		signed:   true,
		params:   map[string]string{"startTime": strconv.FormatInt(since.UnixMilli(), 10)},
		result:   &result,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WithdrawHistory returns withdrawals since the given time.
func (c *RESTClient) WithdrawHistory(ctx context.Context, since time.Time) ([]WithdrawRecord, error) {
	var result []WithdrawRecord
	err := c.do(ctx, call{
		method:   http.MethodGet,
		endpoint: withdrawHistoryEndpoint,
		weight:   1,
		signed:   true,
		params:   map[string]string{"startTime": strconv.FormatInt(since.UnixMilli(), 10)},
		result:   &result,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Withdraw submits a withdrawal and returns its id.
func (c *RESTClient) Withdraw(ctx context.Context, coin, network, address, amount string) (string, error) {
	var result WithdrawResponse
	err := c.do(ctx, call{
		method:   http.MethodPost,
		endpoint: withdrawEndpoint,
		weight:   1,
		signed:   true,
		params:   map[string]string{"coin": coin, "network": network, "address": address, "amount": amount},
		result:   &result,
	})
	if err != nil {
		return "", err
	}
	return result.ID, nil
}

// DepositAddress returns the deposit address of coin on network.
func (c *RESTClient) DepositAddress(ctx context.Context, coin, network string) (string, error) {
	var result DepositAddressResponse
	err := c.do(ctx, call{
		method:   http.MethodGet,
		endpoint: depositAddressEndpoint,
		weight:   10,
		signed:   true,
		params:   map[string]string{"coin": coin, "network": network},
		result:   &result,
	})
	if err != nil {
		return "", err
	}
	return result.Address, nil
}
