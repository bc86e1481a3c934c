// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Venue kinds.
const (
	VenueKindBinance = "binance"
	VenueKindPaper   = "paper"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Loop      LoopConfig      `mapstructure:"loop"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Venues    []VenueConfig   `mapstructure:"venues"`
	Funds     FundsConfig     `mapstructure:"funds"`
	Assets    []AssetConfig   `mapstructure:"assets"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Health    HealthConfig    `mapstructure:"health"`

	v *viper.Viper
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// LoopConfig holds control loop timing.
type LoopConfig struct {
	Interval              time.Duration `mapstructure:"interval"`
	MarketRefreshInterval time.Duration `mapstructure:"market_refresh_interval"`
	PausePollInterval     time.Duration `mapstructure:"pause_poll_interval"`
	FetchTimeout          time.Duration `mapstructure:"fetch_timeout"`
	ErrorAlertThreshold   int           `mapstructure:"error_alert_threshold"`
	Seed                  int64         `mapstructure:"seed"` // 0 = time based
	ConsoleReport         bool          `mapstructure:"console_report"`
}

// TradingConfig holds the runtime-tunable trading parameters. These are
// re-read on every tick through Dynamic.
type TradingConfig struct {
	Enabled                   bool          `mapstructure:"enabled"`
	MaxPairsPerRun            int           `mapstructure:"max_pairs_per_run"`
	MinProfit                 float64       `mapstructure:"min_profit"`
	SuspiciousPriceDifference float64       `mapstructure:"suspicious_price_difference"`
	MaxTradeSize              float64       `mapstructure:"max_trade_size"`
	BuyRateFactor             float64       `mapstructure:"buy_rate_factor"`
	SellRateFactor            float64       `mapstructure:"sell_rate_factor"`
	OrderCheckDelay           time.Duration `mapstructure:"order_check_delay"`
	ReconcileInterval         time.Duration `mapstructure:"reconcile_interval"`
	CancelStrayOrders         bool          `mapstructure:"cancel_stray_orders"`
	BlockedAssets             []string      `mapstructure:"blocked_assets"`
}

// VenueConfig describes one trading venue.
type VenueConfig struct {
	ID                string             `mapstructure:"id"`
	Name              string             `mapstructure:"name"`
	Kind              string             `mapstructure:"kind"`
	BaseURL           string             `mapstructure:"base_url"`
	WebSocketURL      string             `mapstructure:"websocket_url"`
	APIKey            string             `mapstructure:"api_key"`
	APISecret         string             `mapstructure:"api_secret"`
	TakerFee          float64            `mapstructure:"taker_fee"` // fraction, 0.001 = 0.1%
	SmallestOrderSize float64            `mapstructure:"smallest_order_size"`
	QuoteAssets       []string           `mapstructure:"quote_assets"`
	WatchSymbols      []string           `mapstructure:"watch_symbols"`
	RequestsPerMinute int                `mapstructure:"requests_per_minute"`
	RecvWindow        time.Duration      `mapstructure:"recv_window"`
	Timeout           time.Duration      `mapstructure:"timeout"`
	StaleTimeout      time.Duration      `mapstructure:"stale_timeout"`
	Balances          map[string]float64 `mapstructure:"balances"`   // paper venues only
	PriceSkew         float64            `mapstructure:"price_skew"` // paper venues only
}

// FundsConfig holds rebalancing settings.
type FundsConfig struct {
	RebalanceEnabled  bool          `mapstructure:"rebalance_enabled"`
	RebalanceAssets   []string      `mapstructure:"rebalance_assets"`
	ImbalanceRatio    float64       `mapstructure:"imbalance_ratio"`
	TxFeeSafetyFactor float64       `mapstructure:"tx_fee_safety_factor"`
	PendingTimeout    time.Duration `mapstructure:"pending_timeout"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`

	// Delay before a paper withdrawal is credited on the receiving venue.
	PaperTransferDelay time.Duration `mapstructure:"paper_transfer_delay"`
}

// AssetConfig overrides built-in asset metadata.
type AssetConfig struct {
	Symbol      string  `mapstructure:"symbol"`
	Network     string  `mapstructure:"network"`
	ChainID     uint64  `mapstructure:"chain_id"`
	Contract    string  `mapstructure:"contract"`
	WithdrawFee float64 `mapstructure:"withdraw_fee"`
	MinWithdraw float64 `mapstructure:"min_withdraw"`
}

// StorageConfig selects where the ledger and statistics live.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig holds connection settings for the trade ledger.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// RedisConfig holds connection settings for statistics and runtime flags.
// An empty Addr keeps statistics in memory.
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	PoolSize      int    `mapstructure:"pool_size"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	KeyPrefix     string `mapstructure:"key_prefix"`
	ConfigOverlay bool   `mapstructure:"config_overlay"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"` // zipkin, otlp-grpc, otlp-http, console
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// HealthConfig holds the health server settings.
type HealthConfig struct {
	Port       int           `mapstructure:"port"`
	MaxTickAge time.Duration `mapstructure:"max_tick_age"`
}

// MinProfitDecimal returns the minimum profit threshold.
func (c TradingConfig) MinProfitDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfit)
}

// MaxTradeSizeDecimal returns the per-trade currency cap.
func (c TradingConfig) MaxTradeSizeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxTradeSize)
}

// SuspiciousPriceDifferenceDecimal returns the alert threshold in percent.
func (c TradingConfig) SuspiciousPriceDifferenceDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.SuspiciousPriceDifference)
}

// BuyRateFactorDecimal returns the buy rate inflation factor.
func (c TradingConfig) BuyRateFactorDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.BuyRateFactor)
}

// SellRateFactorDecimal returns the sell rate deflation factor.
func (c TradingConfig) SellRateFactorDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.SellRateFactor)
}

// TakerFeeDecimal returns the venue taker fee fraction.
func (c VenueConfig) TakerFeeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.TakerFee)
}

// SmallestOrderSizeDecimal returns the venue minimum order notional.
func (c VenueConfig) SmallestOrderSizeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.SmallestOrderSize)
}

// PriceSkewDecimal returns the paper venue price shift.
func (c VenueConfig) PriceSkewDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.PriceSkew)
}

// BalancesDecimal returns paper balances keyed by upper-case asset.
func (c VenueConfig) BalancesDecimal() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(c.Balances))
	for k, v := range c.Balances {
		out[strings.ToUpper(k)] = decimal.NewFromFloat(v)
	}
	return out
}

// ImbalanceRatioDecimal returns the ratio that triggers a rebalance.
func (c FundsConfig) ImbalanceRatioDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.ImbalanceRatio)
}

// TxFeeSafetyFactorDecimal returns the multiplier applied to withdrawal fees.
func (c FundsConfig) TxFeeSafetyFactorDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.TxFeeSafetyFactor)
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.v = v

	cfg.applyVenueSecrets()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyVenueSecrets fills empty API credentials from
// ARB_VENUE_<ID>_API_KEY / ARB_VENUE_<ID>_API_SECRET.
func (c *Config) applyVenueSecrets() {
	for i := range c.Venues {
		prefix := "ARB_VENUE_" + envName(c.Venues[i].ID) + "_"
		if c.Venues[i].APIKey == "" {
			c.Venues[i].APIKey = os.Getenv(prefix + "API_KEY")
		}
		if c.Venues[i].APISecret == "" {
			c.Venues[i].APISecret = os.Getenv(prefix + "API_SECRET")
		}
	}
}

func envName(id string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(id))
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")

	// Trading
	v.BindEnv("trading.enabled", "ARB_TRADING_ENABLED", "MODULE_TRADE")
	v.BindEnv("trading.min_profit", "ARB_MIN_PROFIT")
	v.BindEnv("trading.max_trade_size", "ARB_MAX_TRADE_SIZE")

	// Storage
	v.BindEnv("storage.backend", "ARB_STORAGE_BACKEND")
	v.BindEnv("storage.postgres.dsn", "ARB_POSTGRES_DSN", "DATABASE_URL")
	v.BindEnv("storage.redis.addr", "ARB_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("storage.redis.password", "ARB_REDIS_PASSWORD", "REDIS_PASSWORD")

	// Telemetry
	v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_headers", "ARB_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "crossarb")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Loop defaults
	v.SetDefault("loop.interval", "1s")
	v.SetDefault("loop.market_refresh_interval", "1h")
	v.SetDefault("loop.pause_poll_interval", "3s")
	v.SetDefault("loop.fetch_timeout", "10s")
	v.SetDefault("loop.error_alert_threshold", 10)
	v.SetDefault("loop.console_report", true)

	// Trading defaults
	v.SetDefault("trading.enabled", false)
	v.SetDefault("trading.max_pairs_per_run", 10)
	v.SetDefault("trading.min_profit", 0.00005)
	v.SetDefault("trading.suspicious_price_difference", 10)
	v.SetDefault("trading.max_trade_size", 0.05)
	v.SetDefault("trading.buy_rate_factor", 1.01)
	v.SetDefault("trading.sell_rate_factor", 0.99)
	v.SetDefault("trading.order_check_delay", "5s")
	v.SetDefault("trading.reconcile_interval", "2s")
	v.SetDefault("trading.cancel_stray_orders", true)
	v.SetDefault("trading.blocked_assets", []string{})

	// Funds defaults
	v.SetDefault("funds.rebalance_enabled", false)
	v.SetDefault("funds.imbalance_ratio", 4)
	v.SetDefault("funds.tx_fee_safety_factor", 1.1)
	v.SetDefault("funds.pending_timeout", "6h")
	v.SetDefault("funds.lock_ttl", "2m")
	v.SetDefault("funds.paper_transfer_delay", "30s")

	// Storage defaults
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.postgres.max_conns", 5)
	v.SetDefault("storage.redis.key_prefix", "crossarb")
	v.SetDefault("storage.redis.pool_size", 5)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "crossarb")
	v.SetDefault("telemetry.trace_provider", "zipkin")
	v.SetDefault("telemetry.prometheus_port", 9090)

	// Health defaults
	v.SetDefault("health.port", 8081)
	v.SetDefault("health.max_tick_age", "2m")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Venues) < 2 {
		return fmt.Errorf("at least two venues are required, got %d", len(c.Venues))
	}

	seen := make(map[string]bool, len(c.Venues))
	for _, vc := range c.Venues {
		if vc.ID == "" {
			return fmt.Errorf("venue id is required")
		}
		if seen[vc.ID] {
			return fmt.Errorf("duplicate venue id %q", vc.ID)
		}
		seen[vc.ID] = true

		switch vc.Kind {
		case VenueKindBinance, VenueKindPaper:
		default:
			return fmt.Errorf("venue %s: unknown kind %q", vc.ID, vc.Kind)
		}
		if vc.TakerFee < 0 || vc.TakerFee >= 1 {
			return fmt.Errorf("venue %s: taker_fee must be in [0,1)", vc.ID)
		}
	}

	if err := c.Trading.Validate(); err != nil {
		return err
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}

	if c.Loop.FetchTimeout <= 0 {
		return fmt.Errorf("loop.fetch_timeout must be positive")
	}

	return nil
}

// Validate checks the tunable trading values.
func (c TradingConfig) Validate() error {
	if c.MaxPairsPerRun < 0 {
		return fmt.Errorf("trading.max_pairs_per_run cannot be negative")
	}
	if c.BuyRateFactor < 1 {
		return fmt.Errorf("trading.buy_rate_factor must be >= 1, got %v", c.BuyRateFactor)
	}
	if c.SellRateFactor <= 0 || c.SellRateFactor > 1 {
		return fmt.Errorf("trading.sell_rate_factor must be in (0,1], got %v", c.SellRateFactor)
	}
	if c.MaxTradeSize <= 0 {
		return fmt.Errorf("trading.max_trade_size must be positive")
	}
	return nil
}
