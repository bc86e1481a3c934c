// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/internal/asset"
	"github.com/fd1az/crossarb/internal/config"
	"github.com/fd1az/crossarb/internal/di"
	"github.com/fd1az/crossarb/internal/health"
	"github.com/fd1az/crossarb/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	AssetRegistry() *asset.Registry
	// Redis returns nil when storage.redis.addr is empty.
	Redis() *redis.Client
	// DB returns nil unless storage.backend is postgres.
	DB() *pgxpool.Pool
	// Health is where modules register their checks.
	Health() *health.Server
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

type app struct {
	config        *config.Config
	logger        logger.LoggerInterface
	assetRegistry *asset.Registry
	redis         *redis.Client
	db            *pgxpool.Pool
	health        *health.Server
	container     di.Container
}

// New connects the shared stores and registers the global services.
func New(ctx context.Context, cfg *config.Config, log logger.LoggerInterface, hs *health.Server) (*app, error) {
	registry, err := BuildAssetRegistry(cfg.Assets)
	if err != nil {
		return nil, err
	}

	a := &app{
		config:        cfg,
		logger:        log,
		assetRegistry: registry,
		health:        hs,
		container:     di.NewContainer(),
	}

	if cfg.Storage.Redis.Addr != "" {
		a.redis = newRedis(cfg.Storage.Redis)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Storage.Redis.Addr, err)
		}
		log.Info(ctx, "redis connected", "addr", cfg.Storage.Redis.Addr)
	}

	if cfg.Storage.Backend == config.StoragePostgres {
		a.db, err = newPool(ctx, cfg.Storage.Postgres)
		if err != nil {
			a.Close()
			return nil, err
		}
		log.Info(ctx, "postgres connected")
	}

	if hs != nil {
		if a.redis != nil {
			hs.RegisterCheck("redis", health.Ping(func(ctx context.Context) error {
				return a.redis.Ping(ctx).Err()
			}))
		}
		if a.db != nil {
			hs.RegisterCheck("postgres", health.Ping(a.db.Ping))
		}
	}

	a.container.Register("config", cfg)
	a.container.Register("logger", log)
	a.container.Register("assetRegistry", registry)
	a.container.Register("redis", a.redis)
	a.container.Register("db", a.db)

	return a, nil
}

func newRedis(cfg config.RedisConfig) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

func newPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// BuildAssetRegistry starts from the well-known assets and applies the
// configured overrides.
func BuildAssetRegistry(overrides []config.AssetConfig) (*asset.Registry, error) {
	registry := asset.DefaultRegistry()

	for _, ac := range overrides {
		if strings.TrimSpace(ac.Symbol) == "" {
			return nil, fmt.Errorf("asset override without symbol")
		}

		opts := []asset.Option{
			asset.WithWithdrawFee(decimal.NewFromFloat(ac.WithdrawFee)),
			asset.WithMinWithdraw(decimal.NewFromFloat(ac.MinWithdraw)),
		}
		if ac.Network != "" {
			opts = append(opts, asset.WithNetwork(ac.Network))
		}
		if ac.ChainID != 0 {
			var contract common.Address
			if ac.Contract != "" {
				if !common.IsHexAddress(ac.Contract) {
					return nil, fmt.Errorf("asset %s: invalid contract %q", ac.Symbol, ac.Contract)
				}
				contract = common.HexToAddress(ac.Contract)
			}
			opts = append(opts, asset.WithEVM(ac.ChainID, contract))
		}

		registry.Register(asset.New(ac.Symbol, opts...))
	}

	return registry, nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) AssetRegistry() *asset.Registry {
	return a.assetRegistry
}

func (a *app) Redis() *redis.Client {
	return a.redis
}

func (a *app) DB() *pgxpool.Pool {
	return a.db
}

func (a *app) Health() *health.Server {
	return a.health
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all resources.
func (a *app) Close() error {
	var err error
	if a.redis != nil {
		err = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	return err
}
