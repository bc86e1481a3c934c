// Package ledger implements the ledger bounded context: trade records,
// fills, realized profit and the statistics the control loop keeps.
package ledger

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fd1az/crossarb/business/ledger/app"
	ledgerDI "github.com/fd1az/crossarb/business/ledger/di"
	"github.com/fd1az/crossarb/business/ledger/infra/memory"
	"github.com/fd1az/crossarb/business/ledger/infra/postgres"
	redisstore "github.com/fd1az/crossarb/business/ledger/infra/redis"
	"github.com/fd1az/crossarb/internal/config"
	"github.com/fd1az/crossarb/internal/di"
	"github.com/fd1az/crossarb/internal/logger"
	"github.com/fd1az/crossarb/internal/monolith"
)

// Module implements the ledger bounded context.
type Module struct{}

// RegisterServices registers all ledger services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Shared in-memory fallback for whichever stores are not configured.
	mem := memory.NewStore()

	di.RegisterToken(c, ledgerDI.Store, func(sr di.ServiceRegistry) app.Store {
		if pool := sr.Get("db").(*pgxpool.Pool); pool != nil {
			return postgres.NewStore(pool)
		}
		return mem
	})

	di.RegisterToken(c, ledgerDI.StatsStore, func(sr di.ServiceRegistry) app.StatsStore {
		cfg := sr.Get("config").(*config.Config)
		if rdb := sr.Get("redis").(*redis.Client); rdb != nil {
			return redisstore.NewStatsStore(rdb, redisstore.NewKeys(cfg.Storage.Redis.KeyPrefix))
		}
		return mem
	})

	di.RegisterToken(c, ledgerDI.Locker, func(sr di.ServiceRegistry) app.Locker {
		cfg := sr.Get("config").(*config.Config)
		if rdb := sr.Get("redis").(*redis.Client); rdb != nil {
			return redisstore.NewLocker(rdb, redisstore.NewKeys(cfg.Storage.Redis.KeyPrefix))
		}
		return memory.NewLocker()
	})

	di.RegisterToken(c, ledgerDI.ConfigOverlay, func(sr di.ServiceRegistry) config.Overlay {
		cfg := sr.Get("config").(*config.Config)
		rdb := sr.Get("redis").(*redis.Client)
		if rdb == nil || !cfg.Storage.Redis.ConfigOverlay {
			return nil
		}
		return redisstore.NewOverlay(rdb, redisstore.NewKeys(cfg.Storage.Redis.KeyPrefix))
	})

	di.RegisterToken(c, ledgerDI.Service, func(sr di.ServiceRegistry) *app.Service {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewService(ledgerDI.GetStore(sr), ledgerDI.GetStatsStore(sr), log)
	})

	di.RegisterToken(c, ledgerDI.Matcher, func(sr di.ServiceRegistry) *app.Matcher {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewMatcher(ledgerDI.GetStore(sr), log)
	})

	return nil
}

// Startup applies the Postgres migrations when the ledger lives there.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	store := ledgerDI.GetStore(mono.Services())
	if pg, ok := store.(*postgres.Store); ok {
		if err := pg.RunMigrations(ctx); err != nil {
			return err
		}
		log.Info(ctx, "ledger migrations applied")
	}

	log.Info(ctx, "ledger module started", "store", storeName(store))
	return nil
}

func storeName(s app.Store) string {
	if _, ok := s.(*postgres.Store); ok {
		return config.StoragePostgres
	}
	return config.StorageMemory
}
