// Package arbitrage implements the arbitrage bounded context: the control
// loop, the opportunity scanner and trade execution.
package arbitrage

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/fd1az/crossarb/business/arbitrage/app"
	arbitrageDI "github.com/fd1az/crossarb/business/arbitrage/di"
	"github.com/fd1az/crossarb/business/arbitrage/infra"
	fundsDI "github.com/fd1az/crossarb/business/funds/di"
	ledgerDI "github.com/fd1az/crossarb/business/ledger/di"
	venueDI "github.com/fd1az/crossarb/business/venue/di"
	"github.com/fd1az/crossarb/internal/config"
	"github.com/fd1az/crossarb/internal/di"
	"github.com/fd1az/crossarb/internal/health"
	"github.com/fd1az/crossarb/internal/logger"
	"github.com/fd1az/crossarb/internal/monolith"
)

// Module implements the arbitrage bounded context.
type Module struct {
	// Once runs a single tick during Startup instead of the background loop.
	Once bool
}

// RegisterServices registers all arbitrage services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, arbitrageDI.Settings, func(sr di.ServiceRegistry) *config.Dynamic {
		cfg := sr.Get("config").(*config.Config)
		return cfg.Dynamic(ledgerDI.GetConfigOverlay(sr))
	})

	di.RegisterToken(c, arbitrageDI.Alerter, func(sr di.ServiceRegistry) app.Alerter {
		return infra.NewLogAlerter(sr.Get("logger").(logger.LoggerInterface))
	})

	c.RegisterFactory(arbitrageDI.Reporter.Name(), func(sr di.ServiceRegistry) any {
		cfg := sr.Get("config").(*config.Config)
		if !cfg.Loop.ConsoleReport {
			return nil
		}
		return app.Reporter(infra.NewConsoleReporter(os.Stdout))
	})

	di.RegisterToken(c, arbitrageDI.Trader, func(sr di.ServiceRegistry) *app.Trader {
		log := sr.Get("logger").(logger.LoggerInterface)
		trader, err := app.NewTrader(
			arbitrageDI.GetSettings(sr),
			fundsDI.GetManager(sr),
			ledgerDI.GetMatcher(sr),
			ledgerDI.GetService(sr),
			arbitrageDI.GetReporter(sr),
			arbitrageDI.GetAlerter(sr),
			app.SystemClock{},
			log,
		)
		if err != nil {
			panic("failed to create trader: " + err.Error())
		}
		return trader
	})

	di.RegisterToken(c, arbitrageDI.Checker, func(sr di.ServiceRegistry) *app.Checker {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewChecker(
			arbitrageDI.GetSettings(sr),
			fundsDI.GetManager(sr),
			ledgerDI.GetService(sr),
			arbitrageDI.GetTrader(sr),
			arbitrageDI.GetAlerter(sr),
			log,
		)
	})

	di.RegisterToken(c, arbitrageDI.Scanner, func(sr di.ServiceRegistry) *app.Scanner {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		seed := cfg.Loop.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		scanner, err := app.NewScanner(
			venueDI.GetRegistry(sr),
			arbitrageDI.GetSettings(sr),
			fundsDI.GetManager(sr),
			arbitrageDI.GetChecker(sr),
			rand.New(rand.NewSource(seed)),
			cfg.Loop.FetchTimeout,
			log,
		)
		if err != nil {
			panic("failed to create scanner: " + err.Error())
		}
		return scanner
	})

	di.RegisterToken(c, arbitrageDI.Housekeeper, func(sr di.ServiceRegistry) *app.Housekeeper {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewHousekeeper(venueDI.GetRegistry(sr), arbitrageDI.GetSettings(sr), log)
	})

	// Register Loop (public - exposed to other modules)
	di.RegisterToken(c, arbitrageDI.Loop, func(sr di.ServiceRegistry) *app.Loop {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		loop, err := app.NewLoop(
			app.LoopConfig{
				Interval:              cfg.Loop.Interval,
				MarketRefreshInterval: cfg.Loop.MarketRefreshInterval,
				PausePollInterval:     cfg.Loop.PausePollInterval,
				ErrorAlertThreshold:   cfg.Loop.ErrorAlertThreshold,
			},
			venueDI.GetRegistry(sr),
			arbitrageDI.GetSettings(sr),
			arbitrageDI.GetHousekeeper(sr),
			fundsDI.GetManager(sr),
			arbitrageDI.GetScanner(sr),
			ledgerDI.GetService(sr),
			arbitrageDI.GetAlerter(sr),
			app.SystemClock{},
			log,
		)
		if err != nil {
			panic("failed to create control loop: " + err.Error())
		}
		return loop
	})

	return nil
}

// Startup registers the loop health checks and starts the control loop.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()
	loop := arbitrageDI.GetLoop(mono.Services())

	if hs := mono.Health(); hs != nil {
		hs.RegisterCheck("loop", health.Recency(loop.LastRun, cfg.Health.MaxTickAge))
		hs.RegisterCheck("loop.errors", func(ctx context.Context) (bool, string) {
			n := loop.ErrorCount()
			if n >= cfg.Loop.ErrorAlertThreshold {
				return false, fmt.Sprintf("%d consecutive failed ticks", n)
			}
			return true, ""
		})
	}

	log.Info(ctx, "arbitrage module started",
		"pairs", len(loop.Pairs()),
		"trading", arbitrageDI.GetSettings(mono.Services()).TradingEnabled(),
		"once", m.Once,
	)

	if m.Once {
		return loop.Tick(ctx)
	}

	go func() {
		if err := loop.Run(ctx); err != nil {
			log.Error(ctx, "control loop stopped", "error", err)
		}
	}()
	return nil
}
