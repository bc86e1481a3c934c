// Package venue implements the venue bounded context: exchange connectivity,
// wallets, orders and transfers.
package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/fd1az/crossarb/business/venue/app"
	venueDI "github.com/fd1az/crossarb/business/venue/di"
	"github.com/fd1az/crossarb/business/venue/domain"
	"github.com/fd1az/crossarb/business/venue/infra/binance"
	"github.com/fd1az/crossarb/business/venue/infra/paper"
	"github.com/fd1az/crossarb/internal/asset"
	"github.com/fd1az/crossarb/internal/config"
	"github.com/fd1az/crossarb/internal/di"
	"github.com/fd1az/crossarb/internal/logger"
	"github.com/fd1az/crossarb/internal/monolith"
)

const healthCheckTimeout = 5 * time.Second

// Module implements the venue bounded context.
type Module struct{}

// RegisterServices registers all venue services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register the paper transfer network - private dependency
	di.RegisterToken(c, venueDI.PaperNetwork, func(sr di.ServiceRegistry) *paper.Network {
		cfg := sr.Get("config").(*config.Config)
		assets := sr.Get("assetRegistry").(*asset.Registry)
		return paper.NewNetwork(cfg.Funds.PaperTransferDelay, assets)
	})

	// Register Registry (public - exposed to other modules)
	di.RegisterToken(c, venueDI.Registry, func(sr di.ServiceRegistry) *app.Registry {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		assets := sr.Get("assetRegistry").(*asset.Registry)

		venues := make([]app.Venue, 0, len(cfg.Venues))
		for _, vc := range cfg.Venues {
			v, err := buildVenue(vc, assets, sr, log)
			if err != nil {
				panic("failed to create venue " + vc.ID + ": " + err.Error())
			}
			venues = append(venues, v)
		}

		registry, err := app.NewRegistry(venues...)
		if err != nil {
			panic("failed to create venue registry: " + err.Error())
		}
		return registry
	})

	return nil
}

func buildVenue(vc config.VenueConfig, assets *asset.Registry, sr di.ServiceRegistry, log logger.LoggerInterface) (app.Venue, error) {
	fees := domain.FeeSchedule{
		Taker:         vc.TakerFeeDecimal(),
		SmallestOrder: vc.SmallestOrderSizeDecimal(),
	}

	markets := make([]domain.Market, 0, len(vc.WatchSymbols))
	for _, s := range vc.WatchSymbols {
		market, err := domain.ParseMarket(s)
		if err != nil {
			return nil, fmt.Errorf("watch symbol: %w", err)
		}
		markets = append(markets, market)
	}

	switch vc.Kind {
	case config.VenueKindBinance:
		return binance.NewVenue(binanceConfig(vc, fees, markets), assets, log)

	case config.VenueKindPaper:
		pc := paper.Config{
			ID:       vc.ID,
			Name:     vc.Name,
			Fees:     fees,
			Markets:  markets,
			Balances: vc.BalancesDecimal(),
			Skew:     vc.PriceSkewDecimal(),
		}
		// A base URL turns on public Binance quotes as the price source.
		if vc.BaseURL != "" {
			source, err := binance.NewVenue(binanceConfig(vc, fees, markets), assets, log)
			if err != nil {
				return nil, err
			}
			pc.Source = source
		}
		return paper.NewVenue(pc, venueDI.GetPaperNetwork(sr), log), nil
	}

	return nil, fmt.Errorf("unknown venue kind %q", vc.Kind)
}

func binanceConfig(vc config.VenueConfig, fees domain.FeeSchedule, markets []domain.Market) binance.Config {
	bc := binance.Config{
		ID:          vc.ID,
		Name:        vc.Name,
		Fees:        fees,
		QuoteAssets: vc.QuoteAssets,
		REST: binance.RESTConfig{
			BaseURL:           vc.BaseURL,
			APIKey:            vc.APIKey,
			APISecret:         vc.APISecret,
			RecvWindow:        vc.RecvWindow,
			Timeout:           vc.Timeout,
			RequestsPerMinute: vc.RequestsPerMinute,
		},
	}
	if len(markets) > 0 {
		symbols := make([]string, len(markets))
		for i, m := range markets {
			symbols[i] = m.Symbol()
		}
		bc.Stream = &binance.StreamConfig{
			BaseURL:      vc.WebSocketURL,
			Symbols:      symbols,
			StaleTimeout: vc.StaleTimeout,
		}
	}
	return bc
}

type connector interface {
	Connect(ctx context.Context) error
	Close() error
}

// Startup connects the venue streams and registers venue health checks.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	registry := venueDI.GetRegistry(mono.Services())

	for _, v := range registry.All() {
		if hs := mono.Health(); hs != nil {
			hs.RegisterCheck("venue."+v.ID(), app.HealthCheck(v, healthCheckTimeout))
		}

		conn, ok := v.(connector)
		if !ok {
			continue
		}
		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		// Try to connect with a short timeout - don't block startup
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := conn.Connect(connectCtx)
		cancel()
		if err == nil {
			continue
		}

		log.Warn(ctx, "venue stream connection failed, will retry in background", "venue", v.ID(), "error", err)
		go func(id string) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
					if err := conn.Connect(ctx); err != nil {
						log.Warn(ctx, "venue stream retry failed", "venue", id, "error", err)
					} else {
						log.Info(ctx, "venue stream connected", "venue", id)
						return
					}
				}
			}
		}(v.ID())
	}

	log.Info(ctx, "venue module started", "venues", registry.Len())
	return nil
}
