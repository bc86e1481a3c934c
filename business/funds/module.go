// Package funds implements the funds bounded context: withdrawals between
// venues, transfer tracking and rebalancing.
package funds

import (
	"context"

	"github.com/fd1az/crossarb/business/funds/app"
	fundsDI "github.com/fd1az/crossarb/business/funds/di"
	ledgerDI "github.com/fd1az/crossarb/business/ledger/di"
	venueDI "github.com/fd1az/crossarb/business/venue/di"
	"github.com/fd1az/crossarb/internal/asset"
	"github.com/fd1az/crossarb/internal/config"
	"github.com/fd1az/crossarb/internal/di"
	"github.com/fd1az/crossarb/internal/logger"
	"github.com/fd1az/crossarb/internal/monolith"
)

// Module implements the funds bounded context.
type Module struct{}

// RegisterServices registers all funds services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, fundsDI.Manager, func(sr di.ServiceRegistry) *app.Manager {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		assets := sr.Get("assetRegistry").(*asset.Registry)

		manager, err := app.NewManager(
			venueDI.GetRegistry(sr),
			assets,
			ledgerDI.GetLocker(sr),
			app.Config{
				RebalanceEnabled:  cfg.Funds.RebalanceEnabled,
				RebalanceAssets:   cfg.Funds.RebalanceAssets,
				ImbalanceRatio:    cfg.Funds.ImbalanceRatioDecimal(),
				TxFeeSafetyFactor: cfg.Funds.TxFeeSafetyFactorDecimal(),
				PendingTimeout:    cfg.Funds.PendingTimeout,
				LockTTL:           cfg.Funds.LockTTL,
			},
			log,
		)
		if err != nil {
			panic("failed to create fund manager: " + err.Error())
		}
		return manager
	})

	return nil
}

// Startup initializes the funds module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	fundsDI.GetManager(mono.Services())

	mono.Logger().Info(ctx, "funds module started",
		"rebalance", cfg.Funds.RebalanceEnabled, "assets", cfg.Funds.RebalanceAssets)
	return nil
}
