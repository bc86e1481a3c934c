// Package di contains dependency injection tokens for the arbitrage context.
package di

import (
	"github.com/fd1az/crossarb/business/arbitrage/app"
	"github.com/fd1az/crossarb/internal/config"
	"github.com/fd1az/crossarb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Loop = di.NewToken[*app.Loop]("arbitrage.Loop")
)

// Private dependency tokens - internal to arbitrage module
var (
	Settings    = di.NewToken[*config.Dynamic]("arbitrage:settings")
	Alerter     = di.NewToken[app.Alerter]("arbitrage:alerter")
	Reporter    = di.NewToken[app.Reporter]("arbitrage:reporter")
	Trader      = di.NewToken[*app.Trader]("arbitrage:trader")
	Checker     = di.NewToken[*app.Checker]("arbitrage:checker")
	Scanner     = di.NewToken[*app.Scanner]("arbitrage:scanner")
	Housekeeper = di.NewToken[*app.Housekeeper]("arbitrage:housekeeper")
)

// Helper functions for type-safe access
func GetLoop(c di.ServiceRegistry) *app.Loop {
	return di.GetToken(c, Loop)
}

func GetSettings(c di.ServiceRegistry) *config.Dynamic {
	return di.GetToken(c, Settings)
}

func GetAlerter(c di.ServiceRegistry) app.Alerter {
	return di.GetToken(c, Alerter)
}

// GetReporter returns nil when console reports are disabled.
func GetReporter(c di.ServiceRegistry) app.Reporter {
	v := c.Get(Reporter.Name())
	if v == nil {
		return nil
	}
	return v.(app.Reporter)
}

func GetTrader(c di.ServiceRegistry) *app.Trader {
	return di.GetToken(c, Trader)
}

func GetChecker(c di.ServiceRegistry) *app.Checker {
	return di.GetToken(c, Checker)
}

func GetScanner(c di.ServiceRegistry) *app.Scanner {
	return di.GetToken(c, Scanner)
}

func GetHousekeeper(c di.ServiceRegistry) *app.Housekeeper {
	return di.GetToken(c, Housekeeper)
}
