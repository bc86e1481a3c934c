// Package di contains dependency injection tokens for the ledger context.
package di

import (
	"github.com/fd1az/crossarb/business/ledger/app"
	"github.com/fd1az/crossarb/internal/config"
	"github.com/fd1az/crossarb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Service = di.NewToken[*app.Service]("ledger.Service")
	Matcher = di.NewToken[*app.Matcher]("ledger.Matcher")
	Locker  = di.NewToken[app.Locker]("ledger.Locker")
	// ConfigOverlay resolves to nil unless the Redis overlay is enabled.
	ConfigOverlay = di.NewToken[config.Overlay]("ledger.ConfigOverlay")
)

// Private dependency tokens - internal to ledger module
var (
	Store      = di.NewToken[app.Store]("ledger:store")
	StatsStore = di.NewToken[app.StatsStore]("ledger:statsStore")
)

// Helper functions for type-safe access
func GetService(c di.ServiceRegistry) *app.Service {
	return di.GetToken(c, Service)
}

func GetMatcher(c di.ServiceRegistry) *app.Matcher {
	return di.GetToken(c, Matcher)
}

func GetLocker(c di.ServiceRegistry) app.Locker {
	return di.GetToken(c, Locker)
}

// GetConfigOverlay returns nil when no overlay is configured.
func GetConfigOverlay(c di.ServiceRegistry) config.Overlay {
	v := c.Get(ConfigOverlay.Name())
	if v == nil {
		return nil
	}
	return v.(config.Overlay)
}

func GetStore(c di.ServiceRegistry) app.Store {
	return di.GetToken(c, Store)
}

func GetStatsStore(c di.ServiceRegistry) app.StatsStore {
	return di.GetToken(c, StatsStore)
}
