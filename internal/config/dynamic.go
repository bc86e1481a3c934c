package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Overlay supplies runtime overrides for trading keys, e.g. from Redis.
// Keys are the mapstructure names under "trading" ("min_profit").
type Overlay interface {
	Values(ctx context.Context) (map[string]string, error)
}

// Dynamic exposes the trading parameters and re-reads them on Refresh.
// When a refresh fails the last good values stay in effect.
type Dynamic struct {
	mu      sync.RWMutex
	v       *viper.Viper
	overlay Overlay
	current TradingConfig
	loaded  time.Time
}

// NewDynamic wraps static trading values. v may be nil, in which case
// Refresh only applies the overlay.
func NewDynamic(initial TradingConfig, v *viper.Viper, overlay Overlay) *Dynamic {
	return &Dynamic{
		v:       v,
		overlay: overlay,
		current: initial,
		loaded:  time.Now(),
	}
}

// Dynamic returns runtime settings backed by this configuration's file.
func (c *Config) Dynamic(overlay Overlay) *Dynamic {
	return NewDynamic(c.Trading, c.v, overlay)
}

// Refresh re-reads the config file and overlay.
func (d *Dynamic) Refresh(ctx context.Context) error {
	d.mu.RLock()
	next := d.current
	d.mu.RUnlock()

	settings := map[string]any{}
	if d.v != nil {
		if d.v.ConfigFileUsed() != "" {
			if err := d.v.ReadInConfig(); err != nil {
				return fmt.Errorf("reload config: %w", err)
			}
		}
		for _, key := range d.v.AllKeys() {
			if name, ok := strings.CutPrefix(key, "trading."); ok {
				settings[name] = d.v.Get(key)
			}
		}
	}

	if d.overlay != nil {
		values, err := d.overlay.Values(ctx)
		if err != nil {
			return fmt.Errorf("load config overlay: %w", err)
		}
		for k, val := range values {
			settings[strings.ToLower(k)] = val
		}
	}

	if len(settings) > 0 {
		sv := viper.New()
		if err := sv.MergeConfigMap(settings); err != nil {
			return fmt.Errorf("merge trading settings: %w", err)
		}
		if err := sv.Unmarshal(&next); err != nil {
			return fmt.Errorf("decode trading settings: %w", err)
		}
	}

	if err := next.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	d.current = next
	d.loaded = time.Now()
	d.mu.Unlock()
	return nil
}

// Snapshot returns the current trading values.
func (d *Dynamic) Snapshot() TradingConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// LoadedAt returns when the values were last refreshed successfully.
func (d *Dynamic) LoadedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

func (d *Dynamic) TradingEnabled() bool { return d.Snapshot().Enabled }

func (d *Dynamic) CancelStrayOrders() bool { return d.Snapshot().CancelStrayOrders }

func (d *Dynamic) MaxPairsPerRun() int { return d.Snapshot().MaxPairsPerRun }

func (d *Dynamic) MinProfit() decimal.Decimal { return d.Snapshot().MinProfitDecimal() }

func (d *Dynamic) MaxTradeSize() decimal.Decimal { return d.Snapshot().MaxTradeSizeDecimal() }

func (d *Dynamic) SuspiciousPriceDifference() decimal.Decimal {
	return d.Snapshot().SuspiciousPriceDifferenceDecimal()
}

func (d *Dynamic) BuyRateFactor() decimal.Decimal { return d.Snapshot().BuyRateFactorDecimal() }

func (d *Dynamic) SellRateFactor() decimal.Decimal { return d.Snapshot().SellRateFactorDecimal() }

func (d *Dynamic) OrderCheckDelay() time.Duration { return d.Snapshot().OrderCheckDelay }

func (d *Dynamic) ReconcileInterval() time.Duration { return d.Snapshot().ReconcileInterval }

// IsBlocked reports whether trading asset is on the blocked list.
func (d *Dynamic) IsBlocked(asset string) bool {
	for _, b := range d.Snapshot().BlockedAssets {
		if strings.EqualFold(strings.TrimSpace(b), asset) {
			return true
		}
	}
	return false
}
