package asset

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Registry is a thread-safe registry of known assets keyed by symbol.
type Registry struct {
	bySymbol map[string]*Asset
	mu       sync.RWMutex
}

// NewRegistry creates a new empty asset registry.
func NewRegistry() *Registry {
	return &Registry{
		bySymbol: make(map[string]*Asset),
	}
}

// Register adds an asset to the registry, replacing any asset with the same
// symbol so configuration can override built-in defaults.
func (r *Registry) Register(a *Asset) {
	if a == nil {
		panic("asset: cannot register nil asset")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySymbol[a.Symbol()] = a
}

// Get retrieves an asset by symbol.
func (r *Registry) Get(symbol string) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.bySymbol[Symbol(symbol)]
	return a, ok
}

// MustGet retrieves an asset by symbol, panics if not found.
func (r *Registry) MustGet(symbol string) *Asset {
	a, ok := r.Get(symbol)
	if !ok {
		panic(fmt.Sprintf("asset: %s not found in registry", symbol))
	}
	return a
}

// Lookup returns the registered asset or a bare asset for unknown symbols.
func (r *Registry) Lookup(symbol string) *Asset {
	if a, ok := r.Get(symbol); ok {
		return a
	}
	return New(symbol)
}

// WithdrawFee returns the configured flat withdrawal fee, zero if unknown.
func (r *Registry) WithdrawFee(symbol string) decimal.Decimal {
	if a, ok := r.Get(symbol); ok {
		return a.WithdrawFee()
	}
	return decimal.Zero
}

// Symbols returns all registered symbols in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.bySymbol))
	for s := range r.bySymbol {
		result = append(result, s)
	}
	sort.Strings(result)
	return result
}

// Count returns the number of registered assets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySymbol)
}
