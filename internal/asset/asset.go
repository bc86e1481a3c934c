package asset

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Asset describes a tradeable coin or token as seen by the venues.
// The symbol is the identity used in market names ("BTC" in "BTC_USDT").
type Asset struct {
	symbol      string
	name        string
	network     string
	chainID     uint64
	contract    common.Address
	withdrawFee decimal.Decimal
	minWithdraw decimal.Decimal
}

// Option customises an Asset.
type Option func(*Asset)

// WithName sets the human-readable name.
func WithName(name string) Option {
	return func(a *Asset) { a.name = name }
}

// WithNetwork sets the withdrawal network code used by venues (e.g. "ETH", "BTC").
func WithNetwork(network string) Option {
	return func(a *Asset) { a.network = network }
}

// WithEVM marks the asset as living on an EVM chain, optionally as a token.
func WithEVM(chainID uint64, contract common.Address) Option {
	return func(a *Asset) {
		a.chainID = chainID
		a.contract = contract
	}
}

// WithWithdrawFee sets the flat withdrawal fee charged in the asset itself.
func WithWithdrawFee(fee decimal.Decimal) Option {
	return func(a *Asset) { a.withdrawFee = Format(fee) }
}

// WithMinWithdraw sets the smallest amount a venue accepts for withdrawal.
func WithMinWithdraw(min decimal.Decimal) Option {
	return func(a *Asset) { a.minWithdraw = Format(min) }
}

// New creates an Asset. The symbol is normalised to upper case.
func New(symbol string, opts ...Option) *Asset {
	symbol = Symbol(symbol)
	if symbol == "" {
		panic("asset: empty symbol")
	}

	a := &Asset{symbol: symbol, network: symbol}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Symbol normalises an asset symbol.
func Symbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func (a *Asset) Symbol() string { return a.symbol }

// Name returns the human-readable name, falling back to the symbol.
func (a *Asset) Name() string {
	if a.name == "" {
		return a.symbol
	}
	return a.name
}

func (a *Asset) Network() string { return a.network }
func (a *Asset) ChainID() uint64 { return a.chainID }
func (a *Asset) Contract() common.Address { return a.contract }
func (a *Asset) WithdrawFee() decimal.Decimal { return a.withdrawFee }
func (a *Asset) MinWithdraw() decimal.Decimal { return a.minWithdraw }
func (a *Asset) String() string { return a.symbol }
func (a *Asset) Equals(other *Asset) bool { return other != nil && a.symbol == other.symbol }
func (a *Asset) IsEVM() bool { return a.chainID != 0 }
func (a *Asset) IsToken() bool { return a.IsEVM() && a.contract != (common.Address{}) }

// ValidateAddress checks a deposit address for this asset. Only EVM
// addresses can be checked structurally; other networks only require a
// non-empty value.
func (a *Asset) ValidateAddress(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("asset %s: empty deposit address", a.symbol)
	}
	if !a.IsEVM() {
		return nil
	}
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("asset %s: %q is not a hex address", a.symbol, addr)
	}
	if common.HexToAddress(addr) == (common.Address{}) {
		return fmt.Errorf("asset %s: zero address", a.symbol)
	}
	if a.IsToken() && common.HexToAddress(addr) == a.contract {
		return fmt.Errorf("asset %s: deposit address is the token contract", a.symbol)
	}
	return nil
}
