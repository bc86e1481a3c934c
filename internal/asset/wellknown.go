package asset

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Chain IDs
const (
	ChainIDEthereum = 1
	ChainIDBSC      = 56
	ChainIDPolygon  = 137
	ChainIDArbitrum = 42161
)

// Well-known token addresses on Ethereum mainnet
var (
	AddrUSDCEthereum = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	AddrUSDTEthereum = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	AddrLINKEthereum = common.HexToAddress("0x514910771AF9Ca656af840dff83E8264EcF986CA")
)

// Well-known assets with typical flat withdrawal fees. Config overrides them.
var (
	BTC = New("BTC",
		WithName("Bitcoin"),
		WithWithdrawFee(decimal.RequireFromString("0.0005")),
		WithMinWithdraw(decimal.RequireFromString("0.001")))
	ETH = New("ETH",
		WithName("Ethereum"),
		WithEVM(ChainIDEthereum, common.Address{}),
		WithWithdrawFee(decimal.RequireFromString("0.005")),
		WithMinWithdraw(decimal.RequireFromString("0.01")))
	LTC = New("LTC",
		WithName("Litecoin"),
		WithWithdrawFee(decimal.RequireFromString("0.001")),
		WithMinWithdraw(decimal.RequireFromString("0.002")))
	USDT = New("USDT",
		WithName("Tether USD"),
		WithNetwork("ETH"),
		WithEVM(ChainIDEthereum, AddrUSDTEthereum),
		WithWithdrawFee(decimal.RequireFromString("10")),
		WithMinWithdraw(decimal.RequireFromString("20")))
	USDC = New("USDC",
		WithName("USD Coin"),
		WithNetwork("ETH"),
		WithEVM(ChainIDEthereum, AddrUSDCEthereum),
		WithWithdrawFee(decimal.RequireFromString("10")),
		WithMinWithdraw(decimal.RequireFromString("20")))
	LINK = New("LINK",
		WithName("Chainlink"),
		WithNetwork("ETH"),
		WithEVM(ChainIDEthereum, AddrLINKEthereum),
		WithWithdrawFee(decimal.RequireFromString("0.5")),
		WithMinWithdraw(decimal.RequireFromString("1")))
)

// DefaultRegistry returns a registry pre-populated with well-known assets.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, a := range []*Asset{BTC, ETH, LTC, USDT, USDC, LINK} {
		r.Register(a)
	}
	return r
}
