package asset

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRegistry_LookupAndOverride(t *testing.T) {
	r := DefaultRegistry()

	btc, ok := r.Get("btc")
	if !ok {
		t.Fatal("expected BTC in default registry")
	}
	if btc.Symbol() != "BTC" {
		t.Errorf("Symbol = %s, want BTC", btc.Symbol())
	}

	r.Register(New("BTC", WithWithdrawFee(decimal.RequireFromString("0.0002"))))
	if fee := r.WithdrawFee("BTC"); !fee.Equal(decimal.RequireFromString("0.0002")) {
		t.Errorf("WithdrawFee after override = %s, want 0.0002", fee)
	}

	if fee := r.WithdrawFee("DOGE"); !fee.IsZero() {
		t.Errorf("WithdrawFee(unknown) = %s, want 0", fee)
	}
	if got := r.Lookup("doge").Symbol(); got != "DOGE" {
		t.Errorf("Lookup(unknown).Symbol = %s, want DOGE", got)
	}
}

func TestAsset_ValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		asset   *Asset
		addr    string
		wantErr bool
	}{
		{"evm_valid", ETH, "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", false},
		{"evm_not_hex", ETH, "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2", true},
		{"evm_zero", ETH, "0x0000000000000000000000000000000000000000", true},
		{"token_contract", USDT, AddrUSDTEthereum.Hex(), true},
		{"non_evm_any", BTC, "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2", false},
		{"empty", BTC, "  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.asset.ValidateAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%s) err = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}
