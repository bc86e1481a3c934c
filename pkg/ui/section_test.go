package ui

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSection(t *testing.T) {
	out := Section("FUNDS", []Row{
		{Label: "SOURCE", Value: "100.00000000 USDT"},
		{Label: "TARGET", Value: "1.00000000 BTC"},
	})

	for _, want := range []string{"FUNDS", "SOURCE", "100.00000000 USDT", "1.00000000 BTC"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "\n"); got != 2 {
		t.Errorf("lines = %d, want 3", got+1)
	}
}

func TestSigned(t *testing.T) {
	for _, v := range []string{"-1", "0", "1"} {
		if out := Signed(decimal.RequireFromString(v), v); !strings.Contains(out, v) {
			t.Errorf("Signed(%s) = %q", v, out)
		}
	}
}

func TestBox(t *testing.T) {
	out := Box("TRADE", "a", "b")
	for _, want := range []string{"TRADE", "a", "b"} {
		if !strings.Contains(out, want) {
			t.Errorf("box missing %q:\n%s", want, out)
		}
	}
}
