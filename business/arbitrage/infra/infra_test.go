package infra

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/business/arbitrage/app"
	"github.com/fd1az/crossarb/business/arbitrage/domain"
	venueDomain "github.com/fd1az/crossarb/business/venue/domain"
	"github.com/fd1az/crossarb/internal/logger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestConsoleReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf)

	r.ReportTrade(context.Background(), domain.TradeResult{
		Direction:   domain.Direction{Source: "alpha", Target: "beta"},
		Market:      venueDomain.NewMarket("BTC", "USD"),
		Before:      domain.Balances{SourceCurrency: d("1000"), TargetTradeable: d("5")},
		After:       domain.Balances{SourceCurrency: d("900"), SourceTradeable: d("1"), TargetCurrency: d("102"), TargetTradeable: d("4")},
		TradeAmount: d("1"),
		SellAmount:  d("1"),
		BuyRate:     d("101"),
		SellRate:    d("100.98"),
		SellOrderID: "sell-1",
		BuyAttempts: 5,
		Cost:        d("100"),
		Revenue:     d("102"),
		ProfitLoss:  d("2"),

		Inconsistent: true,
	})

	out := buf.String()
	for _, want := range []string{"ORDERS", "FUNDS", "RESULT", "sell-1", "not placed", "INCONSISTENT", "CALCULATED P&L", "alpha USD"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestLogAlerter(t *testing.T) {
	var records []logger.Record
	log := logger.New(io.Discard, logger.LevelDebug, "test", func(_ context.Context, r logger.Record) {
		records = append(records, r)
	})
	a := NewLogAlerter(log)

	a.Alert(context.Background(), app.PriorityHigh, "Inconsistent execution", "sold without buying")
	a.Alert(context.Background(), app.PriorityNormal, "Order not filled", "raise the delay")

	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	tests := []struct {
		level    logger.Level
		priority string
		title    string
	}{
		{logger.LevelError, "high", "Inconsistent execution"},
		{logger.LevelWarn, "normal", "Order not filled"},
	}
	for i, tt := range tests {
		r := records[i]
		if r.Level != tt.level {
			t.Errorf("record %d level = %s, want %s", i, r.Level, tt.level)
		}
		if r.Attrs["alert"] != true || r.Attrs["priority"] != tt.priority || r.Attrs["title"] != tt.title {
			t.Errorf("record %d attrs = %v", i, r.Attrs)
		}
	}
}
