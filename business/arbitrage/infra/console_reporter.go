// Package infra contains infrastructure adapters for the arbitrage context.
package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fd1az/crossarb/business/arbitrage/domain"
	"github.com/fd1az/crossarb/internal/asset"
	"github.com/fd1az/crossarb/pkg/ui"
)

// ConsoleReporter prints a summary box for every execution.
type ConsoleReporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleReporter creates a ConsoleReporter writing to out, or stdout
// when out is nil.
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleReporter{out: out}
}

// ReportTrade outputs the before/after figures of an execution.
func (r *ConsoleReporter) ReportTrade(ctx context.Context, res domain.TradeResult) {
	m := res.Market

	orders := []ui.Row{
		{Label: "SELL ORDER", Value: orderLine(res.SellOrderID, res.SellAmount, res.SellRate, m.Tradeable, m.Currency)},
		{Label: "BUY ORDER", Value: orderLine(res.BuyOrderID, res.TradeAmount, res.BuyRate, m.Tradeable, m.Currency)},
		{Label: "ATTEMPTS", Value: fmt.Sprint(res.BuyAttempts)},
	}
	if res.Inconsistent {
		orders = append(orders, ui.Row{Label: "STATUS", Value: ui.WarningValue.Render("INCONSISTENT: sold without buying")})
	}

	funds := []ui.Row{
		{Label: res.Source + " " + m.Currency, Value: change(res.Before.SourceCurrency, res.After.SourceCurrency)},
		{Label: res.Source + " " + m.Tradeable, Value: change(res.Before.SourceTradeable, res.After.SourceTradeable)},
		{Label: res.Target + " " + m.Currency, Value: change(res.Before.TargetCurrency, res.After.TargetCurrency)},
		{Label: res.Target + " " + m.Tradeable, Value: change(res.Before.TargetTradeable, res.After.TargetTradeable)},
	}

	tradeableDelta := res.TradeableDelta()
	calculated := res.CalculatedProfit()
	result := []ui.Row{
		{Label: "COST", Value: asset.String(res.Cost) + " " + m.Currency},
		{Label: "REVENUE", Value: asset.String(res.Revenue) + " " + m.Currency},
		{Label: m.Tradeable + " DIFF", Value: ui.Signed(tradeableDelta, asset.String(tradeableDelta))},
		{Label: m.Tradeable + " DIFF (-TX)", Value: asset.String(tradeableDelta.Sub(res.TxFee))},
		{Label: "EXPECTED", Value: asset.String(res.ExpectedProfit) + " " + m.Currency},
		{Label: "CALCULATED P&L", Value: ui.Signed(calculated, asset.String(calculated)+" "+m.Currency)},
		{Label: "REALIZED P&L", Value: ui.Signed(res.ProfitLoss, asset.String(res.ProfitLoss)+" "+m.Currency)},
	}

	box := ui.Box(
		fmt.Sprintf("TRADE %s %s", m, res.Direction),
		ui.Section("ORDERS", orders),
		ui.Section("FUNDS", funds),
		ui.Section("RESULT", result),
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, box)
}

func orderLine(id string, amount, rate decimal.Decimal, tradeable, currency string) string {
	if id == "" {
		return ui.NegativeValue.Render("not placed")
	}
	return fmt.Sprintf("%s %s @ %s %s (%s)", asset.String(amount), tradeable, asset.String(rate), currency, id)
}

func change(before, after decimal.Decimal) string {
	diff := after.Sub(before)
	return fmt.Sprintf("%s → %s (%s)", asset.String(before), asset.String(after), ui.Signed(diff, asset.String(diff)))
}
