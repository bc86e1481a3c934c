// Package asset provides asset metadata and the fixed-precision money
// helpers used for every trade quantity.
//
// Quantities are decimal.Decimal values normalised to Precision fractional
// digits at every boundary, so repeated arithmetic never accumulates drift.
package asset

import (
	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept for trade quantities.
const Precision = 8

var (
	// Unit is the smallest representable quantity (1e-8).
	Unit = decimal.New(1, -Precision)

	// DustThreshold is the absolute price difference below which two quotes
	// are considered equal.
	DustThreshold = decimal.New(2, -Precision)

	hundred = decimal.NewFromInt(100)
)

// Format rounds d half away from zero to Precision digits.
func Format(d decimal.Decimal) decimal.Decimal {
	return d.Round(Precision)
}

// FormatCeil rounds d up (towards +inf) to Precision digits.
func FormatCeil(d decimal.Decimal) decimal.Decimal {
	return d.RoundCeil(Precision)
}

// FormatFloor rounds d down (towards -inf) to Precision digits.
func FormatFloor(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(Precision)
}

// String renders d with exactly Precision fractional digits.
func String(d decimal.Decimal) string {
	return d.StringFixed(Precision)
}

// Parse reads a decimal string and formats it. Empty input parses as zero.
func Parse(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return Format(d), nil
}

// Min returns the smallest of the given values.
func Min(first decimal.Decimal, rest ...decimal.Decimal) decimal.Decimal {
	return decimal.Min(first, rest...)
}

// PercentDiff returns |a-b| / base * 100. A zero base yields zero.
func PercentDiff(a, b, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return a.Sub(b).Abs().Div(base).Mul(hundred)
}
