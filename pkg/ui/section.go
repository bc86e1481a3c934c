package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// Row is one label/value line of a section.
type Row struct {
	Label string
	Value string
}

// Section renders a header followed by right-aligned labels and values.
func Section(title string, rows []Row) string {
	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r.Label))
	}
	label := LabelStyle.Width(width).Align(lipgloss.Right)

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, HeaderStyle.Render(title))
	for _, r := range rows {
		lines = append(lines, label.Render(r.Label)+" : "+r.Value)
	}
	return strings.Join(lines, "\n")
}

// Signed colours d green when positive and red when negative.
func Signed(d decimal.Decimal, text string) string {
	switch {
	case d.IsPositive():
		return PositiveValue.Render(text)
	case d.IsNegative():
		return NegativeValue.Render(text)
	}
	return text
}

// Box joins sections vertically inside a rounded border.
func Box(title string, sections ...string) string {
	body := strings.Join(sections, "\n\n")
	return lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render(title), BoxStyle.Render(body))
}
