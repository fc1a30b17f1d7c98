// Package format renders money and percentages for display.
package format

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the account currency of the virtual portfolio.
const DefaultCurrency = money.USD

var hundred = decimal.NewFromInt(100)

var capUnits = []struct {
	size   decimal.Decimal
	suffix string
}{
	{decimal.New(1, 12), "T"},
	{decimal.New(1, 9), "B"},
	{decimal.New(1, 6), "M"},
}

// Currency renders an amount as e.g. "$1,600.00" or "-$12.50".
func Currency(amount decimal.Decimal) string {
	return CurrencyIn(amount, DefaultCurrency)
}

// CurrencyIn renders an amount in the given ISO currency.
func CurrencyIn(amount decimal.Decimal, code string) string {
	m := money.New(0, code)
	fraction := int32(m.Currency().Fraction)
	minor := amount.Shift(fraction).Round(0).IntPart()
	return money.New(minor, code).Display()
}

// SignedCurrency renders an amount with an explicit "+" for gains.
func SignedCurrency(amount decimal.Decimal) string {
	if amount.IsPositive() {
		return "+" + Currency(amount)
	}
	return Currency(amount)
}

// Percent renders a percentage value (already scaled, 0.65 means 0.65%)
// with two decimals and an explicit sign, e.g. "+0.65%".
func Percent(pct decimal.Decimal) string {
	s := pct.StringFixed(2) + "%"
	if !pct.IsNegative() {
		return "+" + s
	}
	return s
}

// Share renders a percentage without a sign, for allocations.
func Share(pct decimal.Decimal) string {
	return pct.StringFixed(2) + "%"
}

// Ratio returns part/whole as a percentage, or zero when whole is zero.
func Ratio(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}

// MarketCap renders a market capitalization compactly, e.g. "$2.9T" or
// "$415.0M". Zero means unknown.
func MarketCap(n int64) string {
	if n == 0 {
		return "N/A"
	}
	v := decimal.NewFromInt(n)
	for _, u := range capUnits {
		if v.GreaterThanOrEqual(u.size) {
			return "$" + v.Div(u.size).StringFixed(1) + u.suffix
		}
	}
	return strings.TrimSuffix(Currency(v), ".00")
}
