package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/Esemudje/portfolio-manager-team02/internal/format"
	"github.com/Esemudje/portfolio-manager-team02/internal/model"
	"github.com/Esemudje/portfolio-manager-team02/internal/poller"
)

// printMarkdown renders md for the terminal in the user's preferred style.
// With plain set, or when rendering fails, the raw markdown is printed.
func printMarkdown(md string, dark, plain bool) {
	if plain {
		fmt.Print(md)
		return
	}
	style := "light"
	if dark {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(120),
	)
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Fprintf(os.Stderr, "warning: markdown rendering failed: %v\n", err)
	fmt.Print(md)
}

// summaryMarkdown renders a dashboard view as a markdown report.
func summaryMarkdown(v *poller.View) string {
	var b strings.Builder
	d := v.Display

	b.WriteString("# Portfolio\n\n")
	b.WriteString("| | |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Total value | %s |\n", d.TotalValue)
	fmt.Fprintf(&b, "| Cash | %s%s |\n", d.TotalCash, staleMark(v.Summary.CashStale))
	fmt.Fprintf(&b, "| Cost basis | %s |\n", d.TotalCostBasis)
	fmt.Fprintf(&b, "| Realized P&L | %s |\n", d.TotalRealizedPL)
	fmt.Fprintf(&b, "| Unrealized P&L | %s |\n", d.TotalUnrealizedPL)
	fmt.Fprintf(&b, "| Total P&L | %s (%s) |\n", d.TotalPL, d.TotalPLPercent)

	b.WriteString("\n## Holdings\n\n")
	if len(d.Holdings) == 0 {
		b.WriteString("No holdings.\n")
	} else {
		b.WriteString("| Symbol | Quantity | Price | Value | P&L | P&L % | Allocation |\n")
		b.WriteString("|---|---:|---:|---:|---:|---:|---:|\n")
		for _, h := range d.Holdings {
			fmt.Fprintf(&b, "| %s | %s | %s%s | %s | %s | %s | %s |\n",
				h.Symbol, h.Quantity, h.CurrentPrice, staleMark(h.Stale),
				h.MarketValue, h.UnrealizedPnL, h.PnLPercent, h.Allocation)
		}
	}

	if len(d.Quotes) > 0 {
		b.WriteString("\n## Watchlist\n\n")
		b.WriteString("| Symbol | Price | Change | Change % |\n|---|---:|---:|---:|\n")
		for _, q := range d.Quotes {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", q.Symbol, q.Price, q.Change, q.ChangePercent)
		}
	}

	if len(v.Errors) > 0 {
		b.WriteString("\n## Unavailable\n\n")
		sources := make([]string, 0, len(v.Errors))
		for src := range v.Errors {
			sources = append(sources, src)
		}
		sort.Strings(sources)
		for _, src := range sources {
			fmt.Fprintf(&b, "- `%s`: %s\n", src, v.Errors[src])
		}
	}

	if v.Summary.CashStale || v.Summary.HoldingsStale || hasStale(v.Summary.Holdings) {
		b.WriteString("\n\\* last known or estimated value\n")
	}
	return b.String()
}

// ordersMarkdown renders pending orders as a table.
func ordersMarkdown(orders []model.PendingOrder) string {
	if len(orders) == 0 {
		return "No pending orders.\n"
	}
	var b strings.Builder
	b.WriteString("| ID | Symbol | Side | Type | Quantity | Price | Stop | Limit |\n")
	b.WriteString("|---|---|---|---|---:|---:|---:|---:|\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			o.OrderID, o.Symbol, o.Side, o.Type, o.Quantity.String(),
			optionalCurrency(o.Price), optionalCurrency(o.StopPrice), optionalCurrency(o.LimitPrice))
	}
	return b.String()
}

// searchMarkdown renders stock search matches as a table.
func searchMarkdown(matches []model.StockMatch) string {
	if len(matches) == 0 {
		return "No matches.\n"
	}
	var b strings.Builder
	b.WriteString("| Symbol | Name | Sector | Market cap |\n|---|---|---|---:|\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", m.Symbol, m.Name, m.Sector, m.MarketCapFormatted)
	}
	return b.String()
}

// performanceMarkdown renders trading activity for a period.
func performanceMarkdown(p model.Performance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Last %d days\n\n", p.PeriodDays)
	b.WriteString("| | Trades | Volume |\n|---|---:|---:|\n")
	fmt.Fprintf(&b, "| Buys | %d | %s |\n", p.BuyTrades, format.Currency(p.BuyVolume))
	fmt.Fprintf(&b, "| Sells | %d | %s |\n", p.SellTrades, format.Currency(p.SellVolume))
	fmt.Fprintf(&b, "\nNet cash flow %s, realized P&L %s\n",
		format.SignedCurrency(p.NetFlow()), format.SignedCurrency(p.RealizedPnL))
	return b.String()
}

// lotsMarkdown renders open lots oldest first with their totals.
func lotsMarkdown(r model.LotReport) string {
	if len(r.Lots) == 0 {
		return fmt.Sprintf("No open lots for %s.\n", r.Symbol)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s lots\n\n", r.Symbol)
	b.WriteString("| Trade | Date | Quantity | Price | Cost |\n|---|---|---:|---:|---:|\n")
	for _, l := range r.Lots {
		date := "-"
		if !l.Date.IsZero() {
			date = l.Date.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", l.TradeID, date, l.Quantity.String(),
			format.Currency(l.Price), format.Currency(l.Quantity.Mul(l.Price)))
	}
	fmt.Fprintf(&b, "\n%s shares, average cost %s, cost basis %s\n",
		r.Quantity.String(), format.Currency(r.AverageCost), format.Currency(r.CostBasis))
	return b.String()
}

// quoteLine renders a quote on one line, e.g. "AAPL $160.00 +$2.00 (+1.27%)".
func quoteLine(q model.Quote) string {
	return fmt.Sprintf("%s %s %s (%s)", q.Symbol, format.Currency(q.Price),
		format.SignedCurrency(q.Change), format.Percent(q.ChangePercent))
}

func optionalCurrency(v decimal.NullDecimal) string {
	if !v.Valid {
		return "-"
	}
	return format.Currency(v.Decimal)
}

func staleMark(stale bool) string {
	if stale {
		return "\\*"
	}
	return ""
}

func hasStale(hs []model.Holding) bool {
	for _, h := range hs {
		if h.Stale {
			return true
		}
	}
	return false
}
