package poller

import (
	"sort"
	"time"

	"github.com/Esemudje/portfolio-manager-team02/internal/format"
	"github.com/Esemudje/portfolio-manager-team02/internal/model"
	"github.com/Esemudje/portfolio-manager-team02/internal/portfolio"
)

// View is one complete, immutable dashboard state. A View is never modified
// after it is published.
type View struct {
	Cycle     int64                  `json:"cycle"`
	Summary   model.PortfolioSummary `json:"summary"`
	Watchlist []string               `json:"watchlist"`
	Quotes    []model.Quote          `json:"quotes"` // watchlist order; failed symbols omitted
	Display   Display                `json:"display"`
	Errors    map[string]string      `json:"errors,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Display holds the summary figures rendered for humans.
type Display struct {
	TotalValue        string           `json:"total_value"`
	TotalCash         string           `json:"total_cash"`
	TotalCostBasis    string           `json:"total_cost_basis"`
	TotalRealizedPL   string           `json:"total_realized_pl"`
	TotalUnrealizedPL string           `json:"total_unrealized_pl"`
	TotalPL           string           `json:"total_pl"`
	TotalPLPercent    string           `json:"total_pl_percent"`
	Holdings          []HoldingDisplay `json:"holdings"`
	Quotes            []QuoteDisplay   `json:"quotes"`
}

type HoldingDisplay struct {
	Symbol        string `json:"symbol"`
	Quantity      string `json:"quantity"`
	CurrentPrice  string `json:"current_price"`
	MarketValue   string `json:"market_value"`
	UnrealizedPnL string `json:"unrealized_pnl"`
	PnLPercent    string `json:"pnl_percent"`
	Allocation    string `json:"allocation"`
	Stale         bool   `json:"stale"`
}

type QuoteDisplay struct {
	Symbol        string `json:"symbol"`
	Price         string `json:"price"`
	Change        string `json:"change"`
	ChangePercent string `json:"change_percent"`
}

// BuildView assembles a View from one gathering and its aggregate.
func BuildView(cycle int64, watchlist []string, in portfolio.Inputs, sum model.PortfolioSummary) *View {
	v := &View{
		Cycle:     cycle,
		Summary:   sum,
		Watchlist: watchlist,
		Quotes:    make([]model.Quote, 0, len(watchlist)),
		UpdatedAt: sum.AsOf,
	}
	for _, sym := range watchlist {
		if q, ok := in.Quotes[sym]; ok {
			v.Quotes = append(v.Quotes, q)
		}
	}
	if len(in.Errors) > 0 {
		v.Errors = make(map[string]string, len(in.Errors))
		for src, err := range in.Errors {
			v.Errors[src] = err.Error()
		}
	}
	v.Display = buildDisplay(sum, v.Quotes)
	return v
}

func buildDisplay(sum model.PortfolioSummary, quotes []model.Quote) Display {
	d := Display{
		TotalValue:        format.Currency(sum.TotalValue),
		TotalCash:         format.Currency(sum.TotalCash),
		TotalCostBasis:    format.Currency(sum.TotalCostBasis),
		TotalRealizedPL:   format.SignedCurrency(sum.TotalRealizedPL),
		TotalUnrealizedPL: format.SignedCurrency(sum.TotalUnrealizedPL),
		TotalPL:           format.SignedCurrency(sum.TotalPL),
		TotalPLPercent:    format.Percent(format.Ratio(sum.TotalPL, sum.TotalCostBasis)),
		Holdings:          make([]HoldingDisplay, 0, len(sum.Holdings)),
		Quotes:            make([]QuoteDisplay, 0, len(quotes)),
	}

	holdings := append([]model.Holding(nil), sum.Holdings...)
	sort.SliceStable(holdings, func(i, j int) bool {
		return holdings[i].MarketValue.GreaterThan(holdings[j].MarketValue)
	})
	for _, h := range holdings {
		d.Holdings = append(d.Holdings, HoldingDisplay{
			Symbol:        h.Symbol,
			Quantity:      h.Quantity.String(),
			CurrentPrice:  format.Currency(h.CurrentPrice),
			MarketValue:   format.Currency(h.MarketValue),
			UnrealizedPnL: format.SignedCurrency(h.UnrealizedPnL),
			PnLPercent:    format.Percent(format.Ratio(h.UnrealizedPnL, h.CostBasis)),
			Allocation:    format.Share(format.Ratio(h.MarketValue, sum.TotalValue)),
			Stale:         h.Stale,
		})
	}
	for _, q := range quotes {
		d.Quotes = append(d.Quotes, QuoteDisplay{
			Symbol:        q.Symbol,
			Price:         format.Currency(q.Price),
			Change:        format.SignedCurrency(q.Change),
			ChangePercent: format.Percent(q.ChangePercent),
		})
	}
	return d
}
