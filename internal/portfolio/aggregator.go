// Package portfolio combines holdings, cash and P&L into the totals shown on
// the dashboard. Aggregation never fails: missing inputs degrade to the last
// known value or a documented default.
package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Esemudje/portfolio-manager-team02/internal/model"
)

// DefaultCash is the cash balance reported before the first successful fetch.
var DefaultCash = decimal.NewFromInt(10000)

// Inputs is everything one aggregation needs. A nil field means that fetch
// failed or was not attempted; the reason, if any, is in Errors.
type Inputs struct {
	Holdings *model.HoldingsReport
	Cash     *decimal.Decimal
	PnL      *model.PnLReport
	Quotes   map[string]model.Quote
	Errors   map[string]error
	AsOf     time.Time
}

// Failed reports whether the named fetch ("holdings", "cash", "pnl",
// "quote:AAPL") failed.
func (in Inputs) Failed(source string) bool {
	_, ok := in.Errors[source]
	return ok
}

// Aggregator turns Inputs into a PortfolioSummary. It remembers the last
// successfully fetched holdings and cash so a failed fetch degrades to them.
type Aggregator struct {
	mu           sync.Mutex
	lastCash     *decimal.Decimal
	lastHoldings []model.Holding
}

// NewAggregator creates an aggregator with no history.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Aggregate computes the summary for in.
func (a *Aggregator) Aggregate(in Inputs) model.PortfolioSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := model.PortfolioSummary{AsOf: in.AsOf}
	if out.AsOf.IsZero() {
		out.AsOf = time.Now().UTC()
	}

	// Holdings: fresh, else last known (re-priced below with fresh quotes).
	var raw []model.Holding
	if in.Holdings != nil {
		raw = in.Holdings.Holdings
		a.lastHoldings = append([]model.Holding(nil), raw...)
	} else {
		raw = a.lastHoldings
		out.HoldingsStale = true
	}

	out.Holdings = make([]model.Holding, 0, len(raw))
	localValue := decimal.Zero
	for _, h := range raw {
		v := Value(h, in.Quotes)
		out.Holdings = append(out.Holdings, v)
		localValue = localValue.Add(v.MarketValue)
		out.TotalCostBasis = out.TotalCostBasis.Add(v.CostBasis)
	}

	if in.Holdings != nil && in.Holdings.TotalValue.Valid {
		out.TotalValue = in.Holdings.TotalValue.Decimal
		out.ValueSource = model.SourceBackend
	} else {
		out.TotalValue = localValue
		out.ValueSource = model.SourceLocal
	}

	if in.PnL != nil {
		out.TotalRealizedPL = in.PnL.Realized
		out.TotalUnrealizedPL = in.PnL.Unrealized
		out.PLSource = model.SourceBackend
	} else {
		out.TotalRealizedPL = decimal.Zero
		for _, h := range out.Holdings {
			out.TotalUnrealizedPL = out.TotalUnrealizedPL.Add(h.UnrealizedPnL)
		}
		out.PLSource = model.SourceLocal
	}
	out.TotalPL = out.TotalRealizedPL.Add(out.TotalUnrealizedPL)

	switch {
	case in.Cash != nil:
		c := *in.Cash
		a.lastCash = &c
		out.TotalCash = c
	case a.lastCash != nil:
		out.TotalCash = *a.lastCash
		out.CashStale = true
	default:
		out.TotalCash = DefaultCash
		out.CashStale = true
	}

	return out
}

// Value prices one holding. Price fallback order: a fresh quote, the
// holding's stored current price, its average cost, then zero. The last two
// mark the holding stale.
func Value(h model.Holding, quotes map[string]model.Quote) model.Holding {
	switch q, ok := quotes[h.Symbol]; {
	case ok && q.Valid():
		h.CurrentPrice = q.Price
		h.PriceSource = model.PriceFromQuote
	case h.CurrentPrice.IsPositive():
		h.PriceSource = model.PriceFromStored
	case h.AverageCost.IsPositive():
		h.CurrentPrice = h.AverageCost
		h.PriceSource = model.PriceFromAverageCost
		h.Stale = true
	default:
		h.CurrentPrice = decimal.Zero
		h.PriceSource = model.PriceMissing
		h.Stale = true
	}
	h.MarketValue = h.Quantity.Mul(h.CurrentPrice)
	h.CostBasis = h.Quantity.Mul(h.AverageCost)
	h.UnrealizedPnL = h.MarketValue.Sub(h.CostBasis)
	return h
}
