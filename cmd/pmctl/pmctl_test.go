package main

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Esemudje/portfolio-manager-team02/internal/model"
	"github.com/Esemudje/portfolio-manager-team02/internal/poller"
	"github.com/Esemudje/portfolio-manager-team02/internal/portfolio"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSummaryMarkdown(t *testing.T) {
	cash := d("500")
	in := portfolio.Inputs{
		Holdings: &model.HoldingsReport{Holdings: []model.Holding{
			{Symbol: "AAPL", Quantity: d("10"), AverageCost: d("150")},
			{Symbol: "IBM", Quantity: d("2"), AverageCost: d("100")},
		}},
		Cash:   &cash,
		Quotes: map[string]model.Quote{"AAPL": {Symbol: "AAPL", Price: d("160")}},
		Errors: map[string]error{"quote:IBM": assert.AnError},
		AsOf:   time.Now(),
	}
	view := poller.BuildView(0, []string{"AAPL"}, in, portfolio.NewAggregator().Aggregate(in))

	md := summaryMarkdown(view)

	assert.Contains(t, md, "| Total value | $1,800.00 |")
	assert.Contains(t, md, "| Cash | $500.00 |")
	assert.Contains(t, md, "| AAPL | 10 | $160.00 | $1,600.00 | +$100.00 |")
	// IBM has no quote and falls back to its average cost.
	assert.Contains(t, md, "| IBM | 2 | $100.00\\* |")
	assert.Contains(t, md, "`quote:IBM`")
	assert.Contains(t, md, "last known or estimated value")
}

func TestOrdersMarkdown(t *testing.T) {
	assert.Equal(t, "No pending orders.\n", ordersMarkdown(nil))

	md := ordersMarkdown([]model.PendingOrder{{
		OrderID:  "7",
		Symbol:   "AAPL",
		Side:     model.SideBuy,
		Type:     model.OrderLimit,
		Quantity: d("1"),
		Price:    decimal.NewNullDecimal(d("140")),
	}})
	assert.Contains(t, md, "| 7 | AAPL | buy | limit | 1 | $140.00 | - | - |")
}

func TestOrderRequestFromFlags(t *testing.T) {
	c := &orderCmd{side: "SELL", orderType: "stop_limit", stop: "95", limit: "94.5"}

	req, err := c.request([]string{"aapl", "3"})
	require.NoError(t, err)
	assert.Equal(t, model.SideSell, req.Side)
	assert.Equal(t, model.OrderStopLimit, req.Type)
	assert.True(t, req.Quantity.Equal(d("3")))
	assert.True(t, req.StopPrice.Valid && req.StopPrice.Decimal.Equal(d("95")))
	assert.True(t, req.LimitPrice.Valid && req.LimitPrice.Decimal.Equal(d("94.5")))
	assert.False(t, req.Price.Valid)

	_, err = c.request([]string{"AAPL"})
	assert.Error(t, err)
	_, err = (&orderCmd{price: "cheap"}).request([]string{"AAPL", "1"})
	assert.Error(t, err)
}

func TestParseToggle(t *testing.T) {
	for in, want := range map[string]bool{"on": true, "TRUE": true, "off": false, "0": false} {
		got, ok := parseToggle(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := parseToggle("maybe")
	assert.False(t, ok)
}

func TestQuoteLine(t *testing.T) {
	q := model.Quote{Symbol: "AAPL", Price: d("160"), Change: d("2"), ChangePercent: d("1.27")}
	assert.Equal(t, "AAPL $160.00 +$2.00 (+1.27%)", quoteLine(q))
}

func TestSearchMarkdown(t *testing.T) {
	assert.Equal(t, "No matches.\n", searchMarkdown(nil))

	md := searchMarkdown([]model.StockMatch{
		{Symbol: "AAPL", Name: "Apple Inc.", Sector: "Technology", MarketCapFormatted: "$3.0T"},
	})
	assert.Contains(t, md, "| AAPL | Apple Inc. | Technology | $3.0T |")
}

func TestPerformanceMarkdown(t *testing.T) {
	md := performanceMarkdown(model.Performance{
		PeriodDays: 7, BuyVolume: d("1500"), SellVolume: d("320"), BuyTrades: 2, SellTrades: 1, RealizedPnL: d("25"),
	})
	assert.Contains(t, md, "# Last 7 days")
	assert.Contains(t, md, "| Buys | 2 | $1,500.00 |")
	assert.Contains(t, md, "Net cash flow -$1,180.00, realized P&L +$25.00")
}

func TestLotsMarkdown(t *testing.T) {
	rep := model.NewLotReport("AAPL", []model.Lot{
		{TradeID: "2", Quantity: d("4"), Price: d("160"), Date: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{TradeID: "1", Quantity: d("6"), Price: d("150"), Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
	})
	md := lotsMarkdown(rep)
	require.Less(t, strings.Index(md, "| 1 | 2025-01-02"), strings.Index(md, "| 2 | 2025-02-01"))
	assert.Contains(t, md, "10 shares, average cost $154.00, cost basis $1,540.00")

	assert.Equal(t, "No open lots for MSFT.\n", lotsMarkdown(model.NewLotReport("MSFT", nil)))
}
