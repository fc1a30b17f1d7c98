package portfolio_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Esemudje/portfolio-manager-team02/internal/model"
	"github.com/Esemudje/portfolio-manager-team02/internal/portfolio"
)

type fakeSource struct {
	mu        sync.Mutex
	holdings  []model.Holding
	cash      decimal.Decimal
	prices    map[string]string
	failCash  bool
	failHold  bool
	failPnL   bool
	failQuote map[string]bool
	slowQuote time.Duration
	quoted    []string
}

func (f *fakeSource) GetPortfolio(ctx context.Context, sym string) (*model.HoldingsReport, error) {
	if f.failHold {
		return nil, errors.New("holdings down")
	}
	var out []model.Holding
	for _, h := range f.holdings {
		if sym == "" || h.Symbol == sym {
			out = append(out, h)
		}
	}
	return &model.HoldingsReport{Holdings: out}, nil
}

func (f *fakeSource) GetCashBalance(ctx context.Context) (decimal.Decimal, error) {
	if f.failCash {
		return decimal.Zero, errors.New("cash down")
	}
	return f.cash, nil
}

func (f *fakeSource) GetPnL(ctx context.Context) (*model.PnLReport, error) {
	if f.failPnL {
		return nil, errors.New("pnl down")
	}
	return &model.PnLReport{Realized: d("10"), Unrealized: d("5")}, nil
}

func (f *fakeSource) GetQuote(ctx context.Context, sym string) (map[string]any, error) {
	f.mu.Lock()
	f.quoted = append(f.quoted, sym)
	f.mu.Unlock()
	if f.slowQuote > 0 {
		select {
		case <-time.After(f.slowQuote):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failQuote[sym] {
		return nil, errors.New("quote down")
	}
	p, ok := f.prices[sym]
	if !ok {
		return map[string]any{"Error Message": "Invalid API call"}, nil
	}
	return map[string]any{"Global Quote": map[string]any{"01. symbol": sym, "05. price": p}}, nil
}

func TestGatherFetchesWatchlistAndHeldSymbols(t *testing.T) {
	src := &fakeSource{
		holdings: []model.Holding{holding("NVDA", "2", "400", "")},
		cash:     d("2500"),
		prices:   map[string]string{"AAPL": "160.00", "NVDA": "450.00"},
	}
	g := portfolio.NewGatherer(src, time.Second, 2, nil)
	in := g.Gather(context.Background(), []string{"aapl", "AAPL"})

	require.NotNil(t, in.Holdings)
	require.NotNil(t, in.Cash)
	require.NotNil(t, in.PnL)
	assert.True(t, in.Cash.Equal(d("2500")))
	assert.Contains(t, in.Quotes, "AAPL")
	assert.Contains(t, in.Quotes, "NVDA")
	assert.Empty(t, in.Errors)
	assert.ElementsMatch(t, []string{"AAPL", "NVDA"}, src.quoted)
}

func TestGatherIsolatesFailures(t *testing.T) {
	src := &fakeSource{
		holdings:  []model.Holding{holding("AAPL", "10", "150", ""), holding("MSFT", "1", "300", "")},
		prices:    map[string]string{"AAPL": "160", "MSFT": "310"},
		failCash:  true,
		failQuote: map[string]bool{"MSFT": true},
	}
	g := portfolio.NewGatherer(src, time.Second, 4, nil)
	in := g.Gather(context.Background(), []string{"AAPL", "MSFT", "BOGUS"})

	assert.Nil(t, in.Cash)
	assert.True(t, in.Failed("cash"))
	assert.True(t, in.Failed("quote:MSFT"))
	assert.True(t, in.Failed("quote:BOGUS"))
	assert.Contains(t, in.Quotes, "AAPL")

	sum := portfolio.NewAggregator().Aggregate(in)
	assert.True(t, sum.TotalCash.Equal(d("10000")))
	require.Len(t, sum.Holdings, 2)
	assert.Equal(t, model.PriceFromQuote, sum.Holdings[0].PriceSource)
	assert.Equal(t, model.PriceFromAverageCost, sum.Holdings[1].PriceSource)
	assert.True(t, sum.TotalPL.Equal(d("15")))
}

func TestGatherAppliesPerRequestTimeout(t *testing.T) {
	src := &fakeSource{prices: map[string]string{"AAPL": "1"}, slowQuote: time.Second}
	g := portfolio.NewGatherer(src, 20*time.Millisecond, 1, nil)

	start := time.Now()
	in := g.Gather(context.Background(), []string{"AAPL"})
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, in.Failed("quote:AAPL"))
	assert.NotNil(t, in.Holdings)
}

func TestGatherSymbolSkipsPnL(t *testing.T) {
	src := &fakeSource{
		holdings: []model.Holding{holding("AAPL", "10", "150", ""), holding("MSFT", "1", "300", "")},
		prices:   map[string]string{"AAPL": "160"},
		cash:     d("1"),
	}
	in := portfolio.NewGatherer(src, time.Second, 1, nil).GatherSymbol(context.Background(), "AAPL")
	assert.Nil(t, in.PnL)
	require.NotNil(t, in.Holdings)
	assert.Len(t, in.Holdings.Holdings, 1)
	assert.Equal(t, []string{"AAPL"}, src.quoted)
}
