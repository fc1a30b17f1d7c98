package portfolio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Esemudje/portfolio-manager-team02/internal/model"
	"github.com/Esemudje/portfolio-manager-team02/internal/quote"
	"github.com/Esemudje/portfolio-manager-team02/internal/symbol"
)

// Source is the subset of the backend client the gatherer reads from.
type Source interface {
	quote.Fetcher
	GetPortfolio(ctx context.Context, symbol string) (*model.HoldingsReport, error)
	GetCashBalance(ctx context.Context) (decimal.Decimal, error)
	GetPnL(ctx context.Context) (*model.PnLReport, error)
}

const (
	DefaultRequestTimeout   = 30 * time.Second
	DefaultQuoteConcurrency = 8
)

// Gatherer fetches aggregation inputs with all-settled semantics: every
// request runs to completion and a failure is recorded, never propagated.
type Gatherer struct {
	src              Source
	requestTimeout   time.Duration
	quoteConcurrency int
	logger           *slog.Logger
}

// NewGatherer creates a gatherer. Zero values select the defaults.
func NewGatherer(src Source, requestTimeout time.Duration, quoteConcurrency int, logger *slog.Logger) *Gatherer {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	if quoteConcurrency <= 0 {
		quoteConcurrency = DefaultQuoteConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gatherer{
		src:              src,
		requestTimeout:   requestTimeout,
		quoteConcurrency: quoteConcurrency,
		logger:           logger,
	}
}

// Gather fetches holdings, cash, P&L and quotes for the watchlist and every
// held symbol.
func (g *Gatherer) Gather(ctx context.Context, watchlist []string) Inputs {
	return g.gather(ctx, "", watchlist, true)
}

// GatherSymbol fetches the holding, quote and cash for one symbol. The
// portfolio-wide P&L summary is not fetched, so P&L is computed locally.
func (g *Gatherer) GatherSymbol(ctx context.Context, sym string) Inputs {
	return g.gather(ctx, sym, []string{sym}, false)
}

func (g *Gatherer) gather(ctx context.Context, filter string, watchlist []string, withPnL bool) Inputs {
	in := Inputs{
		Quotes: make(map[string]model.Quote),
		Errors: make(map[string]error),
	}
	var mu sync.Mutex
	fail := func(source string, err error) {
		mu.Lock()
		in.Errors[source] = err
		mu.Unlock()
		g.logger.Warn("portfolio fetch failed", "source", source, "err", err)
	}

	// Phase 1: holdings, cash, P&L and watchlist quotes, concurrently.
	var eg errgroup.Group
	eg.Go(func() error {
		rctx, cancel := context.WithTimeout(ctx, g.requestTimeout)
		defer cancel()
		rep, err := g.src.GetPortfolio(rctx, filter)
		if err != nil {
			fail("holdings", err)
			return nil
		}
		mu.Lock()
		in.Holdings = rep
		mu.Unlock()
		return nil
	})
	eg.Go(func() error {
		rctx, cancel := context.WithTimeout(ctx, g.requestTimeout)
		defer cancel()
		bal, err := g.src.GetCashBalance(rctx)
		if err != nil {
			fail("cash", err)
			return nil
		}
		mu.Lock()
		in.Cash = &bal
		mu.Unlock()
		return nil
	})
	if withPnL {
		eg.Go(func() error {
			rctx, cancel := context.WithTimeout(ctx, g.requestTimeout)
			defer cancel()
			pnl, err := g.src.GetPnL(rctx)
			if err != nil {
				fail("pnl", err)
				return nil
			}
			mu.Lock()
			in.PnL = pnl
			mu.Unlock()
			return nil
		})
	}
	eg.Go(func() error {
		g.fetchQuotes(ctx, symbol.Union(watchlist), &mu, in.Quotes, fail)
		return nil
	})
	_ = eg.Wait()

	// Phase 2: quotes for held symbols the watchlist did not cover.
	if in.Holdings != nil {
		var missing []string
		for _, h := range in.Holdings.Holdings {
			if _, ok := in.Quotes[h.Symbol]; !ok && !in.Failed("quote:"+h.Symbol) {
				missing = append(missing, h.Symbol)
			}
		}
		g.fetchQuotes(ctx, symbol.Union(missing), &mu, in.Quotes, fail)
	}

	in.AsOf = time.Now().UTC()
	return in
}

// fetchQuotes fetches each symbol's quote with bounded concurrency. One
// symbol's failure never affects another.
func (g *Gatherer) fetchQuotes(ctx context.Context, symbols []string, mu *sync.Mutex, into map[string]model.Quote, fail func(string, error)) {
	if len(symbols) == 0 {
		return
	}
	var eg errgroup.Group
	eg.SetLimit(g.quoteConcurrency)
	for _, sym := range symbols {
		sym := sym
		eg.Go(func() error {
			rctx, cancel := context.WithTimeout(ctx, g.requestTimeout)
			defer cancel()
			q, err := quote.Fetch(rctx, g.src, sym)
			if err != nil {
				fail("quote:"+sym, err)
				return nil
			}
			mu.Lock()
			into[sym] = q
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
}
