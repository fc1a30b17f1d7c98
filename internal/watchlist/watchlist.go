// Package watchlist keeps the ordered, de-duplicated set of symbols the
// dashboard polls. Every change is written to the store before it becomes
// visible.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Esemudje/portfolio-manager-team02/internal/metrics"
	"github.com/Esemudje/portfolio-manager-team02/internal/quote"
	"github.com/Esemudje/portfolio-manager-team02/internal/store"
	"github.com/Esemudje/portfolio-manager-team02/internal/symbol"
)

// Key is the store key the list is persisted under.
const Key = "watchlist"

var (
	ErrInvalidSymbol   = errors.New("watchlist: invalid symbol")
	ErrDuplicateSymbol = errors.New("watchlist: symbol already in watchlist")
)

// DefaultSymbols is the list a new user starts with.
var DefaultSymbols = []string{"AAPL", "GOOGL", "AMZN", "TSLA", "MSFT"}

const checkTimeout = 10 * time.Second

// Watchlist is safe for concurrent use. Two gateways sharing one store
// overwrite each other's changes (last write wins).
type Watchlist struct {
	mu      sync.Mutex
	st      store.Store
	checker quote.Fetcher
	logger  *slog.Logger
	symbols []string
}

// Load reads the persisted list. An absent or corrupt value yields the
// defaults; stored symbols are re-normalized and de-duplicated.
func Load(ctx context.Context, st store.Store, checker quote.Fetcher, logger *slog.Logger) *Watchlist {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watchlist{st: st, checker: checker, logger: logger}

	var stored []string
	err := store.GetJSON(ctx, st, Key, &stored)
	switch {
	case err == nil:
		w.symbols = symbol.Union(stored)
	case errors.Is(err, store.ErrNotFound):
		w.symbols = slices.Clone(DefaultSymbols)
	default:
		logger.Warn("watchlist unreadable, using defaults", "err", err)
		w.symbols = slices.Clone(DefaultSymbols)
	}
	metrics.WatchlistSize.Set(float64(len(w.symbols)))
	return w
}

// Symbols returns a copy of the list in insertion order.
func (w *Watchlist) Symbols() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.symbols))
	copy(out, w.symbols)
	return out
}

// Contains reports whether sym (in any case) is on the list.
func (w *Watchlist) Contains(sym string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Contains(w.symbols, symbol.Normalize(sym))
}

// Add validates sym against the quote service and appends it. It returns
// the normalized symbol.
func (w *Watchlist) Add(ctx context.Context, raw string) (string, error) {
	sym, err := symbol.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSymbol, err)
	}
	if w.Contains(sym) {
		return sym, fmt.Errorf("%w: %s", ErrDuplicateSymbol, sym)
	}

	// The quote check runs without the lock held.
	cctx, cancel := context.WithTimeout(ctx, checkTimeout)
	_, err = quote.Fetch(cctx, w.checker, sym)
	cancel()
	if err != nil {
		w.logger.Info("watchlist add rejected", "symbol", sym, "err", err)
		return sym, fmt.Errorf("%w: %s: %v", ErrInvalidSymbol, sym, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// Another Add may have won while the quote was in flight.
	if slices.Contains(w.symbols, sym) {
		return sym, fmt.Errorf("%w: %s", ErrDuplicateSymbol, sym)
	}
	next := append(slices.Clone(w.symbols), sym)
	if err := w.persist(ctx, next); err != nil {
		return sym, err
	}
	w.symbols = next
	w.logger.Info("watchlist symbol added", "symbol", sym, "size", len(next))
	return sym, nil
}

// Remove deletes sym from the list. Removing a symbol that is not on the
// list succeeds without writing anything.
func (w *Watchlist) Remove(ctx context.Context, raw string) error {
	sym := symbol.Normalize(raw)

	w.mu.Lock()
	defer w.mu.Unlock()
	i := slices.Index(w.symbols, sym)
	if i < 0 {
		return nil
	}
	next := slices.Delete(slices.Clone(w.symbols), i, i+1)
	if err := w.persist(ctx, next); err != nil {
		return err
	}
	w.symbols = next
	w.logger.Info("watchlist symbol removed", "symbol", sym, "size", len(next))
	return nil
}

func (w *Watchlist) persist(ctx context.Context, symbols []string) error {
	if err := store.PutJSON(ctx, w.st, Key, symbols); err != nil {
		return fmt.Errorf("save watchlist: %w", err)
	}
	metrics.WatchlistSize.Set(float64(len(symbols)))
	return nil
}
