package watchlist_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Esemudje/portfolio-manager-team02/internal/store"
	"github.com/Esemudje/portfolio-manager-team02/internal/watchlist"
)

// quotes answers every symbol in known with a price; others get the
// provider's error payload.
type quotes struct {
	known map[string]bool
	calls atomic.Int32
}

func (q *quotes) GetQuote(_ context.Context, sym string) (map[string]any, error) {
	q.calls.Add(1)
	if sym == "DOWN" {
		return nil, errors.New("connection refused")
	}
	if !q.known[sym] {
		return map[string]any{"Error Message": "Invalid API call"}, nil
	}
	return map[string]any{"Global Quote": map[string]any{"01. symbol": sym, "05. price": "10.00"}}, nil
}

// countingStore counts writes and can be told to fail them.
type countingStore struct {
	*store.MemoryStore
	puts atomic.Int32
	fail bool
}

func (s *countingStore) Put(ctx context.Context, k string, v []byte) error {
	s.puts.Add(1)
	if s.fail {
		return errors.New("disk full")
	}
	return s.MemoryStore.Put(ctx, k, v)
}

func setup(t *testing.T, known ...string) (*watchlist.Watchlist, *countingStore, *quotes) {
	t.Helper()
	q := &quotes{known: map[string]bool{}}
	for _, k := range known {
		q.known[k] = true
	}
	st := &countingStore{MemoryStore: store.NewMemoryStore()}
	return watchlist.Load(context.Background(), st, q, nil), st, q
}

func TestLoadDefaults(t *testing.T) {
	w, _, _ := setup(t)
	assert.Equal(t, []string{"AAPL", "GOOGL", "AMZN", "TSLA", "MSFT"}, w.Symbols())
}

func TestLoadCorruptFallsBackToDefaults(t *testing.T) {
	st := store.NewMemoryStore()
	_ = st.Put(context.Background(), watchlist.Key, []byte(`{"oops":`))
	w := watchlist.Load(context.Background(), st, &quotes{}, nil)
	assert.Equal(t, watchlist.DefaultSymbols, w.Symbols())
}

func TestLoadNormalizesStored(t *testing.T) {
	st := store.NewMemoryStore()
	_ = st.Put(context.Background(), watchlist.Key, []byte(`["nvda"," NVDA ","ibm"]`))
	w := watchlist.Load(context.Background(), st, &quotes{}, nil)
	assert.Equal(t, []string{"NVDA", "IBM"}, w.Symbols())
}

func TestAddNormalizesAndPersists(t *testing.T) {
	ctx := context.Background()
	w, st, _ := setup(t, "NVDA")

	sym, err := w.Add(ctx, "  nvda ")
	require.NoError(t, err)
	assert.Equal(t, "NVDA", sym)
	assert.Equal(t, "NVDA", w.Symbols()[5])

	reloaded := watchlist.Load(ctx, st, &quotes{}, nil)
	assert.Equal(t, w.Symbols(), reloaded.Symbols())
}

func TestAddDeduplicatesAcrossCase(t *testing.T) {
	ctx := context.Background()
	w, _, q := setup(t)

	_, err := w.Add(ctx, "aapl")
	assert.ErrorIs(t, err, watchlist.ErrDuplicateSymbol)
	assert.Zero(t, q.calls.Load(), "duplicate must be caught before the quote check")
	assert.Len(t, w.Symbols(), 5)
}

func TestAddRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	w, st, _ := setup(t)

	for _, in := range []string{"", "   ", "NOT VALID", "ZZZZ", "DOWN"} {
		_, err := w.Add(ctx, in)
		assert.ErrorIs(t, err, watchlist.ErrInvalidSymbol, "input %q", in)
	}
	assert.Len(t, w.Symbols(), 5)
	assert.Zero(t, st.puts.Load())
}

func TestAddRollsBackOnPersistFailure(t *testing.T) {
	w, st, _ := setup(t, "NVDA")
	st.fail = true

	_, err := w.Add(context.Background(), "NVDA")
	require.Error(t, err)
	assert.False(t, w.Contains("NVDA"))
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	w, st, _ := setup(t)

	require.NoError(t, w.Remove(ctx, "tsla"))
	assert.Equal(t, []string{"AAPL", "GOOGL", "AMZN", "MSFT"}, w.Symbols())
	assert.EqualValues(t, 1, st.puts.Load())

	require.NoError(t, w.Remove(ctx, "TSLA"))
	assert.Equal(t, []string{"AAPL", "GOOGL", "AMZN", "MSFT"}, w.Symbols())
	assert.EqualValues(t, 1, st.puts.Load(), "removing an absent symbol must not write")
}

func TestRemoveKeepsStateOnPersistFailure(t *testing.T) {
	w, st, _ := setup(t)
	st.fail = true

	assert.Error(t, w.Remove(context.Background(), "AAPL"))
	assert.True(t, w.Contains("AAPL"))
}

func TestSymbolsReturnsCopy(t *testing.T) {
	w, _, _ := setup(t)
	s := w.Symbols()
	s[0] = "HACKED"
	assert.Equal(t, "AAPL", w.Symbols()[0])
}

func TestConcurrentAddsOfSameSymbol(t *testing.T) {
	w, _, _ := setup(t, "NVDA")

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.Add(context.Background(), "nvda"); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, ok.Load())
	assert.Len(t, w.Symbols(), 6)
}
