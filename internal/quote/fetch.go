package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/Esemudje/portfolio-manager-team02/internal/model"
)

var (
	// ErrMarker is returned when the upstream answered with an error payload
	// ("Error Message", "Note", ...) instead of a quote.
	ErrMarker = errors.New("quote: upstream returned an error payload")

	// ErrNoPrice is returned when the payload normalizes to a zero price.
	ErrNoPrice = errors.New("quote: no usable price")
)

// Fetcher returns a raw quote payload for a symbol.
type Fetcher interface {
	GetQuote(ctx context.Context, symbol string) (map[string]any, error)
}

// Fetch retrieves and normalizes one quote. Unlike Normalize it fails when
// the payload is an error marker or carries no price, so callers can tell
// "no quote" apart from "quote of zero".
func Fetch(ctx context.Context, f Fetcher, sym string) (model.Quote, error) {
	raw, err := f.GetQuote(ctx, sym)
	if err != nil {
		return model.Quote{}, fmt.Errorf("quote %s: %w", sym, err)
	}
	if IsErrorMarker(raw) {
		return model.Quote{}, fmt.Errorf("quote %s: %w", sym, ErrMarker)
	}
	q := NormalizeFor(sym, raw)
	if !q.Valid() {
		return q, fmt.Errorf("quote %s: %w", sym, ErrNoPrice)
	}
	return q, nil
}
