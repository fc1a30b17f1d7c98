// Package symbol handles stock ticker normalization and format validation.
// Existence of a symbol is decided upstream by asking for a quote; this
// package only rejects strings that can never be a ticker.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// tickerRegex matches upper-case tickers such as AAPL, BRK.B or RDS-A.
var tickerRegex = regexp.MustCompile(`^[A-Z0-9]{1,10}([.\-][A-Z0-9]{1,4})?$`)

var (
	ErrEmpty         = errors.New("symbol: empty symbol")
	ErrInvalidFormat = errors.New("symbol: invalid ticker format")
)

// Normalize trims surrounding whitespace and upper-cases the ticker.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Parse normalizes s and validates its format.
func Parse(s string) (string, error) {
	sym := Normalize(s)
	if sym == "" {
		return "", ErrEmpty
	}
	if !tickerRegex.MatchString(sym) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, sym)
	}
	return sym, nil
}

// Union returns the symbols of every list in first-seen order, without
// duplicates. Input symbols are normalized.
func Union(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, s := range list {
			sym := Normalize(s)
			if sym == "" || seen[sym] {
				continue
			}
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out
}
