// Package quote normalizes the heterogeneous quote payloads returned upstream
// (provider "Global Quote" objects with numbered keys, or cached database rows
// with named columns) into model.Quote.
//
// This is the only package that knows provider-specific key names.
package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	"github.com/Esemudje/portfolio-manager-team02/internal/model"
	"github.com/Esemudje/portfolio-manager-team02/internal/symbol"
)

// Aliases are tried in order; the first one that resolves to a parseable
// value wins. Provider keys come first because they are the freshest source.
// Paths are compiled once at init.
var (
	symbolPaths        = compile(symbolAliases)
	pricePaths         = compile(priceAliases)
	changePaths        = compile(changeAliases)
	changePercentPaths = compile(changePercentAliases)
	volumePaths        = compile(volumeAliases)
	asOfPaths          = compile(asOfAliases)
)

var (
	symbolAliases = []string{
		`$["Global Quote"]["01. symbol"]`,
		`$["01. symbol"]`,
		`$.stock_symbol`,
		`$.symbol`,
	}
	priceAliases = []string{
		`$["Global Quote"]["05. price"]`,
		`$["05. price"]`,
		`$.current_price`,
		`$.price`,
	}
	changeAliases = []string{
		`$["Global Quote"]["09. change"]`,
		`$["09. change"]`,
		`$.change_amount`,
		`$.change`,
	}
	changePercentAliases = []string{
		`$["Global Quote"]["10. change percent"]`,
		`$["10. change percent"]`,
		`$.change_percent`,
		`$.changePercent`,
	}
	volumeAliases = []string{
		`$["Global Quote"]["06. volume"]`,
		`$["06. volume"]`,
		`$.volume`,
	}
	asOfAliases = []string{
		`$["Global Quote"]["07. latest trading day"]`,
		`$["07. latest trading day"]`,
		`$.latest_trading_day`,
		`$.last_updated`,
		`$.updated_at`,
	}
)

// errorKeys mark a payload as an upstream error rather than a quote.
var errorKeys = []string{"error", "Error Message", "Note", "Information"}

var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC1123,
}

// Normalize converts a raw quote payload into a Quote. It never fails:
// fields that cannot be found or parsed are left at zero, so callers can
// render a zero state instead of an error.
func Normalize(raw map[string]any) model.Quote {
	var q model.Quote
	if raw == nil {
		return q
	}

	if s, ok := lookupString(raw, symbolPaths); ok {
		q.Symbol = symbol.Normalize(s)
	}
	q.Price, _ = lookupDecimal(raw, pricePaths)
	q.Change, _ = lookupDecimal(raw, changePaths)
	q.ChangePercent, _ = lookupDecimal(raw, changePercentPaths)
	if v, ok := lookupDecimal(raw, volumePaths); ok {
		q.Volume = v.IntPart()
	}
	if s, ok := lookupString(raw, asOfPaths); ok {
		if t, ok := parseTime(s); ok {
			q.AsOf = &t
		}
	}
	return q
}

// NormalizeFor is Normalize with a fallback symbol for payloads that do not
// echo the ticker back.
func NormalizeFor(sym string, raw map[string]any) model.Quote {
	q := Normalize(raw)
	if q.Symbol == "" {
		q.Symbol = symbol.Normalize(sym)
	}
	return q
}

// IsErrorMarker reports whether raw is an upstream error payload (an explicit
// error, a provider rate-limit note) or carries nothing at all.
func IsErrorMarker(raw map[string]any) bool {
	if len(raw) == 0 {
		return true
	}
	for _, k := range errorKeys {
		if v, ok := raw[k]; ok && v != nil && v != "" {
			return true
		}
	}
	if gq, ok := raw["Global Quote"].(map[string]any); ok && len(gq) == 0 {
		return true
	}
	return false
}

func compile(aliases []string) []gval.Evaluable {
	out := make([]gval.Evaluable, 0, len(aliases))
	for _, a := range aliases {
		e, err := jsonpath.New(a)
		if err != nil {
			panic(fmt.Sprintf("quote: bad alias path %s: %v", a, err))
		}
		out = append(out, e)
	}
	return out
}

func get(raw map[string]any, path gval.Evaluable) (any, bool) {
	v, err := path(context.Background(), raw)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

func lookupString(raw map[string]any, paths []gval.Evaluable) (string, bool) {
	for _, p := range paths {
		v, ok := get(raw, p)
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if strings.TrimSpace(s) != "" {
				return s, true
			}
		case json.Number:
			return s.String(), true
		}
	}
	return "", false
}

func lookupDecimal(raw map[string]any, paths []gval.Evaluable) (decimal.Decimal, bool) {
	for _, p := range paths {
		v, ok := get(raw, p)
		if !ok {
			continue
		}
		if d, ok := toDecimal(v); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimSuffix(s, "%")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	return decimal.Zero, false
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
