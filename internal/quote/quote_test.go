package quote

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func TestNormalize_ProviderGlobalQuote(t *testing.T) {
	raw := decode(t, `{
		"Global Quote": {
			"01. symbol": "IBM",
			"05. price": "186.20",
			"06. volume": "3456789",
			"07. latest trading day": "2024-01-15",
			"09. change": "1.20",
			"10. change percent": "0.65%"
		}
	}`)

	q := Normalize(raw)

	assert.Equal(t, "IBM", q.Symbol)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("186.20")))
	assert.True(t, q.Change.Equal(decimal.RequireFromString("1.20")))
	assert.True(t, q.ChangePercent.Equal(decimal.RequireFromString("0.65")))
	assert.Equal(t, int64(3456789), q.Volume)
	require.NotNil(t, q.AsOf)
	assert.Equal(t, "2024-01-15", q.AsOf.Format("2006-01-02"))
}

func TestNormalize_FlatProviderKeys(t *testing.T) {
	raw := decode(t, `{"05. price": "195.60", "10. change percent": "-1.10%"}`)

	q := NormalizeFor("aapl", raw)

	assert.Equal(t, "AAPL", q.Symbol)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("195.60")))
	assert.True(t, q.ChangePercent.Equal(decimal.RequireFromString("-1.10")))
}

func TestNormalize_DatabaseRow(t *testing.T) {
	raw := decode(t, `{
		"stock_symbol": "msft",
		"current_price": 410.5,
		"change_amount": -2.25,
		"change_percent": "-0.55",
		"volume": 1200,
		"last_updated": "2025-01-30 15:04:05"
	}`)

	q := Normalize(raw)

	assert.Equal(t, "MSFT", q.Symbol)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("410.5")))
	assert.True(t, q.Change.Equal(decimal.RequireFromString("-2.25")))
	assert.True(t, q.ChangePercent.Equal(decimal.RequireFromString("-0.55")))
	assert.Equal(t, int64(1200), q.Volume)
	require.NotNil(t, q.AsOf)
}

func TestNormalize_MissingFieldsYieldZeroQuote(t *testing.T) {
	q := Normalize(decode(t, `{"unexpected": true, "05. price": "n/a"}`))

	assert.True(t, q.Price.IsZero())
	assert.False(t, q.Valid())
	assert.Nil(t, q.AsOf)

	assert.NotPanics(t, func() { Normalize(nil) })
}

func TestNormalize_ProviderKeyWinsOverDatabaseKey(t *testing.T) {
	q := Normalize(decode(t, `{"05. price": "101", "current_price": "99"}`))
	assert.True(t, q.Price.Equal(decimal.NewFromInt(101)))
}

func TestIsErrorMarker(t *testing.T) {
	assert.True(t, IsErrorMarker(nil))
	assert.True(t, IsErrorMarker(decode(t, `{"error": "Stock symbol not found"}`)))
	assert.True(t, IsErrorMarker(decode(t, `{"Note": "API call frequency exceeded"}`)))
	assert.True(t, IsErrorMarker(decode(t, `{"Global Quote": {}}`)))
	assert.False(t, IsErrorMarker(decode(t, `{"current_price": 10}`)))
}

func TestAliasPathsCompiledOnce(t *testing.T) {
	groups := []struct {
		aliases []string
		paths   int
	}{
		{symbolAliases, len(symbolPaths)},
		{priceAliases, len(pricePaths)},
		{changeAliases, len(changePaths)},
		{changePercentAliases, len(changePercentPaths)},
		{volumeAliases, len(volumePaths)},
		{asOfAliases, len(asOfPaths)},
	}
	for _, g := range groups {
		assert.Equal(t, len(g.aliases), g.paths, "%v", g.aliases)
	}

	raw := decode(t, `{"Global Quote": {"01. symbol": "msft", "05. price": "410.10"}}`)
	for i := 0; i < 3; i++ {
		q := Normalize(raw)
		assert.Equal(t, "MSFT", q.Symbol)
		assert.True(t, q.Price.Equal(decimal.RequireFromString("410.10")))
	}
}

func BenchmarkNormalize(b *testing.B) {
	raw := map[string]any{"Global Quote": map[string]any{
		"01. symbol":             "AAPL",
		"05. price":              "160.00",
		"09. change":             "2.00",
		"10. change percent":     "1.27%",
		"06. volume":             "51234567",
		"07. latest trading day": "2025-01-02",
	}}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Normalize(raw)
	}
}
