package order_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Esemudje/portfolio-manager-team02/internal/model"
	"github.com/Esemudje/portfolio-manager-team02/internal/order"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nd(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }

func ruleOf(t *testing.T, err error) *order.ValidationError {
	t.Helper()
	var ve *order.ValidationError
	require.True(t, errors.As(err, &ve), "want *ValidationError, got %v", err)
	return ve
}

func TestValidateRules(t *testing.T) {
	held := &model.Holding{Symbol: "AAPL", Quantity: d("10")}
	ctx := order.Context{Holding: held, AvailableCash: d("1000"), CurrentPrice: d("150")}

	tests := []struct {
		name  string
		req   model.OrderRequest
		ctx   order.Context
		rule  error
		field string
	}{
		{
			name: "missing symbol",
			req:  model.OrderRequest{Side: model.SideBuy, Type: model.OrderMarket, Quantity: d("1")},
			rule: order.ErrMissingFields,
		},
		{
			name: "zero quantity",
			req:  model.OrderRequest{Symbol: "AAPL", Side: model.SideBuy, Type: model.OrderMarket},
			rule: order.ErrMissingFields,
		},
		{
			name: "negative quantity",
			req:  model.OrderRequest{Symbol: "AAPL", Side: model.SideBuy, Type: model.OrderMarket, Quantity: d("-1")},
			rule: order.ErrMissingFields,
		},
		{
			name: "unknown side",
			req:  model.OrderRequest{Symbol: "AAPL", Side: "short", Type: model.OrderMarket, Quantity: d("1")},
			rule: order.ErrUnsupportedOrder,
		},
		{
			name: "unknown type",
			req:  model.OrderRequest{Symbol: "AAPL", Side: model.SideBuy, Type: "trailing_stop", Quantity: d("1")},
			rule: order.ErrUnsupportedOrder,
		},
		{
			name:  "limit without price",
			req:   model.OrderRequest{Symbol: "AAPL", Side: model.SideBuy, Type: model.OrderLimit, Quantity: d("1")},
			rule:  order.ErrMissingPriceField,
			field: "price",
		},
		{
			name:  "limit with zero price",
			req:   model.OrderRequest{Symbol: "AAPL", Side: model.SideBuy, Type: model.OrderLimit, Quantity: d("1"), Price: nd("0")},
			rule:  order.ErrMissingPriceField,
			field: "price",
		},
		{
			name:  "stop without stop price",
			req:   model.OrderRequest{Symbol: "AAPL", Side: model.SideSell, Type: model.OrderStop, Quantity: d("1"), Price: nd("1")},
			rule:  order.ErrMissingPriceField,
			field: "stopPrice",
		},
		{
			name:  "stop_limit without limit price",
			req:   model.OrderRequest{Symbol: "AAPL", Side: model.SideSell, Type: model.OrderStopLimit, Quantity: d("1"), StopPrice: nd("140")},
			rule:  order.ErrMissingPriceField,
			field: "limitPrice",
		},
		{
			name: "market buy over cash",
			req:  model.OrderRequest{Symbol: "AAPL", Side: model.SideBuy, Type: model.OrderMarket, Quantity: d("7")},
			rule: order.ErrInsufficientFunds,
		},
		{
			name: "sell more than held",
			req:  model.OrderRequest{Symbol: "AAPL", Side: model.SideSell, Type: model.OrderMarket, Quantity: d("11")},
			rule: order.ErrInsufficientShares,
		},
		{
			name: "sell with no holding",
			req:  model.OrderRequest{Symbol: "AAPL", Side: model.SideSell, Type: model.OrderLimit, Quantity: d("1"), Price: nd("100")},
			ctx:  order.Context{AvailableCash: d("1000")},
			rule: order.ErrInsufficientShares,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ctx
			if tt.ctx != (order.Context{}) {
				c = tt.ctx
			}
			_, err := order.Validate(tt.req, c)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.rule)
			assert.Equal(t, tt.field, ruleOf(t, err).Field)
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	ctx := order.Context{
		Holding:       &model.Holding{Symbol: "AAPL", Quantity: d("10")},
		AvailableCash: d("1500"),
		CurrentPrice:  d("150"),
	}
	reqs := []model.OrderRequest{
		{Symbol: " aapl ", Side: model.SideBuy, Type: model.OrderMarket, Quantity: d("10")},
		{Symbol: "AAPL", Side: model.SideSell, Type: model.OrderMarket, Quantity: d("10")},
		{Symbol: "AAPL", Side: model.SideBuy, Type: model.OrderLimit, Quantity: d("100"), Price: nd("1")},
		{Symbol: "AAPL", Side: model.SideSell, Type: model.OrderStop, Quantity: d("5"), StopPrice: nd("140")},
		{Symbol: "AAPL", Side: model.SideSell, Type: model.OrderStopLimit, Quantity: d("5"), StopPrice: nd("140"), LimitPrice: nd("139.5")},
	}
	for _, req := range reqs {
		got, err := order.Validate(req, ctx)
		require.NoError(t, err, "%+v", req)
		assert.Equal(t, "AAPL", got.Symbol)
	}
}

func TestInsufficientSharesIsNeverClamped(t *testing.T) {
	req := model.OrderRequest{Symbol: "AAPL", Side: model.SideSell, Type: model.OrderMarket, Quantity: d("20")}
	got, err := order.Validate(req, order.Context{Holding: &model.Holding{Symbol: "AAPL", Quantity: d("10")}})

	ve := ruleOf(t, err)
	assert.Equal(t, order.ErrInsufficientShares, ve.Rule)
	assert.True(t, ve.Available.Equal(d("10")))
	assert.True(t, ve.Requested.Equal(d("20")))
	assert.Equal(t, "Cannot sell 20 shares. You only own 10 shares.", ve.Message)
	assert.True(t, got.Quantity.Equal(d("20")))
	assert.Equal(t, "insufficient_shares", ve.Code())
}

func TestSharesRuleSkippedWhenHoldingUnknown(t *testing.T) {
	req := model.OrderRequest{Symbol: "AAPL", Side: model.SideSell, Type: model.OrderMarket, Quantity: d("5")}
	_, err := order.Validate(req, order.Context{HoldingUnknown: true})
	require.NoError(t, err)

	_, err = order.Validate(req, order.Context{})
	assert.ErrorIs(t, err, order.ErrInsufficientShares)
}

func TestInsufficientFundsMessage(t *testing.T) {
	req := model.OrderRequest{Symbol: "AAPL", Side: model.SideBuy, Type: model.OrderMarket, Quantity: d("10")}
	_, err := order.Validate(req, order.Context{AvailableCash: d("100"), CurrentPrice: d("160")})

	ve := ruleOf(t, err)
	assert.True(t, ve.Required.Equal(d("1600")))
	assert.Equal(t, "Insufficient cash for this trade. Need $1,600.00, have $100.00", ve.Message)
}

func TestFirstFailingRuleWins(t *testing.T) {
	// Missing stop price and insufficient shares: the field rule comes first.
	req := model.OrderRequest{Symbol: "AAPL", Side: model.SideSell, Type: model.OrderStopLimit, Quantity: d("50"), LimitPrice: nd("1")}
	_, err := order.Validate(req, order.Context{})
	assert.ErrorIs(t, err, order.ErrMissingPriceField)
	assert.Equal(t, "Stop price is required for stop orders", err.Error())
}
