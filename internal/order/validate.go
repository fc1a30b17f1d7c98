// Package order validates order requests against the trading context and
// submits them to the backend.
//
// Validation is advisory: the backend re-checks funds and shares at
// execution time and its verdict is final.
package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Esemudje/portfolio-manager-team02/internal/format"
	"github.com/Esemudje/portfolio-manager-team02/internal/model"
	"github.com/Esemudje/portfolio-manager-team02/internal/symbol"
)

// Rule sentinels. Every *ValidationError matches exactly one with errors.Is.
var (
	ErrMissingFields      = errors.New("order: missing fields")
	ErrUnsupportedOrder   = errors.New("order: unsupported side or type")
	ErrMissingPriceField  = errors.New("order: missing price field")
	ErrInsufficientFunds  = errors.New("order: insufficient funds")
	ErrInsufficientShares = errors.New("order: insufficient shares")
)

// ValidationError is a rule failure found before anything is sent upstream.
type ValidationError struct {
	Rule    error  // one of the Err* sentinels
	Field   string // the missing price field, for ErrMissingPriceField
	Message string // user-readable

	Required  decimal.Decimal // InsufficientFunds: cost of the order
	Available decimal.Decimal // InsufficientFunds: cash; InsufficientShares: owned
	Requested decimal.Decimal // InsufficientShares: quantity asked for
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Rule }

// Code is the stable machine-readable name of the failed rule.
func (e *ValidationError) Code() string {
	switch e.Rule {
	case ErrMissingFields:
		return "missing_fields"
	case ErrUnsupportedOrder:
		return "unsupported_order"
	case ErrMissingPriceField:
		return "missing_price_field"
	case ErrInsufficientFunds:
		return "insufficient_funds"
	case ErrInsufficientShares:
		return "insufficient_shares"
	default:
		return "invalid_order"
	}
}

// Context is what the validator needs to know about the account.
type Context struct {
	Holding       *model.Holding // nil when nothing is owned
	AvailableCash decimal.Decimal
	CurrentPrice  decimal.Decimal

	// HoldingUnknown is set when the holding could not be fetched. The
	// shares rule is skipped and the backend decides.
	HoldingUnknown bool
}

var priceFieldMessages = map[string]string{
	"price":      "Price is required for limit orders",
	"stopPrice":  "Stop price is required for stop orders",
	"limitPrice": "Limit price is required for stop-limit orders",
}

// CheckFields runs the rules that need no account state: required fields,
// supported side and type, and the price fields each order type requires.
// The returned request has a normalized symbol.
func CheckFields(req model.OrderRequest) (model.OrderRequest, error) {
	req.Symbol = symbol.Normalize(req.Symbol)
	if req.Symbol == "" || !req.Quantity.IsPositive() {
		return req, &ValidationError{
			Rule:    ErrMissingFields,
			Message: "Please select a stock and enter a valid quantity",
		}
	}

	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return req, &ValidationError{
			Rule:    ErrUnsupportedOrder,
			Message: fmt.Sprintf("Unsupported order side %q", req.Side),
		}
	}
	fields, ok := requiredFields[req.Type]
	if !ok {
		return req, &ValidationError{
			Rule:    ErrUnsupportedOrder,
			Message: fmt.Sprintf("Unsupported order type %q", req.Type),
		}
	}

	for _, f := range fields {
		if !present(priceField(req, f)) {
			return req, &ValidationError{
				Rule:    ErrMissingPriceField,
				Field:   f,
				Message: priceFieldMessages[f],
			}
		}
	}
	return req, nil
}

// Validate runs every rule in order; the first failure wins.
func Validate(req model.OrderRequest, c Context) (model.OrderRequest, error) {
	req, err := CheckFields(req)
	if err != nil {
		return req, err
	}

	if req.Type == model.OrderMarket && req.Side == model.SideBuy {
		cost := c.CurrentPrice.Mul(req.Quantity)
		if cost.GreaterThan(c.AvailableCash) {
			return req, &ValidationError{
				Rule:      ErrInsufficientFunds,
				Required:  cost,
				Available: c.AvailableCash,
				Message: fmt.Sprintf("Insufficient cash for this trade. Need %s, have %s",
					format.Currency(cost), format.Currency(c.AvailableCash)),
			}
		}
	}

	if req.Side == model.SideSell && !c.HoldingUnknown {
		owned := decimal.Zero
		if c.Holding != nil {
			owned = c.Holding.Quantity
		}
		if req.Quantity.GreaterThan(owned) {
			return req, &ValidationError{
				Rule:      ErrInsufficientShares,
				Available: owned,
				Requested: req.Quantity,
				Message: fmt.Sprintf("Cannot sell %s shares. You only own %s shares.",
					req.Quantity.String(), owned.String()),
			}
		}
	}
	return req, nil
}

// requiredFields lists the price fields each order type must carry.
var requiredFields = map[model.OrderType][]string{
	model.OrderMarket:    nil,
	model.OrderLimit:     {"price"},
	model.OrderStop:      {"stopPrice"},
	model.OrderStopLimit: {"stopPrice", "limitPrice"},
}

func priceField(req model.OrderRequest, field string) decimal.NullDecimal {
	switch field {
	case "price":
		return req.Price
	case "stopPrice":
		return req.StopPrice
	default:
		return req.LimitPrice
	}
}

// present treats zero and negative prices like a blank form field.
func present(v decimal.NullDecimal) bool {
	return v.Valid && v.Decimal.IsPositive()
}
