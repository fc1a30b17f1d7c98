// Package model defines the core domain types shared across the portfolio gateway.
// Monetary values use shopspring/decimal, never float64.
package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultUserID is the single account the upstream backend knows about.
const DefaultUserID = "default_user"

// Quote is the one internal quote shape. Provider-specific key names never
// leave the quote package.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Volume        int64           `json:"volume"`
	AsOf          *time.Time      `json:"as_of,omitempty"`
}

// Valid reports whether the quote carries a usable price.
func (q Quote) Valid() bool { return q.Price.IsPositive() }

// PriceSource records where a holding's current price came from.
type PriceSource string

const (
	PriceFromQuote       PriceSource = "quote"
	PriceFromStored      PriceSource = "stored"
	PriceFromAverageCost PriceSource = "average_cost"
	PriceMissing         PriceSource = "none"
)

// Holding is one owned position. Quantity is reduced by sells on the
// backend (FIFO lot consumption); the gateway only values it.
type Holding struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`   // quantity * currentPrice
	CostBasis     decimal.Decimal `json:"cost_basis"`     // quantity * averageCost
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"` // marketValue - costBasis
	PriceSource   PriceSource     `json:"price_source,omitempty"`
	Stale         bool            `json:"stale"`
}

// HoldingsReport is the upstream portfolio response: holdings plus the
// backend's own summary figures, which are absent when the backend omits them.
type HoldingsReport struct {
	Holdings   []Holding           `json:"holdings"`
	TotalValue decimal.NullDecimal `json:"total_value"`
	TotalPnL   decimal.NullDecimal `json:"total_pnl"`
}

// PnLReport is the comprehensive P&L summary computed by the backend.
type PnLReport struct {
	Realized   decimal.Decimal `json:"realized_pnl"`
	Unrealized decimal.Decimal `json:"unrealized_pnl"`
	Holdings   []Holding       `json:"holdings,omitempty"`
}

// SummarySource names which computation produced a summary figure.
type SummarySource string

const (
	SourceBackend SummarySource = "backend"
	SourceLocal   SummarySource = "local"
)

// PortfolioSummary is derived on every fetch or poll and never persisted.
//
// Invariant: TotalPL == TotalRealizedPL + TotalUnrealizedPL.
type PortfolioSummary struct {
	Holdings          []Holding       `json:"holdings"`
	TotalValue        decimal.Decimal `json:"total_value"`
	TotalCostBasis    decimal.Decimal `json:"total_cost_basis"`
	TotalCash         decimal.Decimal `json:"total_cash"`
	TotalRealizedPL   decimal.Decimal `json:"total_realized_pl"`
	TotalUnrealizedPL decimal.Decimal `json:"total_unrealized_pl"`
	TotalPL           decimal.Decimal `json:"total_pl"`
	ValueSource       SummarySource   `json:"value_source"`
	PLSource          SummarySource   `json:"pl_source"`
	CashStale         bool            `json:"cash_stale"`
	HoldingsStale     bool            `json:"holdings_stale"`
	AsOf              time.Time       `json:"as_of"`
}

// TradeType is the direction of an executed trade.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// Trade is an immutable record of an executed trade.
type Trade struct {
	ID          string              `json:"id"`
	Symbol      string              `json:"symbol"`
	Type        TradeType           `json:"type"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Price       decimal.Decimal     `json:"price"`
	Total       decimal.Decimal     `json:"total"` // quantity * price
	Date        time.Time           `json:"date"`
	RealizedPnL decimal.NullDecimal `json:"realized_pnl"`
}

// OrderSide is buy or sell.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType selects trigger and price conditions.
type OrderType string

const (
	OrderMarket    OrderType = "market"
	OrderLimit     OrderType = "limit"
	OrderStop      OrderType = "stop"
	OrderStopLimit OrderType = "stop_limit"
)

// OrderStatus is the pending-order state machine: Pending -> Filled | Cancelled.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
)

// OrderRequest is an order as submitted by the trading form.
type OrderRequest struct {
	ClientOrderID string              `json:"client_order_id,omitempty"`
	UserID        string              `json:"user_id,omitempty"`
	Symbol        string              `json:"symbol"`
	Side          OrderSide           `json:"side"`
	Type          OrderType           `json:"order_type"`
	Quantity      decimal.Decimal     `json:"quantity"`
	Price         decimal.NullDecimal `json:"price"`
	StopPrice     decimal.NullDecimal `json:"stop_price"`
	LimitPrice    decimal.NullDecimal `json:"limit_price"`
}

// PendingOrder is an order the backend has accepted but not yet filled.
type PendingOrder struct {
	OrderID    string              `json:"order_id"`
	Symbol     string              `json:"symbol"`
	Side       OrderSide           `json:"side"`
	Type       OrderType           `json:"order_type"`
	Quantity   decimal.Decimal     `json:"quantity"`
	Price      decimal.NullDecimal `json:"price"`
	StopPrice  decimal.NullDecimal `json:"stop_price"`
	LimitPrice decimal.NullDecimal `json:"limit_price"`
	Status     OrderStatus         `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
}

// CanCancel reports whether a cancel request is meaningful for the order.
func (o PendingOrder) CanCancel() bool { return o.Status == StatusPending }

// OrderResult is the backend's answer to an order placement or cancel.
type OrderResult struct {
	Success        bool                `json:"success"`
	Message        string              `json:"message"`
	OrderID        string              `json:"order_id,omitempty"`
	FilledPrice    decimal.NullDecimal `json:"filled_price"`
	FilledQuantity decimal.NullDecimal `json:"filled_quantity"`
}

// CashResult is the backend's answer to a deposit or withdrawal.
type CashResult struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Balance decimal.NullDecimal `json:"cash_balance"`
}

// StockMatch is one result of a company name or ticker search.
type StockMatch struct {
	Symbol             string `json:"symbol"`
	Name               string `json:"name"`
	Sector             string `json:"sector"`
	MarketCap          int64  `json:"market_cap"`
	MarketCapFormatted string `json:"market_cap_formatted"`
}

// Performance summarizes trading activity over the last PeriodDays days.
type Performance struct {
	PeriodDays  int             `json:"period_days"`
	BuyVolume   decimal.Decimal `json:"buy_volume"`
	SellVolume  decimal.Decimal `json:"sell_volume"`
	BuyTrades   int             `json:"buy_trades"`
	SellTrades  int             `json:"sell_trades"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// NetFlow is sell volume minus buy volume: positive when the period
// returned cash to the account.
func (p Performance) NetFlow() decimal.Decimal { return p.SellVolume.Sub(p.BuyVolume) }

// Lot is the unsold remainder of one buy trade. Sells consume lots oldest
// first.
type Lot struct {
	TradeID  string          `json:"trade_id"`
	Quantity decimal.Decimal `json:"available_quantity"`
	Price    decimal.Decimal `json:"price_at_trade"`
	Date     time.Time       `json:"trade_date"`
}

// LotReport lists the open lots for one symbol, oldest first.
type LotReport struct {
	Symbol      string          `json:"symbol"`
	Lots        []Lot           `json:"lots"`
	Quantity    decimal.Decimal `json:"total_quantity"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	AverageCost decimal.Decimal `json:"average_cost"`
}

// NewLotReport orders lots oldest first and derives the totals. Lots with no
// remaining quantity are dropped.
func NewLotReport(sym string, lots []Lot) LotReport {
	out := LotReport{Symbol: sym, Lots: make([]Lot, 0, len(lots))}
	for _, l := range lots {
		if !l.Quantity.IsPositive() {
			continue
		}
		out.Lots = append(out.Lots, l)
		out.Quantity = out.Quantity.Add(l.Quantity)
		out.CostBasis = out.CostBasis.Add(l.Quantity.Mul(l.Price))
	}
	sort.SliceStable(out.Lots, func(i, j int) bool { return out.Lots[i].Date.Before(out.Lots[j].Date) })
	if out.Quantity.IsPositive() {
		out.AverageCost = out.CostBasis.Div(out.Quantity).Round(4)
	}
	return out
}
