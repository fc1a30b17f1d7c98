package backend

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Esemudje/portfolio-manager-team02/internal/model"
	"github.com/Esemudje/portfolio-manager-team02/internal/symbol"
)

// flexString accepts either a JSON string or a JSON number (MySQL ids come
// back as integers, UUIDs as strings).
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(b))
	return nil
}

// errorBody is embedded in every response so `{"error": ...}` is always seen.
type errorBody struct {
	Error string `json:"error"`
}

type holdingWire struct {
	Symbol        string              `json:"symbol"`
	StockSymbol   string              `json:"stock_symbol"`
	Quantity      decimal.Decimal     `json:"quantity"`
	AverageCost   decimal.Decimal     `json:"average_cost"`
	CurrentPrice  decimal.NullDecimal `json:"current_price"`
	MarketValue   decimal.NullDecimal `json:"market_value"`
	UnrealizedPnL decimal.NullDecimal `json:"unrealized_pnl"`
}

func (h holdingWire) toModel() model.Holding {
	sym := h.StockSymbol
	if sym == "" {
		sym = h.Symbol
	}
	out := model.Holding{
		Symbol:      symbol.Normalize(sym),
		Quantity:    h.Quantity,
		AverageCost: h.AverageCost,
	}
	if h.CurrentPrice.Valid {
		out.CurrentPrice = h.CurrentPrice.Decimal
	}
	return out
}

func holdingsToModel(in []holdingWire) []model.Holding {
	out := make([]model.Holding, 0, len(in))
	for _, h := range in {
		out = append(out, h.toModel())
	}
	return out
}

type portfolioWire struct {
	errorBody
	Holdings []holdingWire `json:"holdings"`
	Summary  struct {
		TotalPortfolioValue decimal.NullDecimal `json:"total_portfolio_value"`
		TotalPnL            decimal.NullDecimal `json:"total_pnl"`
	} `json:"summary"`
}

type cashWire struct {
	errorBody
	CashBalance decimal.NullDecimal `json:"cash_balance"`
}

type pnlWire struct {
	errorBody
	Summary struct {
		RealizedPnL   decimal.NullDecimal `json:"realized_pnl"`
		UnrealizedPnL decimal.NullDecimal `json:"unrealized_pnl"`
	} `json:"summary"`
	Unrealized struct {
		Holdings []holdingWire `json:"holdings"`
	} `json:"unrealized"`
}

type tradeWire struct {
	TradeID      flexString          `json:"trade_id"`
	ID           flexString          `json:"id"`
	StockSymbol  string              `json:"stock_symbol"`
	Symbol       string              `json:"symbol"`
	TradeType    string              `json:"trade_type"`
	Type         string              `json:"type"`
	Quantity     decimal.Decimal     `json:"quantity"`
	PriceAtTrade decimal.NullDecimal `json:"price_at_trade"`
	Price        decimal.NullDecimal `json:"price"`
	TradeDate    string              `json:"trade_date"`
	Date         string              `json:"date"`
	RealizedPnL  decimal.NullDecimal `json:"realized_pnl"`
}

func (t tradeWire) toModel() model.Trade {
	id := string(t.TradeID)
	if id == "" {
		id = string(t.ID)
	}
	sym := t.StockSymbol
	if sym == "" {
		sym = t.Symbol
	}
	typ := t.TradeType
	if typ == "" {
		typ = t.Type
	}
	price := t.PriceAtTrade
	if !price.Valid {
		price = t.Price
	}
	date := t.TradeDate
	if date == "" {
		date = t.Date
	}
	out := model.Trade{
		ID:          id,
		Symbol:      symbol.Normalize(sym),
		Type:        model.TradeType(strings.ToUpper(typ)),
		Quantity:    t.Quantity,
		Price:       price.Decimal,
		RealizedPnL: t.RealizedPnL,
	}
	out.Total = out.Quantity.Mul(out.Price)
	out.Date, _ = parseTimestamp(date)
	return out
}

type tradesWire struct {
	errorBody
	Trades []tradeWire `json:"trades"`
}

type orderWire struct {
	OrderID     flexString          `json:"order_id"`
	ID          flexString          `json:"id"`
	Symbol      string              `json:"symbol"`
	StockSymbol string              `json:"stock_symbol"`
	Side        string              `json:"side"`
	OrderType   string              `json:"order_type"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Price       decimal.NullDecimal `json:"price"`
	StopPrice   decimal.NullDecimal `json:"stop_price"`
	LimitPrice  decimal.NullDecimal `json:"limit_price"`
	Status      string              `json:"status"`
	CreatedAt   string              `json:"created_at"`
}

func (o orderWire) toModel() model.PendingOrder {
	id := string(o.OrderID)
	if id == "" {
		id = string(o.ID)
	}
	sym := o.Symbol
	if sym == "" {
		sym = o.StockSymbol
	}
	status := model.OrderStatus(strings.ToLower(o.Status))
	if status == "" {
		status = model.StatusPending
	}
	out := model.PendingOrder{
		OrderID:    id,
		Symbol:     symbol.Normalize(sym),
		Side:       model.OrderSide(strings.ToLower(o.Side)),
		Type:       model.OrderType(strings.ToLower(o.OrderType)),
		Quantity:   o.Quantity,
		Price:      o.Price,
		StopPrice:  o.StopPrice,
		LimitPrice: o.LimitPrice,
		Status:     status,
	}
	out.CreatedAt, _ = parseTimestamp(o.CreatedAt)
	return out
}

type ordersWire struct {
	errorBody
	Orders []orderWire `json:"orders"`
}

// placeOrderWire is the body of POST /orders, in the field names the
// backend's order form handler reads.
type placeOrderWire struct {
	Symbol        string              `json:"symbol"`
	Side          string              `json:"side"`
	Quantity      decimal.Decimal     `json:"quantity"`
	OrderType     string              `json:"orderType"`
	Price         decimal.NullDecimal `json:"price"`
	StopPrice     decimal.NullDecimal `json:"stopPrice"`
	LimitPrice    decimal.NullDecimal `json:"limitPrice"`
	UserID        string              `json:"user_id"`
	ClientOrderID string              `json:"client_order_id,omitempty"`
}

type tradeRequestWire struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	UserID   string          `json:"user_id"`
}

type cashRequestWire struct {
	Amount decimal.Decimal `json:"amount"`
	UserID string          `json:"user_id"`
}

// resultWire covers every mutation response: {success, message} on the
// order endpoints, {message} on the trade endpoints, {error} on rejection.
type resultWire struct {
	errorBody
	Success        *bool               `json:"success"`
	Message        string              `json:"message"`
	OrderID        flexString          `json:"order_id"`
	FilledPrice    decimal.NullDecimal `json:"filled_price"`
	FilledQuantity decimal.NullDecimal `json:"filled_quantity"`
	CashBalance    decimal.NullDecimal `json:"cash_balance"`
}

// rejection returns the backend's own reason when the body reports failure.
func (r resultWire) rejection(status int) error {
	if r.Error != "" {
		return &BusinessRuleError{Status: status, Reason: r.Error}
	}
	if r.Success != nil && !*r.Success {
		return &BusinessRuleError{Status: status, Reason: orDefault(r.Message, "Request rejected by server")}
	}
	return nil
}

type stockMatchWire struct {
	Symbol             string `json:"symbol"`
	Name               string `json:"name"`
	Sector             string `json:"sector"`
	MarketCap          int64  `json:"market_cap"`
	MarketCapFormatted string `json:"market_cap_formatted"`
}

type searchWire struct {
	errorBody
	Results []stockMatchWire `json:"results"`
}

type performanceWire struct {
	errorBody
	PeriodDays  int                 `json:"period_days"`
	BuyVolume   decimal.NullDecimal `json:"buy_volume"`
	SellVolume  decimal.NullDecimal `json:"sell_volume"`
	BuyTrades   int                 `json:"buy_trades"`
	SellTrades  int                 `json:"sell_trades"`
	RealizedPnL decimal.NullDecimal `json:"realized_pnl"`
}

func (p performanceWire) toModel() model.Performance {
	return model.Performance{
		PeriodDays:  p.PeriodDays,
		BuyVolume:   p.BuyVolume.Decimal,
		SellVolume:  p.SellVolume.Decimal,
		BuyTrades:   p.BuyTrades,
		SellTrades:  p.SellTrades,
		RealizedPnL: p.RealizedPnL.Decimal,
	}
}

type lotWire struct {
	TradeID           flexString      `json:"trade_id"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	PriceAtTrade      decimal.Decimal `json:"price_at_trade"`
	TradeDate         string          `json:"trade_date"`
}

// lotsWire accepts the lot list under "holdings" or "lots".
type lotsWire struct {
	errorBody
	Holdings []lotWire `json:"holdings"`
	Lots     []lotWire `json:"lots"`
}

func (l lotsWire) toModel() []model.Lot {
	src := l.Holdings
	if len(src) == 0 {
		src = l.Lots
	}
	out := make([]model.Lot, 0, len(src))
	for _, w := range src {
		lot := model.Lot{
			TradeID:  string(w.TradeID),
			Quantity: w.AvailableQuantity,
			Price:    w.PriceAtTrade,
		}
		lot.Date, _ = parseTimestamp(w.TradeDate)
		out = append(out, lot)
	}
	return out
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC1123,
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
