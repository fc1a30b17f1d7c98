// Package api serves the gateway's HTTP and WebSocket surface. Handlers are
// thin: they decode the request, call into the domain packages and map
// errors to status codes.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Esemudje/portfolio-manager-team02/internal/cash"
	"github.com/Esemudje/portfolio-manager-team02/internal/model"
	"github.com/Esemudje/portfolio-manager-team02/internal/order"
	"github.com/Esemudje/portfolio-manager-team02/internal/poller"
	"github.com/Esemudje/portfolio-manager-team02/internal/portfolio"
	"github.com/Esemudje/portfolio-manager-team02/internal/prefs"
	"github.com/Esemudje/portfolio-manager-team02/internal/quote"
	"github.com/Esemudje/portfolio-manager-team02/internal/symbol"
	"github.com/Esemudje/portfolio-manager-team02/internal/watchlist"
)

// MarketData is the read-only slice of the upstream backend the handlers
// call directly.
type MarketData interface {
	quote.Fetcher
	GetQuoteFromDB(ctx context.Context, symbol string) (map[string]any, error)
	GetReference(ctx context.Context, symbol, kind string, params url.Values) (json.RawMessage, error)
	GetTrades(ctx context.Context, symbol string, limit int) ([]model.Trade, error)
	SearchStocks(ctx context.Context, query string, limit int) ([]model.StockMatch, error)
	GetPerformance(ctx context.Context, days int) (*model.Performance, error)
	GetLots(ctx context.Context, symbol string) (*model.LotReport, error)
}

// Deps wires the domain services into the handlers. Hub may be nil when
// WebSocket broadcasting is not needed.
type Deps struct {
	Market    MarketData
	Gatherer  *portfolio.Gatherer
	Orders    *order.Service
	Cash      *cash.Service
	Watchlist *watchlist.Watchlist
	Prefs     *prefs.Service
	Poller    *poller.Controller
	Hub       *WSHub
}

// Service holds the HTTP handlers.
type Service struct {
	market    MarketData
	gatherer  *portfolio.Gatherer
	orders    *order.Service
	cash      *cash.Service
	watchlist *watchlist.Watchlist
	prefs     *prefs.Service
	poller    *poller.Controller
	hub       *WSHub
}

// NewService creates the handler set.
func NewService(d Deps) *Service {
	return &Service{
		market:    d.Market,
		gatherer:  d.Gatherer,
		orders:    d.Orders,
		cash:      d.Cash,
		watchlist: d.Watchlist,
		prefs:     d.Prefs,
		poller:    d.Poller,
		hub:       d.Hub,
	}
}

// --- Request/Response types ---

// OrderBody is the JSON body for POST /orders. Price fields are accepted in
// snake_case or camelCase; the trading form sends the latter.
type OrderBody struct {
	Symbol        string              `json:"symbol"`
	Side          model.OrderSide     `json:"side"`
	OrderType     model.OrderType     `json:"order_type"`
	OrderTypeAlt  model.OrderType     `json:"orderType"`
	Quantity      decimal.Decimal     `json:"quantity"`
	Price         decimal.NullDecimal `json:"price"`
	StopPrice     decimal.NullDecimal `json:"stop_price"`
	StopPriceAlt  decimal.NullDecimal `json:"stopPrice"`
	LimitPrice    decimal.NullDecimal `json:"limit_price"`
	LimitPriceAlt decimal.NullDecimal `json:"limitPrice"`
}

func (b OrderBody) request() model.OrderRequest {
	req := model.OrderRequest{
		Symbol:     b.Symbol,
		Side:       b.Side,
		Type:       b.OrderType,
		Quantity:   b.Quantity,
		Price:      b.Price,
		StopPrice:  b.StopPrice,
		LimitPrice: b.LimitPrice,
	}
	if req.Type == "" {
		req.Type = b.OrderTypeAlt
	}
	if req.Type == "" {
		req.Type = model.OrderMarket
	}
	if !req.StopPrice.Valid {
		req.StopPrice = b.StopPriceAlt
	}
	if !req.LimitPrice.Valid {
		req.LimitPrice = b.LimitPriceAlt
	}
	return req
}

// TradeBody is the JSON body for POST /trade/buy and /trade/sell.
type TradeBody struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
}

// SymbolBody is the JSON body for POST /watchlist.
type SymbolBody struct {
	Symbol string `json:"symbol"`
}

// DarkModeBody is the JSON body for PUT /preferences/dark-mode.
type DarkModeBody struct {
	DarkMode bool `json:"darkMode"`
}

// AmountBody is the JSON body for cash deposits and withdrawals.
type AmountBody struct {
	Amount decimal.Decimal `json:"amount"`
}

// DashboardResponse pairs the latest published view with the refresh status.
// View is null until the first cycle completes.
type DashboardResponse struct {
	View   *poller.View  `json:"view"`
	Status poller.Status `json:"status"`
}

// SearchResponse is returned by GET /search.
type SearchResponse struct {
	Query   string             `json:"query"`
	Results []model.StockMatch `json:"results"`
}

// PerformanceResponse adds the derived net cash flow to the backend figures.
type PerformanceResponse struct {
	model.Performance
	NetFlow decimal.Decimal `json:"net_flow"`
}

// WatchlistResponse is returned by every watchlist endpoint.
type WatchlistResponse struct {
	Symbol  string   `json:"symbol,omitempty"`
	Symbols []string `json:"symbols"`
}

// --- HTTP Handlers ---

// Health handles GET /health
func (s *Service) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetDashboard handles GET /api/v1/dashboard
func (s *Service) GetDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DashboardResponse{View: s.poller.Snapshot(), Status: s.poller.Status()})
}

// RefreshDashboard handles POST /api/v1/dashboard/refresh
// Runs one cycle now and returns its view.
func (s *Service) RefreshDashboard(w http.ResponseWriter, r *http.Request) {
	v, err := s.poller.Refresh(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardResponse{View: v, Status: s.poller.Status()})
}

// GetPortfolio handles GET /api/v1/portfolio?symbol=
// A one-shot aggregate outside the polling loop. Without a symbol the
// watchlist quotes are gathered as well.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	var (
		in portfolio.Inputs
		wl []string
	)
	if raw := r.URL.Query().Get("symbol"); raw != "" {
		sym, err := symbol.Parse(raw)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		in = s.gatherer.GatherSymbol(r.Context(), sym)
	} else {
		wl = s.watchlist.Symbols()
		in = s.gatherer.Gather(r.Context(), wl)
	}

	// A failed holdings fetch degrades like any other source (holdings_stale).
	sum := portfolio.NewAggregator().Aggregate(in)
	writeJSON(w, http.StatusOK, poller.BuildView(0, wl, in, sum))
}

// GetTrades handles GET /api/v1/portfolio/trades?symbol=&limit=
func (s *Service) GetTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sym := symbol.Normalize(q.Get("symbol"))
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	trades, err := s.market.GetTrades(r.Context(), sym, limit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// GetPerformance handles GET /api/v1/portfolio/performance?days=
func (s *Service) GetPerformance(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = n
	}

	p, err := s.market.GetPerformance(r.Context(), days)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PerformanceResponse{Performance: *p, NetFlow: p.NetFlow()})
}

// SearchStocks handles GET /api/v1/search?q=&limit=
// Queries under two characters return an empty result set.
func (s *Service) SearchStocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	query := strings.TrimSpace(q.Get("q"))
	results, err := s.market.SearchStocks(r.Context(), query, limit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if results == nil {
		results = []model.StockMatch{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Results: results})
}

// GetLots handles GET /api/v1/trade/holdings/{symbol}
// Lists the open buy lots a sell would consume, oldest first.
func (s *Service) GetLots(w http.ResponseWriter, r *http.Request) {
	sym, err := symbol.Parse(chi.URLParam(r, "symbol"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	rep, err := s.market.GetLots(r.Context(), sym)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// quoteSource adapts a raw-quote method to quote.Fetcher.
type quoteSource func(ctx context.Context, symbol string) (map[string]any, error)

func (f quoteSource) GetQuote(ctx context.Context, symbol string) (map[string]any, error) {
	return f(ctx, symbol)
}

// GetQuote handles GET /api/v1/stocks/{symbol}
// ?source=db reads the backend's cache without calling the provider.
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	sym, err := symbol.Parse(chi.URLParam(r, "symbol"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	var src quote.Fetcher = s.market
	if r.URL.Query().Get("source") == "db" {
		src = quoteSource(s.market.GetQuoteFromDB)
	}
	q, err := quote.Fetch(r.Context(), src, sym)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// GetReference handles GET /api/v1/stocks/{symbol}/{kind}
// The upstream JSON is passed through unchanged.
func (s *Service) GetReference(w http.ResponseWriter, r *http.Request) {
	sym, err := symbol.Parse(chi.URLParam(r, "symbol"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	params := url.Values{}
	for _, k := range []string{"interval", "topics"} {
		if v := r.URL.Query().Get(k); v != "" {
			params.Set(k, v)
		}
	}

	body, err := s.market.GetReference(r.Context(), sym, chi.URLParam(r, "kind"), params)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// GetTradingContext handles GET /api/v1/trading/{symbol}
func (s *Service) GetTradingContext(w http.ResponseWriter, r *http.Request) {
	tc, err := s.orders.Prepare(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

// ListOrders handles GET /api/v1/orders?symbol=
func (s *Service) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orders.PendingOrders(r.Context(), symbol.Normalize(r.URL.Query().Get("symbol")))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if orders == nil {
		orders = []model.PendingOrder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// SubmitOrder handles POST /api/v1/orders
// Validates locally, submits, and returns the refreshed cash, pending orders
// and holding.
func (s *Service) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var body OrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sub, err := s.orders.Submit(r.Context(), body.request())
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	s.publish(WSMessage{Type: MsgOrderSubmitted, Symbol: sub.Request.Symbol, OrderID: sub.Result.OrderID, Data: sub.Result})
	writeJSON(w, http.StatusCreated, sub)
}

// CancelOrder handles DELETE /api/v1/orders/{orderID}?symbol=
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	sym := symbol.Normalize(r.URL.Query().Get("symbol"))

	c, err := s.orders.Cancel(r.Context(), orderID, sym)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	s.publish(WSMessage{Type: MsgOrderCancelled, Symbol: sym, OrderID: c.Result.OrderID, Data: c.Result})
	writeJSON(w, http.StatusOK, c)
}

// Buy handles POST /api/v1/trade/buy
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	s.trade(w, r, model.SideBuy)
}

// Sell handles POST /api/v1/trade/sell
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	s.trade(w, r, model.SideSell)
}

func (s *Service) trade(w http.ResponseWriter, r *http.Request, side model.OrderSide) {
	var body TradeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sub, err := s.orders.Trade(r.Context(), side, body.Symbol, body.Quantity)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	s.publish(WSMessage{Type: MsgOrderSubmitted, Symbol: sub.Request.Symbol, Data: sub.Result})
	writeJSON(w, http.StatusOK, sub)
}

// GetWatchlist handles GET /api/v1/watchlist
func (s *Service) GetWatchlist(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, WatchlistResponse{Symbols: s.watchlist.Symbols()})
}

// AddToWatchlist handles POST /api/v1/watchlist
func (s *Service) AddToWatchlist(w http.ResponseWriter, r *http.Request) {
	var body SymbolBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sym, err := s.watchlist.Add(r.Context(), body.Symbol)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	symbols := s.watchlist.Symbols()
	s.publish(WSMessage{Type: MsgWatchlistUpdated, Symbol: sym, Data: symbols})
	writeJSON(w, http.StatusCreated, WatchlistResponse{Symbol: sym, Symbols: symbols})
}

// RemoveFromWatchlist handles DELETE /api/v1/watchlist/{symbol}
func (s *Service) RemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	sym := symbol.Normalize(chi.URLParam(r, "symbol"))
	if err := s.watchlist.Remove(r.Context(), sym); err != nil {
		writeFailure(w, r, err)
		return
	}

	symbols := s.watchlist.Symbols()
	s.publish(WSMessage{Type: MsgWatchlistUpdated, Symbol: sym, Data: symbols})
	writeJSON(w, http.StatusOK, WatchlistResponse{Symbol: sym, Symbols: symbols})
}

// GetPreferences handles GET /api/v1/preferences
func (s *Service) GetPreferences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.prefs.Get())
}

// SetDarkMode handles PUT /api/v1/preferences/dark-mode
func (s *Service) SetDarkMode(w http.ResponseWriter, r *http.Request) {
	var body DarkModeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := s.prefs.SetDarkMode(r.Context(), body.DarkMode)
	if err != nil {
		slog.Error("failed to save preferences", "err", err)
		writeError(w, "failed to save preferences", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetCash handles GET /api/v1/cash
func (s *Service) GetCash(w http.ResponseWriter, r *http.Request) {
	bal, err := s.cash.Balance(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"cash_balance": bal})
}

// Deposit handles POST /api/v1/cash/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	s.moveCash(w, r, s.cash.Deposit)
}

// Withdraw handles POST /api/v1/cash/withdraw
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	s.moveCash(w, r, s.cash.Withdraw)
}

func (s *Service) moveCash(w http.ResponseWriter, r *http.Request, op func(context.Context, decimal.Decimal) (*model.CashResult, error)) {
	var body AmountBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := op(r.Context(), body.Amount)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) publish(msg WSMessage) {
	if s.hub != nil {
		s.hub.Broadcast(msg)
	}
}
