// Package backend is the HTTP client for the upstream portfolio backend
// (quotes, reference data, holdings, trades, cash and orders).
//
// Every failure is classified once here: transport failures become
// ErrTimeout or ErrNetwork, status failures become one of the HTTPError
// kinds, and rejections the backend reports in its body become a
// *BusinessRuleError carrying the backend's reason verbatim.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Esemudje/portfolio-manager-team02/internal/format"
	"github.com/Esemudje/portfolio-manager-team02/internal/metrics"
	"github.com/Esemudje/portfolio-manager-team02/internal/model"
	"github.com/Esemudje/portfolio-manager-team02/internal/symbol"
)

const (
	DefaultBaseURL = "http://localhost:5000/api"
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 4 << 20

	// MinSearchQuery is the shortest query the search endpoint answers.
	MinSearchQuery = 2
	// DefaultSearchLimit and MaxSearchLimit bound the number of matches.
	DefaultSearchLimit = 20
	MaxSearchLimit     = 50
	// DefaultPerformanceDays is the performance window when none is given.
	DefaultPerformanceDays = 30
)

// ReferenceKinds are the per-symbol reference datasets the backend proxies.
var ReferenceKinds = map[string]bool{
	"overview": true,
	"intraday": true,
	"daily":    true,
	"news":     true,
	"earnings": true,
}

// ErrUnknownReference is returned for a reference kind the backend does not serve.
var ErrUnknownReference = errors.New("backend: unknown reference kind")

// Client talks to the portfolio backend on behalf of a single user.
type Client struct {
	baseURL string
	userID  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUserID sets the account the client acts for.
func WithUserID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.userID = id
		}
	}
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  model.DefaultUserID,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserID returns the account the client acts for.
func (c *Client) UserID() string { return c.userID }

// --- Market data ---

// GetQuote fetches the live quote for symbol in the provider's raw shape.
// The caller normalizes it with the quote package.
func (c *Client) GetQuote(ctx context.Context, symbol string) (map[string]any, error) {
	var raw map[string]any
	err := c.do(ctx, "quote", http.MethodGet, "/stocks/"+url.PathEscape(symbol), nil, nil, &raw)
	return raw, err
}

// GetQuoteFromDB fetches the last quote the backend stored for symbol.
func (c *Client) GetQuoteFromDB(ctx context.Context, symbol string) (map[string]any, error) {
	var raw map[string]any
	err := c.do(ctx, "quote_db", http.MethodGet, "/stocks/"+url.PathEscape(symbol)+"/db-only", nil, nil, &raw)
	return raw, err
}

// GetReference fetches one reference dataset (overview, daily, news, ...) for
// symbol. The body is passed through unchanged.
func (c *Client) GetReference(ctx context.Context, symbol, kind string, params url.Values) (json.RawMessage, error) {
	if !ReferenceKinds[kind] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReference, kind)
	}
	var raw json.RawMessage
	err := c.do(ctx, "reference_"+kind, http.MethodGet, "/stocks/"+url.PathEscape(symbol)+"/"+kind, params, nil, &raw)
	return raw, err
}

// SearchStocks looks up companies by ticker or name. Exact ticker matches
// come first, then ticker prefixes, then name matches, each by market cap.
// Queries shorter than MinSearchQuery return no matches without a request.
func (c *Client) SearchStocks(ctx context.Context, query string, limit int) ([]model.StockMatch, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinSearchQuery {
		return []model.StockMatch{}, nil
	}
	switch {
	case limit <= 0:
		limit = DefaultSearchLimit
	case limit > MaxSearchLimit:
		limit = MaxSearchLimit
	}
	q := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}
	var body searchWire
	if err := c.do(ctx, "search", http.MethodGet, "/search", q, nil, &body); err != nil {
		return nil, err
	}
	out := make([]model.StockMatch, 0, len(body.Results))
	for _, r := range body.Results {
		m := model.StockMatch{
			Symbol:             symbol.Normalize(r.Symbol),
			Name:               r.Name,
			Sector:             orDefault(r.Sector, "Other"),
			MarketCap:          r.MarketCap,
			MarketCapFormatted: r.MarketCapFormatted,
		}
		if m.MarketCapFormatted == "" {
			m.MarketCapFormatted = format.MarketCap(m.MarketCap)
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- Portfolio ---

// GetPortfolio fetches holdings, optionally for a single symbol.
func (c *Client) GetPortfolio(ctx context.Context, symbol string) (*model.HoldingsReport, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	var body portfolioWire
	if err := c.do(ctx, "portfolio", http.MethodGet, "/portfolio", q, nil, &body); err != nil {
		return nil, err
	}
	return &model.HoldingsReport{
		Holdings:   holdingsToModel(body.Holdings),
		TotalValue: body.Summary.TotalPortfolioValue,
		TotalPnL:   body.Summary.TotalPnL,
	}, nil
}

// GetTrades fetches executed trades, newest first. limit <= 0 means the
// backend default.
func (c *Client) GetTrades(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var body tradesWire
	if err := c.do(ctx, "trades", http.MethodGet, "/portfolio/trades", q, nil, &body); err != nil {
		return nil, err
	}
	out := make([]model.Trade, 0, len(body.Trades))
	for _, t := range body.Trades {
		out = append(out, t.toModel())
	}
	return out, nil
}

// GetCashBalance fetches the account's cash balance.
func (c *Client) GetCashBalance(ctx context.Context) (decimal.Decimal, error) {
	var body cashWire
	if err := c.do(ctx, "cash", http.MethodGet, "/portfolio/cash", c.userQuery(), nil, &body); err != nil {
		return decimal.Zero, err
	}
	if !body.CashBalance.Valid {
		return decimal.Zero, &HTTPError{Status: http.StatusOK, Message: "cash balance missing from response", Kind: ErrServer}
	}
	return body.CashBalance.Decimal, nil
}

// GetPnL fetches the backend's realized and unrealized P&L summary.
func (c *Client) GetPnL(ctx context.Context) (*model.PnLReport, error) {
	var body pnlWire
	if err := c.do(ctx, "pnl", http.MethodGet, "/portfolio/pnl", nil, nil, &body); err != nil {
		return nil, err
	}
	if !body.Summary.RealizedPnL.Valid || !body.Summary.UnrealizedPnL.Valid {
		return nil, &HTTPError{Status: http.StatusOK, Message: "pnl summary missing from response", Kind: ErrServer}
	}
	return &model.PnLReport{
		Realized:   body.Summary.RealizedPnL.Decimal,
		Unrealized: body.Summary.UnrealizedPnL.Decimal,
		Holdings:   holdingsToModel(body.Unrealized.Holdings),
	}, nil
}

// GetPerformance fetches trade volume, trade counts and realized P&L for
// the trailing window of days. The backend reports query failures in a 2xx
// body, which is mapped to ErrServer.
func (c *Client) GetPerformance(ctx context.Context, days int) (*model.Performance, error) {
	if days <= 0 {
		days = DefaultPerformanceDays
	}
	var body performanceWire
	q := url.Values{"days": {strconv.Itoa(days)}}
	if err := c.send(ctx, "performance", http.MethodGet, "/portfolio/performance", q, nil, &body); err != nil {
		return nil, err
	}
	if body.Error != "" {
		err := &HTTPError{Status: http.StatusOK, Message: body.Error, Kind: ErrServer}
		c.record("performance", err)
		return nil, err
	}
	c.record("performance", nil)
	p := body.toModel()
	if p.PeriodDays == 0 {
		p.PeriodDays = days
	}
	return &p, nil
}

// --- Trading ---

// GetLots fetches the open buy lots for symbol in the order sells consume
// them.
func (c *Client) GetLots(ctx context.Context, sym string) (*model.LotReport, error) {
	var body lotsWire
	if err := c.do(ctx, "lots", http.MethodGet, "/trade/holdings/"+url.PathEscape(sym), nil, nil, &body); err != nil {
		return nil, err
	}
	rep := model.NewLotReport(sym, body.toModel())
	return &rep, nil
}

// Buy executes an immediate market buy through the trade endpoint.
func (c *Client) Buy(ctx context.Context, symbol string, qty decimal.Decimal) (*model.OrderResult, error) {
	return c.trade(ctx, "buy", symbol, qty)
}

// Sell executes an immediate market sell through the trade endpoint.
func (c *Client) Sell(ctx context.Context, symbol string, qty decimal.Decimal) (*model.OrderResult, error) {
	return c.trade(ctx, "sell", symbol, qty)
}

func (c *Client) trade(ctx context.Context, side, symbol string, qty decimal.Decimal) (*model.OrderResult, error) {
	req := tradeRequestWire{Symbol: symbol, Quantity: qty, UserID: c.userID}
	var body resultWire
	if err := c.mutate(ctx, "trade_"+side, http.MethodPost, "/trade/"+side, req, &body); err != nil {
		return nil, err
	}
	return body.toOrderResult(), nil
}

// PlaceOrder submits an order of any type.
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error) {
	userID := req.UserID
	if userID == "" {
		userID = c.userID
	}
	wire := placeOrderWire{
		Symbol:        req.Symbol,
		Side:          string(req.Side),
		Quantity:      req.Quantity,
		OrderType:     string(req.Type),
		Price:         req.Price,
		StopPrice:     req.StopPrice,
		LimitPrice:    req.LimitPrice,
		UserID:        userID,
		ClientOrderID: req.ClientOrderID,
	}
	var body resultWire
	if err := c.mutate(ctx, "order_place", http.MethodPost, "/orders", wire, &body); err != nil {
		return nil, err
	}
	return body.toOrderResult(), nil
}

// ListOrders fetches pending orders, optionally for one symbol.
func (c *Client) ListOrders(ctx context.Context, symbol string) ([]model.PendingOrder, error) {
	q := c.userQuery()
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	var body ordersWire
	if err := c.do(ctx, "orders", http.MethodGet, "/orders", q, nil, &body); err != nil {
		return nil, err
	}
	out := make([]model.PendingOrder, 0, len(body.Orders))
	for _, o := range body.Orders {
		out = append(out, o.toModel())
	}
	return out, nil
}

// CancelOrder cancels a pending order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*model.OrderResult, error) {
	var body resultWire
	path := "/orders/" + url.PathEscape(orderID) + "?" + c.userQuery().Encode()
	if err := c.mutate(ctx, "order_cancel", http.MethodDelete, path, nil, &body); err != nil {
		return nil, err
	}
	res := body.toOrderResult()
	if res.OrderID == "" {
		res.OrderID = orderID
	}
	return res, nil
}

// --- Cash ---

// Deposit adds amount to the account's cash balance.
func (c *Client) Deposit(ctx context.Context, amount decimal.Decimal) (*model.CashResult, error) {
	return c.cash(ctx, "deposit", amount)
}

// Withdraw removes amount from the account's cash balance.
func (c *Client) Withdraw(ctx context.Context, amount decimal.Decimal) (*model.CashResult, error) {
	return c.cash(ctx, "withdraw", amount)
}

func (c *Client) cash(ctx context.Context, op string, amount decimal.Decimal) (*model.CashResult, error) {
	var body resultWire
	req := cashRequestWire{Amount: amount, UserID: c.userID}
	if err := c.mutate(ctx, "cash_"+op, http.MethodPost, "/portfolio/cash/"+op, req, &body); err != nil {
		return nil, err
	}
	return &model.CashResult{Success: true, Message: body.Message, Balance: body.CashBalance}, nil
}

// --- Transport ---

func (c *Client) userQuery() url.Values {
	return url.Values{"user_id": {c.userID}}
}

// mutate performs a request whose 2xx body may still report a rejection.
// The outcome is recorded once, after the body has been checked.
func (c *Client) mutate(ctx context.Context, endpoint, method, path string, in any, body *resultWire) error {
	if err := c.send(ctx, endpoint, method, path, nil, in, body); err != nil {
		return err
	}
	err := body.rejection(http.StatusOK)
	c.record(endpoint, err)
	return err
}

func (r resultWire) toOrderResult() *model.OrderResult {
	return &model.OrderResult{
		Success:        true,
		Message:        r.Message,
		OrderID:        string(r.OrderID),
		FilledPrice:    r.FilledPrice,
		FilledQuantity: r.FilledQuantity,
	}
}

// do sends one request and decodes a 2xx JSON body into out. Non-2xx
// responses and transport failures are mapped to the package's error kinds.
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, in, out any) error {
	if err := c.send(ctx, endpoint, method, path, query, in, out); err != nil {
		return err
	}
	c.record(endpoint, nil)
	return nil
}

// send is do without the success count. Failures are recorded here.
func (c *Client) send(ctx context.Context, endpoint, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		u += sep + query.Encode()
	}

	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: encode %s request: %w", endpoint, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("backend: build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		herr := transportError(ctx, err)
		c.record(endpoint, herr)
		slog.Warn("backend request failed", "endpoint", endpoint, "method", method, "err", err)
		return herr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		herr := transportError(ctx, err)
		c.record(endpoint, herr)
		return herr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		serr := statusError(resp.StatusCode, eb.Error)
		c.record(endpoint, serr)
		slog.Debug("backend returned error status", "endpoint", endpoint, "status", resp.StatusCode, "err", serr)
		return serr
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			herr := &HTTPError{Status: resp.StatusCode, Message: "Invalid response from server", Kind: ErrServer, Cause: err}
			c.record(endpoint, herr)
			return herr
		}
	}
	return nil
}

func (c *Client) record(endpoint string, err error) {
	metrics.UpstreamRequests.WithLabelValues(endpoint, Outcome(err)).Inc()
}

func transportError(ctx context.Context, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return &HTTPError{Message: msgTimeout, Kind: ErrTimeout, Cause: err}
	}
	return &HTTPError{Message: msgNetwork, Kind: ErrNetwork, Cause: err}
}

// Outcome names the error kind of err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsBusinessRule(err):
		return "business"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrServer):
		return "server"
	default:
		return "request"
	}
}
