package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Esemudje/portfolio-manager-team02/internal/metrics"
	"github.com/Esemudje/portfolio-manager-team02/internal/model"
	"github.com/Esemudje/portfolio-manager-team02/internal/portfolio"
	"github.com/Esemudje/portfolio-manager-team02/internal/quote"
	"github.com/Esemudje/portfolio-manager-team02/internal/symbol"
)

// Backend is the subset of the backend client the order service uses.
type Backend interface {
	quote.Fetcher
	GetPortfolio(ctx context.Context, symbol string) (*model.HoldingsReport, error)
	GetCashBalance(ctx context.Context) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error)
	Buy(ctx context.Context, symbol string, qty decimal.Decimal) (*model.OrderResult, error)
	Sell(ctx context.Context, symbol string, qty decimal.Decimal) (*model.OrderResult, error)
	ListOrders(ctx context.Context, symbol string) ([]model.PendingOrder, error)
	CancelOrder(ctx context.Context, orderID string) (*model.OrderResult, error)
}

// TradingContext is the account state for one symbol, gathered before an
// order is validated. Fetch failures are listed in Errors and never fail
// the gathering itself.
type TradingContext struct {
	Symbol         string            `json:"symbol"`
	Quote          *model.Quote      `json:"quote,omitempty"`
	Holding        *model.Holding    `json:"holding,omitempty"`
	HoldingUnknown bool              `json:"holding_unknown"`
	AvailableCash  decimal.Decimal   `json:"available_cash"`
	CashStale      bool              `json:"cash_stale"`
	CurrentPrice   decimal.Decimal   `json:"current_price"`
	Errors         map[string]string `json:"errors,omitempty"`
}

// Validation returns the validator's view of the context.
func (tc *TradingContext) Validation() Context {
	return Context{
		Holding:        tc.Holding,
		HoldingUnknown: tc.HoldingUnknown,
		AvailableCash:  tc.AvailableCash,
		CurrentPrice:   tc.CurrentPrice,
	}
}

// Refresh is the post-fill view. Cash, pending orders and the holding are
// refetched together because a fill changes all three.
type Refresh struct {
	Cash          *decimal.Decimal     `json:"cash_balance,omitempty"`
	PendingOrders []model.PendingOrder `json:"pending_orders"`
	Holding       *model.Holding       `json:"holding,omitempty"`
	Errors        map[string]string    `json:"errors,omitempty"`
}

// Submission is the outcome of a successful order placement.
type Submission struct {
	Request model.OrderRequest `json:"request"`
	Result  *model.OrderResult `json:"result"`
	Refresh Refresh            `json:"refresh"`
}

// Cancellation is the outcome of a successful cancel.
type Cancellation struct {
	Result        *model.OrderResult   `json:"result"`
	PendingOrders []model.PendingOrder `json:"pending_orders"`
	Errors        map[string]string    `json:"errors,omitempty"`
}

// Service validates and submits orders. Validation failures return before
// any order reaches the backend; backend rejections are returned unchanged.
type Service struct {
	backend Backend
	userID  string
	timeout time.Duration
}

// NewService creates an order service acting for userID.
func NewService(b Backend, userID string, timeout time.Duration) *Service {
	if userID == "" {
		userID = model.DefaultUserID
	}
	if timeout <= 0 {
		timeout = portfolio.DefaultRequestTimeout
	}
	return &Service{backend: b, userID: userID, timeout: timeout}
}

// Prepare gathers quote, holding and cash for sym concurrently.
func (s *Service) Prepare(ctx context.Context, sym string) (*TradingContext, error) {
	sym, err := symbol.Parse(sym)
	if err != nil {
		return nil, err
	}

	tc := &TradingContext{Symbol: sym}
	var (
		q    *model.Quote
		held *model.Holding
		cash *decimal.Decimal
		lost bool
		mu   sync.Mutex
		eg   errgroup.Group
	)
	errs := make(map[string]string)
	fail := func(src string, err error) {
		mu.Lock()
		errs[src] = err.Error()
		mu.Unlock()
		slog.Warn("trading context fetch failed", "symbol", sym, "source", src, "err", err)
	}

	eg.Go(func() error {
		rctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		got, err := quote.Fetch(rctx, s.backend, sym)
		if err != nil {
			fail("quote", err)
			return nil
		}
		q = &got
		return nil
	})
	eg.Go(func() error {
		h, err := s.holding(ctx, sym)
		if err != nil {
			lost = true
			fail("holding", err)
			return nil
		}
		held = h
		return nil
	})
	eg.Go(func() error {
		c, err := s.cash(ctx)
		if err != nil {
			fail("cash", err)
			return nil
		}
		cash = c
		return nil
	})
	_ = eg.Wait()

	tc.Quote = q
	tc.HoldingUnknown = lost
	if held != nil {
		quotes := map[string]model.Quote{}
		if q != nil {
			quotes[sym] = *q
		}
		v := portfolio.Value(*held, quotes)
		tc.Holding = &v
	}
	switch {
	case q != nil:
		tc.CurrentPrice = q.Price
	case tc.Holding != nil && !tc.Holding.Stale:
		tc.CurrentPrice = tc.Holding.CurrentPrice
	}
	if cash != nil {
		tc.AvailableCash = *cash
	} else {
		tc.AvailableCash = portfolio.DefaultCash
		tc.CashStale = true
	}
	if len(errs) > 0 {
		tc.Errors = errs
	}
	return tc, nil
}

// Submit validates req and places it. A *ValidationError means nothing was
// sent; a *backend.BusinessRuleError carries the backend's own reason.
func (s *Service) Submit(ctx context.Context, req model.OrderRequest) (*Submission, error) {
	req, err := CheckFields(req)
	if err != nil {
		rejected(err)
		return nil, err
	}
	tc, err := s.Prepare(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	if req, err = Validate(req, tc.Validation()); err != nil {
		rejected(err)
		return nil, err
	}

	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}
	if req.UserID == "" {
		req.UserID = s.userID
	}

	res, err := s.call(ctx, func(ctx context.Context) (*model.OrderResult, error) {
		return s.backend.PlaceOrder(ctx, req)
	})
	metrics.OrdersTotal.WithLabelValues(string(req.Side), string(req.Type), outcome(err)).Inc()
	if err != nil {
		slog.Warn("order rejected", "client_order_id", req.ClientOrderID, "symbol", req.Symbol, "err", err)
		return nil, fmt.Errorf("place order: %w", err)
	}

	slog.Info("order placed",
		"client_order_id", req.ClientOrderID,
		"order_id", res.OrderID,
		"symbol", req.Symbol,
		"side", req.Side,
		"type", req.Type,
		"quantity", req.Quantity.String(),
	)
	return &Submission{Request: req, Result: res, Refresh: s.refresh(ctx, req.Symbol)}, nil
}

// Trade executes an immediate market order through the buy/sell endpoints.
func (s *Service) Trade(ctx context.Context, side model.OrderSide, sym string, qty decimal.Decimal) (*Submission, error) {
	req := model.OrderRequest{Symbol: sym, Side: side, Type: model.OrderMarket, Quantity: qty, UserID: s.userID}
	req, err := CheckFields(req)
	if err != nil {
		rejected(err)
		return nil, err
	}
	tc, err := s.Prepare(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	if req, err = Validate(req, tc.Validation()); err != nil {
		rejected(err)
		return nil, err
	}
	req.ClientOrderID = uuid.NewString()

	res, err := s.call(ctx, func(ctx context.Context) (*model.OrderResult, error) {
		if side == model.SideBuy {
			return s.backend.Buy(ctx, req.Symbol, req.Quantity)
		}
		return s.backend.Sell(ctx, req.Symbol, req.Quantity)
	})
	metrics.OrdersTotal.WithLabelValues(string(req.Side), string(req.Type), outcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", side, req.Symbol, err)
	}
	slog.Info("trade executed", "symbol", req.Symbol, "side", side, "quantity", req.Quantity.String())
	return &Submission{Request: req, Result: res, Refresh: s.refresh(ctx, req.Symbol)}, nil
}

// Cancel cancels a pending order and refetches the pending list for sym.
// The list always comes from the backend; nothing is removed locally.
func (s *Service) Cancel(ctx context.Context, orderID, sym string) (*Cancellation, error) {
	res, err := s.call(ctx, func(ctx context.Context) (*model.OrderResult, error) {
		return s.backend.CancelOrder(ctx, orderID)
	})
	if err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	slog.Info("order cancelled", "order_id", orderID)

	out := &Cancellation{Result: res}
	orders, err := s.PendingOrders(ctx, sym)
	if err != nil {
		out.Errors = map[string]string{"pending_orders": err.Error()}
	} else {
		out.PendingOrders = orders
	}
	return out, nil
}

// PendingOrders lists orders still awaiting a fill, optionally for one symbol.
func (s *Service) PendingOrders(ctx context.Context, sym string) ([]model.PendingOrder, error) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	orders, err := s.backend.ListOrders(rctx, symbol.Normalize(sym))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	pending := orders[:0]
	for _, o := range orders {
		if o.CanCancel() {
			pending = append(pending, o)
		}
	}
	return pending, nil
}

// refresh refetches cash, pending orders and the holding for sym, all three
// together. Failures are reported per source.
func (s *Service) refresh(ctx context.Context, sym string) Refresh {
	var (
		out Refresh
		mu  sync.Mutex
		eg  errgroup.Group
	)
	errs := make(map[string]string)
	record := func(src string, err error) {
		mu.Lock()
		errs[src] = err.Error()
		mu.Unlock()
	}
	eg.Go(func() error {
		c, err := s.cash(ctx)
		if err != nil {
			record("cash", err)
			return nil
		}
		out.Cash = c
		return nil
	})
	eg.Go(func() error {
		orders, err := s.PendingOrders(ctx, sym)
		if err != nil {
			record("pending_orders", err)
			return nil
		}
		out.PendingOrders = orders
		return nil
	})
	eg.Go(func() error {
		h, err := s.holding(ctx, sym)
		if err != nil {
			record("holding", err)
			return nil
		}
		out.Holding = h
		return nil
	})
	_ = eg.Wait()
	if len(errs) > 0 {
		out.Errors = errs
	}
	return out
}

func (s *Service) holding(ctx context.Context, sym string) (*model.Holding, error) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rep, err := s.backend.GetPortfolio(rctx, sym)
	if err != nil {
		return nil, err
	}
	for _, h := range rep.Holdings {
		if h.Symbol == sym && h.Quantity.IsPositive() {
			return &h, nil
		}
	}
	return nil, nil
}

func (s *Service) cash(ctx context.Context) (*decimal.Decimal, error) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	c, err := s.backend.GetCashBalance(rctx)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) call(ctx context.Context, fn func(context.Context) (*model.OrderResult, error)) (*model.OrderResult, error) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(rctx)
}

func rejected(err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		metrics.ValidationRejections.WithLabelValues(ve.Code()).Inc()
	}
}

func outcome(err error) string {
	if err != nil {
		return "rejected"
	}
	return "placed"
}
