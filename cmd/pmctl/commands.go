package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/Esemudje/portfolio-manager-team02/internal/backend"
	"github.com/Esemudje/portfolio-manager-team02/internal/cash"
	"github.com/Esemudje/portfolio-manager-team02/internal/format"
	"github.com/Esemudje/portfolio-manager-team02/internal/model"
	"github.com/Esemudje/portfolio-manager-team02/internal/order"
	"github.com/Esemudje/portfolio-manager-team02/internal/poller"
	"github.com/Esemudje/portfolio-manager-team02/internal/portfolio"
	"github.com/Esemudje/portfolio-manager-team02/internal/prefs"
	"github.com/Esemudje/portfolio-manager-team02/internal/quote"
	"github.com/Esemudje/portfolio-manager-team02/internal/symbol"
	"github.com/Esemudje/portfolio-manager-team02/internal/watchlist"
)

// userMessage returns the text a user should see for err.
func userMessage(err error) string {
	var ve *order.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var br *backend.BusinessRuleError
	if errors.As(err, &br) {
		return br.Reason
	}
	var he *backend.HTTPError
	if errors.As(err, &he) {
		return he.Message
	}
	return err.Error()
}

// --- summary ---

type summaryCmd struct {
	symbol string
	plain  bool
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "display portfolio value, P&L and watchlist quotes" }
func (*summaryCmd) Usage() string {
	return `pmctl summary [-s <symbol>] [-plain]

  Fetches holdings, cash, P&L and quotes once and prints the dashboard.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "s", "", "restrict the report to one symbol")
	f.BoolVar(&c.plain, "plain", false, "print raw markdown")
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	g := portfolio.NewGatherer(a.client, a.cfg.Backend.Timeout, a.cfg.Poll.QuoteConcurrency, a.logger)

	var (
		in      portfolio.Inputs
		symbols []string
	)
	if c.symbol != "" {
		sym, err := symbol.Parse(c.symbol)
		if err != nil {
			fail("%v", err)
			return subcommands.ExitUsageError
		}
		in = g.GatherSymbol(ctx, sym)
	} else {
		symbols = watchlist.Load(ctx, a.store, a.client, a.logger).Symbols()
		in = g.Gather(ctx, symbols)
	}
	view := poller.BuildView(0, symbols, in, portfolio.NewAggregator().Aggregate(in))
	printMarkdown(summaryMarkdown(view), prefs.Load(ctx, a.store).Get().DarkMode, c.plain)
	return subcommands.ExitSuccess
}

// --- quote ---

type quoteCmd struct {
	db bool
}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "display current quotes" }
func (*quoteCmd) Usage() string {
	return `pmctl quote [-db] <symbol>...

  Prints the latest quote of each symbol.
`
}

func (c *quoteCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.db, "db", false, "read the backend's cached quote without calling the provider")
}

// cachedQuotes reads quotes from the backend's database only.
type cachedQuotes struct{ c *backend.Client }

func (q cachedQuotes) GetQuote(ctx context.Context, sym string) (map[string]any, error) {
	return q.c.GetQuoteFromDB(ctx, sym)
}

func (c *quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	var src quote.Fetcher = a.client
	if c.db {
		src = cachedQuotes{a.client}
	}

	status := subcommands.ExitSuccess
	for _, arg := range f.Args() {
		sym, err := symbol.Parse(arg)
		if err != nil {
			fail("%v", err)
			status = subcommands.ExitFailure
			continue
		}
		q, err := quote.Fetch(ctx, src, sym)
		if err != nil {
			fail("%s: %s", sym, userMessage(err))
			status = subcommands.ExitFailure
			continue
		}
		fmt.Println(quoteLine(q))
	}
	return status
}

// --- search ---

type searchCmd struct {
	limit int
}

func (*searchCmd) Name() string     { return "search" }
func (*searchCmd) Synopsis() string { return "find stocks by ticker or company name" }
func (*searchCmd) Usage() string {
	return `pmctl search [-n <limit>] <query>

  Lists matching companies, exact tickers first, then by market cap.
`
}

func (c *searchCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", backend.DefaultSearchLimit, "maximum number of matches")
}

func (c *searchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	query := strings.Join(f.Args(), " ")
	if len([]rune(strings.TrimSpace(query))) < backend.MinSearchQuery {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	matches, err := a.client.SearchStocks(ctx, query, c.limit)
	if err != nil {
		fail("search: %s", userMessage(err))
		return subcommands.ExitFailure
	}
	printMarkdown(searchMarkdown(matches), prefs.Load(ctx, a.store).Get().DarkMode, false)
	return subcommands.ExitSuccess
}

// --- performance ---

type performanceCmd struct {
	days int
}

func (*performanceCmd) Name() string     { return "performance" }
func (*performanceCmd) Synopsis() string { return "display trading activity over a trailing window" }
func (*performanceCmd) Usage() string {
	return `pmctl performance [-days N]

  Prints buy and sell volume, trade counts and realized P&L.
`
}

func (c *performanceCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.days, "days", backend.DefaultPerformanceDays, "window in days")
}

func (c *performanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.days <= 0 {
		fail("-days must be positive")
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	p, err := a.client.GetPerformance(ctx, c.days)
	if err != nil {
		fail("performance: %s", userMessage(err))
		return subcommands.ExitFailure
	}
	printMarkdown(performanceMarkdown(*p), prefs.Load(ctx, a.store).Get().DarkMode, false)
	return subcommands.ExitSuccess
}

// --- lots ---

type lotsCmd struct{}

func (*lotsCmd) Name() string     { return "lots" }
func (*lotsCmd) Synopsis() string { return "list the open buy lots of a holding" }
func (*lotsCmd) Usage() string {
	return `pmctl lots <symbol>

  Lists unsold buy lots, oldest first. Sells consume them in this order.
`
}

func (*lotsCmd) SetFlags(*flag.FlagSet) {}

func (c *lotsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	sym, err := symbol.Parse(f.Arg(0))
	if err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	rep, err := a.client.GetLots(ctx, sym)
	if err != nil {
		fail("%s: %s", sym, userMessage(err))
		return subcommands.ExitFailure
	}
	printMarkdown(lotsMarkdown(*rep), prefs.Load(ctx, a.store).Get().DarkMode, false)
	return subcommands.ExitSuccess
}

// --- order ---

type orderCmd struct {
	side      string
	orderType string
	price     string
	stop      string
	limit     string
	dryRun    bool
}

func (*orderCmd) Name() string     { return "order" }
func (*orderCmd) Synopsis() string { return "validate and place an order" }
func (*orderCmd) Usage() string {
	return `pmctl order [-side buy|sell] [-type market|limit|stop|stop_limit] [-price P] [-stop P] [-limit P] [-n] <symbol> <quantity>

  Validates the order against current cash and holdings, then places it.
  With -n only the validation runs.
`
}

func (c *orderCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.side, "side", "buy", "buy or sell")
	f.StringVar(&c.orderType, "type", "market", "market, limit, stop or stop_limit")
	f.StringVar(&c.price, "price", "", "limit price (limit orders)")
	f.StringVar(&c.stop, "stop", "", "stop price (stop and stop_limit orders)")
	f.StringVar(&c.limit, "limit", "", "limit price (stop_limit orders)")
	f.BoolVar(&c.dryRun, "n", false, "validate only, do not place the order")
}

// request builds the order described by the flags and positional args.
func (c *orderCmd) request(args []string) (model.OrderRequest, error) {
	if len(args) != 2 {
		return model.OrderRequest{}, errors.New("expected <symbol> <quantity>")
	}
	qty, err := decimal.NewFromString(args[1])
	if err != nil {
		return model.OrderRequest{}, fmt.Errorf("invalid quantity %q", args[1])
	}
	req := model.OrderRequest{
		Symbol:   args[0],
		Side:     model.OrderSide(strings.ToLower(c.side)),
		Type:     model.OrderType(strings.ToLower(c.orderType)),
		Quantity: qty,
	}
	for _, p := range []struct {
		name string
		raw  string
		dst  *decimal.NullDecimal
	}{
		{"price", c.price, &req.Price},
		{"stop", c.stop, &req.StopPrice},
		{"limit", c.limit, &req.LimitPrice},
	} {
		if p.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(p.raw)
		if err != nil {
			return req, fmt.Errorf("invalid -%s %q", p.name, p.raw)
		}
		*p.dst = decimal.NewNullDecimal(v)
	}
	return req, nil
}

func (c *orderCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	req, err := c.request(f.Args())
	if err != nil {
		fail("%v", err)
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	svc := order.NewService(a.client, a.cfg.Backend.UserID, a.cfg.Backend.Timeout)

	if c.dryRun {
		if req, err = order.CheckFields(req); err != nil {
			fail("%s", userMessage(err))
			return subcommands.ExitFailure
		}
		tc, err := svc.Prepare(ctx, req.Symbol)
		if err != nil {
			fail("%s", userMessage(err))
			return subcommands.ExitFailure
		}
		if _, err := order.Validate(req, tc.Validation()); err != nil {
			fail("%s", userMessage(err))
			return subcommands.ExitFailure
		}
		fmt.Printf("OK: %s %s %s (%s) at %s, cash available %s\n",
			req.Side, req.Quantity.String(), req.Symbol, req.Type,
			format.Currency(tc.CurrentPrice), format.Currency(tc.AvailableCash))
		return subcommands.ExitSuccess
	}

	sub, err := svc.Submit(ctx, req)
	if err != nil {
		fail("%s", userMessage(err))
		return subcommands.ExitFailure
	}
	fmt.Println(sub.Result.Message)
	if sub.Result.OrderID != "" {
		fmt.Printf("order id: %s\n", sub.Result.OrderID)
	}
	if sub.Refresh.Cash != nil {
		fmt.Printf("cash balance: %s\n", format.Currency(*sub.Refresh.Cash))
	}
	return subcommands.ExitSuccess
}

// --- orders ---

type ordersCmd struct {
	symbol string
}

func (*ordersCmd) Name() string     { return "orders" }
func (*ordersCmd) Synopsis() string { return "list pending orders" }
func (*ordersCmd) Usage() string {
	return `pmctl orders [-s <symbol>]
`
}

func (c *ordersCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "s", "", "only orders for this symbol")
}

func (c *ordersCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	svc := order.NewService(a.client, a.cfg.Backend.UserID, a.cfg.Backend.Timeout)
	orders, err := svc.PendingOrders(ctx, c.symbol)
	if err != nil {
		fail("%s", userMessage(err))
		return subcommands.ExitFailure
	}
	printMarkdown(ordersMarkdown(orders), prefs.Load(ctx, a.store).Get().DarkMode, false)
	return subcommands.ExitSuccess
}

// --- cancel ---

type cancelCmd struct {
	symbol string
}

func (*cancelCmd) Name() string     { return "cancel" }
func (*cancelCmd) Synopsis() string { return "cancel a pending order" }
func (*cancelCmd) Usage() string {
	return `pmctl cancel [-s <symbol>] <order-id>
`
}

func (c *cancelCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "s", "", "symbol whose pending orders are listed afterwards")
}

func (c *cancelCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	svc := order.NewService(a.client, a.cfg.Backend.UserID, a.cfg.Backend.Timeout)
	res, err := svc.Cancel(ctx, f.Arg(0), c.symbol)
	if err != nil {
		fail("%s", userMessage(err))
		return subcommands.ExitFailure
	}
	fmt.Println(res.Result.Message)
	if res.Errors == nil {
		fmt.Print(ordersMarkdown(res.PendingOrders))
	}
	return subcommands.ExitSuccess
}

// --- watchlist ---

type watchlistCmd struct{}

func (*watchlistCmd) Name() string     { return "watchlist" }
func (*watchlistCmd) Synopsis() string { return "list, add or remove watched symbols" }
func (*watchlistCmd) Usage() string {
	return `pmctl watchlist [add|remove <symbol>]

  Without arguments prints the watchlist.
`
}

func (*watchlistCmd) SetFlags(*flag.FlagSet) {}

func (c *watchlistCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) != 0 && len(args) != 2 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	wl := watchlist.Load(ctx, a.store, a.client, a.logger)
	if len(args) == 2 {
		switch args[0] {
		case "add":
			_, err = wl.Add(ctx, args[1])
		case "remove", "rm":
			err = wl.Remove(ctx, args[1])
		default:
			fmt.Fprint(os.Stderr, c.Usage())
			return subcommands.ExitUsageError
		}
		if err != nil {
			fail("%v", err)
			return subcommands.ExitFailure
		}
	}
	fmt.Println(strings.Join(wl.Symbols(), " "))
	return subcommands.ExitSuccess
}

// --- darkmode ---

type darkModeCmd struct{}

func (*darkModeCmd) Name() string     { return "darkmode" }
func (*darkModeCmd) Synopsis() string { return "show or set the dark-mode preference" }
func (*darkModeCmd) Usage() string {
	return `pmctl darkmode [on|off]
`
}

func (*darkModeCmd) SetFlags(*flag.FlagSet) {}

func (c *darkModeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	svc := prefs.Load(ctx, a.store)
	p := svc.Get()
	if f.NArg() == 1 {
		on, ok := parseToggle(f.Arg(0))
		if !ok {
			fmt.Fprint(os.Stderr, c.Usage())
			return subcommands.ExitUsageError
		}
		if p, err = svc.SetDarkMode(ctx, on); err != nil {
			fail("%v", err)
			return subcommands.ExitFailure
		}
	}
	if p.DarkMode {
		fmt.Println("dark mode: on")
	} else {
		fmt.Println("dark mode: off")
	}
	return subcommands.ExitSuccess
}

func parseToggle(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, true
	case "off", "false", "no", "0":
		return false, true
	}
	return false, false
}

// --- cash ---

type cashCmd struct {
	deposit  string
	withdraw string
}

func (*cashCmd) Name() string     { return "cash" }
func (*cashCmd) Synopsis() string { return "show, deposit or withdraw cash" }
func (*cashCmd) Usage() string {
	return `pmctl cash [-deposit <amount> | -withdraw <amount>]
`
}

func (c *cashCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.deposit, "deposit", "", "amount to deposit")
	f.StringVar(&c.withdraw, "withdraw", "", "amount to withdraw")
}

func (c *cashCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.deposit != "" && c.withdraw != "" {
		fail("use either -deposit or -withdraw")
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	svc := cash.NewService(a.client)

	var (
		op  func(context.Context, decimal.Decimal) (*model.CashResult, error)
		raw string
	)
	switch {
	case c.deposit != "":
		op, raw = svc.Deposit, c.deposit
	case c.withdraw != "":
		op, raw = svc.Withdraw, c.withdraw
	default:
		bal, err := svc.Balance(ctx)
		if err != nil {
			fail("%s", userMessage(err))
			return subcommands.ExitFailure
		}
		fmt.Printf("cash balance: %s\n", format.Currency(bal))
		return subcommands.ExitSuccess
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		fail("invalid amount %q", raw)
		return subcommands.ExitUsageError
	}
	res, err := op(ctx, amount)
	if err != nil {
		fail("%s", userMessage(err))
		return subcommands.ExitFailure
	}
	if res.Message != "" {
		fmt.Println(res.Message)
	}
	if res.Balance.Valid {
		fmt.Printf("cash balance: %s\n", format.Currency(res.Balance.Decimal))
	}
	return subcommands.ExitSuccess
}
