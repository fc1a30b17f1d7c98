// Package poller refreshes the dashboard on a fixed period. Each cycle
// gathers holdings, cash, P&L and quotes, aggregates them, and publishes a
// complete View with a single atomic store, so readers never observe a mix
// of two cycles.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Esemudje/portfolio-manager-team02/internal/metrics"
	"github.com/Esemudje/portfolio-manager-team02/internal/portfolio"
)

// DefaultInterval is the refresh period when none is configured.
const DefaultInterval = 30 * time.Second

// ErrDiscarded is returned for a cycle whose results were thrown away
// because the controller stopped (or the caller cancelled) mid-cycle.
var ErrDiscarded = errors.New("poller: cycle discarded")

// State is the controller's position in Idle -> Polling -> Idle.
type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
)

// Status is what a UI needs to render spinners and error banners. Loading is
// true only until the first cycle completes; later cycles set Refreshing.
type Status struct {
	State      State     `json:"state"`
	Running    bool      `json:"running"`
	Loading    bool      `json:"loading"`
	Refreshing bool      `json:"refreshing"`
	LastError  string    `json:"last_error,omitempty"`
	Cycle      int64     `json:"cycle"`
	LastRun    time.Time `json:"last_run,omitempty"`
}

// Gatherer fetches one cycle's inputs.
type Gatherer interface {
	Gather(ctx context.Context, watchlist []string) portfolio.Inputs
}

// Symbols supplies the watchlist at the start of each cycle.
type Symbols interface {
	Symbols() []string
}

// Options tune the controller. A zero Interval selects DefaultInterval;
// intervals under a second run once per second.
type Options struct {
	Interval time.Duration
	Enabled  bool
}

// Controller runs refresh cycles on a cron schedule and holds the latest View.
type Controller struct {
	gatherer  Gatherer
	agg       *portfolio.Aggregator
	watchlist Symbols
	opts      Options
	logger    *slog.Logger

	view atomic.Pointer[View]

	cycleMu sync.Mutex // serializes cycles

	mu        sync.Mutex
	status    Status
	listeners []func(*View)
	cron      *cron.Cron
	cancel    context.CancelFunc
	kick      sync.WaitGroup
}

// New creates a stopped controller.
func New(g Gatherer, agg *portfolio.Aggregator, wl Symbols, opts Options, logger *slog.Logger) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		gatherer:  g,
		agg:       agg,
		watchlist: wl,
		opts:      opts,
		logger:    logger.With("component", "poller"),
		status:    Status{State: StateIdle, Loading: true},
	}
}

// OnUpdate registers fn to receive every published View. Listeners run on
// the polling goroutine and must not block.
func (c *Controller) OnUpdate(fn func(*View)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Start runs one cycle immediately, then one per interval, until Stop or
// until ctx is cancelled. Starting a running controller is a no-op. With
// Options.Enabled false only the initial cycle runs.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.status.Running = true

	c.kick.Add(1)
	go func() {
		defer c.kick.Done()
		c.cycle(runCtx)
	}()

	if !c.opts.Enabled {
		c.logger.Info("polling disabled, initial load only")
		return
	}

	cl := cronLogger{l: c.logger}
	c.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.cron.Schedule(cron.Every(c.opts.Interval), cron.FuncJob(func() {
		c.cycle(runCtx)
	}))
	c.cron.Start()
	c.logger.Info("polling started", "interval", c.opts.Interval.String())
}

// Stop cancels the schedule and any in-flight cycle, and waits for it to
// return. A cycle that completes after Stop publishes nothing. Stop is
// idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, cr := c.cancel, c.cron
	c.cancel, c.cron = nil, nil
	c.status.Running = false
	if cancel != nil {
		cancel()
	}
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	if cr != nil {
		<-cr.Stop().Done()
	}
	c.kick.Wait()
	c.logger.Info("polling stopped")
}

// Refresh runs a cycle now and returns its View. It waits for any cycle
// already in flight.
func (c *Controller) Refresh(ctx context.Context) (*View, error) {
	return c.cycle(ctx)
}

// Snapshot returns the latest View, or nil before the first cycle.
func (c *Controller) Snapshot() *View {
	return c.view.Load()
}

// Status returns the current lifecycle flags.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) cycle(ctx context.Context) (*View, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	if ctx.Err() != nil {
		return nil, ErrDiscarded
	}

	c.mu.Lock()
	c.status.State = StatePolling
	if c.view.Load() != nil {
		c.status.Refreshing = true
	}
	c.mu.Unlock()

	start := time.Now()
	symbols := c.watchlist.Symbols()
	in := c.gatherer.Gather(ctx, symbols)

	sum := c.agg.Aggregate(in)

	c.mu.Lock()
	// Checked under mu: Stop cancels under mu, so nothing lands after it.
	if ctx.Err() != nil {
		c.status.State = StateIdle
		c.status.Refreshing = false
		c.mu.Unlock()
		metrics.PollCycles.WithLabelValues("discarded").Inc()
		c.logger.Debug("cycle discarded", "reason", ctx.Err())
		return nil, ErrDiscarded
	}
	cycle := c.status.Cycle + 1
	view := BuildView(cycle, symbols, in, sum)
	c.view.Store(view)
	c.status = Status{
		State:     StateIdle,
		Running:   c.status.Running,
		Cycle:     cycle,
		LastRun:   view.UpdatedAt,
		LastError: coreFailure(view.Errors),
	}
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	result := "ok"
	if len(view.Errors) > 0 {
		result = "partial"
	}
	metrics.PollCycles.WithLabelValues(result).Inc()
	metrics.PollDuration.Observe(time.Since(start).Seconds())
	metrics.PortfolioValue.Set(sum.TotalValue.InexactFloat64())
	c.logger.Debug("cycle complete",
		"cycle", cycle,
		"duration", time.Since(start).String(),
		"total_value", sum.TotalValue.String(),
		"errors", len(view.Errors),
	)

	for _, fn := range listeners {
		fn(view)
	}
	return view, nil
}

// coreFailure summarizes failed portfolio-level fetches. Quote failures are
// per symbol and do not count.
func coreFailure(errs map[string]string) string {
	var parts []string
	for src, msg := range errs {
		if strings.HasPrefix(src, "quote:") {
			continue
		}
		parts = append(parts, src+": "+msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
