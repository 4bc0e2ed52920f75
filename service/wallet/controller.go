package wallet

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/celf/client"
	"github.com/brojonat/celf/service/metrics"
	"golang.org/x/sync/errgroup"
)

// Source is the remote wallet API as the controller consumes it.
// *client.Client satisfies it.
type Source interface {
	Balance(ctx context.Context, userID string) (*client.Balance, error)
	Transactions(ctx context.Context, userID string, limit int) ([]client.RawTransaction, error)
	Transaction(ctx context.Context, id string) (*client.RawTransaction, error)
}

// Notifier receives the wallet state after every successful refresh.
type Notifier interface {
	PublishWalletUpdate(ctx context.Context, userID string, snap Snapshot) error
}

// Phase is the state of the refresh state machine.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseFetching  Phase = "fetching"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// validTransitions is the complete transition table of a refresh:
// Idle -> Fetching -> {Succeeded, Failed} -> Idle.
var validTransitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseFetching},
	PhaseFetching:  {PhaseSucceeded, PhaseFailed},
	PhaseSucceeded: {PhaseIdle},
	PhaseFailed:    {PhaseIdle},
}

// Outcome is what a Refresh call resolved to.
type Outcome string

const (
	// OutcomeSucceeded means both fetches completed and were applied.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means at least one fetch failed; see Store.LastError.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means no network call was issued.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeCanceled means the caller's context ended while waiting for
	// an in-flight refresh. The in-flight refresh itself is unaffected.
	OutcomeCanceled Outcome = "canceled"
)

// Defaults for ControllerOptions.
const (
	DefaultRequestTimeout = 15 * time.Second
	DefaultDisplayWindow  = 5
)

// ControllerOptions configures a Controller. Only UserID is required.
type ControllerOptions struct {
	UserID string

	// MinRefreshInterval makes non-forced refreshes no-ops while the last
	// success is younger than this. Zero disables the check.
	MinRefreshInterval time.Duration
	// RequestTimeout bounds one fetch pair.
	RequestTimeout time.Duration
	// DisplayWindow caps the rows of the view model.
	DisplayWindow int

	Formatter *Formatter
	Notifier  Notifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// Now is used for freshness checks and timestamps; defaults to time.Now.
	Now func() time.Time
}

type refreshCall struct {
	done    chan struct{}
	outcome Outcome
}

// Controller coordinates fetching, normalizing and exposing wallet data.
// It is the only writer of its Store.
type Controller struct {
	source     Source
	store      *Store
	normalizer *Normalizer
	formatter  *Formatter
	notifier   Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	userID         string
	minInterval    time.Duration
	requestTimeout time.Duration
	displayWindow  int

	mu         sync.Mutex
	phase      Phase
	lastResult Phase
	inflight   *refreshCall

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

// NewController creates a controller that owns writes to store.
func NewController(source Source, store *Store, opts ControllerOptions) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	formatter := opts.Formatter
	if formatter == nil {
		formatter = NewFormatter("en-US", nil, logger)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	display := opts.DisplayWindow
	if display <= 0 {
		display = DefaultDisplayWindow
	}

	return &Controller{
		source:         source,
		store:          store,
		normalizer:     NewNormalizer(logger, opts.Metrics),
		formatter:      formatter,
		notifier:       opts.Notifier,
		metrics:        opts.Metrics,
		logger:         logger.With("user_id", opts.UserID),
		now:            now,
		userID:         opts.UserID,
		minInterval:    opts.MinRefreshInterval,
		requestTimeout: timeout,
		displayWindow:  display,
		phase:          PhaseIdle,
		subs:           make(map[int]chan struct{}),
	}
}

// Store returns the store the controller writes to.
func (c *Controller) Store() *Store {
	return c.store
}

// Formatter returns the formatter used for the view model.
func (c *Controller) Formatter() *Formatter {
	return c.formatter
}

// Phase returns the current phase (Idle or Fetching between calls).
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// LastResult returns PhaseSucceeded or PhaseFailed for the last completed
// refresh, or "" if none completed yet.
func (c *Controller) LastResult() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

// IsRefreshing reports whether a refresh is fetching.
func (c *Controller) IsRefreshing() bool {
	return c.Phase() == PhaseFetching
}

// Refresh synchronizes the store with the remote API.
//
// A non-forced call is a no-op while another refresh is in flight or
// while the last success is younger than MinRefreshInterval. A forced
// call made while a refresh is in flight waits for it and returns its
// outcome instead of issuing a second fetch pair.
//
// Refresh never returns an error: failures leave the previous data in
// place and are recorded in Store.LastError.
func (c *Controller) Refresh(ctx context.Context, force bool) Outcome {
	c.mu.Lock()
	if call := c.inflight; call != nil {
		c.mu.Unlock()
		if !force {
			c.logger.Debug("refresh already in flight, skipping")
			c.recordOutcome(OutcomeSkipped, force)
			return OutcomeSkipped
		}
		c.logger.Debug("forced refresh joining in-flight refresh")
		select {
		case <-call.done:
			c.recordOutcome(call.outcome, force)
			return call.outcome
		case <-ctx.Done():
			c.recordOutcome(OutcomeCanceled, force)
			return OutcomeCanceled
		}
	}

	if !force && c.minInterval > 0 {
		if last := c.store.LastSuccess(); !last.IsZero() && c.now().Sub(last) < c.minInterval {
			c.mu.Unlock()
			c.logger.Debug("wallet data is fresh, skipping refresh", "last_success", last)
			c.recordOutcome(OutcomeSkipped, force)
			return OutcomeSkipped
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	c.inflight = call
	c.transition(PhaseFetching)
	gen := c.store.Generation()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetRefreshInFlight(true)
	}

	outcome := OutcomeFailed
	defer func() {
		c.mu.Lock()
		if outcome == OutcomeSucceeded {
			c.transition(PhaseSucceeded)
		} else {
			c.transition(PhaseFailed)
		}
		c.lastResult = c.phase
		c.transition(PhaseIdle)
		call.outcome = outcome
		c.inflight = nil
		c.mu.Unlock()

		close(call.done)
		if c.metrics != nil {
			c.metrics.SetRefreshInFlight(false)
		}
		c.recordOutcome(outcome, force)
		c.broadcast()
	}()

	outcome = c.fetch(ctx, gen)
	return outcome
}

// fetch issues the balance and transaction fetches concurrently and
// applies each result atomically as soon as it resolves.
func (c *Controller) fetch(ctx context.Context, gen uint64) Outcome {
	start := time.Now()

	// Joined callers must observe a completed fetch, so the fetch does
	// not inherit the initiating caller's cancellation.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.requestTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		fetchStart := time.Now()
		raw, err := c.source.Balance(fetchCtx, c.userID)
		c.recordFetch("balance", fetchStart, err)
		if err != nil {
			c.logger.Warn("balance fetch failed", "error", err)
			return fmt.Errorf("failed to fetch balance: %w", err)
		}
		if raw == nil {
			return fmt.Errorf("failed to fetch balance: empty response")
		}
		c.store.setBalance(gen, newBalance(raw.Total, raw.Breakdown), c.now())
		return nil
	})
	g.Go(func() error {
		fetchStart := time.Now()
		raws, err := c.source.Transactions(fetchCtx, c.userID, c.store.Window())
		c.recordFetch("transactions", fetchStart, err)
		if err != nil {
			c.logger.Warn("transactions fetch failed", "error", err)
			return fmt.Errorf("failed to fetch transactions: %w", err)
		}
		c.store.setTransactions(gen, c.normalizer.NormalizeAll(raws), c.now())
		return nil
	})
	err := g.Wait()

	if !c.store.setResult(gen, err, c.now()) {
		c.logger.Info("wallet state invalidated during refresh, results discarded")
		return OutcomeFailed
	}

	outcome := OutcomeSucceeded
	if err != nil {
		outcome = OutcomeFailed
	}
	if c.metrics != nil {
		c.metrics.RecordRefreshDuration(string(outcome), time.Since(start).Seconds())
	}

	if err != nil {
		c.logger.Warn("wallet refresh failed, keeping cached data", "error", err)
		return outcome
	}

	c.logger.Debug("wallet refreshed", "duration", time.Since(start))
	if c.notifier != nil {
		if perr := c.notifier.PublishWalletUpdate(fetchCtx, c.userID, c.DebugDump()); perr != nil {
			c.logger.Warn("failed to publish wallet update", "error", perr)
		}
	}
	return outcome
}

// transition moves the state machine; callers hold c.mu.
func (c *Controller) transition(to Phase) {
	from := c.phase
	allowed := false
	for _, p := range validTransitions[from] {
		if p == to {
			allowed = true
			break
		}
	}
	if !allowed {
		c.logger.Error("invalid refresh phase transition", "from", from, "to", to)
	}
	c.phase = to
}

// Run fetches on mount and then refreshes automatically every interval
// until ctx is done. A non-positive interval only fetches on mount.
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	c.Refresh(ctx, false)
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Refresh(ctx, false)
		}
	}
}

// DebugRefresh forces a refresh and returns the resulting state.
func (c *Controller) DebugRefresh(ctx context.Context) (Outcome, Snapshot) {
	outcome := c.Refresh(ctx, true)
	snap := c.DebugDump()
	c.logger.Debug("debug refresh",
		"outcome", outcome,
		"transactions", len(snap.Transactions),
		"last_error", snap.LastError,
	)
	return outcome, snap
}

// DebugDump returns the store snapshot together with the current phase.
func (c *Controller) DebugDump() Snapshot {
	snap := c.store.DebugDump()
	snap.Phase = c.Phase()
	return snap
}

// Transaction returns one transaction for the detail view, from the cache
// when possible and from the API otherwise.
func (c *Controller) Transaction(ctx context.Context, id string) (Transaction, error) {
	if txn, ok := c.store.lookup(id); ok {
		return txn, nil
	}

	start := time.Now()
	raw, err := c.source.Transaction(ctx, id)
	c.recordFetch("transaction", start, err)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to fetch transaction %s: %w", id, err)
	}
	if raw == nil {
		return Transaction{}, fmt.Errorf("failed to fetch transaction %s: empty response", id)
	}
	return Normalize(*raw)
}

// Invalidate clears the cached state on sign-out. Results of a refresh
// still in flight are discarded.
func (c *Controller) Invalidate() {
	c.store.Invalidate()
	c.mu.Lock()
	c.lastResult = ""
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordInvalidation()
	}
	c.logger.Info("wallet state invalidated")
	c.broadcast()
}

// Subscribe returns a channel that receives a value after every completed
// refresh or invalidation. Notifications coalesce; the returned func
// unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

func (c *Controller) broadcast() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (c *Controller) recordOutcome(outcome Outcome, force bool) {
	if c.metrics != nil {
		c.metrics.RecordRefresh(string(outcome), force)
	}
}

func (c *Controller) recordFetch(kind string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.RecordFetch(kind, time.Since(start).Seconds(), err)
	}
}
