// Package feed is the pagination, filtering and refresh engine a consumer
// drives a market list with. A controller coalesces bursts of filter changes
// into one request, serializes page loads for its own list, and applies the
// configured filter client-side to every fetched page.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GauravKarakoti/ConwayBets/internal/domain"
)

// Defaults used when Options leaves the corresponding field unset.
const (
	DefaultPageSize = 20
	DefaultDebounce = 300 * time.Millisecond
)

// Pager fetches one page of markets ordered by creation time descending.
type Pager interface {
	Page(ctx context.Context, limit, offset int) ([]domain.Market, error)
}

// PagerFunc is a function adapter for Pager.
type PagerFunc func(ctx context.Context, limit, offset int) ([]domain.Market, error)

func (f PagerFunc) Page(ctx context.Context, limit, offset int) ([]domain.Market, error) {
	return f(ctx, limit, offset)
}

// Options configures one controller instance.
type Options struct {
	// PageSize is the number of items requested per page.
	PageSize int

	// Debounce is the coalescing window for filter changes and refreshes.
	Debounce time.Duration

	// AutoRefresh re-runs the current query on this interval when positive.
	// A tick that lands while a request is in flight is skipped, not queued.
	AutoRefresh time.Duration

	// Enabled gates all network activity including the initial load. A
	// disabled controller stays empty until it is rebuilt enabled.
	Enabled bool

	// FetchTimeout bounds a single page fetch.
	FetchTimeout time.Duration
}

// DefaultOptions returns an enabled controller configuration with the
// documented defaults.
func DefaultOptions() Options {
	return Options{
		PageSize: DefaultPageSize,
		Debounce: DefaultDebounce,
		Enabled:  true,
	}
}

// State is an immutable snapshot of the controller's observable state.
// Err holds the most recent failed fetch and is cleared by the next success.
type State struct {
	Items   []domain.Market
	Loading bool
	Err     string
	HasMore bool
	Total   int
}

// Controller owns one filtered, paged market list. All of its state is
// mutated under a single mutex; network responses are stamped with a request
// ID at issue time and discarded when a newer request has superseded them,
// so a slow refresh can never clobber a later page merge.
type Controller struct {
	pager  Pager
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	items    []domain.Market
	filter   domain.Filter
	loading  bool
	errMsg   string
	hasMore  bool
	closed   bool
	current  string // stamp of the request allowed to apply its response
	debounce *time.Timer
	stopAuto chan struct{}
}

// New builds a controller and, when enabled, starts the initial load
// immediately. Close must be called to release its timers.
func New(pager Pager, opts Options, logger *slog.Logger) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		pager:    pager,
		opts:     opts,
		logger:   logger.With(slog.String("component", "feed_controller")),
		hasMore:  true,
		stopAuto: make(chan struct{}),
	}
	if opts.Enabled {
		go c.runRefresh()
		if opts.AutoRefresh > 0 {
			go c.autoRefreshLoop()
		}
	}
	return c
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]domain.Market, len(c.items))
	copy(items, c.items)
	return State{
		Items:   items,
		Loading: c.loading,
		Err:     c.errMsg,
		HasMore: c.hasMore,
		Total:   len(c.items),
	}
}

// Filter returns the currently applied filter.
func (c *Controller) Filter() domain.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// SetFilter replaces the active filter and schedules a refresh. Setting a
// filter with identical content is a no-op, so callers may pass freshly
// constructed filter values on every render without causing traffic.
func (c *Controller) SetFilter(f domain.Filter) {
	c.mu.Lock()
	if c.closed || !c.opts.Enabled || c.filter.Equal(f) {
		c.mu.Unlock()
		return
	}
	c.filter = f
	c.mu.Unlock()
	c.scheduleRefresh()
}

// Refresh schedules a reload of the first page. Calls inside the debounce
// window coalesce into a single request.
func (c *Controller) Refresh() {
	c.mu.Lock()
	if c.closed || !c.opts.Enabled {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.scheduleRefresh()
}

// LoadMore fetches the next page and appends it. It is dropped with
// ErrFeedBusy while another request is in flight; the caller retries after
// loading clears. Loading past the end is a no-op.
func (c *Controller) LoadMore() error {
	c.mu.Lock()
	if c.closed || !c.opts.Enabled {
		c.mu.Unlock()
		return nil
	}
	if c.loading {
		c.mu.Unlock()
		return domain.ErrFeedBusy
	}
	if !c.hasMore {
		c.mu.Unlock()
		return nil
	}
	stamp := uuid.NewString()
	c.current = stamp
	c.loading = true
	offset := len(c.items)
	filter := c.filter
	c.mu.Unlock()

	go c.fetch(stamp, offset, filter, false)
	return nil
}

// Close stops the debounce timer and the auto-refresh loop. In-flight
// responses that arrive afterwards are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.current = ""
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	c.mu.Unlock()
	close(c.stopAuto)
}

// scheduleRefresh arms (or re-arms) the trailing-edge debounce timer.
func (c *Controller) scheduleRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.debounce != nil {
		c.debounce.Reset(c.opts.Debounce)
		return
	}
	c.debounce = time.AfterFunc(c.opts.Debounce, c.runRefresh)
}

// runRefresh issues the first-page request for the current filter. It always
// supersedes whatever is in flight: the stamp swap makes any older response
// stale, which keeps replace-vs-append ordering safe without cancellation.
func (c *Controller) runRefresh() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	// An armed debounce would fire a second, redundant request after this
	// one; stop it before discarding the handle.
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	stamp := uuid.NewString()
	c.current = stamp
	c.loading = true
	filter := c.filter
	c.mu.Unlock()

	c.fetch(stamp, 0, filter, true)
}

// fetch runs one page request and applies the response if it is still the
// newest. replace resets the list; otherwise the page is appended.
func (c *Controller) fetch(stamp string, offset int, filter domain.Filter, replace bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.FetchTimeout)
	defer cancel()

	page, err := c.pager.Page(ctx, c.opts.PageSize, offset)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.current != stamp {
		// A newer request owns the list now.
		return
	}
	c.loading = false

	if err != nil {
		c.errMsg = err.Error()
		c.logger.Warn("page fetch failed",
			slog.Int("offset", offset),
			slog.String("error", err.Error()),
		)
		return
	}

	// Filtering happens after fetch, so a page whose items are mostly
	// filtered out shortens the visible page and may end pagination early.
	// That approximation is part of the contract.
	kept := filter.Apply(page)
	if replace {
		c.items = kept
	} else {
		c.items = append(c.items, kept...)
	}
	c.hasMore = len(kept) == c.opts.PageSize
	c.errMsg = ""
}

// autoRefreshLoop re-runs the current query on a fixed cadence. A tick that
// finds a request already in flight is skipped.
func (c *Controller) autoRefreshLoop() {
	ticker := time.NewTicker(c.opts.AutoRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopAuto:
			return
		case <-ticker.C:
			c.mu.Lock()
			busy := c.loading || c.closed
			c.mu.Unlock()
			if busy {
				continue
			}
			c.runRefresh()
		}
	}
}
