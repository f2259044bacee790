// Package dashboard holds the query controller and the presentation layer of
// the stock dashboard.
//
// A Controller owns the search state for one viewer: the current query, the
// loading flag, the last snapshot and the last error. Every trigger (form
// submit, Enter key, JSON API, CLI) goes through SearchFor. When searches
// overlap, only the most recently started one may change what is shown.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/seenimoa/stockdash/internal/metrics"
	"github.com/seenimoa/stockdash/pkg/models"
)

// ErrSuperseded is returned by Search when a newer search started before this
// one settled. Its result was discarded.
var ErrSuperseded = errors.New("search superseded by a newer query")

var (
	errFetchAborted = errors.New("fetch aborted")
	errEmptyResult  = errors.New("data service returned no stock")
)

// Fetcher retrieves a snapshot for a symbol.
type Fetcher interface {
	FetchStock(ctx context.Context, symbol string) (*models.StockSnapshot, error)
}

// State is a point-in-time copy of the controller's fields.
type State struct {
	Query     string
	Loading   bool
	Stock     *models.StockSnapshot // nil until the first successful search
	Err       error                 // last failure of the latest search
	Seq       uint64                // id of the latest started search
	FetchedAt time.Time
}

// Options configures a Controller. The zero value is usable.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Controller coordinates searches against a Fetcher.
type Controller struct {
	fetcher Fetcher
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu        sync.Mutex
	state     State
	observers []func(State)
}

// NewController creates a controller with an empty query and no stock.
func NewController(f Fetcher, opts Options) *Controller {
	c := &Controller{
		fetcher: f,
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// SetQuery replaces the query text. It does not start a search.
func (c *Controller) SetQuery(q string) {
	c.mu.Lock()
	c.state.Query = q
	c.mu.Unlock()
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnChange registers fn to be called with the new state after every visible
// change. Observers run on the searching goroutine, outside the lock.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// SearchFor sets the query and searches for it. Setting the query and
// issuing the search happen under one lock, so concurrent calls each fetch
// their own query.
func (c *Controller) SearchFor(ctx context.Context, q string) error {
	return c.search(ctx, &q)
}

// Search fetches the snapshot for the current query.
//
// An empty query is a no-op. Otherwise Loading is set until the search
// settles; on success the snapshot replaces the previous one, on failure the
// error is kept in State.Err and the previous snapshot stays. The fetch error
// is returned. If a newer search started meanwhile, nothing changes and
// ErrSuperseded is returned.
func (c *Controller) Search(ctx context.Context) error {
	return c.search(ctx, nil)
}

// search replaces the query with *set when set is non-nil, then runs the
// search for the current query.
func (c *Controller) search(ctx context.Context, set *string) (err error) {
	c.mu.Lock()
	if set != nil {
		c.state.Query = *set
	}
	q := c.state.Query
	if q == "" {
		c.mu.Unlock()
		return nil
	}
	c.state.Seq++
	seq := c.state.Seq
	c.state.Loading = true
	c.state.Err = nil
	started := c.state
	c.mu.Unlock()

	c.metrics.SearchStarted()
	c.log.Debug("search started", "query", q, "seq", seq)
	c.notify(started)

	var stock *models.StockSnapshot
	fetchErr := errFetchAborted
	defer func() {
		err = c.settle(seq, q, stock, fetchErr)
	}()

	stock, fetchErr = c.fetcher.FetchStock(ctx, q)
	if fetchErr == nil && stock == nil {
		fetchErr = errEmptyResult
	}
	return fetchErr
}

func (c *Controller) settle(seq uint64, q string, stock *models.StockSnapshot, fetchErr error) error {
	defer c.metrics.SearchSettled()

	c.mu.Lock()
	if seq != c.state.Seq {
		latest := c.state.Seq
		c.mu.Unlock()
		c.metrics.SearchSuperseded()
		c.log.Debug("search superseded", "query", q, "seq", seq, "latest", latest)
		return ErrSuperseded
	}

	c.state.Loading = false
	if fetchErr != nil {
		c.state.Err = fetchErr
	} else {
		c.state.Stock = stock
		c.state.FetchedAt = c.now()
	}
	settled := c.state
	c.mu.Unlock()

	if fetchErr != nil {
		c.log.Info("search failed", "query", q, "seq", seq, "error", fetchErr)
	} else {
		c.log.Info("search completed", "query", q, "seq", seq, "symbol", stock.Symbol)
	}
	c.notify(settled)
	return fetchErr
}

func (c *Controller) notify(s State) {
	c.mu.Lock()
	obs := make([]func(State), len(c.observers))
	copy(obs, c.observers)
	c.mu.Unlock()

	for _, fn := range obs {
		fn(s)
	}
}
