package listsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"jobportal/internal/model"
)

type DispatcherOptions struct {
	Debounce     time.Duration
	FetchTimeout time.Duration
	AfterFunc    AfterFunc
	Logger       *slog.Logger
	// OnSettled is called once per dispatch that was not superseded, after
	// its result (or error) has been applied.
	OnSettled func(Outcome)
}

type Outcome struct {
	Generation uint64
	Query      model.ListQuery
	Err        error
}

// Dispatcher turns query edits into fetches. Edits go through a debouncer so
// only the last query of a burst is sent; load-more and refresh go out
// immediately. Each fetch runs on its own goroutine with a fresh generation.
type Dispatcher[T model.Item] struct {
	acc      *Accumulator[T]
	debounce *Debouncer
	timeout  time.Duration
	logger   *slog.Logger
	settled  func(Outcome)

	base   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool

	// latest is the last query asked for, applied or not.
	latest    model.ListQuery
	hasLatest bool

	// cancelPrev stops the in-flight fetch of generation inflight.
	cancelPrev context.CancelFunc
	inflight   uint64
}

func NewDispatcher[T model.Item](ctx context.Context, acc *Accumulator[T], opts DispatcherOptions) *Dispatcher[T] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	base, stop := context.WithCancel(ctx)
	return &Dispatcher[T]{
		acc:      acc,
		debounce: NewDebouncer(opts.Debounce, opts.AfterFunc),
		timeout:  opts.FetchTimeout,
		logger:   logger,
		settled:  opts.OnSettled,
		base:     base,
		stop:     stop,
	}
}

// OnQueryChange records q as the latest query and restarts the settle timer.
// Only the query current when the timer fires is dispatched.
func (d *Dispatcher[T]) OnQueryChange(q model.ListQuery) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.latest = q
	d.hasLatest = true
	d.mu.Unlock()

	d.debounce.Schedule(func() {
		d.Dispatch(q)
	})
}

// Flush dispatches a pending debounced query now.
func (d *Dispatcher[T]) Flush() bool {
	return d.debounce.Flush()
}

// Dispatch starts a fetch for q right away and returns its generation.
func (d *Dispatcher[T]) Dispatch(q model.ListQuery) uint64 {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0
	}
	d.latest = q
	d.hasLatest = true
	gen := d.acc.NextGeneration()
	if d.cancelPrev != nil {
		// the superseded request would be dropped anyway; stop paying for it
		d.cancelPrev()
		d.logger.Debug("cancelled superseded list request", "generation", gen-1)
	}
	var ctx context.Context
	var cancel context.CancelFunc
	if d.timeout > 0 {
		ctx, cancel = context.WithTimeout(d.base, d.timeout)
	} else {
		ctx, cancel = context.WithCancel(d.base)
	}
	d.cancelPrev = cancel
	d.inflight = gen
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			cancel()
			d.mu.Lock()
			if d.inflight == gen {
				d.cancelPrev = nil
			}
			d.mu.Unlock()
		}()
		err := d.acc.FetchList(ctx, q, gen)
		if errors.Is(err, ErrStale) {
			return
		}
		if d.settled != nil {
			d.settled(Outcome{Generation: gen, Query: q, Err: err})
		}
	}()
	return gen
}

// LoadMore fetches the page after the last applied one. It does nothing while
// a fetch is loading or when every item is already listed. If the latest
// query asked for a different filter than the listed one (its fetch failed or
// is still debouncing), page 1 of that query is fetched instead.
func (d *Dispatcher[T]) LoadMore() (uint64, bool) {
	snap := d.acc.Snapshot()
	if snap.LoadStatus == StatusLoading {
		return 0, false
	}
	d.mu.Lock()
	latest, has := d.latest, d.hasLatest
	d.mu.Unlock()
	// an applied query always has a page, so zero means nothing listed yet
	listed := snap.Query.Page > 0
	if has && snap.LoadStatus != StatusIdle && (!listed || !latest.SameFilter(snap.Query)) {
		d.debounce.Cancel()
		return d.Dispatch(latest.WithPage(1)), true
	}
	if snap.LoadStatus == StatusIdle || !snap.HasMore() {
		return 0, false
	}
	return d.Dispatch(snap.Query.WithPage(snap.Query.Page + 1)), true
}

// Refresh refetches page 1 of the latest query.
func (d *Dispatcher[T]) Refresh() uint64 {
	d.mu.Lock()
	q := d.latest
	has := d.hasLatest
	d.mu.Unlock()
	if !has {
		q = d.acc.Snapshot().Query
	}
	d.debounce.Cancel()
	return d.Dispatch(q.WithPage(1))
}

// Wait blocks until every dispatched fetch has finished.
func (d *Dispatcher[T]) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher[T]) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.debounce.Cancel()
	d.stop()
	d.wg.Wait()
}
