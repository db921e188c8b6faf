// Package listsync keeps a paginated, filterable list in step with the
// backend. An Accumulator owns the accumulated result set for one screen and
// is its only writer; a Dispatcher debounces query changes and tags every
// fetch with a generation so that late responses are dropped.
package listsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"jobportal/internal/model"
)

type LoadStatus string

const (
	StatusIdle      LoadStatus = "idle"
	StatusLoading   LoadStatus = "loading"
	StatusSucceeded LoadStatus = "succeeded"
	StatusFailed    LoadStatus = "failed"
)

// ErrStale is returned by FetchList when a newer generation was issued while
// the fetch was in flight. The result was discarded.
var ErrStale = errors.New("stale list generation")

type Fetcher[T any] interface {
	Fetch(ctx context.Context, q model.ListQuery) (model.ResultPage[T], error)
}

type FetcherFunc[T any] func(ctx context.Context, q model.ListQuery) (model.ResultPage[T], error)

func (f FetcherFunc[T]) Fetch(ctx context.Context, q model.ListQuery) (model.ResultPage[T], error) {
	return f(ctx, q)
}

type AccumulatedList[T model.Item] struct {
	ItemsByKey map[string]T
	Order      []string
	Total      int
	LoadStatus LoadStatus
	LastError  error
	// Query is the last query whose response was applied.
	Query      model.ListQuery
	Generation uint64

	// seq orders snapshots; it grows with every state change.
	seq uint64
}

func (l AccumulatedList[T]) Items() []T {
	out := make([]T, 0, len(l.Order))
	for _, id := range l.Order {
		out = append(out, l.ItemsByKey[id])
	}
	return out
}

func (l AccumulatedList[T]) HasMore() bool {
	return len(l.Order) < l.Total
}

func (l AccumulatedList[T]) clone() AccumulatedList[T] {
	out := l
	out.ItemsByKey = make(map[string]T, len(l.ItemsByKey))
	for k, v := range l.ItemsByKey {
		out.ItemsByKey[k] = v
	}
	out.Order = append([]string(nil), l.Order...)
	return out
}

type Accumulator[T model.Item] struct {
	fetcher Fetcher[T]
	logger  *slog.Logger

	mu         sync.Mutex
	state      AccumulatedList[T]
	applied    bool
	signature  model.FilterSignature
	generation uint64
	listeners  map[int]func(AccumulatedList[T])
	nextListen int
	seq        uint64

	// notifyMu serializes delivery; delivered is the seq last handed out.
	notifyMu  sync.Mutex
	delivered uint64
}

func NewAccumulator[T model.Item](fetcher Fetcher[T], logger *slog.Logger) *Accumulator[T] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Accumulator[T]{
		fetcher: fetcher,
		logger:  logger,
		state: AccumulatedList[T]{
			ItemsByKey: map[string]T{},
			Order:      []string{},
			LoadStatus: StatusIdle,
		},
		listeners: map[int]func(AccumulatedList[T]){},
	}
}

// NextGeneration issues a new generation and makes every earlier one stale.
func (a *Accumulator[T]) NextGeneration() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generation++
	return a.generation
}

// resolveLocked applies the reset rule: a query whose filter signature differs
// from the last applied one is moved to page 1.
func (a *Accumulator[T]) resolveLocked(q model.ListQuery) model.ListQuery {
	q = q.Normalize()
	if !a.applied || q.Signature() != a.signature {
		q.Page = 1
	}
	return q
}

// FetchList loads one page for gen. Page 1 replaces the list, later pages
// append ids not already present. A response for a generation other than the
// current one is discarded without touching state and ErrStale is returned.
// On failure the existing items are kept and the error is returned.
func (a *Accumulator[T]) FetchList(ctx context.Context, q model.ListQuery, gen uint64) error {
	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		return ErrStale
	}
	q = a.resolveLocked(q)
	a.state.LoadStatus = StatusLoading
	a.state.Generation = gen
	snap := a.snapshotLocked()
	a.mu.Unlock()
	a.notify(snap)

	page, err := a.fetcher.Fetch(ctx, q)

	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		a.logger.Debug("dropped stale list response", "generation", gen, "page", q.Page)
		return ErrStale
	}
	if err != nil {
		err = classifyFetchError(ctx, err)
		a.state.LoadStatus = StatusFailed
		a.state.LastError = err
		snap = a.snapshotLocked()
		a.mu.Unlock()
		a.notify(snap)
		return err
	}

	a.applyLocked(q, page)
	snap = a.snapshotLocked()
	a.mu.Unlock()
	a.notify(snap)
	return nil
}

func (a *Accumulator[T]) applyLocked(q model.ListQuery, page model.ResultPage[T]) {
	if q.Page == 1 {
		a.state.ItemsByKey = make(map[string]T, len(page.Items))
		a.state.Order = make([]string, 0, len(page.Items))
	}
	for _, item := range page.Items {
		id := item.ItemID()
		if _, seen := a.state.ItemsByKey[id]; seen {
			if q.Page == 1 {
				continue
			}
			// already listed from an earlier page; keep position, take fresh data
			a.state.ItemsByKey[id] = item
			continue
		}
		a.state.ItemsByKey[id] = item
		a.state.Order = append(a.state.Order, id)
	}

	a.state.Total = page.Total
	if a.state.Total < 0 {
		a.state.Total = 0
	}
	if len(a.state.Order) > a.state.Total {
		for _, id := range a.state.Order[a.state.Total:] {
			delete(a.state.ItemsByKey, id)
		}
		a.state.Order = a.state.Order[:a.state.Total]
	}

	a.state.LoadStatus = StatusSucceeded
	a.state.LastError = nil
	a.state.Query = q
	a.applied = true
	a.signature = q.Signature()
}

// ReplaceItem swaps in a fresher copy of an item already in the list. It never
// adds new ids and reports whether the item was present.
func (a *Accumulator[T]) ReplaceItem(item T) bool {
	a.mu.Lock()
	id := item.ItemID()
	if _, ok := a.state.ItemsByKey[id]; !ok {
		a.mu.Unlock()
		return false
	}
	a.state.ItemsByKey[id] = item
	snap := a.snapshotLocked()
	a.mu.Unlock()
	a.notify(snap)
	return true
}

// snapshotLocked stamps a copy of the state after a mutation.
func (a *Accumulator[T]) snapshotLocked() AccumulatedList[T] {
	a.seq++
	a.state.seq = a.seq
	return a.state.clone()
}

func (a *Accumulator[T]) Snapshot() AccumulatedList[T] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.clone()
}

func (a *Accumulator[T]) Items() []T {
	return a.Snapshot().Items()
}

// Subscribe registers fn to receive a snapshot after every state change, in
// the order the changes happened. fn runs on the goroutine that made the
// change and must not call back into the Accumulator. The returned func
// removes it.
func (a *Accumulator[T]) Subscribe(fn func(AccumulatedList[T])) func() {
	a.mu.Lock()
	id := a.nextListen
	a.nextListen++
	a.listeners[id] = fn
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// notify delivers snap unless a newer snapshot already went out. Fetches
// finish on their own goroutines, so a slower one may reach here late.
func (a *Accumulator[T]) notify(snap AccumulatedList[T]) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	if snap.seq <= a.delivered {
		return
	}
	a.delivered = snap.seq

	a.mu.Lock()
	fns := make([]func(AccumulatedList[T]), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func classifyFetchError(ctx context.Context, err error) error {
	if model.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &model.Error{Kind: model.KindTimeout, Op: "fetch list", Message: "fetch did not complete in time", Err: err}
	}
	return model.Wrap(model.KindNetwork, "fetch list", err)
}
