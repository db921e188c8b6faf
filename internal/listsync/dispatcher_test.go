package listsync

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobportal/internal/model"
	"jobportal/internal/portal"
	"jobportal/internal/portaltest"
)

func TestDebouncer_OnlyLastTaskRuns(t *testing.T) {
	clock := &manualClock{}
	d := NewDebouncer(300*time.Millisecond, clock.AfterFunc)

	var ran []string
	d.Schedule(func() { ran = append(ran, "a") })
	d.Schedule(func() { ran = append(ran, "b") })
	d.Schedule(func() { ran = append(ran, "c") })

	assert.Equal(t, 1, clock.active())
	assert.Equal(t, 1, clock.fire())
	assert.Equal(t, []string{"c"}, ran)
	assert.False(t, d.Pending())
}

func TestDebouncer_Cancel(t *testing.T) {
	clock := &manualClock{}
	d := NewDebouncer(time.Second, clock.AfterFunc)

	ran := false
	d.Schedule(func() { ran = true })
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel())
	clock.fire()
	assert.False(t, ran)
}

func TestDebouncer_LateFireOfReplacedTimerIsIgnored(t *testing.T) {
	clock := &manualClock{}
	d := NewDebouncer(time.Second, clock.AfterFunc)

	var ran []string
	d.Schedule(func() { ran = append(ran, "first") })
	first := clock.timers[0]
	d.Schedule(func() { ran = append(ran, "second") })

	// the first timer's func was already running when Stop was called
	first.fn()
	assert.Empty(t, ran)

	clock.fire()
	assert.Equal(t, []string{"second"}, ran)
}

func TestDebouncer_Flush(t *testing.T) {
	clock := &manualClock{}
	d := NewDebouncer(time.Second, clock.AfterFunc)

	ran := 0
	d.Schedule(func() { ran++ })
	assert.True(t, d.Flush())
	assert.False(t, d.Flush())
	clock.fire()
	assert.Equal(t, 1, ran)
}

func TestDispatcher_DebouncesBurstIntoOneFetch(t *testing.T) {
	clock := &manualClock{}
	f := &staticFetcher{respond: func(q model.ListQuery) (model.ResultPage[item], error) {
		return page(1, item{ID: q.SearchText}), nil
	}}
	acc := NewAccumulator[item](f, nil)
	d := NewDispatcher(context.Background(), acc, DispatcherOptions{Debounce: 300 * time.Millisecond, AfterFunc: clock.AfterFunc})
	defer d.Close()

	for _, text := range []string{"d", "de", "dev", "devel"} {
		d.OnQueryChange(model.ListQuery{SearchText: text, Page: 1, PageSize: 4})
	}
	assert.Empty(t, f.seen())

	clock.fire()
	d.Wait()

	seen := f.seen()
	require.Len(t, seen, 1)
	assert.Equal(t, "devel", seen[0].SearchText)
	assert.Equal(t, []string{"devel"}, acc.Snapshot().Order)
}

func TestDispatcher_SupersededFetchIsCancelledAndDropped(t *testing.T) {
	f := newGatedFetcher()
	acc := NewAccumulator[item](f, nil)

	var mu sync.Mutex
	var outcomes []Outcome
	d := NewDispatcher(context.Background(), acc, DispatcherOptions{OnSettled: func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}})
	defer d.Close()

	g1 := d.Dispatch(model.ListQuery{SearchText: "old", Page: 1})
	c1 := f.next(t)
	g2 := d.Dispatch(model.ListQuery{SearchText: "new", Page: 1})
	c2 := f.next(t)

	select {
	case <-c1.ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("superseded request context was not cancelled")
	}

	c2.reply(page(1, item{ID: "new-1"}), nil)
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 1)
	assert.Equal(t, g2, outcomes[0].Generation)
	assert.NotEqual(t, g1, g2)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, []string{"new-1"}, acc.Snapshot().Order)
}

func TestDispatcher_FetchTimeout(t *testing.T) {
	f := newGatedFetcher()
	acc := NewAccumulator[item](f, nil)
	d := NewDispatcher(context.Background(), acc, DispatcherOptions{FetchTimeout: 20 * time.Millisecond})
	defer d.Close()

	d.Dispatch(model.ListQuery{Page: 1})
	f.next(t)
	d.Wait()

	snap := acc.Snapshot()
	assert.Equal(t, StatusFailed, snap.LoadStatus)
	assert.Equal(t, model.KindTimeout, model.KindOf(snap.LastError))
}

func TestDispatcher_LoadMoreStopsAtTotal(t *testing.T) {
	var calls atomic.Int32
	f := &staticFetcher{respond: func(q model.ListQuery) (model.ResultPage[item], error) {
		calls.Add(1)
		if q.Page == 1 {
			return page(3, items("j", 1, 2)...), nil
		}
		return page(3, items("j", 3, 3)...), nil
	}}
	acc := NewAccumulator[item](f, nil)
	d := NewDispatcher(context.Background(), acc, DispatcherOptions{})
	defer d.Close()

	_, ok := d.LoadMore()
	assert.False(t, ok, "nothing loaded yet")

	d.Dispatch(model.ListQuery{Page: 1, PageSize: 2})
	d.Wait()
	_, ok = d.LoadMore()
	require.True(t, ok)
	d.Wait()

	_, ok = d.LoadMore()
	assert.False(t, ok)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"j-1", "j-2", "j-3"}, acc.Snapshot().Order)
}

func TestEndToEnd_SearchPaginateAndReset(t *testing.T) {
	srv := portaltest.New(t)
	for _, id := range []string{"d1", "d2", "d3", "d4", "d5", "d6", "d7", "d8", "d9", "d10"} {
		srv.SeedJobs("jobs", model.Job{ID: id, Title: "Go developer " + id, Status: "open"})
	}
	for _, id := range []string{"x1", "x2", "x3"} {
		srv.SeedJobs("jobs", model.Job{ID: id, Title: "Product designer " + id, Status: "open"})
	}

	client, err := portal.New(portal.Options{BaseURL: srv.BaseURL(), Session: portal.NewSession(srv.Token)})
	require.NoError(t, err)
	fetcher := FetcherFunc[model.Job](func(ctx context.Context, q model.ListQuery) (model.ResultPage[model.Job], error) {
		return client.ListJobs(ctx, portal.ResourceJobs, q)
	})

	clock := &manualClock{}
	acc := NewAccumulator[model.Job](fetcher, nil)
	d := NewDispatcher(context.Background(), acc, DispatcherOptions{Debounce: 300 * time.Millisecond, AfterFunc: clock.AfterFunc})
	defer d.Close()

	d.OnQueryChange(model.ListQuery{SearchText: "developer", StatusFilter: "All", Page: 1, PageSize: 4})
	clock.fire()
	d.Wait()

	snap := acc.Snapshot()
	require.Equal(t, StatusSucceeded, snap.LoadStatus, "last error: %v", snap.LastError)
	assert.Len(t, snap.Order, 4)
	assert.Equal(t, 10, snap.Total)

	d.Dispatch(model.ListQuery{SearchText: "developer", StatusFilter: "All", Page: 2, PageSize: 4})
	d.Wait()
	snap = acc.Snapshot()
	assert.Len(t, snap.Order, 8)
	assert.Equal(t, 10, snap.Total)

	d.OnQueryChange(model.ListQuery{SearchText: "designer", StatusFilter: "All", Page: 1, PageSize: 4})
	clock.fire()
	d.Wait()
	snap = acc.Snapshot()
	assert.Equal(t, []string{"x1", "x2", "x3"}, snap.Order)
	assert.Equal(t, 3, snap.Total)

	assert.Equal(t, 3, srv.CallCount(http.MethodGet, "/jobs"))
}

func TestDispatcher_SubscriberNeverSeesOlderSnapshot(t *testing.T) {
	f := newGatedFetcher()
	acc := NewAccumulator[item](f, nil)

	var mu sync.Mutex
	var last AccumulatedList[item]
	acc.Subscribe(func(s AccumulatedList[item]) {
		mu.Lock()
		last = s
		mu.Unlock()
	})
	d := NewDispatcher(context.Background(), acc, DispatcherOptions{})
	defer d.Close()

	d.Dispatch(model.ListQuery{SearchText: "old", Page: 1})
	f.next(t).reply(page(1, item{ID: "old"}), nil)
	d.Wait()
	late := acc.Snapshot()

	d.Dispatch(model.ListQuery{SearchText: "new", Page: 1})
	f.next(t).reply(page(1, item{ID: "new"}), nil)
	d.Wait()

	// the first fetch's goroutine delivers after the second one finished
	acc.notify(late)

	mu.Lock()
	defer mu.Unlock()
	store := acc.Snapshot()
	assert.Equal(t, []string{"new"}, last.Order)
	assert.Equal(t, store.Generation, last.Generation)
}

func TestDispatcher_SubscriberOrderUnderConcurrentFetches(t *testing.T) {
	f := &staticFetcher{respond: func(q model.ListQuery) (model.ResultPage[item], error) {
		return page(1, item{ID: q.SearchText}), nil
	}}
	acc := NewAccumulator[item](f, nil)

	var mu sync.Mutex
	var seqs []uint64
	acc.Subscribe(func(s AccumulatedList[item]) {
		mu.Lock()
		seqs = append(seqs, s.seq)
		mu.Unlock()
	})
	d := NewDispatcher(context.Background(), acc, DispatcherOptions{})
	defer d.Close()

	for i := 0; i < 20; i++ {
		d.Dispatch(model.ListQuery{SearchText: string(rune('a' + i)), Page: 1})
	}
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seqs); i++ {
		require.Greater(t, seqs[i], seqs[i-1], "snapshot %d delivered out of order", i)
	}
}

func TestDispatcher_LoadMoreAfterFailedFilterChangeUsesNewFilter(t *testing.T) {
	clock := &manualClock{}
	f := &staticFetcher{respond: func(q model.ListQuery) (model.ResultPage[item], error) {
		if q.SearchText == "designer" {
			return model.ResultPage[item]{}, model.Errorf(model.KindServer, "list", "unavailable")
		}
		if q.Page == 1 {
			return page(10, items("dev", 1, 4)...), nil
		}
		return page(10, items("dev", 5, 8)...), nil
	}}
	acc := NewAccumulator[item](f, nil)
	d := NewDispatcher(context.Background(), acc, DispatcherOptions{Debounce: 300 * time.Millisecond, AfterFunc: clock.AfterFunc})
	defer d.Close()

	d.Dispatch(model.ListQuery{SearchText: "developer", Page: 1, PageSize: 4})
	d.Wait()
	d.OnQueryChange(model.ListQuery{SearchText: "designer", Page: 1, PageSize: 4})
	clock.fire()
	d.Wait()
	require.Equal(t, StatusFailed, acc.Snapshot().LoadStatus)

	_, ok := d.LoadMore()
	require.True(t, ok)
	d.Wait()

	seen := f.seen()
	last := seen[len(seen)-1]
	assert.Equal(t, "designer", last.SearchText)
	assert.Equal(t, 1, last.Page)
	for _, q := range seen {
		assert.False(t, q.SearchText == "developer" && q.Page > 1, "fetched next page of the abandoned filter: %+v", q)
	}
	assert.Len(t, acc.Snapshot().Order, 4)

	// a filter still waiting on the debounce is fetched at once instead
	d.OnQueryChange(model.ListQuery{SearchText: "designer", StatusFilter: "Open", Page: 1, PageSize: 4})
	_, ok = d.LoadMore()
	require.True(t, ok)
	d.Wait()
	assert.Zero(t, clock.active())
	last = f.seen()[len(f.seen())-1]
	assert.Equal(t, "Open", last.StatusFilter)
	assert.Equal(t, 1, last.Page)
}

func TestDispatcher_FinishedFetchReleasesCancel(t *testing.T) {
	f := &staticFetcher{respond: func(q model.ListQuery) (model.ResultPage[item], error) {
		return page(1, item{ID: "a"}), nil
	}}
	acc := NewAccumulator[item](f, nil)
	d := NewDispatcher(context.Background(), acc, DispatcherOptions{})
	defer d.Close()

	d.Dispatch(model.ListQuery{Page: 1})
	d.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Nil(t, d.cancelPrev, "a completed fetch has nothing left to cancel")
}
