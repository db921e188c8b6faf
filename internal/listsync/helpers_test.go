package listsync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"jobportal/internal/model"
)

type item struct {
	ID    string
	Label string
}

func (i item) ItemID() string { return i.ID }

func items(prefix string, from, to int) []item {
	out := make([]item, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, item{ID: fmt.Sprintf("%s-%d", prefix, i), Label: prefix})
	}
	return out
}

func page(total int, its ...item) model.ResultPage[item] {
	return model.ResultPage[item]{Items: its, Total: total}
}

// staticFetcher answers from a function and records every query it sees.
type staticFetcher struct {
	mu      sync.Mutex
	queries []model.ListQuery
	respond func(q model.ListQuery) (model.ResultPage[item], error)
}

func (f *staticFetcher) Fetch(_ context.Context, q model.ListQuery) (model.ResultPage[item], error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.respond(q)
}

func (f *staticFetcher) seen() []model.ListQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ListQuery(nil), f.queries...)
}

type fetchResult struct {
	page model.ResultPage[item]
	err  error
}

type pendingCall struct {
	q    model.ListQuery
	ctx  context.Context
	resp chan fetchResult
}

func (c *pendingCall) reply(p model.ResultPage[item], err error) {
	c.resp <- fetchResult{page: p, err: err}
}

// gatedFetcher blocks each fetch until the test replies to it.
type gatedFetcher struct {
	calls chan *pendingCall
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{calls: make(chan *pendingCall, 16)}
}

func (f *gatedFetcher) Fetch(ctx context.Context, q model.ListQuery) (model.ResultPage[item], error) {
	c := &pendingCall{q: q, ctx: ctx, resp: make(chan fetchResult, 1)}
	f.calls <- c
	select {
	case r := <-c.resp:
		return r.page, r.err
	case <-ctx.Done():
		return model.ResultPage[item]{}, ctx.Err()
	}
}

func (f *gatedFetcher) next(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for fetch")
		return nil
	}
}

// manualClock fires timers only when told to.
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *manualClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fire runs every live timer and returns how many ran.
func (c *manualClock) fire() int {
	c.mu.Lock()
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
	return len(due)
}
