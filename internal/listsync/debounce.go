package listsync

import (
	"sync"
	"time"
)

type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it; tests pass a
// manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer holds at most one pending task. Scheduling a new task cancels the
// pending one and restarts the delay.
type Debouncer struct {
	delay     time.Duration
	afterFunc AfterFunc

	mu      sync.Mutex
	timer   Timer
	pending func()
	seq     uint64
}

func NewDebouncer(delay time.Duration, afterFunc AfterFunc) *Debouncer {
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Debouncer{delay: delay, afterFunc: afterFunc}
}

func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.pending = fn
	if d.delay <= 0 {
		d.timer = nil
		go d.fire(seq)
		return
	}
	d.timer = d.afterFunc(d.delay, func() { d.fire(seq) })
}

// fire runs the task scheduled as seq unless it was cancelled or replaced.
// A timer that already started when Stop was called ends up here with an old
// seq and does nothing.
func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	fn()
}

// Cancel drops the pending task and reports whether there was one.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	d.pending = nil
	d.timer = nil
	return true
}

// Flush runs the pending task now, on the caller's goroutine.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.pending == nil {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	fn()
	return true
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
