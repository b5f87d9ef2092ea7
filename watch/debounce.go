package watch

import (
	"sync"
	"time"
)

// Debouncer runs fn once a burst of Trigger calls has been quiet for the
// window. Calls never overlap. It is safe for concurrent use.
type Debouncer struct {
	mu       sync.Mutex
	idle     *sync.Cond
	window   time.Duration
	fn       func()
	timer    *time.Timer
	gen      uint64
	pending  bool
	stopped  bool
	inflight int
}

// NewDebouncer returns a Debouncer calling fn after window of quiescence.
func NewDebouncer(window time.Duration, fn func()) *Debouncer {
	d := &Debouncer{window: window, fn: fn}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Trigger (re)starts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = true
	d.timer = time.AfterFunc(d.window, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	d.waitIdleLocked()
	if d.stopped || !d.pending || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.run()
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Flush waits for a call in progress, then runs a scheduled call immediately
// on the calling goroutine and reports whether there was one. When Flush
// returns, every call triggered before it has completed.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	d.waitIdleLocked()
	if d.stopped || !d.pending {
		d.mu.Unlock()
		return false
	}
	d.pending = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	d.run()
	return true
}

// Stop drops any scheduled call, ignores further triggers and waits for a
// call already in progress.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
	d.waitIdleLocked()
	d.mu.Unlock()
}

// run calls fn with d.mu held on entry and released on return.
func (d *Debouncer) run() {
	d.inflight++
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.inflight--
		d.idle.Broadcast()
		d.mu.Unlock()
	}()
	d.fn()
}

func (d *Debouncer) waitIdleLocked() {
	for d.inflight > 0 {
		d.idle.Wait()
	}
}
