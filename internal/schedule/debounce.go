package schedule

import (
	"sync"
	"time"
)

// Debouncer runs the most recently triggered function once its delay has
// elapsed without another trigger. There is at most one pending timer.
type Debouncer struct {
	clock Clock
	delay time.Duration

	mu      sync.Mutex
	timer   Timer
	pending func()
	gen     uint64
}

func NewDebouncer(clock Clock, delay time.Duration) *Debouncer {
	if clock == nil {
		clock = Real()
	}
	return &Debouncer{clock: clock, delay: delay}
}

// Trigger replaces any pending call with fn and restarts the delay.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = fn
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.fire(gen)
	})
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		// superseded by a later Trigger, Cancel or Flush
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	fn()
}

// Cancel drops the pending call, if any. It reports whether one was dropped.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked()
}

func (d *Debouncer) cancelLocked() bool {
	had := d.pending != nil
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	d.timer = nil
	d.pending = nil
	return had
}

// Flush runs the pending call immediately on the caller's goroutine.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	fn := d.pending
	d.cancelLocked()
	d.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Debouncer) Delay() time.Duration {
	return d.delay
}
