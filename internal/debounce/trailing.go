// Package debounce collapses bursts of triggers into a single trailing call.
package debounce

import (
	"sync"
	"time"
)

// Trailing runs the most recently scheduled function once the delay passes
// without another Schedule call.
type Trailing struct {
	mu      sync.Mutex
	timer   *time.Timer
	pending func()
	gen     uint64
	stopped bool
}

func New() *Trailing { return &Trailing{} }

// Schedule cancels any pending call and schedules fn after delay.
func (d *Trailing) Schedule(fn func(), delay time.Duration) {
	if fn == nil {
		return
	}
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
	d.pending = fn
	d.timer = time.AfterFunc(delay, func() { d.fire(gen) })
}

func (d *Trailing) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	fn()
}

// Flush runs the pending function now, on the caller's goroutine. It reports
// whether anything was pending.
func (d *Trailing) Flush() bool {
	d.mu.Lock()
	fn := d.pending
	d.clearLocked()
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Cancel drops the pending function without running it.
func (d *Trailing) Cancel() {
	d.mu.Lock()
	d.clearLocked()
	d.mu.Unlock()
}

// Pending reports whether a call is scheduled.
func (d *Trailing) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop cancels pending work and rejects future schedules.
func (d *Trailing) Stop() {
	d.mu.Lock()
	d.clearLocked()
	d.stopped = true
	d.mu.Unlock()
}

func (d *Trailing) clearLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.gen++
}
