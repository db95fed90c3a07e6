package reconcile

import (
	"sync"
	"time"

	"zerosum_client/internal/clock"
)

// DefaultDebounceWindow is the minimum spacing between two refreshes of one
// game.
const DefaultDebounceWindow = 2 * time.Second

// Debouncer rate-limits fn. A trigger outside the window since the last run
// runs fn immediately; inside the window it schedules a single trailing run
// at lastRun+window. Further triggers while that run is pending are absorbed.
type Debouncer struct {
	clock  clock.Clock
	window time.Duration
	fn     func()

	mu      sync.Mutex
	last    time.Time
	ran     bool
	pending clock.Timer
	stopped bool
}

func NewDebouncer(clk clock.Clock, window time.Duration, fn func()) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{clock: clk, window: window, fn: fn}
}

// Trigger requests a run of fn.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	if d.stopped || d.pending != nil {
		d.mu.Unlock()
		return
	}

	now := d.clock.Now()
	if !d.ran || now.Sub(d.last) >= d.window {
		d.last = now
		d.ran = true
		d.mu.Unlock()
		d.fn()
		return
	}

	delay := d.last.Add(d.window).Sub(now)
	d.pending = d.clock.AfterFunc(delay, d.fire)
	d.mu.Unlock()
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped || d.pending == nil {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	d.last = d.clock.Now()
	d.ran = true
	d.mu.Unlock()
	d.fn()
}

// Mark records a run that happened outside the debouncer, such as an
// explicit refresh, so the window counts from it.
func (d *Debouncer) Mark() {
	d.mu.Lock()
	d.last = d.clock.Now()
	d.ran = true
	d.mu.Unlock()
}

// Pending reports whether a trailing run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop cancels a pending run and disables the debouncer.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}
