package labels

import (
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d. The production scheduler is time.AfterFunc;
// tests substitute a manual one.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) }

// RealScheduler schedules on the runtime timer wheel.
var RealScheduler Scheduler = realScheduler{}

// Debouncer runs only the last function handed to it within a quiet window.
// A new call cancels any pending, not-yet-fired one.
type Debouncer struct {
	mu     sync.Mutex
	sched  Scheduler
	window time.Duration
	timer  Timer
	gen    uint64
}

func NewDebouncer(window time.Duration, sched Scheduler) *Debouncer {
	if sched == nil {
		sched = RealScheduler
	}
	return &Debouncer{window: window, sched: sched}
}

// Debounce schedules fn, replacing whatever was pending.
func (d *Debouncer) Debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.sched.AfterFunc(d.window, func() {
		d.mu.Lock()
		// A timer that fired while being replaced must not run.
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
