// Package labels keeps watershed tooltips consistent with the map zoom level.
//
// Each zoom-change signal restarts a debounce window; when the window closes, one
// pass re-reads the overlay's current features and rebinds every tooltip as
// permanent (zoom at or above the threshold) or hover-only. Features without a
// display name stay hidden. The controller only ever touches labels.
package labels

import (
	"sync"
	"time"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/metrics"
)

const (
	DefaultThreshold = 10.0
	DefaultWindow    = 100 * time.Millisecond
)

// State is the observable label state of one feature. The zero value is Hidden.
type State struct {
	Bound     bool `json:"bound"`
	Permanent bool `json:"permanent"`
}

func (s State) Hidden() bool { return !s.Bound }

// Feature is the label-only view of one overlay feature.
type Feature interface {
	ID() string
	Text() string
	State() State
	Bind(permanent bool)
	Unbind()
}

// Target yields the features currently rendered by the overlay.
type Target interface {
	LabelFeatures() []Feature
}

// Pass summarises one recomputation.
type Pass struct {
	Zoom      float64
	Features  int
	Bound     int
	Permanent int
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// Controller is the zoom-dependent label state machine.
type Controller struct {
	target    Target
	threshold float64
	deb       *Debouncer
	locker    sync.Locker
	onPass    func(Pass)

	mu      sync.Mutex
	zoom    float64
	passes  int
	last    Pass
	stopped bool
}

type Option func(*Controller)

func WithThreshold(z float64) Option { return func(c *Controller) { c.threshold = z } }

// WithDebounce sets the settle window and the scheduler driving it.
func WithDebounce(window time.Duration, sched Scheduler) Option {
	return func(c *Controller) { c.deb = NewDebouncer(window, sched) }
}

// WithLocker makes each pass run while holding l, serialising it with the owner's state.
func WithLocker(l sync.Locker) Option { return func(c *Controller) { c.locker = l } }

// WithPassHook observes each completed pass.
func WithPassHook(fn func(Pass)) Option { return func(c *Controller) { c.onPass = fn } }

func New(target Target, opts ...Option) *Controller {
	c := &Controller{target: target, threshold: DefaultThreshold, locker: nopLocker{}}
	for _, o := range opts {
		o(c)
	}
	if c.deb == nil {
		c.deb = NewDebouncer(DefaultWindow, nil)
	}
	return c
}

// ZoomChanged records a zoom-change signal and restarts the settle window.
func (c *Controller) ZoomChanged(zoom float64) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.zoom = zoom
	c.mu.Unlock()
	c.deb.Debounce(c.settle)
}

func (c *Controller) settle() {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	zoom := c.zoom
	c.mu.Unlock()
	c.Recompute(zoom)
}

// Recompute runs one pass immediately at zoom. Callers outside the debounce path
// must hold the locker themselves.
func (c *Controller) Recompute(zoom float64) Pass {
	p := Pass{Zoom: zoom}
	permanent := zoom >= c.threshold
	for _, f := range c.target.LabelFeatures() {
		p.Features++
		f.Unbind()
		if f.Text() == "" {
			continue
		}
		f.Bind(permanent)
		p.Bound++
		if permanent {
			p.Permanent++
		}
	}
	c.mu.Lock()
	c.passes++
	c.last = p
	c.mu.Unlock()
	metrics.LabelPassesTotal.Inc()
	logger.L().Debug("label_pass", "zoom", zoom, "features", p.Features, "bound", p.Bound, "permanent", p.Permanent)
	if c.onPass != nil {
		c.onPass(p)
	}
	return p
}

// Passes returns how many passes have run.
func (c *Controller) Passes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passes
}

// LastPass returns the most recent pass.
func (c *Controller) LastPass() Pass {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Controller) Threshold() float64 { return c.threshold }

// Stop cancels any pending pass; later signals are ignored.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.deb.Cancel()
}
