package labels

import (
	"sync"
	"time"
)

// manualScheduler fires timers only when the test advances its clock.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock and runs due timers in schedule order.
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.at <= s.now {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

func (s *manualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeFeature struct {
	id, text string
	state    State
	binds    int
	unbinds  int
}

func (f *fakeFeature) ID() string   { return f.id }
func (f *fakeFeature) Text() string { return f.text }
func (f *fakeFeature) State() State { return f.state }

func (f *fakeFeature) Bind(permanent bool) {
	f.binds++
	f.state = State{Bound: true, Permanent: permanent}
}

func (f *fakeFeature) Unbind() {
	f.unbinds++
	f.state = State{}
}

type fakeTarget struct {
	mu       sync.Mutex
	features []*fakeFeature
}

func (t *fakeTarget) set(fs ...*fakeFeature) {
	t.mu.Lock()
	t.features = fs
	t.mu.Unlock()
}

func (t *fakeTarget) LabelFeatures() []Feature {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Feature, len(t.features))
	for i, f := range t.features {
		out[i] = f
	}
	return out
}
