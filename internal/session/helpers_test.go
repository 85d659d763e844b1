package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/dataset"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/labels"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/surface"
)

const threeWatersheds = `{"type":"FeatureCollection","features":[
  {"type":"Feature","id":7,"properties":{"name":"Seven Mile"},
   "geometry":{"type":"Polygon","coordinates":[[[-117.5,46.1],[-117.0,46.1],[-117.0,46.6],[-117.5,46.6],[-117.5,46.1]]]}},
  {"type":"Feature","id":42,"properties":{"name":"Answer Creek"},
   "geometry":{"type":"Polygon","coordinates":[[[-116,45],[-115,45],[-115,46],[-116,46],[-116,45]]]}},
  {"type":"Feature","id":99,"properties":{},
   "geometry":{"type":"Polygon","coordinates":[[[-114,44],[-113,44],[-113,45],[-114,45],[-114,44]]]}}
]}`

const oneWatershed = `{"type":"FeatureCollection","features":[
  {"type":"Feature","id":"v2-1","properties":{"name":"Reloaded"},
   "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}
]}`

// gate serves fixed datasets, holding each key until it is opened.
type gate struct {
	mu     sync.Mutex
	bodies map[string]string
	open   map[string]chan struct{}
}

func newGate(bodies map[string]string) *gate {
	g := &gate{bodies: bodies, open: map[string]chan struct{}{}}
	for k := range bodies {
		g.open[k] = make(chan struct{})
	}
	return g
}

func (g *gate) Fetch(ctx context.Context, key string) ([]byte, error) {
	g.mu.Lock()
	ch, ok := g.open[key]
	body := g.bodies[key]
	g.mu.Unlock()
	if !ok {
		return nil, dataset.ErrFetchFailure
	}
	select {
	case <-ch:
		return []byte(body), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gate) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	close(g.open[key])
}

// manualScheduler fires debounce timers only when the test advances it.
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

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) labels.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

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

type fixture struct {
	gate  *gate
	cache *dataset.Cache
	sched *manualScheduler
	rec   *surface.Recorder
	s     *Session
}

func newFixture(t *testing.T, tweak func(*Config)) *fixture {
	t.Helper()
	g := newGate(map[string]string{"ws": threeWatersheds, "v2": oneWatershed})
	c := dataset.NewCache(g)
	t.Cleanup(c.Close)
	sched := &manualScheduler{}
	cfg := Config{DatasetKey: "ws", Debounce: 100 * time.Millisecond, Scheduler: sched, InitialZoom: 8}
	if tweak != nil {
		tweak(&cfg)
	}
	rec := surface.NewRecorder()
	s := New("test", c, rec, cfg)
	t.Cleanup(s.Unmount)
	return &fixture{gate: g, cache: c, sched: sched, rec: rec, s: s}
}

// load opens the gate for key and waits until the session has applied it.
func (f *fixture) load(t *testing.T, key string) {
	t.Helper()
	f.gate.release(key)
	require.Eventually(t, func() bool {
		st := f.s.State()
		return st.DatasetKey == key && st.Dataset == dataset.StatusReady && st.Layer != ""
	}, 2*time.Second, time.Millisecond)
}

func (f *fixture) commands(k surface.Kind) []surface.Command {
	var out []surface.Command
	for _, c := range f.rec.Commands() {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}
