// Package dataset loads and memoizes watershed collections by key.
//
// Each key is fetched exactly once for the lifetime of a Cache: concurrent callers share
// the in-flight request and then the same decoded *watershed.Collection. Failures are
// memoized too; only Invalidate starts a new lifetime for a key. Pending is a normal,
// possibly indefinite, state: the cache imposes no timeout.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/metrics"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/watershed"
)

// ErrFetchFailure marks a dataset the transport could not deliver.
var ErrFetchFailure = errors.New("dataset fetch failure")

type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return "pending"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ready":
		*s = StatusReady
	case "failed":
		*s = StatusFailed
	case "pending":
		*s = StatusPending
	default:
		return fmt.Errorf("unknown dataset status %q", b)
	}
	return nil
}

// Result is the observable state of one key.
type Result struct {
	Status Status
	Data   *watershed.Collection
	Err    error
}

// Fetcher retrieves the raw GeoJSON of a dataset key.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, key string) ([]byte, error) { return f(ctx, key) }

type entry struct {
	res    Result
	done   chan struct{}
	subs   map[uint64]func(Result)
	nextID uint64
}

// Cache memoizes decoded collections per key.
type Cache struct {
	fetcher Fetcher
	decode  []watershed.Option

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	fetches int
}

type Option func(*Cache)

// WithDecodeOptions forwards options to watershed.Decode.
func WithDecodeOptions(opts ...watershed.Option) Option {
	return func(c *Cache) { c.decode = append(c.decode, opts...) }
}

func NewCache(f Fetcher, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{fetcher: f, ctx: ctx, cancel: cancel, entries: make(map[string]*entry)}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Load returns the current state of key, starting its fetch on first use. It never blocks.
func (c *Cache) Load(key string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensure(key).res
}

// Wait blocks until key resolves or ctx ends. An ended ctx yields the pending result.
func (c *Cache) Wait(ctx context.Context, key string) Result {
	c.mu.Lock()
	e := c.ensure(key)
	c.mu.Unlock()
	select {
	case <-e.done:
	case <-ctx.Done():
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return e.res
}

// Subscribe returns the current state of key. While pending, fn is registered and
// called once, from another goroutine, when the key resolves; cancel unregisters it.
// A cancel that returns before delivery of fn starts prevents it; a delivery already
// under way still completes, so subscribers that can be replaced must check that the
// result belongs to their current subscription. fn is never registered for an already
// resolved key.
func (c *Cache) Subscribe(key string, fn func(Result)) (Result, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.ensure(key)
	if e.res.Status != StatusPending {
		return e.res, func() {}
	}
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	return e.res, func() {
		c.mu.Lock()
		delete(e.subs, id)
		c.mu.Unlock()
	}
}

// Invalidate forgets key so the next use fetches it again. Callers waiting on the
// old lifetime still receive its result.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.group.Forget(key)
	c.mu.Unlock()
	logger.L().Info("dataset_invalidate", "key", key)
}

// Fetches reports how many fetches the cache has issued.
func (c *Cache) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// Close aborts in-flight fetches.
func (c *Cache) Close() { c.cancel() }

// ensure must be called with c.mu held.
func (c *Cache) ensure(key string) *entry {
	if e, ok := c.entries[key]; ok {
		return e
	}
	e := &entry{res: Result{Status: StatusPending}, done: make(chan struct{}), subs: make(map[uint64]func(Result))}
	c.entries[key] = e
	c.fetches++
	ch := c.group.DoChan(key, func() (any, error) { return c.fetch(key) })
	go func() {
		r := <-ch
		res := Result{Status: StatusReady}
		if r.Err != nil {
			res = Result{Status: StatusFailed, Err: r.Err}
		} else {
			res.Data = r.Val.(*watershed.Collection)
		}
		c.resolve(e, res)
	}()
	return e
}

func (c *Cache) fetch(key string) (*watershed.Collection, error) {
	t0 := time.Now()
	defer func() { metrics.DatasetFetchDurationMs.Observe(float64(time.Since(t0).Milliseconds())) }()
	data, err := c.fetcher.Fetch(c.ctx, key)
	if err != nil {
		metrics.DatasetFetchTotal.WithLabelValues("fail").Inc()
		logger.L().Error("dataset_fetch_error", "key", key, "err", err)
		if !errors.Is(err, ErrFetchFailure) {
			err = fmt.Errorf("%w: %w", ErrFetchFailure, err)
		}
		return nil, err
	}
	coll, err := watershed.Decode(data, c.decode...)
	if err != nil {
		metrics.DatasetFetchTotal.WithLabelValues("decode_error").Inc()
		logger.L().Error("dataset_decode_error", "key", key, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrFetchFailure, err)
	}
	if n := len(coll.Skipped()); n > 0 {
		metrics.DatasetSkippedFeatures.Add(float64(n))
		for _, s := range coll.Skipped() {
			logger.L().Warn("dataset_feature_skipped", "key", key, "index", s.Index, "err", s.Err)
		}
	}
	metrics.DatasetFetchTotal.WithLabelValues("ok").Inc()
	logger.L().Info("dataset_fetch_ok", "key", key, "features", coll.Len(), "bytes", len(data), "duration_ms", time.Since(t0).Milliseconds())
	return coll, nil
}

// resolve publishes res and delivers it to every subscriber still registered when
// its turn comes, so a callback may cancel the ones after it.
func (c *Cache) resolve(e *entry, res Result) {
	c.mu.Lock()
	e.res = res
	ids := make([]uint64, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	close(e.done)
	c.mu.Unlock()
	for _, id := range ids {
		c.mu.Lock()
		fn, ok := e.subs[id]
		delete(e.subs, id)
		c.mu.Unlock()
		if ok {
			fn(res)
		}
	}
}
