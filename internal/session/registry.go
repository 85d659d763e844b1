package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/dataset"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/surface"
)

var ErrUnknownSession = errors.New("unknown session")

// Handle pairs a session with the recorder it renders onto.
type Handle struct {
	*Session
	Recorder *surface.Recorder
}

// Registry holds the live sessions of the HTTP API.
type Registry struct {
	cache *dataset.Cache
	base  Config

	mu       sync.RWMutex
	sessions map[string]*Handle
}

// NewRegistry returns a registry whose sessions start from base.
func NewRegistry(cache *dataset.Cache, base Config) *Registry {
	return &Registry{cache: cache, base: base, sessions: make(map[string]*Handle)}
}

// Create builds a session, applies route and mounts it. tweak may adjust the config
// of this session only.
// The registry lock is held from reading the base config until the session is
// listed, so a concurrent Reload either precedes the session or reaches it.
func (r *Registry) Create(route string, tweak func(*Config)) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg := r.base
	if tweak != nil {
		tweak(&cfg)
	}
	rec := surface.NewRecorder()
	h := &Handle{Session: New(uuid.NewString(), r.cache, rec, cfg), Recorder: rec}
	if route != "" {
		h.SetRoute(route)
	}
	h.Mount()
	r.sessions[h.ID()] = h
	return h
}

func (r *Registry) Get(id string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return h, nil
}

// Remove unmounts and forgets a session.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	h, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	h.Unmount()
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// DatasetKey is the key new sessions load.
func (r *Registry) DatasetKey() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.base.DatasetKey
}

// Reload points every session, and sessions created later, at key.
func (r *Registry) Reload(key string) int {
	r.mu.Lock()
	r.base.DatasetKey = key
	live := make([]*Handle, 0, len(r.sessions))
	for _, h := range r.sessions {
		live = append(live, h)
	}
	r.mu.Unlock()
	for _, h := range live {
		h.Reload(key)
	}
	return len(live)
}

// Close unmounts every session.
func (r *Registry) Close() {
	r.mu.Lock()
	live := r.sessions
	r.sessions = make(map[string]*Handle)
	r.mu.Unlock()
	for _, h := range live {
		h.Unmount()
	}
}
