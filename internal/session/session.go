// Package session composes the map components of one mounted map.
//
// A Session keeps three sources of truth consistent: the route (selected watershed),
// the dataset (collection from the cache) and the surface (layer, styles, labels,
// viewport). All state changes happen under one mutex, including debounced label
// passes, so components need no locks of their own.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/dataset"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/labels"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/metrics"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/navigator"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/overlay"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/route"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/surface"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/watershed"
)

// ViewOptions toggles the auxiliary layers drawn under the boundaries.
type ViewOptions struct {
	Subcatchments bool `json:"subcatchments"`
	Channels      bool `json:"channels"`
	Patches       bool `json:"patches"`
}

// AnyVisible reports whether a sub-layer is shown.
func (v ViewOptions) AnyVisible() bool { return v.Subcatchments || v.Channels || v.Patches }

// Config is everything a session needs besides its collaborators.
type Config struct {
	DatasetKey    string
	ZoomThreshold float64
	Debounce      time.Duration
	Scheduler     labels.Scheduler
	MaxZoom       float64
	InitialZoom   float64
	InitialCenter *orb.Point
	View          ViewOptions
}

// Surface is what a session renders onto: the map plus the route sink.
type Surface interface {
	surface.Surface
	surface.Navigator
}

// Session is one mounted map.
type Session struct {
	id    string
	cache *dataset.Cache
	surf  Surface

	mu      sync.Mutex
	cfg     Config
	overlay *overlay.Overlay
	labels  *labels.Controller
	nav     *navigator.Navigator
	bridge  *route.Bridge

	route     string
	selected  string
	coll      *watershed.Collection
	zoom      float64
	status    dataset.Status
	err       error
	mounted   bool
	unmounted bool
	cancelSub func()
	// subGen numbers dataset subscriptions; only the latest may apply a result.
	subGen uint64
}

// New builds an unmounted session.
func New(id string, cache *dataset.Cache, surf Surface, cfg Config) *Session {
	if cfg.ZoomThreshold == 0 {
		cfg.ZoomThreshold = labels.DefaultThreshold
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = labels.DefaultWindow
	}
	s := &Session{id: id, cache: cache, surf: surf, cfg: cfg, zoom: cfg.InitialZoom}
	s.overlay = overlay.New(surf)
	s.labels = labels.New(s.overlay.LabelTarget(),
		labels.WithThreshold(cfg.ZoomThreshold),
		labels.WithDebounce(cfg.Debounce, cfg.Scheduler),
		labels.WithLocker(&s.mu),
	)
	s.nav = navigator.New(surf, cfg.MaxZoom)
	// Clicks navigate through the bridge; the session is its own router, so the
	// emitted route is applied right away.
	s.bridge = route.NewBridge(func(path string) {
		s.surf.Navigate(path)
		s.applyRoute(path)
	})
	return s
}

func (s *Session) ID() string { return s.id }

// Mount starts loading the dataset and, with no selection, centres the initial view.
func (s *Session) Mount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mounted || s.unmounted {
		return
	}
	s.mounted = true
	metrics.ActiveSessions.Inc()
	logger.L().Info("session_mount", "session", s.id, "dataset", s.cfg.DatasetKey)
	if s.selected == "" && s.cfg.InitialCenter != nil {
		s.surf.SetView(*s.cfg.InitialCenter, s.cfg.InitialZoom)
		metrics.ViewportCommandsTotal.WithLabelValues("set_view").Inc()
	}
	s.subscribe(s.cfg.DatasetKey)
}

// subscribe must be called with s.mu held.
func (s *Session) subscribe(key string) {
	if s.cancelSub != nil {
		s.cancelSub()
	}
	s.status, s.err = dataset.StatusPending, nil
	s.subGen++
	gen := s.subGen
	res, cancel := s.cache.Subscribe(key, func(r dataset.Result) { s.onDataset(gen, r) })
	s.cancelSub = cancel
	if res.Status != dataset.StatusPending {
		s.applyDataset(res)
	}
}

// onDataset applies a result delivered for subscription gen. Results of a replaced
// subscription are dropped even when the key is unchanged (reload of the same key).
func (s *Session) onDataset(gen uint64, res dataset.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted || s.unmounted || gen != s.subGen {
		logger.L().Debug("session_dataset_discarded", "session", s.id, "key", s.cfg.DatasetKey, "gen", gen)
		return
	}
	s.applyDataset(res)
}

func (s *Session) applyDataset(res dataset.Result) {
	s.status, s.err = res.Status, res.Err
	if res.Status != dataset.StatusReady {
		logger.L().Warn("session_dataset_failed", "session", s.id, "key", s.cfg.DatasetKey, "err", res.Err)
		return
	}
	s.coll = res.Data
	s.overlay.Render(s.coll, s.styleFunc(), s.bindFeature)
	s.labels.ZoomChanged(s.zoom)
	s.navigate()
}

func (s *Session) styleFunc() overlay.StyleFunc {
	return overlay.StyleFor(s.selected, s.cfg.View.AnyVisible())
}

// bindFeature runs once per feature per new layer.
func (s *Session) bindFeature(f *watershed.Feature, h *overlay.Handle) {
	h.OnClick(s.bridge.Click)
	if f.HasLabel() {
		h.MarkLabelCandidate(f.Name)
	}
}

func (s *Session) navigate() {
	if _, err := s.nav.OnIdentifierChange(s.selected, s.coll); err != nil {
		if errors.Is(err, navigator.ErrNotFound) {
			logger.L().Debug("session_selection_not_found", "session", s.id, "id", s.selected)
			return
		}
		logger.L().Warn("session_navigate_error", "session", s.id, "err", err)
	}
}

// SetRoute applies a route reported by the client router.
func (s *Session) SetRoute(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unmounted {
		return
	}
	s.applyRoute(path)
}

func (s *Session) applyRoute(path string) {
	s.route = path
	id := s.bridge.Selected(path)
	if id == s.selected {
		return
	}
	s.selected = id
	s.overlay.Restyle(s.styleFunc())
	s.navigate()
}

// Click handles a click on a rendered feature. It reports whether the feature exists.
func (s *Session) Click(featureID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unmounted {
		return false
	}
	return s.overlay.Click(featureID)
}

// ClickAt resolves a map click at pt to a feature and handles it like Click.
func (s *Session) ClickAt(pt orb.Point) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unmounted || s.coll == nil {
		return "", false
	}
	f, ok := s.coll.FeatureAt(pt)
	if !ok {
		return "", false
	}
	return f.ID, s.overlay.Click(f.ID)
}

// ZoomChanged forwards a zoom-change signal to the label controller.
func (s *Session) ZoomChanged(zoom float64) {
	s.mu.Lock()
	if s.unmounted {
		s.mu.Unlock()
		return
	}
	s.zoom = zoom
	s.labels.ZoomChanged(zoom)
	s.mu.Unlock()
}

// SetView replaces the view options and restyles the live layer.
func (s *Session) SetView(v ViewOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.View = v
	s.overlay.Restyle(s.styleFunc())
}

// Reload switches to dataset key, resubscribing even when the key is unchanged.
func (s *Session) Reload(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted || s.unmounted {
		return
	}
	logger.L().Info("session_reload", "session", s.id, "from", s.cfg.DatasetKey, "to", key)
	s.cfg.DatasetKey = key
	s.subscribe(key)
}

// Unmount tears the session down; dataset results arriving later are dropped.
func (s *Session) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unmounted {
		return
	}
	wasMounted := s.mounted
	s.unmounted = true
	if s.cancelSub != nil {
		s.cancelSub()
		s.cancelSub = nil
	}
	s.labels.Stop()
	s.overlay.Unmount()
	s.coll = nil
	if wasMounted {
		metrics.ActiveSessions.Dec()
	}
	logger.L().Info("session_unmount", "session", s.id)
}

// LabelPasses reports how many label passes have run.
func (s *Session) LabelPasses() int { return s.labels.Passes() }

// State is a point-in-time view of a session.
type State struct {
	ID         string         `json:"id"`
	DatasetKey string         `json:"dataset_key"`
	Dataset    dataset.Status `json:"dataset"`
	Error      string         `json:"error,omitempty"`
	Route      string         `json:"route"`
	Selected   string         `json:"selected"`
	Zoom       float64        `json:"zoom"`
	Features   int            `json:"features"`
	Layer      string         `json:"layer,omitempty"`
	View       ViewOptions    `json:"view"`
	Mounted    bool           `json:"mounted"`
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		ID:         s.id,
		DatasetKey: s.cfg.DatasetKey,
		Dataset:    s.status,
		Route:      s.route,
		Selected:   s.selected,
		Zoom:       s.zoom,
		Features:   s.coll.Len(),
		View:       s.cfg.View,
		Mounted:    s.mounted && !s.unmounted,
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	if l := s.overlay.Layer(); l != nil {
		st.Layer = l.ID()
	}
	return st
}
