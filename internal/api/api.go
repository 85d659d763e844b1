// Package api exposes map sessions and the watershed dataset over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/paulmach/orb"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/dataset"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/geoip"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/metrics"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/middleware"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/session"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/surface"
)

// Server holds the HTTP handlers' dependencies.
type Server struct {
	Cache    *dataset.Cache
	Registry *session.Registry
	Geo      *geoip.Locator

	AdminToken   string
	RateLimitQPS int
	// WaitTimeout bounds how long GET /watersheds waits for a pending dataset.
	WaitTimeout time.Duration
	// Forget drops a dataset from shared caches (redis) on reload. Optional.
	Forget func(ctx context.Context, key string) error
}

// Routes returns the API mounted under base, e.g. "/api".
func (s *Server) Routes(base string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(logger.AccessMiddleware(logger.L()))
	r.Use(middleware.RateLimit(s.RateLimitQPS))
	r.Use(middleware.EdgeGeo)

	r.Route(base, func(r chi.Router) {
		r.Get("/healthz", s.healthz)
		r.Get("/watersheds", s.watersheds)
		r.Post("/reload", s.reload)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.createSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Delete("/", s.deleteSession)
				r.Post("/route", s.setRoute)
				r.Post("/zoom", s.zoom)
				r.Post("/click", s.click)
				r.Post("/view", s.setView)
			})
		})
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.Registry.Len(),
		"dataset":  s.Cache.Load(s.Registry.DatasetKey()).Status,
	})
}

// watersheds serves the raw GeoJSON of the current dataset.
func (s *Server) watersheds(w http.ResponseWriter, r *http.Request) {
	key := s.Registry.DatasetKey()
	timeout := s.WaitTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	res := s.Cache.Wait(ctx, key)
	switch res.Status {
	case dataset.StatusPending:
		w.Header().Set("retry-after", "1")
		writeError(w, newError(http.StatusServiceUnavailable, "dataset_pending", "dataset is still loading"))
	case dataset.StatusFailed:
		writeError(w, newError(http.StatusBadGateway, "dataset_fetch_failure", res.Err.Error()))
	default:
		w.Header().Set("content-type", "application/geo+json")
		w.Header().Set("cache-control", "public, max-age=60")
		w.Header().Set("x-skipped-features", strconv.Itoa(len(res.Data.Skipped())))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Data.Raw())
	}
}

type reloadRequest struct {
	Key string `json:"key"`
}

// reload starts a new cache lifetime for a dataset key and moves every session onto it.
func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	tok := r.Header.Get("x-admin-token")
	if s.AdminToken == "" || subtle.ConstantTimeCompare([]byte(tok), []byte(s.AdminToken)) != 1 {
		writeError(w, errUnauthorized)
		return
	}
	var req reloadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key := req.Key
	if key == "" {
		key = s.Registry.DatasetKey()
	}
	if s.Forget != nil {
		if err := s.Forget(r.Context(), key); err != nil {
			logger.L().Warn("reload_forget_error", "key", key, "err", err)
		}
	}
	s.Cache.Invalidate(key)
	n := s.Registry.Reload(key)
	logger.L().Info("dataset_reload", "key", key, "sessions", n)
	writeJSON(w, http.StatusAccepted, map[string]any{"key": key, "sessions": n})
}

type createRequest struct {
	Route string               `json:"route"`
	View  *session.ViewOptions `json:"view"`
	Zoom  *float64             `json:"zoom"`
}

type sessionResponse struct {
	ID       string            `json:"id"`
	State    session.State     `json:"state"`
	Commands []surface.Command `json:"commands"`
}

func respond(h *session.Handle) sessionResponse {
	cmds := h.Recorder.Drain()
	if cmds == nil {
		cmds = []surface.Command{}
	}
	return sessionResponse{ID: h.ID(), State: h.State(), Commands: cmds}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	center, hasCenter := middleware.EdgeGeoFrom(r.Context())
	if !hasCenter {
		center, hasCenter = s.Geo.LocateRequest(r)
	}
	h := s.Registry.Create(req.Route, func(c *session.Config) {
		if req.View != nil {
			c.View = *req.View
		}
		if req.Zoom != nil {
			c.InitialZoom = *req.Zoom
		}
		if hasCenter {
			pt := center
			c.InitialCenter = &pt
		}
	})
	logger.L().Debug("session_create", "session", h.ID(), "route", req.Route, "geo", hasCenter)
	writeJSON(w, http.StatusCreated, respond(h))
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Handle, bool) {
	h, err := s.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return h, true
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if h, ok := s.session(w, r); ok {
		writeJSON(w, http.StatusOK, respond(h))
	}
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Registry.Remove(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setRoute(w http.ResponseWriter, r *http.Request) {
	h, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.SetRoute(req.Path)
	writeJSON(w, http.StatusOK, respond(h))
}

func (s *Server) zoom(w http.ResponseWriter, r *http.Request) {
	h, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Zoom *float64 `json:"zoom"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Zoom == nil {
		writeError(w, errBadRequest("zoom is required"))
		return
	}
	h.ZoomChanged(*req.Zoom)
	writeJSON(w, http.StatusAccepted, respond(h))
}

type clickRequest struct {
	ID  string   `json:"id"`
	Lon *float64 `json:"lon"`
	Lat *float64 `json:"lat"`
}

func (s *Server) click(w http.ResponseWriter, r *http.Request) {
	h, ok := s.session(w, r)
	if !ok {
		return
	}
	var req clickRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	var handled bool
	id := req.ID
	switch {
	case id != "":
		handled = h.Click(id)
	case req.Lon != nil && req.Lat != nil:
		id, handled = h.ClickAt(orb.Point{*req.Lon, *req.Lat})
	default:
		writeError(w, errBadRequest("id or lon/lat is required"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"handled": handled,
		"feature": id,
		"session": respond(h),
	})
}

func (s *Server) setView(w http.ResponseWriter, r *http.Request) {
	h, ok := s.session(w, r)
	if !ok {
		return
	}
	var v session.ViewOptions
	if err := decodeBody(r, &v); err != nil {
		writeError(w, err)
		return
	}
	h.SetView(v)
	writeJSON(w, http.StatusOK, respond(h))
}
