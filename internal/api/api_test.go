package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/dataset"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/session"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/surface"
)

const fixture = `{"type":"FeatureCollection","features":[
  {"type":"Feature","id":7,"properties":{"name":"Seven Mile"},
   "geometry":{"type":"Polygon","coordinates":[[[-117.5,46.1],[-117.0,46.1],[-117.0,46.6],[-117.5,46.6],[-117.5,46.1]]]}},
  {"type":"Feature","id":42,"properties":{"name":"Answer Creek"},
   "geometry":{"type":"Polygon","coordinates":[[[-116,45],[-115,45],[-115,46],[-116,46],[-116,45]]]}}
]}`

func newServer(t *testing.T, f dataset.Fetcher) (*httptest.Server, *Server) {
	t.Helper()
	c := dataset.NewCache(f)
	t.Cleanup(c.Close)
	reg := session.NewRegistry(c, session.Config{DatasetKey: "ws", Debounce: 5 * time.Millisecond})
	t.Cleanup(reg.Close)
	s := &Server{Cache: c, Registry: reg, AdminToken: "secret", WaitTimeout: time.Second}
	ts := httptest.NewServer(s.Routes("/api"))
	t.Cleanup(ts.Close)
	return ts, s
}

func okFetcher() dataset.Fetcher {
	return dataset.FetcherFunc(func(context.Context, string) ([]byte, error) { return []byte(fixture), nil })
}

func do(t *testing.T, method, url string, body any, hdr map[string]string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

type sessionBody struct {
	ID       string            `json:"id"`
	State    session.State     `json:"state"`
	Commands []surface.Command `json:"commands"`
}

func kinds(cmds []surface.Command) map[surface.Kind]int {
	out := map[surface.Kind]int{}
	for _, c := range cmds {
		out[c.Kind]++
	}
	return out
}

func TestHealthz(t *testing.T) {
	ts, _ := newServer(t, okFetcher())
	resp, body := do(t, http.MethodGet, ts.URL+"/api/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestWatershedsServesGeoJSON(t *testing.T) {
	ts, _ := newServer(t, okFetcher())
	resp, body := do(t, http.MethodGet, ts.URL+"/api/watersheds", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("content-type"))
	assert.Equal(t, "0", resp.Header.Get("x-skipped-features"))
	assert.JSONEq(t, fixture, string(body))
}

func TestWatershedsFetchFailure(t *testing.T) {
	ts, _ := newServer(t, dataset.FetcherFunc(func(context.Context, string) ([]byte, error) {
		return nil, errors.New("upstream returned 500")
	}))
	resp, body := do(t, http.MethodGet, ts.URL+"/api/watersheds", nil, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var e apiError
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "dataset_fetch_failure", e.Code)
}

func TestWatershedsPending(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	ts, s := newServer(t, dataset.FetcherFunc(func(ctx context.Context, _ string) ([]byte, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, errors.New("never")
	}))
	s.WaitTimeout = 10 * time.Millisecond
	resp, _ := do(t, http.MethodGet, ts.URL+"/api/watersheds", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("retry-after"))
}

// poll reads the session until the dataset is ready, collecting drained commands.
func poll(t *testing.T, base, id string, first []surface.Command) ([]surface.Command, session.State) {
	t.Helper()
	cmds := append([]surface.Command(nil), first...)
	var st session.State
	require.Eventually(t, func() bool {
		_, body := do(t, http.MethodGet, base+"/api/sessions/"+id, nil, nil)
		var sb sessionBody
		require.NoError(t, json.Unmarshal(body, &sb))
		cmds = append(cmds, sb.Commands...)
		st = sb.State
		return st.Dataset == dataset.StatusReady && st.Layer != ""
	}, 2*time.Second, 5*time.Millisecond)
	return cmds, st
}

func TestSessionFlow(t *testing.T) {
	ts, _ := newServer(t, okFetcher())

	resp, body := do(t, http.MethodPost, ts.URL+"/api/sessions", map[string]any{"route": "/watershed/7"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created sessionBody
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "7", created.State.Selected)

	cmds, st := poll(t, ts.URL, created.ID, created.Commands)
	assert.Equal(t, 2, st.Features)
	k := kinds(cmds)
	assert.Equal(t, 1, k[surface.KindAddLayer])
	assert.Equal(t, 2, k[surface.KindSetStyle])
	assert.Equal(t, 1, k[surface.KindFitBounds])

	resp, body = do(t, http.MethodPost, ts.URL+"/api/sessions/"+created.ID+"/click", map[string]any{"id": "42"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var click struct {
		Handled bool        `json:"handled"`
		Feature string      `json:"feature"`
		Session sessionBody `json:"session"`
	}
	require.NoError(t, json.Unmarshal(body, &click))
	assert.True(t, click.Handled)
	assert.Equal(t, "42", click.Session.State.Selected)
	var nav []string
	for _, c := range click.Session.Commands {
		if c.Kind == surface.KindNavigate {
			nav = append(nav, c.Path)
		}
	}
	assert.Equal(t, []string{"/watershed/42"}, nav)

	resp, body = do(t, http.MethodPost, ts.URL+"/api/sessions/"+created.ID+"/click", map[string]any{"lon": -117.2, "lat": 46.3}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &click))
	assert.Equal(t, "7", click.Feature)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/sessions/"+created.ID+"/route", map[string]any{"path": "/"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/sessions/"+created.ID+"/zoom", map[string]any{"zoom": 11}, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool {
		_, body := do(t, http.MethodGet, ts.URL+"/api/sessions/"+created.ID, nil, nil)
		var sb sessionBody
		require.NoError(t, json.Unmarshal(body, &sb))
		for _, c := range sb.Commands {
			if c.Kind == surface.KindBindTooltip && c.Permanent {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/sessions/"+created.ID+"/view", map[string]any{"subcatchments": true}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, ts.URL+"/api/sessions/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, body = do(t, http.MethodGet, ts.URL+"/api/sessions/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "session_not_found")
}

func TestSessionBadRequests(t *testing.T) {
	ts, _ := newServer(t, okFetcher())
	_, body := do(t, http.MethodPost, ts.URL+"/api/sessions", nil, nil)
	var sb sessionBody
	require.NoError(t, json.Unmarshal(body, &sb))
	base := ts.URL + "/api/sessions/" + sb.ID

	resp, _ := do(t, http.MethodPost, base+"/zoom", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, base+"/click", map[string]any{"lon": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, base+"/route", strings.NewReader("{"))
	require.NoError(t, err)
	r2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	r2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r2.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/sessions/nope/zoom", map[string]any{"zoom": 3}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateSessionUsesEdgeGeo(t *testing.T) {
	ts, _ := newServer(t, okFetcher())
	resp, body := do(t, http.MethodPost, ts.URL+"/api/sessions", map[string]any{"zoom": 7},
		map[string]string{"X-Geo-Latitude": "46.73", "X-Geo-Longitude": "-117.00"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sb sessionBody
	require.NoError(t, json.Unmarshal(body, &sb))
	require.NotEmpty(t, sb.Commands)
	assert.Equal(t, surface.KindSetView, sb.Commands[0].Kind)
	assert.Equal(t, [2]float64{-117.00, 46.73}, *sb.Commands[0].Center)
	assert.Equal(t, 7.0, sb.Commands[0].Zoom)
}

func TestReload(t *testing.T) {
	ts, s := newServer(t, okFetcher())
	s.Cache.Wait(context.Background(), "ws")
	forgot := ""
	s.Forget = func(_ context.Context, key string) error {
		forgot = key
		return nil
	}

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/reload", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/reload", nil, map[string]string{"x-admin-token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/reload", nil, map[string]string{"x-admin-token": "secret"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"key":"ws","sessions":0}`, string(body))
	assert.Equal(t, "ws", forgot)

	s.Cache.Wait(context.Background(), "ws")
	assert.Equal(t, 2, s.Cache.Fetches())
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newServer(t, okFetcher())
	do(t, http.MethodGet, ts.URL+"/api/healthz", nil, nil)
	resp, body := do(t, http.MethodGet, ts.URL+"/api/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "watershed_http_requests_total")
}
