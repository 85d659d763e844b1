package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/metrics"
)

// HTTPFetcher GETs BaseURL joined with the key. Any non-2xx status is a fetch failure.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{BaseURL: strings.TrimRight(baseURL, "/"), Client: &http.Client{Timeout: timeout}}
}

func (h *HTTPFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	target := h.BaseURL + "/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailure, err)
	}
	req.Header.Set("accept", "application/geo+json, application/json")
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: GET %s returned %d", ErrFetchFailure, target, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetchFailure, err)
	}
	return b, nil
}

// FileFetcher reads <Dir>/<key>.geojson.
type FileFetcher struct {
	Dir string
}

func (f FileFetcher) Fetch(_ context.Context, key string) ([]byte, error) {
	name := filepath.Base(filepath.Clean("/" + key))
	if name == "/" || name == "." {
		return nil, fmt.Errorf("%w: bad key %q", ErrFetchFailure, key)
	}
	p := filepath.Join(f.Dir, name+".geojson")
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailure, err)
	}
	return b, nil
}

// Source is anything that can render a dataset as GeoJSON, such as the postgres store.
type Source interface {
	DatasetJSON(ctx context.Context, dataset string) ([]byte, error)
}

// SourceFetcher adapts a Source to Fetcher.
type SourceFetcher struct {
	Source Source
}

func (s SourceFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	b, err := s.Source.DatasetJSON(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailure, err)
	}
	return b, nil
}

// RedisFetcher keeps raw dataset bytes in redis in front of another fetcher, so
// several server processes share one upstream download. Redis errors fall through
// to the upstream fetcher.
type RedisFetcher struct {
	Client *redis.Client
	Next   Fetcher
	TTL    time.Duration
	Prefix string
}

func (r *RedisFetcher) key(k string) string {
	p := r.Prefix
	if p == "" {
		p = "dataset:"
	}
	return p + k
}

func (r *RedisFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	if r.Client == nil {
		return r.Next.Fetch(ctx, key)
	}
	rk := r.key(key)
	b, err := r.Client.Get(ctx, rk).Bytes()
	switch {
	case err == nil && len(b) > 0:
		metrics.RedisHitsTotal.Inc()
		logger.L().Debug("dataset_redis_hit", "key", key, "bytes", len(b))
		return b, nil
	case err != nil && !errors.Is(err, redis.Nil):
		logger.L().Warn("dataset_redis_get_error", "key", key, "err", err)
	}
	metrics.RedisMissesTotal.Inc()
	b, err = r.Next.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	ttl := r.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := r.Client.Set(ctx, rk, b, ttl).Err(); err != nil {
		logger.L().Warn("dataset_redis_set_error", "key", key, "err", err)
	}
	return b, nil
}

// Forget removes a key from redis; used when a dataset is reloaded.
func (r *RedisFetcher) Forget(ctx context.Context, key string) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, r.key(key)).Err()
}
