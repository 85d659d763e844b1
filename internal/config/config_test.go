package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"ADDR", "API_BASE", "DATASET_SOURCE", "DATASET_KEY", "LABEL_ZOOM_THRESHOLD", "RATE_LIMIT_ENABLED", "TLS_ENABLED"} {
		t.Setenv(k, "")
	}
	c := Load()
	assert.Equal(t, ":8080", c.Addr)
	assert.Equal(t, "/api", c.APIBase)
	assert.Equal(t, "file", c.DatasetSource)
	assert.Equal(t, "watersheds", c.DatasetKey)
	assert.Equal(t, 30*time.Second, c.DatasetTimeout)
	assert.Equal(t, 10.0, c.LabelZoomThreshold)
	assert.Equal(t, 100*time.Millisecond, c.LabelDebounce)
	assert.Equal(t, 0, c.RateLimitQPS)
	assert.False(t, c.TLSEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_BASE", "/v1/")
	t.Setenv("DATASET_SOURCE", "HTTP")
	t.Setenv("LABEL_ZOOM_THRESHOLD", " 12.5 ")
	t.Setenv("LABEL_DEBOUNCE_MS", "250")
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_QPS", "50")
	t.Setenv("DATASET_CACHE_TTL_S", "0")
	c := Load()
	assert.Equal(t, "/v1", c.APIBase)
	assert.Equal(t, "http", c.DatasetSource)
	assert.Equal(t, 12.5, c.LabelZoomThreshold)
	assert.Equal(t, 250*time.Millisecond, c.LabelDebounce)
	assert.Equal(t, 50, c.RateLimitQPS)
	assert.Zero(t, c.DatasetCacheTTL)
}

func TestLoadIgnoresGarbage(t *testing.T) {
	t.Setenv("NAV_MAX_ZOOM", "deep")
	t.Setenv("DATASET_TIMEOUT_S", "soon")
	c := Load()
	assert.Equal(t, 14.0, c.NavMaxZoom)
	assert.Equal(t, 30*time.Second, c.DatasetTimeout)
}
