// Package config: typed service configuration read from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at startup.
// Constraint: every field has a default, so an empty environment yields a runnable
// file-backed service; unparsable numbers fall back to the default.
type Config struct {
	Addr    string
	APIBase string

	// Dataset
	DatasetSource  string // file | http | postgres
	DatasetDir     string
	DatasetURL     string
	DatasetKey     string
	DatasetTimeout time.Duration
	NameProperty   string
	// Raw bytes kept in redis; 0 disables the redis layer even when REDIS_HOST is set.
	DatasetCacheTTL time.Duration

	// Map behaviour
	LabelZoomThreshold float64
	LabelDebounce      time.Duration
	NavMaxZoom         float64
	InitialZoom        float64

	GeoIPDBPath string
	AdminToken  string

	RateLimitQPS int

	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string
	TLSHost     string
}

// LoadDotenv reads .env files when present; variables already set win.
func LoadDotenv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("data/env/.env")
}

func Load() Config {
	rateQPS := 0
	if getenv("RATE_LIMIT_ENABLED", "false") == "true" {
		rateQPS = getenvInt("RATE_LIMIT_QPS", 200)
	}
	return Config{
		Addr:               getenv("ADDR", ":8080"),
		APIBase:            strings.TrimRight(getenv("API_BASE", "/api"), "/"),
		DatasetSource:      strings.ToLower(getenv("DATASET_SOURCE", "file")),
		DatasetDir:         getenv("DATASET_DIR", "./data/watersheds"),
		DatasetURL:         getenv("DATASET_URL", "http://localhost:8000/api/watershed"),
		DatasetKey:         getenv("DATASET_KEY", "watersheds"),
		DatasetTimeout:     time.Duration(getenvInt("DATASET_TIMEOUT_S", 30)) * time.Second,
		NameProperty:       getenv("DATASET_NAME_PROPERTY", "name"),
		DatasetCacheTTL:    time.Duration(getenvInt("DATASET_CACHE_TTL_S", 3600)) * time.Second,
		LabelZoomThreshold: getenvFloat("LABEL_ZOOM_THRESHOLD", 10),
		LabelDebounce:      time.Duration(getenvInt("LABEL_DEBOUNCE_MS", 100)) * time.Millisecond,
		NavMaxZoom:         getenvFloat("NAV_MAX_ZOOM", 14),
		InitialZoom:        getenvFloat("INITIAL_ZOOM", 6),
		GeoIPDBPath:        getenv("GEOIP_DB_PATH", ""),
		AdminToken:         getenv("ADMIN_TOKEN", ""),
		RateLimitQPS:       rateQPS,
		TLSEnabled:         getenv("TLS_ENABLED", "false") == "true",
		TLSCertFile:        getenv("TLS_CERT_FILE", "./data/tls/cert.pem"),
		TLSKeyFile:         getenv("TLS_KEY_FILE", "./data/tls/key.pem"),
		TLSHost:            getenv("TLS_HOST", "localhost"),
	}
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}
