// Server entrypoint: reads configuration, wires the dataset cache and map sessions,
// and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/api"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/config"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/dataset"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/geoip"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/migrate"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/session"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/store"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/utils"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/watershed"
)

func main() {
	config.LoadDotenv()
	l := logger.Setup()
	l.Debug("log_init_ok")
	cfg := config.Load()
	l.Debug("config_loaded", "api_base", cfg.APIBase, "source", cfg.DatasetSource, "key", cfg.DatasetKey)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var upstream dataset.Fetcher
	switch cfg.DatasetSource {
	case "http":
		upstream = dataset.NewHTTPFetcher(cfg.DatasetURL, cfg.DatasetTimeout)
		l.Info("dataset_source_http", "url", cfg.DatasetURL)
	case "postgres":
		db, err := utils.OpenPostgresFromEnv(ctx)
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		l.Info("db_open_ok")
		if err := migrate.EnsureSchema(ctx, db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		upstream = dataset.SourceFetcher{Source: store.AttachDB(db)}
		l.Info("dataset_source_postgres")
	default:
		upstream = dataset.FileFetcher{Dir: cfg.DatasetDir}
		l.Info("dataset_source_file", "dir", cfg.DatasetDir)
	}

	fetcher := upstream
	var forget func(context.Context, string) error
	if rc := utils.OpenRedisFromEnv(); rc == nil || cfg.DatasetCacheTTL <= 0 {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
		rf := &dataset.RedisFetcher{Client: rc, Next: upstream, TTL: cfg.DatasetCacheTTL}
		fetcher, forget = rf, rf.Forget
	}

	cache := dataset.NewCache(fetcher, dataset.WithDecodeOptions(watershed.WithNameProperty(cfg.NameProperty)))
	defer cache.Close()
	// Warm the cache so the first session does not wait for the download.
	cache.Load(cfg.DatasetKey)

	geo, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		l.Warn("geoip_open_error", "path", cfg.GeoIPDBPath, "err", err)
		geo = &geoip.Locator{}
	}
	defer geo.Close()

	reg := session.NewRegistry(cache, session.Config{
		DatasetKey:    cfg.DatasetKey,
		ZoomThreshold: cfg.LabelZoomThreshold,
		Debounce:      cfg.LabelDebounce,
		MaxZoom:       cfg.NavMaxZoom,
		InitialZoom:   cfg.InitialZoom,
	})
	defer reg.Close()

	srv := &api.Server{
		Cache:        cache,
		Registry:     reg,
		Geo:          geo,
		AdminToken:   cfg.AdminToken,
		RateLimitQPS: cfg.RateLimitQPS,
		WaitTimeout:  cfg.DatasetTimeout,
		Forget:       forget,
	}
	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(cfg.APIBase),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		l.Info("shutdown_begin")
		_ = s.Shutdown(sctx)
	}()

	if cfg.TLSEnabled {
		if err := utils.EnsureSelfSignedCert(cfg.TLSCertFile, cfg.TLSKeyFile, cfg.TLSHost); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLSCertFile)
		err = s.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		l.Info("listening", "addr", cfg.Addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
	}
	l.Info("shutdown_done")
}
