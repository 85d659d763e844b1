package utils

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
)

// BuildPostgresDSNFromEnv assembles a lib/pq URL from PG_* variables.
// Constraint: PG_DSN wins when set; user and password are URL-escaped so any
// character is allowed in them.
func BuildPostgresDSNFromEnv() string {
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		return dsn
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   envOr("PG_HOST", "localhost") + ":" + envOr("PG_PORT", "5432"),
		Path:   "/" + envOr("PG_DB", "watersheds"),
	}
	user := envOr("PG_USER", "postgres")
	if pass := os.Getenv("PG_PASSWORD"); pass != "" {
		u.User = url.UserPassword(user, pass)
	} else {
		u.User = url.User(user)
	}
	u.RawQuery = "sslmode=" + envOr("PG_SSLMODE", "disable")
	return u.String()
}

// OpenPostgresFromEnv opens and pings the watershed database.
// Background: sql.Open never dials, so the ping turns a bad DSN into a startup error.
// Constraint: the ping is bounded to 5s; pool sizes come from PG_MAX_OPEN_CONNS and
// PG_MAX_IDLE_CONNS.
func OpenPostgresFromEnv(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("postgres", BuildPostgresDSNFromEnv())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(envInt("PG_MAX_OPEN_CONNS", 10))
	db.SetMaxIdleConns(envInt("PG_MAX_IDLE_CONNS", 5))
	db.SetConnMaxIdleTime(5 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.L().Debug("postgres_open", "host", envOr("PG_HOST", "localhost"), "db", envOr("PG_DB", "watersheds"))
	return db, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
