// Package utils: connection helpers that read postgres, redis and TLS settings from
// the environment.
package utils

import (
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
)

// OpenRedisFromEnv returns a client for REDIS_HOST/REDIS_PORT with REDIS_PASS and
// REDIS_DB.
// Background: redis only holds dataset bytes shared between replicas, so a missing
// REDIS_HOST disables it instead of defaulting to localhost.
// Constraint: an unparsable or negative REDIS_DB falls back to 0; the client is not
// pinged here, callers decide whether a dead redis is fatal.
func OpenRedisFromEnv() *redis.Client {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return nil
	}
	addr := host + ":" + envOr("REDIS_PORT", "6379")
	db := envInt("REDIS_DB", 0)
	if db < 0 {
		db = 0
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASS"), DB: db})
}
