package utils

import (
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"

	"hotspot-map/internal/logger"
)

// OpenRedisFromEnv returns nil when REDIS_ENABLED is not "true"; callers treat a nil
// client as "no cache". REDIS_DB falls back to 0 when unparsable.
func OpenRedisFromEnv() *redis.Client {
	if os.Getenv("REDIS_ENABLED") != "true" {
		return nil
	}
	addr := envOr("REDIS_HOST", "127.0.0.1") + ":" + envOr("REDIS_PORT", "6379")
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, _ := strconv.Atoi(v); n >= 0 {
			db = n
		}
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASS"), DB: db})
}
