package raster

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClaimStore hands out short-lived exclusive claims on a key. A Prober claims a URL
// before fetching it so sessions sharing one failing overlay do not all hit the server.
//
// Background: every open tab reports its own image error for the same overlay URL.
// Constraints: Claim reports false while another claim on key is live; Release drops a
// claim early so the next caller may fetch again.
type ClaimStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisClaims keeps claims as SETNX keys with an expiry.
type RedisClaims struct{ RC *redis.Client }

func (c RedisClaims) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.RC.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
}

func (c RedisClaims) Release(ctx context.Context, key string) error {
	return c.RC.Del(ctx, key).Err()
}
