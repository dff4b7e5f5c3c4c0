package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "tutor:diagram:"

// RedisDiagramCache keeps diagram URLs as plain string keys with a TTL.
type RedisDiagramCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisDiagramCache parses a redis:// URL, pings the server and returns the cache.
func NewRedisDiagramCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisDiagramCache, error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil, fmt.Errorf("missing REDIS_URL")
	}
	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	opt.DialTimeout = 5 * time.Second
	rdb := goredis.NewClient(opt)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisDiagramCacheFromClient(rdb, ttl), nil
}

func NewRedisDiagramCacheFromClient(rdb *goredis.Client, ttl time.Duration) *RedisDiagramCache {
	return &RedisDiagramCache{rdb: rdb, ttl: ttl}
}

// Get ignores maxAge: expiry is handled by the key TTL set in Put.
func (c *RedisDiagramCache) Get(ctx context.Context, key string, _ time.Duration) (string, error) {
	v, err := c.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (c *RedisDiagramCache) Put(ctx context.Context, key, url string) error {
	return c.rdb.Set(ctx, redisKeyPrefix+key, url, c.ttl).Err()
}

func (c *RedisDiagramCache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *RedisDiagramCache) Close() error { return c.rdb.Close() }
