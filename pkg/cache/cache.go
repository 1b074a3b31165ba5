// Package cache memoizes expensive holder reconstructions in Redis. The
// cache is strictly best-effort: a miss or a Redis outage falls through to a
// fresh computation and never fails a request.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/redis/go-redis/v9"
	"github.com/vaultscan/holderx/pkg/utils"
	"go.uber.org/zap"
)

// DefaultTTL bounds staleness of cached holder sets. Historical blocks never
// change, so the TTL only bounds memory, not correctness.
const DefaultTTL = 60 * time.Second

// Client wraps Redis for response memoization.
type Client struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewClient creates a Redis-backed cache from environment variables:
//   - REDIS_ENABLED: set to "true" to enable the cache (default: "false")
//   - REDIS_HOST: Redis host (default: "localhost")
//   - REDIS_PORT: Redis port (default: "6379")
//   - REDIS_PASSWORD: Redis password (default: "")
//   - REDIS_DB: Redis database number (default: "0")
//   - CACHE_TTL: entry lifetime (default: "60s")
//
// Returns (nil, nil) when the cache is disabled; a nil *Client is a valid
// no-op cache.
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	if utils.Env("REDIS_ENABLED", "false") != "true" {
		logger.Info("response cache disabled")
		return nil, nil
	}

	addr := fmt.Sprintf("%s:%s", utils.Env("REDIS_HOST", "localhost"), utils.Env("REDIS_PORT", "6379"))
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: utils.Env("REDIS_PASSWORD", ""),
		DB:       utils.EnvInt("REDIS_DB", 0),

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to Redis at %s: %w", addr, err)
	}

	ttl := utils.EnvDuration("CACHE_TTL", DefaultTTL)
	logger.Info("response cache connected", zap.String("addr", addr), zap.Duration("ttl", ttl))
	return &Client{client: rdb, logger: logger, ttl: ttl}, nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Health checks the Redis connection.
func (c *Client) Health(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// GetJSON loads the cached value for key into out. Returns false on a miss,
// a malformed entry, or any Redis failure.
func (c *Client) GetJSON(ctx context.Context, key string, out any) bool {
	if c == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("cache entry malformed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// SetJSON stores value under key with the configured TTL. Failures are
// logged and swallowed.
func (c *Client) SetJSON(ctx context.Context, key string, value any) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
