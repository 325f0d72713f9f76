package cdn

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
)

const cacheKeyPrefix = "klaviyo-webflow:script:"

// ScriptCache keeps version-injected script bodies in redis. Failures are
// logged and treated as misses.
type ScriptCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Entry
}

func NewScriptCache(client *redis.Client, ttl time.Duration) *ScriptCache {
	return &ScriptCache{client: client, ttl: ttl, log: logger.Component("cdn")}
}

// NewScriptCacheFromURL connects to redisURL (redis://host:port/db).
func NewScriptCacheFromURL(redisURL string, ttl time.Duration) (*ScriptCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return NewScriptCache(redis.NewClient(opts), ttl), nil
}

func cacheKey(version string) string { return cacheKeyPrefix + version }

// Get returns the cached body for version.
func (c *ScriptCache) Get(ctx context.Context, version string) ([]byte, bool) {
	body, err := c.client.Get(ctx, cacheKey(version)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("script cache read failed", "version", version, "error", err)
		}
		return nil, false
	}
	return body, true
}

// Set stores body for version.
func (c *ScriptCache) Set(ctx context.Context, version string, body []byte) {
	if err := c.client.Set(ctx, cacheKey(version), body, c.ttl).Err(); err != nil {
		c.log.Warn("script cache write failed", "version", version, "error", err)
	}
}

// Close releases the redis connection.
func (c *ScriptCache) Close() error { return c.client.Close() }
