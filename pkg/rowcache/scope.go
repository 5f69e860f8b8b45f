package rowcache

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

type contextKey int

const cacheKey contextKey = iota

// Provider returns the cache owned by one search session.
type Provider func(sessionID string) Cache

// MemoryProvider gives every session its own in-process cache.
func MemoryProvider() Provider {
	return func(string) Cache {
		return NewMemory()
	}
}

// RedisProvider gives every session its own set of hashes under prefix.
func RedisProvider(rdb *redis.Client, prefix string, logger ectologger.Logger) Provider {
	base := NewRedis(rdb, prefix, logger)
	return func(sessionID string) Cache {
		return base.Scoped(sessionID)
	}
}

// Scoped returns a cache whose keys live under the session's namespace.
func (r *Redis) Scoped(sessionID string) *Redis {
	return &Redis{rdb: r.rdb, prefix: r.prefix + ":session:" + sessionID, logger: r.logger}
}

// WithCache attaches the cache that rows fetched under ctx belong to.
func WithCache(ctx context.Context, cache Cache) context.Context {
	return context.WithValue(ctx, cacheKey, cache)
}

// FromContext returns the cache attached by WithCache.
func FromContext(ctx context.Context) (Cache, bool) {
	cache, ok := ctx.Value(cacheKey).(Cache)
	return cache, ok && cache != nil
}
