package embed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a shared, cross-process embedding cache layered in front of
// a process-local CachedEmbedder's LRU, per config.CacheConfig's RedisAddr.
// Grounded on the teacher corpus's redis.NewClient usage for distributed
// caches (a request-rate limiter elsewhere in the corpus uses the same
// client shape for a different cache).
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache dials addr/db and returns a cache with the given entry TTL.
// A zero ttl means entries never expire.
func NewRedisCache(addr string, db int, ttl time.Duration) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	return &RedisCache{client: client, ttl: ttl, prefix: "mcbgo:embed:"}
}

// Get returns the cached vector for key, or (nil, false, nil) on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set stores vec under key.
func (c *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err()
}

// Close releases the underlying Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// TieredCachedEmbedder layers a process-local LRU (CachedEmbedder) in front
// of a shared RedisCache, falling through to inner on a double miss. A nil
// RedisCache makes this behave exactly like CachedEmbedder.
type TieredCachedEmbedder struct {
	*CachedEmbedder
	remote *RedisCache
}

// NewTieredCachedEmbedder wraps inner with an LRU of lruSize entries and,
// when remote is non-nil, a shared Redis-backed second tier.
func NewTieredCachedEmbedder(inner Embedder, lruSize int, remote *RedisCache) *TieredCachedEmbedder {
	return &TieredCachedEmbedder{
		CachedEmbedder: NewCachedEmbedder(inner, lruSize),
		remote:         remote,
	}
}

// Embed checks the LRU, then the remote cache, then computes via inner,
// populating both cache tiers on a miss.
func (t *TieredCachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if t.remote == nil {
		return t.CachedEmbedder.Embed(ctx, text)
	}

	key := t.cacheKey(text)
	if vec, ok := t.cache.Get(key); ok {
		return vec, nil
	}
	if vec, ok, err := t.remote.Get(ctx, key); err == nil && ok {
		t.cache.Add(key, vec)
		return vec, nil
	}

	vec, err := t.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	t.cache.Add(key, vec)
	_ = t.remote.Set(ctx, key, vec)
	return vec, nil
}
