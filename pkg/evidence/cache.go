package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Trindade2023/trindade-protocol/pkg/contracts"
)

// Cache is the subset of a redis client the cached oracle needs.
// *redis.Client satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// NewRedisCache dials a redis server for evidence caching.
func NewRedisCache(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// CachedOracle memoizes another oracle's fetches in redis. Misses and redis
// failures fall through to the wrapped oracle; triangulation is never cached.
type CachedOracle struct {
	name   string
	inner  Oracle
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedOracle wraps inner. name namespaces the cache keys.
func NewCachedOracle(name string, inner Oracle, cache Cache, ttl time.Duration) *CachedOracle {
	return &CachedOracle{
		name:   name,
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: slog.Default().With("component", "evidence-cache"),
	}
}

func (c *CachedOracle) key(query string, tier contracts.EvidenceTier) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("seasa:evidence:%s:%s:%s", c.name, tier, hex.EncodeToString(sum[:]))
}

// Fetch implements Oracle.
func (c *CachedOracle) Fetch(ctx context.Context, query string, tier contracts.EvidenceTier) (*contracts.Datum, error) {
	key := c.key(query, tier)

	raw, err := c.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		var d contracts.Datum
		if jerr := json.Unmarshal([]byte(raw), &d); jerr == nil {
			return &d, nil
		}
		c.logger.Warn("discarding corrupt cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Debug("evidence cache read failed", "key", key, "error", err)
	}

	d, err := c.inner.Fetch(ctx, query, tier)
	if err != nil || d == nil {
		return d, err
	}
	if payload, jerr := json.Marshal(d); jerr == nil {
		if serr := c.cache.Set(ctx, key, payload, c.ttl).Err(); serr != nil {
			c.logger.Debug("evidence cache write failed", "key", key, "error", serr)
		}
	}
	return d, nil
}

// Triangulate implements Oracle.
func (c *CachedOracle) Triangulate(ctx context.Context, d *contracts.Datum) bool {
	return c.inner.Triangulate(ctx, d)
}
