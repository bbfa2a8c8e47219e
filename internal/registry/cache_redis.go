package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"consentire/internal/sentinel"
	"consentire/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

const redisControllerKeyPrefix = "registry:controller:"

// CacheMetrics tracks hit/miss counts for the controller cache.
type CacheMetrics struct {
	HitsTotal   prometheus.Counter
	MissesTotal prometheus.Counter
}

func NewCacheMetrics() *CacheMetrics {
	return &CacheMetrics{
		HitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentire_registry_cache_hits_total",
			Help: "Total number of controller cache hits",
		}),
		MissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentire_registry_cache_misses_total",
			Help: "Total number of controller cache misses",
		}),
	}
}

// RedisCache caches resolved controllers in Redis with TTL-based eviction.
// Controller identity is immutable, so stale entries can only differ in
// metadata and a short TTL is sufficient.
type RedisCache struct {
	client   *redis.Client
	cacheTTL time.Duration
	metrics  *CacheMetrics
}

// NewRedisCache constructs a Redis-backed controller cache. metrics may be nil.
func NewRedisCache(client *redis.Client, cacheTTL time.Duration, metrics *CacheMetrics) *RedisCache {
	return &RedisCache{
		client:   client,
		cacheTTL: cacheTTL,
		metrics:  metrics,
	}
}

// Find loads a cached controller by organization ID. Returns
// sentinel.ErrNotFound on cache miss.
func (c *RedisCache) Find(ctx context.Context, orgID domain.OrgID) (*ControllerRecord, error) {
	data, err := c.client.Get(ctx, controllerKey(orgID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.recordMiss()
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find controller cache: %w", err)
	}

	var rec ControllerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode controller cache: %w", err)
	}
	c.recordHit()
	return &rec, nil
}

// Save writes a controller record to Redis, overwriting any existing entry.
func (c *RedisCache) Save(ctx context.Context, rec *ControllerRecord) error {
	if rec == nil {
		return fmt.Errorf("controller record is required")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode controller cache: %w", err)
	}
	if err := c.client.Set(ctx, controllerKey(rec.OrgID), payload, c.cacheTTL).Err(); err != nil {
		return fmt.Errorf("save controller cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached entry for an organization, e.g. after a
// metadata update.
func (c *RedisCache) Invalidate(ctx context.Context, orgID domain.OrgID) error {
	if err := c.client.Del(ctx, controllerKey(orgID)).Err(); err != nil {
		return fmt.Errorf("invalidate controller cache: %w", err)
	}
	return nil
}

func (c *RedisCache) recordHit() {
	if c.metrics != nil {
		c.metrics.HitsTotal.Inc()
	}
}

func (c *RedisCache) recordMiss() {
	if c.metrics != nil {
		c.metrics.MissesTotal.Inc()
	}
}

func controllerKey(orgID domain.OrgID) string {
	return redisControllerKeyPrefix + orgID.String()
}
