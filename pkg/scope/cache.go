package scope

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/coopportal/coopsearch/pkg/auth"
	"github.com/coopportal/coopsearch/pkg/observability"
	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// nullMarker is stored in redis for a scope that resolved to no cooperative
const nullMarker = "-"

// CacheConfig configures a CachedResolver
type CacheConfig struct {
	Size      int
	TTL       time.Duration
	KeyPrefix string
}

// DefaultCacheConfig returns the default cache settings
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Size:      10000,
		TTL:       10 * time.Minute,
		KeyPrefix: "coopsearch:scope:",
	}
}

type entry struct {
	cooperativeID *string
}

// CachedResolver caches resolutions in an in-process LRU and, when a redis client is
// configured, in redis shared by every instance. Lookup errors are never cached.
type CachedResolver struct {
	next    Resolver
	l1      *lru.LRU[string, entry]
	redis   *redis.Client
	cfg     CacheConfig
	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

// NewCachedResolver wraps next. redis and metrics may be nil.
func NewCachedResolver(next Resolver, client *redis.Client, cfg CacheConfig, logger logrus.FieldLogger, metrics *observability.Metrics) *CachedResolver {
	defaults := DefaultCacheConfig()
	if cfg.Size <= 0 {
		cfg.Size = defaults.Size
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}

	return &CachedResolver{
		next:    next,
		l1:      lru.NewLRU[string, entry](cfg.Size, nil, cfg.TTL),
		redis:   client,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Resolve implements Resolver
func (c *CachedResolver) Resolve(ctx context.Context, ac auth.Context) (*string, error) {
	key := c.key(ac)

	if e, ok := c.l1.Get(key); ok {
		c.hit("l1")
		return e.cooperativeID, nil
	}
	c.miss("l1")

	if c.redis != nil {
		val, err := c.redis.Get(ctx, key).Result()
		switch {
		case err == nil:
			c.hit("l2")
			e := entry{}
			if val != nullMarker {
				e.cooperativeID = &val
			}
			c.l1.Add(key, e)
			return e.cooperativeID, nil
		case errors.Is(err, redis.Nil):
			c.miss("l2")
		default:
			c.logger.WithError(err).Warn("scope cache read failed, resolving from the store")
		}
	}

	id, err := c.next.Resolve(ctx, ac)
	if err != nil {
		return nil, err
	}

	c.l1.Add(key, entry{cooperativeID: id})
	if c.redis != nil {
		val := nullMarker
		if id != nil {
			val = *id
		}
		if err := c.redis.Set(ctx, key, val, c.cfg.TTL).Err(); err != nil {
			c.logger.WithError(err).Warn("scope cache write failed")
		}
	}
	return id, nil
}

// Invalidate drops a caller's cached resolution from both layers
func (c *CachedResolver) Invalidate(ctx context.Context, ac auth.Context) error {
	key := c.key(ac)
	c.l1.Remove(key)
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, key).Err()
}

// Len returns the number of in-process entries
func (c *CachedResolver) Len() int {
	return c.l1.Len()
}

// key includes the tenant because the fallback lookup depends on it. Both parts are
// always present and escaped, so exactly one unescaped ":" follows the prefix.
func (c *CachedResolver) key(ac auth.Context) string {
	return c.cfg.KeyPrefix + url.QueryEscape(ac.Tenant()) + ":" + url.QueryEscape(ac.User())
}

func (c *CachedResolver) hit(layer string) {
	if c.metrics != nil {
		c.metrics.ScopeCacheHitsTotal.WithLabelValues(layer).Inc()
	}
}

func (c *CachedResolver) miss(layer string) {
	if c.metrics != nil {
		c.metrics.ScopeCacheMissesTotal.WithLabelValues(layer).Inc()
	}
}
