package reports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nta-library/library-service/pkg/logger"
)

// DefaultCacheTTL is how long a dashboard snapshot stays fresh.
const DefaultCacheTTL = time.Hour

const dashboardCacheKey = "library:reports:dashboard"

// Cache stores dashboard snapshots in Redis. All failures degrade to a cache
// miss; the dashboard is recomputed from the store.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewCache constructs a Redis-backed cache. A zero ttl falls back to
// DefaultCacheTTL.
func NewCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = logger.NewDefault("reports-cache")
	}
	return &Cache{client: client, ttl: ttl, log: log}
}

// GetDashboard returns a cached snapshot if one exists.
func (c *Cache) GetDashboard(ctx context.Context) (Dashboard, bool) {
	raw, err := c.client.Get(ctx, dashboardCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Warn("dashboard cache read failed")
		}
		return Dashboard{}, false
	}
	var dash Dashboard
	if err := json.Unmarshal(raw, &dash); err != nil {
		c.log.WithError(err).Warn("dashboard cache decode failed")
		return Dashboard{}, false
	}
	return dash, true
}

// PutDashboard stores a snapshot with the configured TTL.
func (c *Cache) PutDashboard(ctx context.Context, dash Dashboard) {
	raw, err := json.Marshal(dash)
	if err != nil {
		c.log.WithError(err).Warn("dashboard cache encode failed")
		return
	}
	if err := c.client.Set(ctx, dashboardCacheKey, raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("dashboard cache write failed")
	}
}

// Invalidate drops the cached snapshot.
func (c *Cache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, dashboardCacheKey).Err(); err != nil {
		c.log.WithError(err).Warn("dashboard cache invalidation failed")
	}
}
