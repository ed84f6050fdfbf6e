package storeclients

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/observability"
)

// RedisRecentCache is the fast key-value store backing storage.Engine's
// RecentCache requirement: a TTL'd marker per memory plus a bounded,
// most-recent-first list per tenant.
type RedisRecentCache struct {
	client  *redis.Client
	prefix  string
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewRedisRecentCache wraps an existing Redis client.
func NewRedisRecentCache(client *redis.Client, prefix string, logger observability.Logger, metrics observability.MetricsClient) *RedisRecentCache {
	if prefix == "" {
		prefix = "recent"
	}
	if logger == nil {
		logger = observability.NewLogger("storeclients.rediscache")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &RedisRecentCache{client: client, prefix: prefix, logger: logger, metrics: metrics}
}

func (r *RedisRecentCache) memberKey(tenant memmodel.TenantContext) string {
	return r.prefix + ":recent:" + tenant.Key()
}

func (r *RedisRecentCache) markerKey(tenant memmodel.TenantContext, id string) string {
	return r.prefix + ":memory:" + tenant.Key() + ":" + id
}

// Remember sets a TTL'd existence marker for id and pushes it to the
// front of the tenant's recent-memories list, trimmed to maxRecent.
func (r *RedisRecentCache) Remember(ctx context.Context, tenant memmodel.TenantContext, id string, ttl time.Duration, maxRecent int) error {
	if err := r.client.Set(ctx, r.markerKey(tenant, id), "1", ttl).Err(); err != nil {
		r.metrics.IncrementCounter("storeclients_rediscache_set_errors", 1)
		return fmt.Errorf("redis set: %w", err)
	}

	listKey := r.memberKey(tenant)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, listKey, id)
	pipe.LTrim(ctx, listKey, 0, int64(maxRecent-1))
	pipe.Expire(ctx, listKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.metrics.IncrementCounter("storeclients_rediscache_list_errors", 1)
		return fmt.Errorf("redis recent-list update: %w", err)
	}
	return nil
}
