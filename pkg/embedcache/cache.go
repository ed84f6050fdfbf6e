// Package embedcache caches embedding vectors by content hash so repeated
// content never pays for a second embedder round trip.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/adverant/nexus-memory/pkg/observability"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// Cache stores embedding vectors keyed by a hash of normalized content
// plus the embedding model that produced them.
type Cache struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	logger  observability.Logger
	metrics observability.MetricsClient
}

// New builds a Cache over an existing Redis client.
func New(client *redis.Client, prefix string, logger observability.Logger, metrics observability.MetricsClient) *Cache {
	if prefix == "" {
		prefix = "embed"
	}
	if logger == nil {
		logger = observability.NewLogger("embedcache")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &Cache{client: client, prefix: prefix, ttl: defaultTTL, logger: logger, metrics: metrics}
}

type entry struct {
	Vector []float32 `json:"vector"`
}

// Key returns the cache key for a piece of content under a model. Content
// is normalized (lowercased, whitespace collapsed, trimmed) before hashing
// so trivially different inputs share a cache entry.
func Key(content, model string) string {
	normalized := normalize(content)
	sum := sha256.Sum256([]byte(normalized + "|" + model))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}

func (c *Cache) redisKey(hash string) string {
	return c.prefix + ":" + hash
}

// Get returns the cached vector for content/model, or ok=false on a miss.
func (c *Cache) Get(ctx context.Context, content, model string) ([]float32, bool) {
	hash := Key(content, model)
	data, err := c.client.Get(ctx, c.redisKey(hash)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("embedcache get failed", map[string]interface{}{"error": err.Error()})
		}
		c.metrics.IncrementCounter("embedcache.miss", 1)
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn("embedcache entry corrupt", map[string]interface{}{"error": err.Error()})
		c.metrics.IncrementCounter("embedcache.miss", 1)
		return nil, false
	}
	c.metrics.IncrementCounter("embedcache.hit", 1)
	return e.Vector, true
}

// Set stores vector for content/model. The write is fire-and-forget: it
// runs in a goroutine so a slow or unavailable cache never blocks the
// store path, and any failure is only logged.
func (c *Cache) Set(content, model string, vector []float32) {
	hash := Key(content, model)
	data, err := json.Marshal(entry{Vector: vector})
	if err != nil {
		c.logger.Warn("embedcache marshal failed", map[string]interface{}{"error": err.Error()})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.client.Set(ctx, c.redisKey(hash), data, c.ttl).Err(); err != nil {
			c.logger.Warn("embedcache set failed", map[string]interface{}{"error": err.Error()})
			c.metrics.IncrementCounter("embedcache.write_failure", 1)
		}
	}()
}
