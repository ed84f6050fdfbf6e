// Package storage implements the Unified Storage Engine: it validates
// and chunks incoming content, then drives a saga across the
// relational, vector, and graph backing stores with embedding caching
// and compensating rollback.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus-memory/pkg/embedcache"
	"github.com/adverant/nexus-memory/pkg/embedpipeline"
	"github.com/adverant/nexus-memory/pkg/memerr"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/observability"
	"github.com/adverant/nexus-memory/pkg/rollback"
	"github.com/adverant/nexus-memory/pkg/saga"
)

// RelationalStore is the primary system of record for a memory item.
type RelationalStore interface {
	rollback.Handler
	Insert(ctx context.Context, item memmodel.MemoryItem) error
	FindByHash(ctx context.Context, tenant memmodel.TenantContext, hash string) (*memmodel.MemoryItem, bool, error)
	FindByIdempotencyKey(ctx context.Context, tenant memmodel.TenantContext, key string) (*memmodel.MemoryItem, bool, error)
}

// VectorStore is the vector index backing similarity search.
type VectorStore interface {
	rollback.Handler
	Upsert(ctx context.Context, record memmodel.VectorRecord) error
	FindSimilar(ctx context.Context, tenant memmodel.TenantContext, vector []float32, minScore float64, limit int) ([]memmodel.VectorRecord, error)
}

// GraphStore is the property graph backing entity/edge traversal. A nil
// GraphStore disables the graph step entirely (spec: "only if graph
// store available").
type GraphStore interface {
	rollback.Handler
	CreateNode(ctx context.Context, tenant memmodel.TenantContext, id string, properties map[string]any) error
	LinkSimilar(ctx context.Context, tenant memmodel.TenantContext, fromID, toID string, weight float64) error
}

// RecentCache is the fast key-value store holding a per-tenant bounded
// recent-memories list alongside a 24h cache entry per memory.
type RecentCache interface {
	Remember(ctx context.Context, tenant memmodel.TenantContext, id string, ttl time.Duration, maxRecent int) error
}

// similarLinkThreshold is the minimum vector similarity at which two
// memories are linked by a SIMILAR_TO graph edge.
const similarLinkThreshold = 0.7

// recentMemoriesLimit bounds the per-tenant recent-memories list.
const recentMemoriesLimit = 1000

// fastCacheTTL is how long a stored memory stays in the fast cache.
const fastCacheTTL = 24 * time.Hour

// Engine orchestrates the Unified Storage Engine's write path.
type Engine struct {
	relational RelationalStore
	vector     VectorStore
	graph      GraphStore
	cache      RecentCache
	embedder   *embedpipeline.Pipeline
	embedCache *embedcache.Cache
	model      string
	coordinator *saga.Coordinator
	logger     observability.Logger
	metrics    observability.MetricsClient
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithGraphStore attaches a graph store; omit to run without one.
func WithGraphStore(g GraphStore) Option {
	return func(e *Engine) { e.graph = g }
}

// WithRecentCache attaches the fast-cache/recent-memories tracker.
func WithRecentCache(c RecentCache) Option {
	return func(e *Engine) { e.cache = c }
}

// New builds an Engine.
func New(relational RelationalStore, vector VectorStore, embedder *embedpipeline.Pipeline, embedCache *embedcache.Cache, model string, logger observability.Logger, metrics observability.MetricsClient, opts ...Option) *Engine {
	if logger == nil {
		logger = observability.NewLogger("storage")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	e := &Engine{
		relational:  relational,
		vector:      vector,
		embedder:    embedder,
		embedCache:  embedCache,
		model:       model,
		coordinator: saga.New(logger, metrics),
		logger:      logger,
		metrics:     metrics,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WriteRequest is the input to Store.
type WriteRequest struct {
	Tenant         memmodel.TenantContext
	Content        string
	Tags           []string
	Importance     float64
	Metadata       map[string]any
	IdempotencyKey string
}

// WriteResult is the outcome of Store.
type WriteResult struct {
	ID          string
	Duplicate   bool
	HasEmbedding bool
	ChunkCount  int
	SagaID      string
}

// Store validates, hashes, optionally chunks, and saga-writes content
// across the relational, vector, and (if configured) graph stores.
func (e *Engine) Store(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	if req.IdempotencyKey != "" {
		if existing, ok, err := e.relational.FindByIdempotencyKey(ctx, req.Tenant, req.IdempotencyKey); err == nil && ok {
			return &WriteResult{ID: existing.ID, Duplicate: true}, nil
		}
	}

	normalized, err := NormalizeContent(req.Content)
	if err != nil {
		return nil, err
	}
	hash := ContentHash(normalized)

	meta := make(map[string]any, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta["content_hash"] = hash
	if req.IdempotencyKey != "" {
		meta["idempotency_key"] = req.IdempotencyKey
	}
	req.Metadata = meta

	if existing, ok, err := e.relational.FindByHash(ctx, req.Tenant, hash); err == nil && ok {
		return &WriteResult{ID: existing.ID, Duplicate: true}, nil
	}

	if estimateTokens(normalized) <= SingleMemoryTokenLimit {
		return e.storeSingle(ctx, req, normalized, hash)
	}
	return e.storeChunked(ctx, req, normalized, hash)
}

func (e *Engine) storeSingle(ctx context.Context, req WriteRequest, normalized, hash string) (*WriteResult, error) {
	id := uuid.NewString()
	item := memmodel.MemoryItem{
		ID:         id,
		Content:    normalized,
		Tags:       req.Tags,
		Timestamp:  timeNow(),
		Importance: req.Importance,
		Metadata:   req.Metadata,
		Tenant:     req.Tenant,
	}

	steps := e.writeSteps(ctx, req.Tenant, &item, hash, normalized)
	result := e.coordinator.Run(ctx, steps)
	if !result.Success {
		return nil, result.Error
	}

	if e.cache != nil {
		if err := e.cache.Remember(ctx, req.Tenant, id, fastCacheTTL, recentMemoriesLimit); err != nil {
			e.logger.Warn("recent cache remember failed", map[string]interface{}{"error": err.Error()})
		}
	}

	return &WriteResult{ID: id, HasEmbedding: item.HasEmbedding, ChunkCount: 1, SagaID: result.SagaID}, nil
}

func (e *Engine) storeChunked(ctx context.Context, req WriteRequest, normalized, hash string) (*WriteResult, error) {
	chunks := splitIntoChunks(normalized)
	docID := uuid.NewString()
	var lastSagaID string

	for _, chunk := range chunks {
		id := fmt.Sprintf("%s_chunk_%d", docID, chunk.Index)
		item := memmodel.MemoryItem{
			ID:         id,
			Content:    chunk.Content,
			Tags:       req.Tags,
			Timestamp:  timeNow(),
			Importance: req.Importance,
			Metadata:   mergeChunkMetadata(req.Metadata, chunk, docID),
			Tenant:     req.Tenant,
		}

		steps := e.writeSteps(ctx, req.Tenant, &item, hash, chunk.Content)
		result := e.coordinator.Run(ctx, steps)
		if !result.Success {
			return nil, result.Error
		}
		lastSagaID = result.SagaID

		if e.cache != nil {
			if err := e.cache.Remember(ctx, req.Tenant, id, fastCacheTTL, recentMemoriesLimit); err != nil {
				e.logger.Warn("recent cache remember failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	return &WriteResult{ID: docID, ChunkCount: len(chunks), SagaID: lastSagaID}, nil
}

func mergeChunkMetadata(base map[string]any, chunk Chunk, docID string) map[string]any {
	out := make(map[string]any, len(base)+4)
	for k, v := range base {
		out[k] = v
	}
	out["document_id"] = docID
	out["chunk_index"] = chunk.Index
	out["start_char"] = chunk.Start
	out["end_char"] = chunk.End
	return out
}

// writeSteps builds the ordered saga steps for one memory/chunk write:
// embedding, relational insert, vector upsert, graph node. A typed
// (memerr) embedding failure degrades the write to one without a vector
// instead of failing the saga.
func (e *Engine) writeSteps(ctx context.Context, tenant memmodel.TenantContext, item *memmodel.MemoryItem, hash, contentForEmbedding string) []saga.Step {
	var vec []float32
	var steps []saga.Step

	steps = append(steps, saga.Step{
		Name:    "embedding",
		Timeout: 35 * time.Second,
		Execute: func(ctx context.Context) (any, error) {
			if cached, ok := e.embedCache.Get(ctx, contentForEmbedding, e.model); ok {
				vec = cached
				item.HasEmbedding = true
				return map[string]any{"id": item.ID, "source": "cache"}, nil
			}
			embedded, err := e.embedder.Embed(ctx, contentForEmbedding)
			if err != nil {
				if _, isMemErr := memerr.KindOf(err); isMemErr {
					item.HasEmbedding = false
					return map[string]any{"id": item.ID, "degraded": true}, nil
				}
				return nil, err
			}
			e.embedCache.Set(contentForEmbedding, e.model, embedded)
			vec = embedded
			item.HasEmbedding = true
			return map[string]any{"id": item.ID, "source": "embedder"}, nil
		},
	})

	steps = append(steps, saga.Step{
		Name:    "relational_insert",
		Timeout: 10 * time.Second,
		Idempotent: true,
		Execute: func(ctx context.Context) (any, error) {
			if err := e.relational.Insert(ctx, *item); err != nil {
				return nil, err
			}
			return map[string]any{"id": item.ID}, nil
		},
		Compensate: func(ctx context.Context) error {
			result := e.relational.Delete(ctx, tenant, []string{item.ID})
			return result.Error
		},
	})

	steps = append(steps, saga.Step{
		Name:    "vector_upsert",
		Timeout: 10 * time.Second,
		Execute: func(ctx context.Context) (any, error) {
			if !item.HasEmbedding || vec == nil {
				return map[string]any{"skipped": true}, nil
			}
			record := memmodel.VectorRecord{
				PointID:     item.ID,
				Vector:      vec,
				Content:     contentForEmbedding,
				ContentType: memmodel.ContentMemory,
				Tenant:      tenant,
				Metadata:    item.Metadata,
			}
			if err := e.vector.Upsert(ctx, record); err != nil {
				return nil, err
			}
			return map[string]any{"id": item.ID}, nil
		},
		Compensate: func(ctx context.Context) error {
			result := e.vector.Delete(ctx, tenant, []string{item.ID})
			return result.Error
		},
	})

	if e.graph != nil {
		steps = append(steps, saga.Step{
			Name:    "graph_node_insert",
			Timeout: 10 * time.Second,
			Execute: func(ctx context.Context) (any, error) {
				if err := e.graph.CreateNode(ctx, tenant, item.ID, map[string]any{"content_hash": hash}); err != nil {
					return nil, err
				}
				if item.HasEmbedding && vec != nil {
					similar, err := e.vector.FindSimilar(ctx, tenant, vec, similarLinkThreshold, 5)
					if err == nil {
						for _, s := range similar {
							if s.PointID == item.ID {
								continue
							}
							if linkErr := e.graph.LinkSimilar(ctx, tenant, item.ID, s.PointID, similarLinkThreshold); linkErr != nil {
								e.logger.Warn("similar_to link failed", map[string]interface{}{"error": linkErr.Error()})
							}
						}
					}
				}
				return map[string]any{"id": item.ID}, nil
			},
			Compensate: func(ctx context.Context) error {
				result := e.graph.Delete(ctx, tenant, []string{item.ID})
				return result.Error
			},
		})
	}

	return steps
}

func timeNow() time.Time { return time.Now() }
