// Package episode implements the Episode Store: tenant-scoped episode
// writes with entity/fact extraction, temporal and causal edge creation,
// embedding-failure degradation, and a background consolidation sweep.
package episode

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus-memory/pkg/embedcache"
	"github.com/adverant/nexus-memory/pkg/embedpipeline"
	"github.com/adverant/nexus-memory/pkg/extractor"
	"github.com/adverant/nexus-memory/pkg/memerr"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/observability"
	"github.com/adverant/nexus-memory/pkg/resolver"
	"github.com/adverant/nexus-memory/pkg/rollback"
	"github.com/adverant/nexus-memory/pkg/saga"
	"github.com/adverant/nexus-memory/pkg/storage"
)

// RelationalStore is the system of record for episodes.
type RelationalStore interface {
	rollback.Handler
	Insert(ctx context.Context, ep memmodel.Episode) error
	FindByHash(ctx context.Context, tenant memmodel.TenantContext, hash string) (*memmodel.Episode, bool, error)
	// FindMostRecentNonConsolidated returns the latest episode in scope
	// with Timestamp < before, for TEMPORAL edge creation.
	FindMostRecentNonConsolidated(ctx context.Context, tenant memmodel.TenantContext, before time.Time) (*memmodel.Episode, bool, error)
	// FindByInteraction locates the user_query episode paired with a
	// system_response sharing the same interaction id.
	FindByInteraction(ctx context.Context, tenant memmodel.TenantContext, interactionID string, t memmodel.EpisodeType) (*memmodel.Episode, bool, error)
	// ListForConsolidation returns non-consolidated episodes whose decayed
	// importance has fallen below threshold as of now.
	ListForConsolidation(ctx context.Context, tenant memmodel.TenantContext, threshold float64, now time.Time) ([]memmodel.Episode, error)
	// MarkConsolidated flags ids consolidated and records the summary id
	// they were folded into.
	MarkConsolidated(ctx context.Context, tenant memmodel.TenantContext, ids []string, summaryID string) error
}

// EntityStore resolves and persists extracted entities.
type EntityStore interface {
	ListByTenant(ctx context.Context, tenant memmodel.TenantContext) ([]*memmodel.ExtractedEntity, error)
	Upsert(ctx context.Context, tenant memmodel.TenantContext, entity *memmodel.ExtractedEntity) error
}

// FactStore persists extracted facts tied to a source episode.
type FactStore interface {
	Insert(ctx context.Context, tenant memmodel.TenantContext, fact memmodel.ExtractedFact) error
}

// GraphStore is the property graph backing episode-to-episode and
// episode-to-entity edges. It reuses storage.GraphStore's node/compensate
// contract and adds the edge operations specific to episodes.
type GraphStore interface {
	storage.GraphStore
	CreateEdge(ctx context.Context, tenant memmodel.TenantContext, edge memmodel.Edge) error
	LinkMention(ctx context.Context, tenant memmodel.TenantContext, episodeID, entityID string) error
}

// consolidationThreshold is the decayed-importance cutoff below which an
// episode becomes eligible for the consolidation sweep.
const consolidationThreshold = 0.1

// groupingWindow is the largest timestamp gap between adjacent episodes
// of the same type that still keeps them in one consolidation group.
// Episodes of different types are not grouped together.
const groupingWindow = 12 * time.Hour

// minGroupSize is the minimum number of episodes a consolidation group
// must contain before a summary episode is produced.
const minGroupSize = 2

// Engine orchestrates the Episode Store's write path and consolidation.
type Engine struct {
	relational RelationalStore
	vector     storage.VectorStore
	graph      GraphStore
	entities   EntityStore
	facts      FactStore
	extractor  *extractor.Extractor
	resolver   *resolver.Resolver
	embedder   *embedpipeline.Pipeline
	embedCache *embedcache.Cache
	model      string

	coordinator *saga.Coordinator
	logger      observability.Logger
	metrics     observability.MetricsClient
}

// New builds an Engine.
func New(
	relational RelationalStore,
	vector storage.VectorStore,
	graph GraphStore,
	entities EntityStore,
	facts FactStore,
	ext *extractor.Extractor,
	res *resolver.Resolver,
	embedder *embedpipeline.Pipeline,
	embedCache *embedcache.Cache,
	model string,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *Engine {
	if logger == nil {
		logger = observability.NewLogger("episode")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &Engine{
		relational:  relational,
		vector:      vector,
		graph:       graph,
		entities:    entities,
		facts:       facts,
		extractor:   ext,
		resolver:    res,
		embedder:    embedder,
		embedCache:  embedCache,
		model:       model,
		coordinator: saga.New(logger, metrics),
		logger:      logger,
		metrics:     metrics,
	}
}

// WriteRequest is the input to Store.
type WriteRequest struct {
	Tenant        memmodel.TenantContext
	Type          memmodel.EpisodeType
	Content       string
	Importance    float64
	InteractionID string
	Metadata      map[string]any
}

// WriteResult is the outcome of Store.
type WriteResult struct {
	ID           string
	Duplicate    bool
	HasEmbedding bool
	EntityCount  int
	FactCount    int
	EdgeCount    int
	SagaID       string
}

// Store validates, dedups, extracts, and saga-writes one episode.
func (e *Engine) Store(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	normalized, err := storage.NormalizeContent(req.Content)
	if err != nil {
		return nil, err
	}
	hash := storage.ContentHash(normalized)

	if existing, ok, err := e.relational.FindByHash(ctx, req.Tenant, hash); err == nil && ok {
		return &WriteResult{ID: existing.ID, Duplicate: true}, nil
	}

	now := time.Now()
	id := uuid.NewString()
	decayRate := memmodel.DeriveDecayRate(req.Importance)

	entities, facts := e.extractAndLink(ctx, req.Tenant, id, normalized, now)

	ep := memmodel.Episode{
		MemoryItem: memmodel.MemoryItem{
			ID:         id,
			Content:    normalized,
			Timestamp:  now,
			Importance: req.Importance,
			Metadata:   req.Metadata,
			Tenant:     req.Tenant,
		},
		Type:           req.Type,
		ContentHash:    hash,
		DecayRate:      decayRate,
		InteractionID:  req.InteractionID,
		LastAccessedAt: now,
		Entities:       entities,
		Facts:          facts,
	}

	edgeCount := 0
	steps := e.writeSteps(ctx, req.Tenant, &ep, normalized, &edgeCount)
	result := e.coordinator.Run(ctx, steps)
	if !result.Success {
		return nil, result.Error
	}

	return &WriteResult{
		ID:           id,
		HasEmbedding: ep.HasEmbedding,
		EntityCount:  len(entities),
		FactCount:    len(facts),
		EdgeCount:    edgeCount,
		SagaID:       result.SagaID,
	}, nil
}

// extractAndLink runs entity/fact extraction and persists both against
// the graph sequentially: the graph client is not session-safe for
// parallel writes on one session. An entity or fact whose store call
// fails is logged and left out rather than aborting the write.
func (e *Engine) extractAndLink(ctx context.Context, tenant memmodel.TenantContext, episodeID, content string, now time.Time) ([]memmodel.ExtractedEntity, []memmodel.ExtractedFact) {
	if e.extractor == nil {
		return nil, nil
	}
	rawEntities, facts := e.extractor.Extract(ctx, content, now)

	existing, err := e.entities.ListByTenant(ctx, tenant)
	if err != nil {
		e.logger.Warn("entity lookup failed, persisting as new entities", map[string]interface{}{"error": err.Error()})
		existing = nil
	}

	resolved := make([]memmodel.ExtractedEntity, 0, len(rawEntities))
	for _, candidate := range rawEntities {
		matches := e.resolver.Resolve(ctx, candidate.Name, existing, resolver.AutoMergeThreshold)
		target := candidate
		if len(matches) > 0 && matches[0].Entity != nil {
			resolver.Merge(matches[0].Entity, candidate.Name, candidate.Salience)
			target = *matches[0].Entity
		} else if target.ID == "" {
			target.ID = uuid.NewString()
		}
		if err := e.entities.Upsert(ctx, tenant, &target); err != nil {
			e.logger.Warn("entity upsert failed", map[string]interface{}{"error": err.Error(), "entity": target.Name})
			continue
		}
		if err := e.graph.LinkMention(ctx, tenant, episodeID, target.ID); err != nil {
			e.logger.Warn("mention link failed", map[string]interface{}{"error": err.Error()})
		}
		resolved = append(resolved, target)
	}

	persisted := make([]memmodel.ExtractedFact, 0, len(facts))
	for _, fact := range facts {
		if fact.ID == "" {
			fact.ID = uuid.NewString()
		}
		fact.SourceEpisodeID = episodeID
		fact.ExtractedAt = now
		fact.IsValid = true
		if err := e.facts.Insert(ctx, tenant, fact); err != nil {
			e.logger.Warn("fact insert failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		persisted = append(persisted, fact)
	}

	return resolved, persisted
}

// writeSteps builds the saga for one episode: embedding (degrades on
// memerr-typed failure rather than aborting), relational insert, vector
// upsert, and graph node insert plus TEMPORAL/CAUSAL edges.
func (e *Engine) writeSteps(ctx context.Context, tenant memmodel.TenantContext, ep *memmodel.Episode, contentForEmbedding string, edgeCount *int) []saga.Step {
	var vec []float32
	var steps []saga.Step

	steps = append(steps, saga.Step{
		Name:    "embedding",
		Timeout: 35 * time.Second,
		Execute: func(ctx context.Context) (any, error) {
			if cached, ok := e.embedCache.Get(ctx, contentForEmbedding, e.model); ok {
				vec = cached
				ep.HasEmbedding = true
				return map[string]any{"id": ep.ID, "source": "cache"}, nil
			}
			embedded, err := e.embedder.Embed(ctx, contentForEmbedding)
			if err != nil {
				if kind, ok := memerr.KindOf(err); ok && kind == memerr.KindEmbeddingUnavailable {
					ep.HasEmbedding = false
					return map[string]any{"id": ep.ID, "degraded": true}, nil
				}
				return nil, err
			}
			e.embedCache.Set(contentForEmbedding, e.model, embedded)
			vec = embedded
			ep.HasEmbedding = true
			return map[string]any{"id": ep.ID, "source": "embedder"}, nil
		},
	})

	steps = append(steps, saga.Step{
		Name:       "relational_insert",
		Timeout:    10 * time.Second,
		Idempotent: true,
		Execute: func(ctx context.Context) (any, error) {
			if err := e.relational.Insert(ctx, *ep); err != nil {
				return nil, err
			}
			return map[string]any{"id": ep.ID}, nil
		},
		Compensate: func(ctx context.Context) error {
			result := e.relational.Delete(ctx, tenant, []string{ep.ID})
			return result.Error
		},
	})

	steps = append(steps, saga.Step{
		Name:    "vector_upsert",
		Timeout: 10 * time.Second,
		Execute: func(ctx context.Context) (any, error) {
			if !ep.HasEmbedding || vec == nil {
				return map[string]any{"skipped": true}, nil
			}
			record := memmodel.VectorRecord{
				PointID:     ep.ID,
				Vector:      vec,
				Content:     contentForEmbedding,
				ContentType: memmodel.ContentMemory,
				Tenant:      tenant,
				Metadata:    ep.Metadata,
			}
			if err := e.vector.Upsert(ctx, record); err != nil {
				return nil, err
			}
			return map[string]any{"id": ep.ID}, nil
		},
		Compensate: func(ctx context.Context) error {
			result := e.vector.Delete(ctx, tenant, []string{ep.ID})
			return result.Error
		},
	})

	steps = append(steps, saga.Step{
		Name:    "graph_node_and_edges",
		Timeout: 10 * time.Second,
		Execute: func(ctx context.Context) (any, error) {
			if err := e.graph.CreateNode(ctx, tenant, ep.ID, map[string]any{"type": string(ep.Type), "content_hash": ep.ContentHash}); err != nil {
				return nil, err
			}
			created, err := e.linkTemporal(ctx, tenant, ep)
			if err != nil {
				e.logger.Warn("temporal edge failed", map[string]interface{}{"error": err.Error()})
			} else if created {
				*edgeCount++
			}
			created, err = e.linkCausal(ctx, tenant, ep)
			if err != nil {
				e.logger.Warn("causal edge failed", map[string]interface{}{"error": err.Error()})
			} else if created {
				*edgeCount++
			}
			return map[string]any{"id": ep.ID}, nil
		},
		Compensate: func(ctx context.Context) error {
			result := e.graph.Delete(ctx, tenant, []string{ep.ID})
			return result.Error
		},
	})

	return steps
}

// linkTemporal connects ep to the most recent prior non-consolidated
// episode in the same tenant/user-or-system scope.
func (e *Engine) linkTemporal(ctx context.Context, tenant memmodel.TenantContext, ep *memmodel.Episode) (bool, error) {
	prior, ok, err := e.relational.FindMostRecentNonConsolidated(ctx, tenant, ep.Timestamp)
	if err != nil || !ok {
		return false, err
	}
	if err := e.graph.CreateEdge(ctx, tenant, memmodel.Edge{
		ID:              uuid.NewString(),
		SourceEpisodeID: prior.ID,
		TargetEpisodeID: ep.ID,
		Type:            memmodel.EdgeTemporal,
		Weight:          1.0,
		CreatedAt:       ep.Timestamp,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// linkCausal connects a system_response episode back to the user_query
// that shares its interaction id.
func (e *Engine) linkCausal(ctx context.Context, tenant memmodel.TenantContext, ep *memmodel.Episode) (bool, error) {
	if ep.Type != memmodel.EpisodeSystemResponse || ep.InteractionID == "" {
		return false, nil
	}
	query, ok, err := e.relational.FindByInteraction(ctx, tenant, ep.InteractionID, memmodel.EpisodeUserQuery)
	if err != nil || !ok {
		return false, err
	}
	if err := e.graph.CreateEdge(ctx, tenant, memmodel.Edge{
		ID:              uuid.NewString(),
		SourceEpisodeID: query.ID,
		TargetEpisodeID: ep.ID,
		Type:            memmodel.EdgeCausal,
		Weight:          0.9,
		CreatedAt:       ep.Timestamp,
	}); err != nil {
		return false, err
	}
	return true, nil
}
