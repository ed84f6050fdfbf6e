// Package memory is the Storage API facade: the single surface a caller
// composes against, wiring the Unified Storage Engine, the Episode
// Store, the Recall Engine, and the consolidation sweep behind the
// operations described for callers (storeMemory, storeEpisode,
// recallEpisodes, recallMemories, getMemoryById, getEpisodeById,
// listMemories, mergeEntities, validateFact, consolidateMemories,
// getMemoryStats).
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus-memory/pkg/episode"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/observability"
	"github.com/adverant/nexus-memory/pkg/recall"
	"github.com/adverant/nexus-memory/pkg/storage"
)

// EntityStore resolves, merges, and counts entities for mergeEntities
// and getMemoryStats.
type EntityStore interface {
	GetByIDs(ctx context.Context, tenant memmodel.TenantContext, ids []string) ([]*memmodel.ExtractedEntity, error)
	Upsert(ctx context.Context, tenant memmodel.TenantContext, entity *memmodel.ExtractedEntity) error
	DeleteByIDs(ctx context.Context, tenant memmodel.TenantContext, ids []string) error
	CountByTenant(ctx context.Context, tenant memmodel.TenantContext) (int64, error)
}

// FactStore flips fact validity and counts facts for getMemoryStats.
type FactStore interface {
	SetValid(ctx context.Context, tenant memmodel.TenantContext, id string, isValid bool, validatedAt time.Time) error
	CountByTenant(ctx context.Context, tenant memmodel.TenantContext) (int64, error)
}

// EpisodeLookupStore backs getEpisodeById, the episode-count/average
// side of getMemoryStats, and the administrative importance update.
type EpisodeLookupStore interface {
	GetByIDs(ctx context.Context, tenant memmodel.TenantContext, ids []string) ([]memmodel.Episode, error)
	CountByTenant(ctx context.Context, tenant memmodel.TenantContext) (int64, error)
	AvgImportance(ctx context.Context, tenant memmodel.TenantContext) (float64, error)
	UpdateImportance(ctx context.Context, tenant memmodel.TenantContext, id string, importance float64) error
}

// MemoryLookupStore backs getMemoryById and listMemories.
type MemoryLookupStore interface {
	GetByID(ctx context.Context, tenant memmodel.TenantContext, id string) (*memmodel.MemoryItem, bool, error)
	ListRecent(ctx context.Context, tenant memmodel.TenantContext, limit int) ([]memmodel.MemoryItem, error)
}

// Facade composes the Unified Storage Engine, Episode Store, Recall
// Engine, and consolidation sweep into the Storage API callers use.
type Facade struct {
	memories     *storage.Engine
	episodes     *episode.Engine
	consolidator *episode.Consolidator
	recall       *recall.Engine

	entities     EntityStore
	facts        FactStore
	episodeStore EpisodeLookupStore
	memoryStore  MemoryLookupStore

	logger  observability.Logger
	metrics observability.MetricsClient
}

// New builds a Facade over already-constructed component engines and
// read-path store adapters.
func New(
	memories *storage.Engine,
	episodes *episode.Engine,
	consolidator *episode.Consolidator,
	recallEngine *recall.Engine,
	entities EntityStore,
	facts FactStore,
	episodeStore EpisodeLookupStore,
	memoryStore MemoryLookupStore,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *Facade {
	if logger == nil {
		logger = observability.NewLogger("memory")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &Facade{
		memories:     memories,
		episodes:     episodes,
		consolidator: consolidator,
		recall:       recallEngine,
		entities:     entities,
		facts:        facts,
		episodeStore: episodeStore,
		memoryStore:  memoryStore,
		logger:       logger,
		metrics:      metrics,
	}
}

// StoreMemory validates, hashes, and saga-writes a unified memory item.
func (f *Facade) StoreMemory(ctx context.Context, req storage.WriteRequest) (*storage.WriteResult, error) {
	return f.memories.Store(ctx, req)
}

// StoreEpisode validates, dedups, extracts, and saga-writes an episode.
func (f *Facade) StoreEpisode(ctx context.Context, req episode.WriteRequest) (*episode.WriteResult, error) {
	return f.episodes.Store(ctx, req)
}

// RecallEpisodes runs the recall pipeline scoped to episodic content
// (the episodic score threshold applies).
func (f *Facade) RecallEpisodes(ctx context.Context, q recall.Query) (*recall.Result, error) {
	q.Unified = false
	return f.recall.Recall(ctx, q)
}

// RecallMemories runs the recall pipeline spanning memories and document
// chunks (the unified score threshold applies) and shapes the response
// down to the flat {id, content, relevanceScore, metadata} view.
func (f *Facade) RecallMemories(ctx context.Context, q recall.Query) ([]MemoryHit, bool, error) {
	q.Unified = true
	result, err := f.recall.Recall(ctx, q)
	if err != nil {
		return nil, false, err
	}
	hits := make([]MemoryHit, 0, len(result.Episodes))
	for _, ae := range result.Episodes {
		hits = append(hits, MemoryHit{
			ID:             ae.Episode.ID,
			Content:        ae.Episode.Content,
			RelevanceScore: ae.Score.FinalScore,
			Metadata:       ae.Episode.Metadata,
		})
	}
	return hits, result.TokenLimitReached, nil
}

// MemoryHit is one result row of RecallMemories.
type MemoryHit struct {
	ID             string
	Content        string
	RelevanceScore float64
	Metadata       map[string]any
}

// GetMemoryByID fetches a single unified memory item, tenant-scoped.
func (f *Facade) GetMemoryByID(ctx context.Context, tenant memmodel.TenantContext, id string) (*memmodel.MemoryItem, bool, error) {
	return f.memoryStore.GetByID(ctx, tenant, id)
}

// GetEpisodeByID fetches a single episode, tenant-scoped.
func (f *Facade) GetEpisodeByID(ctx context.Context, tenant memmodel.TenantContext, id string) (*memmodel.Episode, bool, error) {
	episodes, err := f.episodeStore.GetByIDs(ctx, tenant, []string{id})
	if err != nil {
		return nil, false, err
	}
	if len(episodes) == 0 {
		return nil, false, nil
	}
	return &episodes[0], true, nil
}

// UpdateEpisodeImportance administratively overwrites a single
// episode's importance, clamped to [0,1].
func (f *Facade) UpdateEpisodeImportance(ctx context.Context, tenant memmodel.TenantContext, id string, importance float64) error {
	if importance < 0 {
		importance = 0
	}
	if importance > 1 {
		importance = 1
	}
	return f.episodeStore.UpdateImportance(ctx, tenant, id, importance)
}

// ListMemories returns up to limit unified memory items, tenant-scoped,
// most recent first.
func (f *Facade) ListMemories(ctx context.Context, tenant memmodel.TenantContext, limit int) ([]memmodel.MemoryItem, error) {
	return f.memoryStore.ListRecent(ctx, tenant, limit)
}

// MergeEntities folds ids into one surviving entity: the entity with
// the highest salience becomes primary, every other entity's name and
// aliases are unioned in as aliases, and mention counts are summed. The
// merged-away entities are deleted once the primary is persisted.
func (f *Facade) MergeEntities(ctx context.Context, tenant memmodel.TenantContext, ids []string) (*memmodel.ExtractedEntity, error) {
	if len(ids) < 2 {
		return nil, fmt.Errorf("merge entities: need at least 2 ids, got %d", len(ids))
	}

	entities, err := f.entities.GetByIDs(ctx, tenant, ids)
	if err != nil {
		return nil, err
	}
	if len(entities) < 2 {
		return nil, fmt.Errorf("merge entities: found %d of %d requested", len(entities), len(ids))
	}

	primary := entities[0]
	for _, e := range entities[1:] {
		if e.Salience > primary.Salience {
			primary = e
		}
	}

	var toDelete []string
	for _, e := range entities {
		if e.ID == primary.ID {
			continue
		}
		primary.AddAlias(e.Name)
		for _, alias := range e.Aliases {
			primary.AddAlias(alias)
		}
		primary.MentionCount += e.MentionCount
		if e.LastSeen.After(primary.LastSeen) {
			primary.LastSeen = e.LastSeen
		}
		if e.FirstSeen.Before(primary.FirstSeen) {
			primary.FirstSeen = e.FirstSeen
		}
		toDelete = append(toDelete, e.ID)
	}
	primary.Merged = true

	if err := f.entities.Upsert(ctx, tenant, primary); err != nil {
		return nil, err
	}
	if err := f.entities.DeleteByIDs(ctx, tenant, toDelete); err != nil {
		f.logger.Warn("merge entities: cleanup of merged-away rows failed", map[string]interface{}{"error": err.Error()})
	}

	return primary, nil
}

// ValidateFact flips a fact's validity flag, stamping validated_at.
func (f *Facade) ValidateFact(ctx context.Context, tenant memmodel.TenantContext, id string, isValid bool) error {
	return f.facts.SetValid(ctx, tenant, id, isValid, time.Now())
}

// ConsolidateMemories runs one consolidation pass for tenant evaluated
// as of before, returning how many episodes were folded into summaries.
func (f *Facade) ConsolidateMemories(ctx context.Context, tenant memmodel.TenantContext, before time.Time) (int, error) {
	return f.consolidator.ConsolidateTenantCounted(ctx, tenant, before)
}

// Stats is the outcome of GetMemoryStats.
type Stats struct {
	TotalEpisodes int64
	TotalEntities int64
	TotalFacts    int64
	AvgImportance float64
	MemoryHealth  string
}

// healthyImportanceFloor is the average-importance cutoff below which
// the tenant's memory is reported "degraded" rather than "healthy": a
// low average suggests most stored episodes have decayed without ever
// being reinforced or consolidated.
const healthyImportanceFloor = 0.3

// GetMemoryStats aggregates per-tenant episode/entity/fact counts and
// average episode importance into a coarse health signal.
func (f *Facade) GetMemoryStats(ctx context.Context, tenant memmodel.TenantContext) (*Stats, error) {
	episodeCount, err := f.episodeStore.CountByTenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	entityCount, err := f.entities.CountByTenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	factCount, err := f.facts.CountByTenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	avgImportance, err := f.episodeStore.AvgImportance(ctx, tenant)
	if err != nil {
		return nil, err
	}

	health := "healthy"
	if episodeCount == 0 || avgImportance < healthyImportanceFloor {
		health = "degraded"
	}

	return &Stats{
		TotalEpisodes: episodeCount,
		TotalEntities: entityCount,
		TotalFacts:    factCount,
		AvgImportance: avgImportance,
		MemoryHealth:  health,
	}, nil
}
