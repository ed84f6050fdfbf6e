package episode

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus-memory/pkg/memmodel"
)

// defaultConsolidationInterval matches the sweep cadence a memory system
// at this scale can tolerate without starving foreground writes.
const defaultConsolidationInterval = 6 * time.Hour

// TenantLister enumerates the tenants with at least one stored episode,
// so the sweep can run its decay scan scoped per tenant.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]memmodel.TenantContext, error)
}

// Consolidator runs a background sweep that decays episode importance,
// groups decayed episodes, and folds each group into a summary episode.
type Consolidator struct {
	engine   *Engine
	tenants  TenantLister
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewConsolidator builds a Consolidator over engine. interval <= 0 uses
// defaultConsolidationInterval.
func NewConsolidator(engine *Engine, tenants TenantLister, interval time.Duration) *Consolidator {
	if interval <= 0 {
		interval = defaultConsolidationInterval
	}
	return &Consolidator{
		engine:   engine,
		tenants:  tenants,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background sweep goroutine. Safe to call once.
func (c *Consolidator) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.engine.logger.Info("consolidation sweep started", map[string]interface{}{"interval": c.interval.String()})

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
				c.runSweep(ctx)
				cancel()
			case <-c.stopCh:
				c.engine.logger.Info("consolidation sweep stopped", nil)
				return
			}
		}
	}()
}

// Stop halts the sweep and waits for the in-flight tick to finish.
func (c *Consolidator) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// runSweep scans every tenant for decayed episodes and consolidates them.
func (c *Consolidator) runSweep(ctx context.Context) {
	tenants, err := c.tenants.ListTenants(ctx)
	if err != nil {
		c.engine.logger.Error("consolidation sweep: tenant listing failed", map[string]interface{}{"error": err.Error()})
		return
	}

	for _, tenant := range tenants {
		if err := c.ConsolidateTenant(ctx, tenant, time.Now()); err != nil {
			c.engine.logger.Error("consolidation sweep failed for tenant", map[string]interface{}{
				"tenant": tenant.Key(),
				"error":  err.Error(),
			})
		}
	}
}

// ConsolidateTenant runs one decay-and-group-and-summarize pass for a
// single tenant at instant now: episodes whose
// importance·exp(-decay_rate·days) falls below
// consolidationThreshold are grouped by identical type, and each type's
// group is split wherever two timestamp-adjacent episodes are more than
// groupingWindow (12h) apart; episodes of different types are never
// grouped together. Each group of size >= minGroupSize is folded into one
// summary episode linked back to its constituents via SUMMARIZED_IN
// edges, and the constituents are marked consolidated.
func (c *Consolidator) ConsolidateTenant(ctx context.Context, tenant memmodel.TenantContext, now time.Time) error {
	_, err := c.ConsolidateTenantCounted(ctx, tenant, now)
	return err
}

// ConsolidateTenantCounted runs the same pass as ConsolidateTenant and
// additionally reports how many episodes were folded into a summary,
// for callers (the facade's consolidateMemories) that need the count.
func (c *Consolidator) ConsolidateTenantCounted(ctx context.Context, tenant memmodel.TenantContext, now time.Time) (int, error) {
	candidates, err := c.engine.relational.ListForConsolidation(ctx, tenant, consolidationThreshold, now)
	if err != nil {
		return 0, err
	}
	if len(candidates) < minGroupSize {
		return 0, nil
	}

	consolidated := 0
	for _, group := range groupEpisodes(candidates) {
		if len(group) < minGroupSize {
			continue
		}
		if err := c.summarize(ctx, tenant, group, now); err != nil {
			c.engine.logger.Error("consolidation summarize failed", map[string]interface{}{
				"tenant": tenant.Key(),
				"error":  err.Error(),
			})
			continue
		}
		consolidated += len(group)
	}
	return consolidated, nil
}

// groupEpisodes partitions episodes first by EpisodeType, then splits
// each type bucket further so that no two adjacent episodes (by
// timestamp) in the same sub-group are more than groupingWindow apart.
func groupEpisodes(episodes []memmodel.Episode) [][]memmodel.Episode {
	byType := make(map[memmodel.EpisodeType][]memmodel.Episode)
	for _, ep := range episodes {
		byType[ep.Type] = append(byType[ep.Type], ep)
	}

	var groups [][]memmodel.Episode
	for _, bucket := range byType {
		groups = append(groups, splitByProximity(bucket)...)
	}
	return groups
}

func splitByProximity(episodes []memmodel.Episode) [][]memmodel.Episode {
	sorted := make([]memmodel.Episode, len(episodes))
	copy(sorted, episodes)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Timestamp.Before(sorted[j-1].Timestamp); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	var groups [][]memmodel.Episode
	var current []memmodel.Episode
	for _, ep := range sorted {
		if len(current) > 0 {
			last := current[len(current)-1]
			if ep.Timestamp.Sub(last.Timestamp) > groupingWindow {
				groups = append(groups, current)
				current = nil
			}
		}
		current = append(current, ep)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// summarize folds group into one type=summary episode owned by the
// "system" user, links SUMMARIZED_IN edges from each constituent, and
// marks the constituents consolidated.
func (c *Consolidator) summarize(ctx context.Context, tenant memmodel.TenantContext, group []memmodel.Episode, now time.Time) error {
	summaryID := uuid.NewString()
	content := summaryContent(group)
	systemTenant := tenant
	systemTenant.UserID = memmodel.SystemUserID

	summary := memmodel.Episode{
		MemoryItem: memmodel.MemoryItem{
			ID:         summaryID,
			Content:    content,
			Timestamp:  now,
			Importance: maxImportance(group),
			Tenant:     systemTenant,
		},
		Type:        memmodel.EpisodeSummary,
		ContentHash: "", // summaries are exempt from dedup: always unique to their group
		DecayRate:   memmodel.DeriveDecayRate(maxImportance(group)),
	}

	if err := c.engine.relational.Insert(ctx, summary); err != nil {
		return err
	}
	if err := c.engine.graph.CreateNode(ctx, systemTenant, summaryID, map[string]any{"type": string(memmodel.EpisodeSummary)}); err != nil {
		return err
	}

	ids := make([]string, 0, len(group))
	for _, ep := range group {
		ids = append(ids, ep.ID)
		edge := memmodel.Edge{
			ID:              uuid.NewString(),
			SourceEpisodeID: ep.ID,
			TargetEpisodeID: summaryID,
			Type:            memmodel.EdgeSummarizedIn,
			Weight:          1.0,
			CreatedAt:       now,
		}
		if err := c.engine.graph.CreateEdge(ctx, tenant, edge); err != nil {
			c.engine.logger.Warn("summarized_in edge failed", map[string]interface{}{"error": err.Error(), "episode": ep.ID})
		}
	}

	return c.engine.relational.MarkConsolidated(ctx, tenant, ids, summaryID)
}

func maxImportance(group []memmodel.Episode) float64 {
	var max float64
	for _, ep := range group {
		if ep.Importance > max {
			max = ep.Importance
		}
	}
	return max
}

// summaryContent builds a terse rollup of a consolidation group's
// content for the produced summary episode.
func summaryContent(group []memmodel.Episode) string {
	out := "Consolidated summary of " + strconv.Itoa(len(group)) + " related episodes: "
	for i, ep := range group {
		if i > 0 {
			out += " | "
		}
		snippet := ep.Content
		if len(snippet) > 120 {
			snippet = snippet[:120]
		}
		out += snippet
	}
	return out
}
