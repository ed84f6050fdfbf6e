package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus-memory/pkg/memmodel"
)

type fakeEntities struct {
	byID    map[string]*memmodel.ExtractedEntity
	deleted []string
}

func newFakeEntities() *fakeEntities {
	return &fakeEntities{byID: map[string]*memmodel.ExtractedEntity{}}
}

func (f *fakeEntities) GetByIDs(ctx context.Context, tenant memmodel.TenantContext, ids []string) ([]*memmodel.ExtractedEntity, error) {
	var out []*memmodel.ExtractedEntity
	for _, id := range ids {
		if e, ok := f.byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEntities) Upsert(ctx context.Context, tenant memmodel.TenantContext, entity *memmodel.ExtractedEntity) error {
	f.byID[entity.ID] = entity
	return nil
}

func (f *fakeEntities) DeleteByIDs(ctx context.Context, tenant memmodel.TenantContext, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	for _, id := range ids {
		delete(f.byID, id)
	}
	return nil
}

func (f *fakeEntities) CountByTenant(ctx context.Context, tenant memmodel.TenantContext) (int64, error) {
	return int64(len(f.byID)), nil
}

type fakeFacts struct {
	valid map[string]bool
}

func (f *fakeFacts) SetValid(ctx context.Context, tenant memmodel.TenantContext, id string, isValid bool, validatedAt time.Time) error {
	if f.valid == nil {
		f.valid = map[string]bool{}
	}
	f.valid[id] = isValid
	return nil
}

func (f *fakeFacts) CountByTenant(ctx context.Context, tenant memmodel.TenantContext) (int64, error) {
	return int64(len(f.valid)), nil
}

type fakeEpisodeLookup struct {
	byID          map[string]memmodel.Episode
	count         int64
	avgImportance float64
}

func (f *fakeEpisodeLookup) GetByIDs(ctx context.Context, tenant memmodel.TenantContext, ids []string) ([]memmodel.Episode, error) {
	var out []memmodel.Episode
	for _, id := range ids {
		if ep, ok := f.byID[id]; ok {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (f *fakeEpisodeLookup) CountByTenant(ctx context.Context, tenant memmodel.TenantContext) (int64, error) {
	return f.count, nil
}

func (f *fakeEpisodeLookup) AvgImportance(ctx context.Context, tenant memmodel.TenantContext) (float64, error) {
	return f.avgImportance, nil
}

func (f *fakeEpisodeLookup) UpdateImportance(ctx context.Context, tenant memmodel.TenantContext, id string, importance float64) error {
	ep, ok := f.byID[id]
	if !ok {
		return assert.AnError
	}
	ep.Importance = importance
	f.byID[id] = ep
	return nil
}

type fakeMemoryLookup struct {
	byID   map[string]memmodel.MemoryItem
	recent []memmodel.MemoryItem
}

func (f *fakeMemoryLookup) GetByID(ctx context.Context, tenant memmodel.TenantContext, id string) (*memmodel.MemoryItem, bool, error) {
	if item, ok := f.byID[id]; ok {
		return &item, true, nil
	}
	return nil, false, nil
}

func (f *fakeMemoryLookup) ListRecent(ctx context.Context, tenant memmodel.TenantContext, limit int) ([]memmodel.MemoryItem, error) {
	out := f.recent
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func testTenant() memmodel.TenantContext {
	return memmodel.TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u1"}
}

func TestMergeEntitiesPicksHighestSalienceAsPrimary(t *testing.T) {
	entities := newFakeEntities()
	entities.byID["e1"] = &memmodel.ExtractedEntity{ID: "e1", Name: "k8s", Salience: 0.4, MentionCount: 2}
	entities.byID["e2"] = &memmodel.ExtractedEntity{ID: "e2", Name: "Kubernetes", Salience: 0.9, MentionCount: 5, Aliases: []string{"k8s cluster"}}

	f := New(nil, nil, nil, nil, entities, nil, nil, nil, nil, nil)

	merged, err := f.MergeEntities(context.Background(), testTenant(), []string{"e1", "e2"})
	require.NoError(t, err)
	assert.Equal(t, "e2", merged.ID)
	assert.Equal(t, 7, merged.MentionCount)
	assert.Contains(t, merged.Aliases, "k8s")
	assert.Contains(t, merged.Aliases, "k8s cluster")
	assert.True(t, merged.Merged)
	assert.Equal(t, []string{"e1"}, entities.deleted)
}

func TestMergeEntitiesRequiresAtLeastTwoIDs(t *testing.T) {
	f := New(nil, nil, nil, nil, newFakeEntities(), nil, nil, nil, nil, nil)
	_, err := f.MergeEntities(context.Background(), testTenant(), []string{"only-one"})
	assert.Error(t, err)
}

func TestValidateFactStampsValidity(t *testing.T) {
	facts := &fakeFacts{}
	f := New(nil, nil, nil, nil, nil, facts, nil, nil, nil, nil)

	err := f.ValidateFact(context.Background(), testTenant(), "fact-1", false)
	require.NoError(t, err)
	assert.False(t, facts.valid["fact-1"])
}

func TestGetMemoryStatsReportsDegradedOnLowImportance(t *testing.T) {
	episodes := &fakeEpisodeLookup{count: 10, avgImportance: 0.1}
	entities := newFakeEntities()
	entities.byID["e1"] = &memmodel.ExtractedEntity{ID: "e1"}
	facts := &fakeFacts{valid: map[string]bool{"f1": true}}

	f := New(nil, nil, nil, nil, entities, facts, episodes, nil, nil, nil)

	stats, err := f.GetMemoryStats(context.Background(), testTenant())
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalEpisodes)
	assert.Equal(t, int64(1), stats.TotalEntities)
	assert.Equal(t, int64(1), stats.TotalFacts)
	assert.Equal(t, "degraded", stats.MemoryHealth)
}

func TestGetMemoryStatsReportsHealthyAboveFloor(t *testing.T) {
	episodes := &fakeEpisodeLookup{count: 10, avgImportance: 0.8}
	f := New(nil, nil, nil, nil, newFakeEntities(), &fakeFacts{}, episodes, nil, nil, nil)

	stats, err := f.GetMemoryStats(context.Background(), testTenant())
	require.NoError(t, err)
	assert.Equal(t, "healthy", stats.MemoryHealth)
}

func TestUpdateEpisodeImportanceClampsToUnitRange(t *testing.T) {
	episodes := &fakeEpisodeLookup{byID: map[string]memmodel.Episode{
		"e1": {MemoryItem: memmodel.MemoryItem{ID: "e1", Importance: 0.2}},
	}}
	f := New(nil, nil, nil, nil, nil, nil, episodes, nil, nil, nil)

	require.NoError(t, f.UpdateEpisodeImportance(context.Background(), testTenant(), "e1", 1.5))
	assert.Equal(t, 1.0, episodes.byID["e1"].Importance)

	require.NoError(t, f.UpdateEpisodeImportance(context.Background(), testTenant(), "e1", -0.3))
	assert.Equal(t, 0.0, episodes.byID["e1"].Importance)
}

func TestUpdateEpisodeImportancePropagatesStoreError(t *testing.T) {
	episodes := &fakeEpisodeLookup{byID: map[string]memmodel.Episode{}}
	f := New(nil, nil, nil, nil, nil, nil, episodes, nil, nil, nil)

	err := f.UpdateEpisodeImportance(context.Background(), testTenant(), "missing", 0.5)
	assert.Error(t, err)
}

func TestGetEpisodeByIDNotFound(t *testing.T) {
	episodes := &fakeEpisodeLookup{byID: map[string]memmodel.Episode{}}
	f := New(nil, nil, nil, nil, nil, nil, episodes, nil, nil, nil)

	_, ok, err := f.GetEpisodeByID(context.Background(), testTenant(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetMemoryByIDFound(t *testing.T) {
	store := &fakeMemoryLookup{byID: map[string]memmodel.MemoryItem{
		"m1": {ID: "m1", Content: "hello"},
	}}
	f := New(nil, nil, nil, nil, nil, nil, nil, store, nil, nil)

	item, ok, err := f.GetMemoryByID(context.Background(), testTenant(), "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", item.Content)
}

func TestListMemoriesRespectsLimit(t *testing.T) {
	store := &fakeMemoryLookup{recent: []memmodel.MemoryItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	f := New(nil, nil, nil, nil, nil, nil, nil, store, nil, nil)

	items, err := f.ListMemories(context.Background(), testTenant(), 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
