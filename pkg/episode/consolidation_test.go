package episode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/adverant/nexus-memory/pkg/memmodel"
)

type fixedConsolidationList struct {
	*fakeRelational
	toReturn []memmodel.Episode
}

func (f *fixedConsolidationList) ListForConsolidation(ctx context.Context, tenant memmodel.TenantContext, threshold float64, now time.Time) ([]memmodel.Episode, error) {
	return f.toReturn, nil
}

func TestConsolidateTenantSummarizesGroupOfTwo(t *testing.T) {
	defer goleak.VerifyNone(t)

	rel := newFakeRelational()
	vec := newFakeVector()
	graph := newFakeGraph()
	e := newTestEngine(t, rel, vec, graph, false)

	now := time.Now()
	tenant := testTenant()
	group := []memmodel.Episode{
		{MemoryItem: memmodel.MemoryItem{ID: "ep-1", Content: "first decayed episode", Timestamp: now.Add(-48 * time.Hour), Importance: 0.05, Tenant: tenant}, Type: memmodel.EpisodeObservation},
		{MemoryItem: memmodel.MemoryItem{ID: "ep-2", Content: "second decayed episode", Timestamp: now.Add(-47 * time.Hour), Importance: 0.04, Tenant: tenant}, Type: memmodel.EpisodeObservation},
	}
	fixed := &fixedConsolidationList{fakeRelational: rel, toReturn: group}
	e.relational = fixed

	consolidator := NewConsolidator(e, nil, time.Hour)
	err := consolidator.ConsolidateTenant(context.Background(), tenant, now)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"ep-1", "ep-2"}, rel.consolidated)

	var summarizedEdges int
	for _, edge := range graph.edges {
		if edge.Type == memmodel.EdgeSummarizedIn {
			summarizedEdges++
		}
	}
	assert.Equal(t, 2, summarizedEdges)
}

func TestConsolidateTenantSkipsSingleEpisodeGroups(t *testing.T) {
	defer goleak.VerifyNone(t)

	rel := newFakeRelational()
	vec := newFakeVector()
	graph := newFakeGraph()
	e := newTestEngine(t, rel, vec, graph, false)

	now := time.Now()
	tenant := testTenant()
	lonely := []memmodel.Episode{
		{MemoryItem: memmodel.MemoryItem{ID: "ep-1", Content: "only decayed episode", Timestamp: now, Importance: 0.05, Tenant: tenant}, Type: memmodel.EpisodeObservation},
	}
	fixed := &fixedConsolidationList{fakeRelational: rel, toReturn: lonely}
	e.relational = fixed

	consolidator := NewConsolidator(e, nil, time.Hour)
	err := consolidator.ConsolidateTenant(context.Background(), tenant, now)
	require.NoError(t, err)
	assert.Empty(t, rel.consolidated)
}

func TestGroupEpisodesSplitsByProximityWindow(t *testing.T) {
	defer goleak.VerifyNone(t)

	now := time.Now()
	episodes := []memmodel.Episode{
		{MemoryItem: memmodel.MemoryItem{ID: "a", Timestamp: now}, Type: memmodel.EpisodeObservation},
		{MemoryItem: memmodel.MemoryItem{ID: "b", Timestamp: now.Add(1 * time.Hour)}, Type: memmodel.EpisodeObservation},
		{MemoryItem: memmodel.MemoryItem{ID: "c", Timestamp: now.Add(20 * time.Hour)}, Type: memmodel.EpisodeObservation},
	}

	groups := groupEpisodes(episodes)
	require.Len(t, groups, 2)

	sizes := []int{len(groups[0]), len(groups[1])}
	assert.ElementsMatch(t, []int{2, 1}, sizes)
}
