package recall

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus-memory/pkg/embedpipeline"
	"github.com/adverant/nexus-memory/pkg/memerr"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/rollback"
)

// fakeVector is a minimal storage.VectorStore.
type fakeVector struct {
	records []memmodel.VectorRecord
	err     error
}

func (f *fakeVector) Name() string { return "fake_vector" }
func (f *fakeVector) Upsert(ctx context.Context, record memmodel.VectorRecord) error { return nil }
func (f *fakeVector) FindSimilar(ctx context.Context, tenant memmodel.TenantContext, vector []float32, minScore float64, limit int) ([]memmodel.VectorRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.records
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
func (f *fakeVector) Delete(ctx context.Context, tenant memmodel.TenantContext, ids []string) rollback.DeleteResult {
	return rollback.DeleteResult{Success: true}
}
func (f *fakeVector) Exists(ctx context.Context, tenant memmodel.TenantContext, id string) (bool, error) {
	return true, nil
}

// fakeRelational is a minimal recall.RelationalStore.
type fakeRelational struct {
	mu       sync.Mutex
	byID     map[string]memmodel.Episode
	recent   []memmodel.Episode
	temporal map[string][2][]memmodel.Episode
}

func newFakeRelational() *fakeRelational {
	return &fakeRelational{byID: map[string]memmodel.Episode{}, temporal: map[string][2][]memmodel.Episode{}}
}

func (f *fakeRelational) GetByIDs(ctx context.Context, tenant memmodel.TenantContext, ids []string) ([]memmodel.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []memmodel.Episode
	for _, id := range ids {
		if ep, ok := f.byID[id]; ok {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (f *fakeRelational) ListRecentNonConsolidated(ctx context.Context, tenant memmodel.TenantContext, limit int) ([]memmodel.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.recent
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRelational) ListTemporalContext(ctx context.Context, tenant memmodel.TenantContext, anchor memmodel.Episode, beforeN, afterN int) ([]memmodel.Episode, []memmodel.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pair, ok := f.temporal[anchor.ID]
	if !ok {
		return nil, nil, nil
	}
	return pair[0], pair[1], nil
}

// fakeGraph is a minimal recall.GraphReader.
type fakeGraph struct {
	byEpisode map[string]GraphContext
}

func (f *fakeGraph) FetchContext(ctx context.Context, tenant memmodel.TenantContext, episodeID string) (GraphContext, error) {
	return f.byEpisode[episodeID], nil
}

// fakePageAnchor is a minimal recall.PageAnchorStore.
type fakePageAnchor struct {
	byPage map[int][]memmodel.VectorRecord
}

func (f *fakePageAnchor) FindByPage(ctx context.Context, tenant memmodel.TenantContext, page int) ([]memmodel.VectorRecord, error) {
	return f.byPage[page], nil
}

// fakeEmbedder is a minimal embedpipeline.Embedder.
type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Name() string { return "fake_embedder" }
func (f *fakeEmbedder) Embed(ctx context.Context, text, model string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func validVector() []float32 {
	v := make([]float32, memmodel.VectorDimension)
	for i := range v {
		v[i] = 0.001
	}
	return v
}

func testTenant() memmodel.TenantContext {
	return memmodel.TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u1"}
}

func newTestEngine(t *testing.T, vector *fakeVector, relational *fakeRelational, graph *fakeGraph, pageAnchor *fakePageAnchor, embedder *fakeEmbedder) *Engine {
	t.Helper()
	pipeline := embedpipeline.NewPipeline(embedder, nil, "test-model", nil, nil)
	return New(vector, relational, graph, pageAnchor, pipeline, nil, DefaultConfig(), nil, nil)
}

func TestRecallHappyPath(t *testing.T) {
	tenant := testTenant()
	now := time.Now()

	rel := newFakeRelational()
	rel.byID["ep1"] = memmodel.Episode{
		MemoryItem: memmodel.MemoryItem{ID: "ep1", Content: "Kubernetes cluster outage in us-east", Timestamp: now, Importance: 0.8, Tenant: tenant},
		Type:       memmodel.EpisodeEvent,
	}

	graph := &fakeGraph{byEpisode: map[string]GraphContext{
		"ep1": {Entities: []memmodel.ExtractedEntity{{Name: "Kubernetes", Salience: 0.9}}},
	}}

	vector := &fakeVector{records: []memmodel.VectorRecord{{PointID: "ep1", Score: 0.88}}}
	embedder := &fakeEmbedder{vec: validVector()}

	e := newTestEngine(t, vector, rel, graph, nil, embedder)

	result, err := e.Recall(context.Background(), Query{
		Tenant: tenant,
		Text:   "What happened with Kubernetes?",
	})
	require.NoError(t, err)
	require.Len(t, result.Episodes, 1)
	assert.Equal(t, "ep1", result.Episodes[0].Episode.ID)
	assert.Greater(t, result.Episodes[0].Score.FinalScore, 0.0)
	assert.False(t, result.TokenLimitReached)
}

func TestRecallFallsBackWhenEmbeddingUnavailable(t *testing.T) {
	tenant := testTenant()
	now := time.Now()

	rel := newFakeRelational()
	rel.recent = []memmodel.Episode{
		{MemoryItem: memmodel.MemoryItem{ID: "ep1", Content: "first", Timestamp: now, Importance: 0.5, Tenant: tenant}},
		{MemoryItem: memmodel.MemoryItem{ID: "ep2", Content: "second", Timestamp: now.Add(-time.Hour), Importance: 0.5, Tenant: tenant}},
	}

	embedErr := memerr.EmbeddingUnavailable("embed", 3, fmt.Errorf("boom"))
	embedder := &fakeEmbedder{err: embedErr}
	vector := &fakeVector{}

	e := newTestEngine(t, vector, rel, &fakeGraph{byEpisode: map[string]GraphContext{}}, nil, embedder)

	result, err := e.Recall(context.Background(), Query{Tenant: tenant, Text: "anything"})
	require.NoError(t, err)
	require.Len(t, result.Episodes, 2)
	// fallback bucket scores are strictly decreasing by recency rank
	assert.GreaterOrEqual(t, result.Episodes[0].Score.VectorSimilarity, result.Episodes[1].Score.VectorSimilarity)
}

// A canceled context makes the embedder pipeline's retry loop return
// ctx.Err() directly, unwrapped — the one case where the embedding
// step can fail with something other than memerr.KindEmbeddingUnavailable,
// and recall must propagate it rather than degrade to the fallback path.
func TestRecallPropagatesNonEmbeddingErrors(t *testing.T) {
	tenant := testTenant()
	embedder := &fakeEmbedder{err: fmt.Errorf("network down")}
	e := newTestEngine(t, &fakeVector{}, newFakeRelational(), &fakeGraph{byEpisode: map[string]GraphContext{}}, nil, embedder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Recall(ctx, Query{Tenant: tenant, Text: "anything"})
	assert.Error(t, err)
}

func TestRecallPageAnchorOverride(t *testing.T) {
	tenant := testTenant()
	now := time.Now()

	rel := newFakeRelational()
	rel.byID["chunk1"] = memmodel.Episode{
		MemoryItem: memmodel.MemoryItem{ID: "chunk1", Content: "page three contents", Timestamp: now, Importance: 0.5, Tenant: tenant},
		Type:       memmodel.EpisodeDocumentInteraction,
	}

	pageAnchor := &fakePageAnchor{byPage: map[int][]memmodel.VectorRecord{
		3: {{PointID: "chunk1", Score: 1.0}},
	}}

	e := newTestEngine(t, &fakeVector{}, rel, &fakeGraph{byEpisode: map[string]GraphContext{}}, pageAnchor, &fakeEmbedder{vec: validVector()})

	result, err := e.Recall(context.Background(), Query{Tenant: tenant, Text: "what is on page 3?"})
	require.NoError(t, err)
	require.Len(t, result.Episodes, 1)
	assert.Equal(t, "chunk1", result.Episodes[0].Episode.ID)
}

func TestRecallPageAnchorEmptyReturnsSynthetic(t *testing.T) {
	tenant := testTenant()
	pageAnchor := &fakePageAnchor{byPage: map[int][]memmodel.VectorRecord{}}

	e := newTestEngine(t, &fakeVector{}, newFakeRelational(), &fakeGraph{byEpisode: map[string]GraphContext{}}, pageAnchor, &fakeEmbedder{vec: validVector()})

	result, err := e.Recall(context.Background(), Query{Tenant: tenant, Text: "what is on page 9?"})
	require.NoError(t, err)
	require.Len(t, result.Episodes, 1)
	assert.Contains(t, result.Episodes[0].Episode.Content, "page 9")
}

func TestRecallTokenBudgetExhaustion(t *testing.T) {
	tenant := testTenant()
	now := time.Now()

	rel := newFakeRelational()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("ep%d", i)
		rel.byID[id] = memmodel.Episode{
			MemoryItem: memmodel.MemoryItem{ID: id, Content: "a fairly long piece of episodic content to cost tokens", Timestamp: now, Importance: 0.5, Tenant: tenant},
		}
	}

	var records []memmodel.VectorRecord
	for i := 0; i < 5; i++ {
		records = append(records, memmodel.VectorRecord{PointID: fmt.Sprintf("ep%d", i), Score: 0.9})
	}
	vector := &fakeVector{records: records}

	e := newTestEngine(t, vector, rel, &fakeGraph{byEpisode: map[string]GraphContext{}}, nil, &fakeEmbedder{vec: validVector()})

	result, err := e.Recall(context.Background(), Query{Tenant: tenant, Text: "query", MaxTokens: 10, MaxResults: 5})
	require.NoError(t, err)
	assert.True(t, result.TokenLimitReached)
	assert.Less(t, len(result.Episodes), 5)
}

func TestWeightsNormalized(t *testing.T) {
	w := Weights{Vector: 1, Entity: 1, Recency: 1, Importance: 1}.normalized()
	assert.InDelta(t, 1.0, w.Vector+w.Entity+w.Recency+w.Importance, 1e-9)
	assert.InDelta(t, 0.25, w.Vector, 1e-9)
}

func TestWeightsZeroSumFallsBackToDefault(t *testing.T) {
	w := Weights{}.normalized()
	assert.Equal(t, DefaultWeights(), w)
}
