package classifier

import (
	"context"
	"testing"

	"github.com/adverant/nexus-memory/pkg/embedding/rerank"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReranker struct {
	winnerID string
	score    float32
	err      error
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, results []rerank.SearchResult, opts *rerank.RerankOptions) ([]rerank.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]rerank.SearchResult, 0, len(results))
	for _, r := range results {
		score := float32(0.1)
		if r.ID == f.winnerID {
			score = f.score
		}
		r.Score = score
		out = append(out, r)
	}
	// caller-observable order: winner first, descending by score.
	for i, r := range out {
		if r.ID == f.winnerID && i != 0 {
			out[0], out[i] = out[i], out[0]
		}
	}
	return out, nil
}

func (f *fakeReranker) GetName() string { return "fake" }
func (f *fakeReranker) Close() error    { return nil }

type fakeLLM struct {
	result map[string]Classification
	err    error
}

func (f *fakeLLM) Classify(ctx context.Context, names []string) (map[string]Classification, error) {
	return f.result, f.err
}

func TestClassifyHitsCuratedNameCache(t *testing.T) {
	c := New(nil, nil, nil, nil)
	typ, conf := c.Classify(context.Background(), "Python")
	assert.Equal(t, memmodel.EntityTechnology, typ)
	assert.Equal(t, 0.99, conf)
}

func TestClassifyFallsThroughToRerankWhenAboveThreshold(t *testing.T) {
	reranker := &fakeReranker{winnerID: string(memmodel.EntityOrganization), score: 0.8}
	c := New(reranker, nil, nil, nil)
	typ, conf := c.Classify(context.Background(), "Acme Corp")
	assert.Equal(t, memmodel.EntityOrganization, typ)
	assert.InDelta(t, 0.8, conf, 0.001)
}

func TestClassifyFallsThroughToLLMWhenRerankBelowThreshold(t *testing.T) {
	reranker := &fakeReranker{winnerID: string(memmodel.EntityOrganization), score: 0.2}
	llm := &fakeLLM{result: map[string]Classification{
		"Acme Corp": {Type: memmodel.EntityOrganization, Confidence: 0.75},
	}}
	c := New(reranker, llm, nil, nil)
	typ, conf := c.Classify(context.Background(), "Acme Corp")
	assert.Equal(t, memmodel.EntityOrganization, typ)
	assert.Equal(t, 0.75, conf)
}

func TestClassifyFallsBackToHeuristicWhenNoTierAvailable(t *testing.T) {
	c := New(nil, nil, nil, nil)
	typ, _ := c.Classify(context.Background(), "main.go")
	assert.Equal(t, memmodel.EntityFile, typ)
}

func TestClassifyCachesLLMResultForSubsequentCalls(t *testing.T) {
	llm := &fakeLLM{result: map[string]Classification{
		"Widgetco": {Type: memmodel.EntityOrganization, Confidence: 0.6},
	}}
	c := New(nil, llm, nil, nil)
	typ1, _ := c.Classify(context.Background(), "Widgetco")
	require.Equal(t, memmodel.EntityOrganization, typ1)

	llm.result = nil // prove the second call hits the cache, not the LLM
	typ2, conf2 := c.Classify(context.Background(), "Widgetco")
	assert.Equal(t, memmodel.EntityOrganization, typ2)
	assert.Equal(t, 0.6, conf2)
}

func TestHeuristicFunctionName(t *testing.T) {
	assert.Equal(t, memmodel.EntityFunction, Heuristic("handleRequest"))
}

func TestHeuristicTwoTokenPersonName(t *testing.T) {
	assert.Equal(t, memmodel.EntityPerson, Heuristic("Jane Doe"))
}

func TestHeuristicDefaultsToOther(t *testing.T) {
	assert.Equal(t, memmodel.EntityOther, Heuristic("something unusual here"))
}
