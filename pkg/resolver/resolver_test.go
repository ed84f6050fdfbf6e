package resolver

import (
	"context"
	"testing"

	"github.com/adverant/nexus-memory/pkg/embedding/rerank"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func existingEntity(id, name string) *memmodel.ExtractedEntity {
	return &memmodel.ExtractedEntity{ID: id, Name: name, MentionCount: 1, Salience: 0.5}
}

func TestResolveExactMatchScoresOne(t *testing.T) {
	r := New(nil, nil, nil)
	existing := []*memmodel.ExtractedEntity{existingEntity("e1", "Acme Corp")}
	matches := r.Resolve(context.Background(), "acme corp", existing, 0.5)
	require.Len(t, matches, 1)
	assert.Equal(t, 1.0, matches[0].Similarity)
}

func TestResolveLevenshteinMatchAboveThreshold(t *testing.T) {
	r := New(nil, nil, nil)
	existing := []*memmodel.ExtractedEntity{existingEntity("e1", "Acme Corps")}
	matches := r.Resolve(context.Background(), "Acme Corp", existing, 0.5)
	require.Len(t, matches, 1)
	assert.Greater(t, matches[0].Similarity, 0.6)
	assert.Less(t, matches[0].Similarity, 1.0)
}

func TestResolveDropsCandidatesBelowLevenshteinFloor(t *testing.T) {
	r := New(nil, nil, nil)
	existing := []*memmodel.ExtractedEntity{existingEntity("e1", "Completely Different Thing")}
	matches := r.Resolve(context.Background(), "Acme Corp", existing, 0.0)
	assert.Empty(t, matches)
}

func TestResolveSortsDescending(t *testing.T) {
	r := New(nil, nil, nil)
	existing := []*memmodel.ExtractedEntity{
		existingEntity("e1", "Acme Corps"),
		existingEntity("e2", "Acme Corp"),
	}
	matches := r.Resolve(context.Background(), "Acme Corp", existing, 0.0)
	require.Len(t, matches, 2)
	assert.GreaterOrEqual(t, matches[0].Similarity, matches[1].Similarity)
	assert.Equal(t, "e2", matches[0].Entity.ID)
}

type fakeRerankerOverride struct {
	overrideID    string
	overrideScore float32
}

func (f *fakeRerankerOverride) Rerank(ctx context.Context, query string, results []rerank.SearchResult, opts *rerank.RerankOptions) ([]rerank.SearchResult, error) {
	out := make([]rerank.SearchResult, len(results))
	copy(out, results)
	for i := range out {
		if out[i].ID == f.overrideID {
			out[i].Score = f.overrideScore
		}
	}
	return out, nil
}
func (f *fakeRerankerOverride) GetName() string { return "fake" }
func (f *fakeRerankerOverride) Close() error    { return nil }

func TestResolveRerankOverridesWhenHigherThanLevenshtein(t *testing.T) {
	rrk := &fakeRerankerOverride{overrideID: "e1", overrideScore: 0.95}
	r := New(rrk, nil, nil)
	existing := []*memmodel.ExtractedEntity{existingEntity("e1", "Acme Corps")}
	matches := r.Resolve(context.Background(), "Acme Corp", existing, 0.0)
	require.Len(t, matches, 1)
	assert.InDelta(t, 0.95, matches[0].Similarity, 0.001)
}

func TestResolveSkipsRerankWhenShortlistTooLarge(t *testing.T) {
	rrk := &fakeRerankerOverride{overrideID: "e1", overrideScore: 0.99}
	r := New(rrk, nil, nil)
	var existing []*memmodel.ExtractedEntity
	for i := 0; i < 35; i++ {
		existing = append(existing, existingEntity("e1", "Acme Corps"))
	}
	matches := r.Resolve(context.Background(), "Acme Corp", existing, 0.0)
	require.NotEmpty(t, matches)
	// rerank is skipped above rerankShortlistMax, so the levenshtein score
	// (0.9) survives unchanged rather than being raised to 0.99 by the fake.
	assert.InDelta(t, 0.9, matches[0].Similarity, 0.001)
}

func TestMergeAppendsAliasAveragesSalienceIncrementsMentions(t *testing.T) {
	target := &memmodel.ExtractedEntity{ID: "e1", Name: "Acme", MentionCount: 2, Salience: 0.4, Aliases: []string{}}
	Merge(target, "Acme Corp", 0.8)
	assert.Equal(t, 3, target.MentionCount)
	assert.Equal(t, 0.6, target.Salience)
	assert.Contains(t, target.Aliases, "Acme Corp")
}

func TestMergeDoesNotDuplicateAlias(t *testing.T) {
	target := &memmodel.ExtractedEntity{ID: "e1", Name: "Acme", Aliases: []string{"Acme Corp"}}
	Merge(target, "Acme Corp", 0.5)
	count := 0
	for _, a := range target.Aliases {
		if a == "Acme Corp" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
