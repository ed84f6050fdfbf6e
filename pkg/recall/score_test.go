package recall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/adverant/nexus-memory/pkg/memmodel"
)

func TestRecencyFactorDecaysByHalfLife(t *testing.T) {
	now := time.Now()
	fresh := recencyFactor(now, now)
	assert.InDelta(t, 1.0, fresh, 1e-9)

	weekOld := recencyFactor(now.Add(-7*24*time.Hour), now)
	assert.InDelta(t, 0.5, weekOld, 0.01)

	veryOld := recencyFactor(now.Add(-365*24*time.Hour), now)
	assert.Equal(t, minRecencyFactor, veryOld)
}

func TestEntityRelevanceNoQueryEntities(t *testing.T) {
	assert.Equal(t, 0.5, entityRelevanceScore(nil, []memmodel.ExtractedEntity{{Name: "Kubernetes"}}))
}

func TestEntityRelevanceNoCandidateEntities(t *testing.T) {
	assert.Equal(t, 0.1, entityRelevanceScore([]string{"Kubernetes"}, nil))
}

func TestEntityRelevanceExactMatch(t *testing.T) {
	score := entityRelevanceScore([]string{"Kubernetes"}, []memmodel.ExtractedEntity{{Name: "Kubernetes"}})
	assert.Equal(t, 1.0, score)
}

func TestEntityRelevanceSubstringMatch(t *testing.T) {
	score := entityRelevanceScore([]string{"Kube"}, []memmodel.ExtractedEntity{{Name: "Kubernetes"}})
	assert.Equal(t, 0.5, score)
}

func TestEntityRelevanceClampedToOne(t *testing.T) {
	score := entityRelevanceScore([]string{"a"}, []memmodel.ExtractedEntity{{Name: "a"}, {Name: "a-alias"}})
	assert.LessOrEqual(t, score, 1.0)
}

func TestScoreCandidateWeightedSum(t *testing.T) {
	now := time.Now()
	c := candidate{
		episode: memmodel.Episode{MemoryItem: memmodel.MemoryItem{Timestamp: now, Importance: 1.0}},
		graph:   GraphContext{Entities: []memmodel.ExtractedEntity{{Name: "X"}}},
	}
	c.score.VectorSimilarity = 1.0

	w := Weights{Vector: 0.4, Entity: 0.25, Recency: 0.2, Importance: 0.15}
	score := scoreCandidate(c, []string{"X"}, w, now)

	assert.InDelta(t, 1.0, score.FinalScore, 1e-9)
	assert.Equal(t, w.Vector, score.WeightsApplied["vector"])
}
