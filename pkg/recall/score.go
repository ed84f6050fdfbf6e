package recall

import (
	"math"
	"strings"
	"time"

	"github.com/adverant/nexus-memory/pkg/memmodel"
)

// recencyHalfLifeDays is the number of days over which recency_factor
// halves: exp(-days*ln2/halfLife).
const recencyHalfLifeDays = 7.0

const minRecencyFactor = 0.01

// scoreCandidate computes one candidate's hybrid score: vector
// similarity (already populated by the vector-search or fallback
// step), entity relevance against the query's extracted entities,
// recency decay from the episode's timestamp, stored importance, and
// their weighted sum.
func scoreCandidate(c candidate, queryEntities []string, w Weights, now time.Time) memmodel.HybridScore {
	entityRelevance := entityRelevanceScore(queryEntities, c.graph.Entities)
	recency := recencyFactor(c.episode.Timestamp, now)
	importance := memmodel.Clamp01(c.episode.Importance)

	final := w.Vector*c.score.VectorSimilarity +
		w.Entity*entityRelevance +
		w.Recency*recency +
		w.Importance*importance

	return memmodel.HybridScore{
		VectorSimilarity: memmodel.Clamp01(c.score.VectorSimilarity),
		EntityRelevance:  entityRelevance,
		RecencyFactor:    recency,
		Importance:       importance,
		FinalScore:       memmodel.Clamp01(final),
		WeightsApplied: map[string]float64{
			"vector":     w.Vector,
			"entity":     w.Entity,
			"recency":    w.Recency,
			"importance": w.Importance,
		},
	}
}

// entityRelevanceScore counts exact (case-insensitive) matches between
// the query's extracted entity strings and the candidate's graph
// entities as 1 point each, substring matches as 0.5 points each,
// normalized by the number of query entities and clamped to [0,1].
// With no query entities the neutral score 0.5 applies; with query
// entities but no candidate entities, 0.1.
func entityRelevanceScore(queryEntities []string, candidateEntities []memmodel.ExtractedEntity) float64 {
	if len(queryEntities) == 0 {
		return 0.5
	}
	if len(candidateEntities) == 0 {
		return 0.1
	}

	names := make([]string, len(candidateEntities))
	for i, e := range candidateEntities {
		names[i] = strings.ToLower(e.Name)
	}

	var points float64
	for _, qe := range queryEntities {
		q := strings.ToLower(qe)
		matched := false
		for _, n := range names {
			if n == q {
				points++
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		for _, n := range names {
			if strings.Contains(n, q) || strings.Contains(q, n) {
				points += 0.5
				break
			}
		}
	}

	return memmodel.Clamp01(points / float64(len(queryEntities)))
}

// recencyFactor decays exponentially with the episode's age in days,
// halving every recencyHalfLifeDays, floored at minRecencyFactor.
func recencyFactor(timestamp, now time.Time) float64 {
	days := now.Sub(timestamp).Hours() / 24
	if days < 0 {
		days = 0
	}
	factor := math.Exp(-days * math.Ln2 / recencyHalfLifeDays)
	if factor < minRecencyFactor {
		return minRecencyFactor
	}
	if factor > 1 {
		return 1
	}
	return factor
}
