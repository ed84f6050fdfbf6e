// Package resolver matches a candidate entity name against a tenant's
// existing entities, through exact, Levenshtein, and cross-encoder
// rerank phases, and merges confident matches.
package resolver

import (
	"context"
	"sort"
	"strings"

	"github.com/adverant/nexus-memory/pkg/embedding/rerank"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/observability"
)

// MaxExistingEntities bounds how many of a tenant's most-mentioned
// entities are considered as resolution candidates.
const MaxExistingEntities = 500

// levenshteinThreshold is the minimum Phase-2 similarity a candidate
// must clear to survive into the shortlist.
const levenshteinThreshold = 0.6

// AutoMergeThreshold is the similarity an entity must reach before the
// candidate is auto-merged into it rather than only reported as a match.
const AutoMergeThreshold = 0.9

// rerankShortlistMin/Max bound the Phase-2 shortlist size for which
// Phase 3 (cross-encoder rerank) is worth the round trip.
const (
	rerankShortlistMin = 1
	rerankShortlistMax = 30
)

// Match is a candidate existing entity with its resolved similarity.
type Match struct {
	Entity     *memmodel.ExtractedEntity
	Similarity float64
}

// Resolver resolves a candidate name against a tenant's existing entities.
type Resolver struct {
	reranker rerank.Reranker
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// New builds a Resolver. reranker may be nil, in which case Phase 3 is
// skipped and Phase 2 similarities are final.
func New(reranker rerank.Reranker, logger observability.Logger, metrics observability.MetricsClient) *Resolver {
	if logger == nil {
		logger = observability.NewLogger("resolver")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &Resolver{reranker: reranker, logger: logger, metrics: metrics}
}

// Resolve returns existing entities matching name with similarity at
// least minSimilarity, sorted descending. existing should already be
// capped to MaxExistingEntities (most-mentioned first) by the caller.
func (r *Resolver) Resolve(ctx context.Context, name string, existing []*memmodel.ExtractedEntity, minSimilarity float64) []Match {
	normalizedName := normalize(name)

	var shortlist []Match
	for _, e := range existing {
		if normalize(e.Name) == normalizedName {
			shortlist = append(shortlist, Match{Entity: e, Similarity: 1.0})
			continue
		}
		sim := levenshteinSimilarity(normalizedName, normalize(e.Name))
		if sim >= levenshteinThreshold {
			shortlist = append(shortlist, Match{Entity: e, Similarity: sim})
		}
	}

	if r.reranker != nil && len(shortlist) >= rerankShortlistMin && len(shortlist) < rerankShortlistMax {
		r.applyRerank(ctx, name, shortlist)
	}

	var results []Match
	for _, m := range shortlist {
		if m.Similarity >= minSimilarity {
			results = append(results, m)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	return results
}

func (r *Resolver) applyRerank(ctx context.Context, name string, shortlist []Match) {
	candidates := make([]rerank.SearchResult, len(shortlist))
	for i, m := range shortlist {
		candidates[i] = rerank.SearchResult{ID: m.Entity.ID, Content: m.Entity.Name}
	}

	reranked, err := r.reranker.Rerank(ctx, name, candidates, &rerank.RerankOptions{TopK: len(candidates)})
	if err != nil {
		r.logger.Warn("resolver rerank phase failed, keeping levenshtein scores", map[string]interface{}{"error": err.Error()})
		return
	}

	scoreByID := make(map[string]float64, len(reranked))
	for _, rr := range reranked {
		scoreByID[rr.ID] = float64(rr.Score)
	}
	for i := range shortlist {
		if score, ok := scoreByID[shortlist[i].Entity.ID]; ok && score > shortlist[i].Similarity {
			shortlist[i].Similarity = score
		}
	}
}

// Merge folds candidateName and candidateSalience into target: the name
// is appended as an alias (no duplicates), mention_count increments, and
// salience is averaged with the new observation.
func Merge(target *memmodel.ExtractedEntity, candidateName string, candidateSalience float64) {
	target.AddAlias(candidateName)
	target.MentionCount++
	target.Salience = (target.Salience + candidateSalience) / 2
}

func normalize(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}

// levenshteinSimilarity returns 1 - dist/max(len(a),len(b)).
func levenshteinSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	dist := levenshteinDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
	}
	for i := 0; i <= len(s1); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			matrix[i][j] = minInt(
				matrix[i-1][j]+1,
				matrix[i][j-1]+1,
				matrix[i-1][j-1]+cost,
			)
		}
	}

	return matrix[len(s1)][len(s2)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
