package recall

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/adverant/nexus-memory/pkg/budget"
	"github.com/adverant/nexus-memory/pkg/memmodel"
)

// defaultMaxTokens bounds a recall response when the caller specifies
// no token budget.
const defaultMaxTokens = 4000

// summaryExcerptLength is how many characters of content stand in for
// an episode's summary when none was stored.
const summaryExcerptLength = 160

// recallPageAnchor bypasses vector search entirely for a literal
// "page N" query: it looks up document chunks tagged with that page
// number under a strict tenant filter and a zero score threshold,
// returning a synthetic "no results" episode if nothing matches.
func (e *Engine) recallPageAnchor(ctx context.Context, q Query, page int, queryEntities []string) (*Result, error) {
	records, err := e.pageAnchor.FindByPage(ctx, q.Tenant, page)
	if err != nil {
		return nil, fmt.Errorf("page anchor lookup: %w", err)
	}
	if len(records) == 0 {
		return &Result{
			QueryEntities: queryEntities,
			Episodes: []AssembledEpisode{{
				Episode: memmodel.Episode{
					MemoryItem: memmodel.MemoryItem{
						Content: fmt.Sprintf("No results found for page %d.", page),
					},
					Type: memmodel.EpisodeDocumentInteraction,
				},
			}},
		}, nil
	}

	ids := make([]string, len(records))
	scoreByID := make(map[string]float64, len(records))
	for i, r := range records {
		ids[i] = r.PointID
		scoreByID[r.PointID] = r.Score
	}

	episodes, err := e.relational.GetByIDs(ctx, q.Tenant, ids)
	if err != nil {
		return nil, err
	}

	weights := DefaultWeights()
	if q.Weights != nil {
		weights = q.Weights.normalized()
	}
	now := time.Now()

	candidates := make([]candidate, 0, len(episodes))
	for _, ep := range episodes {
		gc := GraphContext{}
		if e.graph != nil {
			if fetched, ferr := e.graph.FetchContext(ctx, q.Tenant, ep.ID); ferr == nil {
				gc = fetched
			}
		}
		c := candidate{episode: ep, graph: gc}
		c.score.VectorSimilarity = scoreByID[ep.ID]
		c.score = scoreCandidate(c, queryEntities, weights, now)
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score.FinalScore > candidates[j].score.FinalScore
	})

	return e.assemble(ctx, q, candidates, queryEntities)
}

// assemble shapes each candidate to the requested response level and
// draws it down against the token budget in descending score order,
// stopping (and setting TokenLimitReached) the moment an episode no
// longer fits. The first episode's surrounding temporal context is
// attached as plain-text summaries.
func (e *Engine) assemble(ctx context.Context, q Query, candidates []candidate, queryEntities []string) (*Result, error) {
	level := q.ResponseLevel
	if level == "" {
		level = LevelMedium
	}
	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	maxTokens := q.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	mgr := budget.New(maxTokens)
	result := &Result{QueryEntities: queryEntities}

	for i, c := range candidates {
		if len(result.Episodes) >= maxResults {
			break
		}

		ae := shapeEpisode(c, level)

		if i == 0 && e.relational != nil {
			before, after, terr := e.relational.ListTemporalContext(ctx, q.Tenant, c.episode, 3, 3)
			if terr != nil {
				e.logger.Warn("temporal context fetch failed", map[string]interface{}{"error": terr.Error()})
			} else {
				ae.TemporalContext = temporalSummaries(before, after)
			}
		}

		payload, err := json.Marshal(ae)
		if err != nil {
			return nil, fmt.Errorf("marshal assembled episode: %w", err)
		}
		cost := budget.EstimateJSONTokens(len(payload))
		if !mgr.Allocate(cost) {
			result.TokenLimitReached = true
			break
		}

		result.Episodes = append(result.Episodes, ae)
	}

	return result, nil
}

// shapeEpisode trims one candidate's content, entities, and facts to
// the detail appropriate for level: summary keeps only top-5 entity
// names and a short excerpt, medium keeps top-10 compact entities and
// facts, full keeps everything.
func shapeEpisode(c candidate, level ResponseLevel) AssembledEpisode {
	ae := AssembledEpisode{Episode: c.episode, Score: c.score}

	entities := append([]memmodel.ExtractedEntity(nil), c.graph.Entities...)
	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Salience > entities[j].Salience })
	facts := append([]memmodel.ExtractedFact(nil), c.graph.Facts...)
	sort.SliceStable(facts, func(i, j int) bool { return facts[i].Confidence > facts[j].Confidence })

	switch level {
	case LevelSummary:
		if c.episode.Summary != "" {
			ae.Episode.Content = c.episode.Summary
		} else {
			ae.Episode.Content = truncateContent(c.episode.Content, summaryExcerptLength)
		}
		ae.Entities = namesOnly(limitEntities(entities, 5))
	case LevelFull:
		ae.Entities = entities
		ae.Facts = facts
	default:
		ae.Entities = limitEntities(entities, 10)
		ae.Facts = limitFacts(facts, 10)
	}

	return ae
}

func namesOnly(entities []memmodel.ExtractedEntity) []memmodel.ExtractedEntity {
	out := make([]memmodel.ExtractedEntity, len(entities))
	for i, e := range entities {
		out[i] = memmodel.ExtractedEntity{Name: e.Name, Type: e.Type}
	}
	return out
}

func limitEntities(entities []memmodel.ExtractedEntity, n int) []memmodel.ExtractedEntity {
	if len(entities) > n {
		return entities[:n]
	}
	return entities
}

func limitFacts(facts []memmodel.ExtractedFact, n int) []memmodel.ExtractedFact {
	if len(facts) > n {
		return facts[:n]
	}
	return facts
}

func truncateContent(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func temporalSummaries(before, after []memmodel.Episode) []string {
	out := make([]string, 0, len(before)+len(after))
	for _, ep := range before {
		out = append(out, summaryLine(ep))
	}
	for _, ep := range after {
		out = append(out, summaryLine(ep))
	}
	return out
}

func summaryLine(ep memmodel.Episode) string {
	if ep.Summary != "" {
		return ep.Summary
	}
	return truncateContent(ep.Content, summaryExcerptLength)
}
