// Package recall implements the Recall Engine: it turns a tenant-scoped
// query into a token-budgeted set of episodes, combining vector
// similarity, graph-adjacent entities/facts, recency, and importance
// into a single hybrid score, with an optional cross-encoder rerank
// pass and a page-anchor override for document-chunk lookups.
package recall

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/adverant/nexus-memory/pkg/embedpipeline"
	"github.com/adverant/nexus-memory/pkg/embedding/rerank"
	"github.com/adverant/nexus-memory/pkg/memerr"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/observability"
	"github.com/adverant/nexus-memory/pkg/storage"
)

// RelationalStore hydrates full episode records and supplies the
// fallback and temporal-context candidate lists the vector/graph steps
// cannot provide on their own.
type RelationalStore interface {
	// GetByIDs returns the full episode records for a vector search's
	// point ids, in no particular order; missing ids are silently
	// omitted rather than erroring the whole recall.
	GetByIDs(ctx context.Context, tenant memmodel.TenantContext, ids []string) ([]memmodel.Episode, error)
	// ListRecentNonConsolidated returns up to limit non-consolidated
	// episodes ordered by recency, for the vector-search-unavailable
	// fallback path.
	ListRecentNonConsolidated(ctx context.Context, tenant memmodel.TenantContext, limit int) ([]memmodel.Episode, error)
	// ListTemporalContext returns up to beforeN episodes immediately
	// preceding anchor and up to afterN immediately following it,
	// each ordered nearest-to-anchor first.
	ListTemporalContext(ctx context.Context, tenant memmodel.TenantContext, anchor memmodel.Episode, beforeN, afterN int) ([]memmodel.Episode, []memmodel.Episode, error)
}

// GraphReader fetches the entities, facts, and typed edges adjacent to
// one candidate episode.
type GraphReader interface {
	FetchContext(ctx context.Context, tenant memmodel.TenantContext, episodeID string) (GraphContext, error)
}

// GraphContext is one candidate episode's graph neighborhood.
type GraphContext struct {
	Entities []memmodel.ExtractedEntity
	Facts    []memmodel.ExtractedFact
	Edges    []memmodel.Edge
}

// PageAnchorStore resolves a literal "page N" query to the document
// chunks tagged with that page number, bypassing vector search
// entirely. A nil PageAnchorStore disables the page-anchor override:
// page-pattern queries fall through to ordinary vector recall.
type PageAnchorStore interface {
	FindByPage(ctx context.Context, tenant memmodel.TenantContext, page int) ([]memmodel.VectorRecord, error)
}

// defaultMaxResults is how many episodes a query returns when the
// caller does not specify a limit.
const defaultMaxResults = 10

// vectorFetchMultiplier is how many more candidates than maxResults the
// vector search step fetches, to leave room for post-filtering.
const vectorFetchMultiplier = 3

// Config holds the score thresholds and bounds that vary per
// deployment; callers wire these from their own configuration layer
// with the defaults below.
type Config struct {
	ScoreThresholdEpisodic float64
	ScoreThresholdUnified  float64
	RerankShortlistMax     int
}

// DefaultConfig returns the threshold values used when a deployment has
// not overridden them.
func DefaultConfig() Config {
	return Config{
		ScoreThresholdEpisodic: 0.5,
		ScoreThresholdUnified:  0.15,
		RerankShortlistMax:     30,
	}
}

// Engine runs the recall pipeline for one tenant at a time.
type Engine struct {
	vector     storage.VectorStore
	relational RelationalStore
	graph      GraphReader
	pageAnchor PageAnchorStore
	embedder   *embedpipeline.Pipeline
	reranker   rerank.Reranker
	cfg        Config
	logger     observability.Logger
	metrics    observability.MetricsClient
}

// New builds an Engine. graph, pageAnchor, and reranker may be nil to
// disable the steps they back.
func New(
	vector storage.VectorStore,
	relational RelationalStore,
	graph GraphReader,
	pageAnchor PageAnchorStore,
	embedder *embedpipeline.Pipeline,
	reranker rerank.Reranker,
	cfg Config,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *Engine {
	if cfg.ScoreThresholdEpisodic == 0 {
		cfg.ScoreThresholdEpisodic = DefaultConfig().ScoreThresholdEpisodic
	}
	if cfg.ScoreThresholdUnified == 0 {
		cfg.ScoreThresholdUnified = DefaultConfig().ScoreThresholdUnified
	}
	if cfg.RerankShortlistMax <= 0 {
		cfg.RerankShortlistMax = DefaultConfig().RerankShortlistMax
	}
	if logger == nil {
		logger = observability.NewLogger("recall")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &Engine{
		vector:     vector,
		relational: relational,
		graph:      graph,
		pageAnchor: pageAnchor,
		embedder:   embedder,
		reranker:   reranker,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
	}
}

// ResponseLevel controls how much detail an assembled episode carries.
type ResponseLevel string

const (
	LevelSummary ResponseLevel = "summary"
	LevelMedium  ResponseLevel = "medium"
	LevelFull    ResponseLevel = "full"
)

// Weights are the hybrid-score component weights. They are renormalized
// to sum to 1.0 if a caller-supplied set does not.
type Weights struct {
	Vector     float64
	Entity     float64
	Recency    float64
	Importance float64
}

// DefaultWeights are applied when a Query carries no weights or weights
// that sum to zero. Otherwise the caller's set is used as given (zero
// components stay zero) and renormalized.
func DefaultWeights() Weights {
	return Weights{Vector: 0.4, Entity: 0.25, Recency: 0.2, Importance: 0.15}
}

func (w Weights) normalized() Weights {
	sum := w.Vector + w.Entity + w.Recency + w.Importance
	if sum <= 0 {
		return DefaultWeights()
	}
	if sum == 1.0 {
		return w
	}
	return Weights{
		Vector:     w.Vector / sum,
		Entity:     w.Entity / sum,
		Recency:    w.Recency / sum,
		Importance: w.Importance / sum,
	}
}

// Query is the input to Recall.
type Query struct {
	Tenant        memmodel.TenantContext
	Text          string
	ResponseLevel ResponseLevel
	MaxTokens     int
	MaxResults    int
	Weights       *Weights
	// Unified controls which score threshold applies to the vector
	// search step: Unified search spans memories and document chunks
	// (threshold 0.15); episodic-only search uses the stricter 0.5.
	Unified bool
}

// AssembledEpisode is one episode shaped for the response.
type AssembledEpisode struct {
	Episode         memmodel.Episode
	Score           memmodel.HybridScore
	Entities        []memmodel.ExtractedEntity
	Facts           []memmodel.ExtractedFact
	TemporalContext []string
}

// Result is the outcome of Recall.
type Result struct {
	Episodes          []AssembledEpisode
	TokenLimitReached bool
	QueryEntities     []string
}

// candidate is an episode mid-pipeline, before final assembly.
type candidate struct {
	episode memmodel.Episode
	graph   GraphContext
	score   memmodel.HybridScore
}

var pageAnchorPattern = regexp.MustCompile(`(?i)\bpage\s+(\d+)\b`)

// Recall runs the full pipeline: budget init, query-entity extraction,
// weight merge, query embedding, vector search, graph fetch, hybrid
// scoring, optional rerank, page-anchor override, and token-budgeted
// assembly.
func (e *Engine) Recall(ctx context.Context, q Query) (*Result, error) {
	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	weights := DefaultWeights()
	if q.Weights != nil {
		weights = q.Weights.normalized()
	}

	queryEntities := ExtractQueryEntities(q.Text)

	if page, ok := matchPageAnchor(q.Text); ok && e.pageAnchor != nil {
		return e.recallPageAnchor(ctx, q, page, queryEntities)
	}

	candidates, err := e.gatherCandidates(ctx, q, maxResults)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range candidates {
		candidates[i].score = scoreCandidate(candidates[i], queryEntities, weights, now)
	}

	candidates = e.maybeRerank(ctx, q.Text, candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score.FinalScore > candidates[j].score.FinalScore
	})

	return e.assemble(ctx, q, candidates, queryEntities)
}

// gatherCandidates runs the embedding + vector-search step, falling
// back to a recency-ordered relational list (scored later by a fixed
// bucket table) when the embedder or vector store cannot answer, then
// hydrates each candidate's graph neighborhood.
func (e *Engine) gatherCandidates(ctx context.Context, q Query, maxResults int) ([]candidate, error) {
	threshold := e.cfg.ScoreThresholdEpisodic
	if q.Unified {
		threshold = e.cfg.ScoreThresholdUnified
	}
	fetchLimit := maxResults * vectorFetchMultiplier

	episodes, scores, _, err := e.vectorOrFallback(ctx, q, threshold, fetchLimit)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(episodes))
	for i, ep := range episodes {
		gc := GraphContext{}
		if e.graph != nil {
			fetched, ferr := e.graph.FetchContext(ctx, q.Tenant, ep.ID)
			if ferr != nil {
				e.logger.Warn("graph context fetch failed", map[string]interface{}{"error": ferr.Error(), "episode_id": ep.ID})
			} else {
				gc = fetched
			}
		}
		c := candidate{episode: ep, graph: gc}
		c.score.VectorSimilarity = scores[i]
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (e *Engine) vectorOrFallback(ctx context.Context, q Query, threshold float64, fetchLimit int) ([]memmodel.Episode, []float64, bool, error) {
	vec, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		if kind, ok := memerr.KindOf(err); !ok || kind != memerr.KindEmbeddingUnavailable {
			return nil, nil, false, err
		}
		e.logger.Warn("query embedding unavailable, using recency fallback", map[string]interface{}{"error": err.Error()})
		return e.fallbackCandidates(ctx, q, fetchLimit)
	}

	records, err := e.vector.FindSimilar(ctx, q.Tenant, vec, threshold, fetchLimit)
	if err != nil {
		e.logger.Warn("vector search failed, using recency fallback", map[string]interface{}{"error": err.Error()})
		return e.fallbackCandidates(ctx, q, fetchLimit)
	}
	if len(records) == 0 {
		return nil, nil, false, nil
	}

	ids := make([]string, len(records))
	scoreByID := make(map[string]float64, len(records))
	for i, r := range records {
		ids[i] = r.PointID
		scoreByID[r.PointID] = r.Score
	}

	episodes, err := e.relational.GetByIDs(ctx, q.Tenant, ids)
	if err != nil {
		return nil, nil, false, err
	}
	scores := make([]float64, len(episodes))
	for i, ep := range episodes {
		scores[i] = scoreByID[ep.ID]
	}
	return episodes, scores, false, nil
}

// fallbackBuckets are the fixed similarity stand-ins used when vector
// search is unavailable, assigned by recency rank.
var fallbackBuckets = []float64{0.95, 0.75, 0.55, 0.5, 0.4, 0.3, 0.2}

func (e *Engine) fallbackCandidates(ctx context.Context, q Query, limit int) ([]memmodel.Episode, []float64, bool, error) {
	episodes, err := e.relational.ListRecentNonConsolidated(ctx, q.Tenant, limit)
	if err != nil {
		return nil, nil, false, err
	}
	scores := make([]float64, len(episodes))
	for i := range episodes {
		bucket := fallbackBuckets[len(fallbackBuckets)-1]
		if i < len(fallbackBuckets) {
			bucket = fallbackBuckets[i]
		}
		scores[i] = bucket
	}
	return episodes, scores, true, nil
}

func matchPageAnchor(query string) (int, bool) {
	m := pageAnchorPattern.FindStringSubmatch(query)
	if m == nil {
		return 0, false
	}
	n := 0
	for _, r := range m[1] {
		n = n*10 + int(r-'0')
	}
	return n, true
}

func (e *Engine) maybeRerank(ctx context.Context, query string, candidates []candidate) []candidate {
	if e.reranker == nil || len(candidates) < 2 {
		return candidates
	}

	shortlistN := len(candidates)
	if shortlistN > e.cfg.RerankShortlistMax {
		shortlistN = e.cfg.RerankShortlistMax
	}
	shortlist := candidates[:shortlistN]
	rest := candidates[shortlistN:]

	results := make([]rerank.SearchResult, len(shortlist))
	for i, c := range shortlist {
		results[i] = rerank.SearchResult{
			ID:      c.episode.ID,
			Content: c.episode.Content,
			Score:   float32(c.score.FinalScore),
		}
	}

	reranked, err := e.reranker.Rerank(ctx, query, results, &rerank.RerankOptions{TopK: shortlistN})
	if err != nil {
		e.logger.Warn("rerank failed, keeping hybrid-score order", map[string]interface{}{"error": err.Error()})
		return candidates
	}

	byID := make(map[string]candidate, len(shortlist))
	for _, c := range shortlist {
		byID[c.episode.ID] = c
	}
	out := make([]candidate, 0, len(candidates))
	for _, r := range reranked {
		c, ok := byID[r.ID]
		if !ok {
			continue
		}
		c.score.FinalScore = memmodel.Clamp01(float64(r.Score))
		out = append(out, c)
	}
	out = append(out, rest...)
	return out
}
