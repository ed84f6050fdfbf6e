// Package classifier assigns an EntityType to a candidate entity name,
// consulting a name cache, a cross-encoder reranker, and an LLM in turn.
package classifier

import (
	"context"
	"regexp"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adverant/nexus-memory/pkg/embedding/rerank"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/observability"
)

// LLMClassifier returns a type/confidence pair for a single entity name,
// or for a batch of names keyed by name.
type LLMClassifier interface {
	Classify(ctx context.Context, names []string) (map[string]Classification, error)
}

// Classification is the outcome of classifying one entity name.
type Classification struct {
	Type       memmodel.EntityType
	Confidence float64
}

const nameCacheSize = 4096

// mediumRerankThreshold is the minimum cross-encoder score (on the
// provider's 0..1 relevance scale) a tier-2 candidate type must clear to
// win without falling through to the LLM tier.
const mediumRerankThreshold = 0.55

var curatedNames = map[string]Classification{
	"python":     {memmodel.EntityTechnology, 0.99},
	"golang":     {memmodel.EntityTechnology, 0.99},
	"go":         {memmodel.EntityTechnology, 0.99},
	"javascript": {memmodel.EntityTechnology, 0.99},
	"typescript": {memmodel.EntityTechnology, 0.99},
	"kubernetes": {memmodel.EntityTechnology, 0.99},
	"docker":     {memmodel.EntityTechnology, 0.99},
	"postgres":   {memmodel.EntityTechnology, 0.99},
	"postgresql": {memmodel.EntityTechnology, 0.99},
	"redis":      {memmodel.EntityTechnology, 0.99},
	"aws":        {memmodel.EntityOrganization, 0.99},
	"google":     {memmodel.EntityOrganization, 0.99},
	"microsoft":  {memmodel.EntityOrganization, 0.99},
	"anthropic":  {memmodel.EntityOrganization, 0.99},
	"openai":     {memmodel.EntityOrganization, 0.99},
	"new york":   {memmodel.EntityLocation, 0.99},
	"london":     {memmodel.EntityLocation, 0.99},
	"san francisco": {memmodel.EntityLocation, 0.99},
}

var (
	filePathPattern = regexp.MustCompile(`^[\w./-]+\.(go|py|js|ts|tsx|jsx|java|rb|rs|c|cpp|h|hpp|yaml|yml|json|md|sql)$`)
	funcNamePattern = regexp.MustCompile(`^[a-z][a-zA-Z0-9]*[A-Z][a-zA-Z0-9]*$`)
	techNamePattern = regexp.MustCompile(`(?i)^(api|sdk|cli|http|grpc|sql|json|yaml|oauth|jwt|tls|ssh)$`)
	locationSuffix  = regexp.MustCompile(`(?i)(city|county|state|country|street|ave|road)$`)
	twoTokenName    = regexp.MustCompile(`^[A-Z][a-z]+ [A-Z][a-z]+$`)
)

// Classifier is the 3-tier entity classifier.
type Classifier struct {
	mu       sync.RWMutex
	cache    *lru.Cache[string, Classification]
	reranker rerank.Reranker
	llm      LLMClassifier
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// New builds a Classifier. reranker and llm may be nil; when both are
// nil only the name cache and heuristic tiebreak apply.
func New(reranker rerank.Reranker, llm LLMClassifier, logger observability.Logger, metrics observability.MetricsClient) *Classifier {
	cache, _ := lru.New[string, Classification](nameCacheSize)
	for name, c := range curatedNames {
		cache.Add(name, c)
	}
	if logger == nil {
		logger = observability.NewLogger("classifier")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &Classifier{cache: cache, reranker: reranker, llm: llm, logger: logger, metrics: metrics}
}

// Classify returns a type and confidence for name, consulting the name
// cache, then the cross-encoder reranker, then the LLM, in order. The
// heuristic tiebreak is the terminal fallback when no tier produces a
// confident result.
func (c *Classifier) Classify(ctx context.Context, name string) (memmodel.EntityType, float64) {
	key := strings.ToLower(strings.TrimSpace(name))

	if cached, ok := c.cache.Get(key); ok {
		c.metrics.IncrementCounter("classifier.tier.cache_hit", 1)
		return cached.Type, cached.Confidence
	}

	if c.reranker != nil {
		if t, conf, ok := c.classifyByRerank(ctx, name); ok {
			c.cache.Add(key, Classification{t, conf})
			c.metrics.IncrementCounter("classifier.tier.rerank_hit", 1)
			return t, conf
		}
	}

	if c.llm != nil {
		results, err := c.llm.Classify(ctx, []string{name})
		if err != nil {
			c.logger.Warn("llm classification failed, falling back to heuristic", map[string]interface{}{"error": err.Error()})
		} else if result, ok := results[name]; ok {
			c.cache.Add(key, result)
			c.metrics.IncrementCounter("classifier.tier.llm_hit", 1)
			return result.Type, result.Confidence
		}
	}

	c.metrics.IncrementCounter("classifier.tier.heuristic_hit", 1)
	return Heuristic(name), 0.5
}

var candidateTypes = []struct {
	typ  memmodel.EntityType
	desc string
}{
	{memmodel.EntityPerson, "a person's name"},
	{memmodel.EntityOrganization, "a company, institution, or organization"},
	{memmodel.EntityLocation, "a geographic place or location"},
	{memmodel.EntityTechnology, "a software technology, framework, language, or tool"},
	{memmodel.EntityConcept, "an abstract concept, idea, or topic"},
	{memmodel.EntityFile, "a source code file path"},
	{memmodel.EntityFunction, "a function, method, or code symbol name"},
}

func (c *Classifier) classifyByRerank(ctx context.Context, name string) (memmodel.EntityType, float64, bool) {
	results := make([]rerank.SearchResult, len(candidateTypes))
	for i, ct := range candidateTypes {
		results[i] = rerank.SearchResult{ID: string(ct.typ), Content: ct.desc}
	}

	reranked, err := c.reranker.Rerank(ctx, name, results, &rerank.RerankOptions{TopK: 1})
	if err != nil || len(reranked) == 0 {
		if err != nil {
			c.logger.Warn("cross-encoder classification failed", map[string]interface{}{"error": err.Error()})
		}
		return "", 0, false
	}

	top := reranked[0]
	if float64(top.Score) < mediumRerankThreshold {
		return "", 0, false
	}
	return memmodel.EntityType(top.ID), float64(top.Score), true
}

// Heuristic applies the tiebreak rules used when both the reranker and
// the LLM are unavailable.
func Heuristic(name string) memmodel.EntityType {
	trimmed := strings.TrimSpace(name)
	switch {
	case filePathPattern.MatchString(trimmed):
		return memmodel.EntityFile
	case funcNamePattern.MatchString(trimmed):
		return memmodel.EntityFunction
	case techNamePattern.MatchString(trimmed):
		return memmodel.EntityTechnology
	case twoTokenName.MatchString(trimmed) && !locationSuffix.MatchString(trimmed):
		return memmodel.EntityPerson
	default:
		return memmodel.EntityOther
	}
}
