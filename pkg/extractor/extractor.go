// Package extractor produces a tenant's entity and fact list from raw
// episode content, combining an LLM pass with a regex fallback.
package extractor

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/adverant/nexus-memory/pkg/classifier"
	"github.com/adverant/nexus-memory/pkg/memerr"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/observability"
	"github.com/adverant/nexus-memory/pkg/temporal"
)

// excerptLength bounds how much content the LLM path receives.
const excerptLength = 2000

// MaxFactsPerEpisode caps the fact list per episode.
const MaxFactsPerEpisode = 10

// DefaultMaxPerEpisode is the default entity-list cap before the
// configured maxPerEpisode override applies.
const DefaultMaxPerEpisode = 20

// LLMExtractor produces a raw entity list from a content excerpt via a
// single strict-JSON call.
type LLMExtractor interface {
	ExtractEntities(ctx context.Context, excerpt string) ([]RawEntity, error)
}

// RawEntity is the LLM's unvalidated output for one entity mention.
type RawEntity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

var validTypes = map[string]memmodel.EntityType{
	string(memmodel.EntityPerson):       memmodel.EntityPerson,
	string(memmodel.EntityOrganization): memmodel.EntityOrganization,
	string(memmodel.EntityLocation):     memmodel.EntityLocation,
	string(memmodel.EntityConcept):      memmodel.EntityConcept,
	string(memmodel.EntityTechnology):   memmodel.EntityTechnology,
	string(memmodel.EntityFile):         memmodel.EntityFile,
	string(memmodel.EntityFunction):     memmodel.EntityFunction,
	string(memmodel.EntityTemporal):     memmodel.EntityTemporal,
	string(memmodel.EntityOther):        memmodel.EntityOther,
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"it": {}, "its": {}, "they": {}, "them": {}, "their": {}, "we": {}, "our": {},
	"i": {}, "you": {}, "he": {}, "she": {}, "his": {}, "her": {},
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {}, "friday": {},
	"saturday": {}, "sunday": {}, "january": {}, "february": {}, "march": {},
	"april": {}, "may": {}, "june": {}, "july": {}, "august": {}, "september": {},
	"october": {}, "november": {}, "december": {},
}

var nonEntityPhrase = regexp.MustCompile(`(?i)^(the|a|an|this|that)\s`)

var capitalizedPhrase = regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]*(?:\s+[A-Z][a-zA-Z0-9]*)*)\b`)

var factPattern = regexp.MustCompile(
	`(?i)\b([A-Z][\w-]*(?:\s+[A-Z]?[\w-]*){0,3})\s+(is|are|uses|depends on|was|requires|supports)\s+([^.;\n]{5,100})`)

var decisionPattern = regexp.MustCompile(`(?i)\bdecided to\s+([^.;\n]{5,100})`)

// Extractor extracts entities and facts from episode content.
type Extractor struct {
	llm           LLMExtractor
	classifier    *classifier.Classifier
	minConfidence float64
	maxPerEpisode int
	logger        observability.Logger
	metrics       observability.MetricsClient
}

// New builds an Extractor. llm may be nil to force the regex fallback.
func New(llm LLMExtractor, cls *classifier.Classifier, minConfidence float64, maxPerEpisode int, logger observability.Logger, metrics observability.MetricsClient) *Extractor {
	if maxPerEpisode <= 0 {
		maxPerEpisode = DefaultMaxPerEpisode
	}
	if logger == nil {
		logger = observability.NewLogger("extractor")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &Extractor{llm: llm, classifier: cls, minConfidence: minConfidence, maxPerEpisode: maxPerEpisode, logger: logger, metrics: metrics}
}

// Extract returns the validated, capped entity list and fact list for
// content, fusing in temporal entities detected as of now.
func (e *Extractor) Extract(ctx context.Context, content string, now time.Time) ([]memmodel.ExtractedEntity, []memmodel.ExtractedFact) {
	entities := e.extractEntities(ctx, content)
	entities = e.fuseTemporal(entities, content, now)
	entities = capBySalience(entities, content, e.maxPerEpisode)
	facts := e.extractFacts(content)
	return entities, facts
}

func (e *Extractor) extractEntities(ctx context.Context, content string) []memmodel.ExtractedEntity {
	if e.llm != nil {
		excerpt := content
		if len(excerpt) > excerptLength {
			excerpt = excerpt[:excerptLength]
		}
		raw, err := e.llm.ExtractEntities(ctx, excerpt)
		if err == nil {
			return e.validate(raw)
		}
		e.logger.Warn("llm entity extraction failed, falling back to regex", map[string]interface{}{
			"error": memerr.Extraction("extract_entities", err).Error(),
		})
	}
	return e.regexFallback(ctx, content)
}

func (e *Extractor) validate(raw []RawEntity) []memmodel.ExtractedEntity {
	filterReasons := map[string]int{}
	var out []memmodel.ExtractedEntity
	for _, r := range raw {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			filterReasons["empty_name"]++
			continue
		}
		if isStopword(name) {
			filterReasons["stopword"]++
			continue
		}
		if nonEntityPhrase.MatchString(name) {
			filterReasons["non_entity_phrase"]++
			continue
		}

		conf := memmodel.Clamp01(r.Confidence)
		if conf < e.minConfidence {
			filterReasons["below_min_confidence"]++
			continue
		}

		typ, ok := validTypes[r.Type]
		if !ok {
			typ = memmodel.EntityOther
		}

		out = append(out, memmodel.ExtractedEntity{
			Name:         name,
			Type:         typ,
			Confidence:   conf,
			MentionCount: 1,
		})
	}
	for reason, count := range filterReasons {
		e.metrics.IncrementCounter("extractor.filter."+reason, float64(count))
	}
	return out
}

func (e *Extractor) regexFallback(ctx context.Context, content string) []memmodel.ExtractedEntity {
	seen := map[string]int{}
	var order []string
	for _, m := range capitalizedPhrase.FindAllString(content, -1) {
		name := strings.TrimSpace(m)
		if name == "" || isStopword(name) || nonEntityPhrase.MatchString(name) {
			continue
		}
		if _, ok := seen[name]; !ok {
			order = append(order, name)
		}
		seen[name]++
	}

	var out []memmodel.ExtractedEntity
	for _, name := range order {
		var typ memmodel.EntityType
		var conf float64
		if e.classifier != nil {
			typ, conf = e.classifier.Classify(ctx, name)
		} else {
			typ, conf = classifier.Heuristic(name), 0.5
		}
		out = append(out, memmodel.ExtractedEntity{
			Name:         name,
			Type:         typ,
			Confidence:   conf,
			MentionCount: seen[name],
		})
	}
	return out
}

func isStopword(name string) bool {
	_, ok := stopwords[strings.ToLower(name)]
	return ok
}

func (e *Extractor) fuseTemporal(entities []memmodel.ExtractedEntity, content string, now time.Time) []memmodel.ExtractedEntity {
	existing := make(map[string]struct{}, len(entities))
	for _, en := range entities {
		existing[strings.ToLower(en.Name)] = struct{}{}
	}

	for _, m := range temporal.Extract(content, now) {
		key := strings.ToLower(m.Text)
		if _, dup := existing[key]; dup {
			continue
		}
		existing[key] = struct{}{}
		entities = append(entities, memmodel.ExtractedEntity{
			Name:            m.Text,
			Type:            memmodel.EntityTemporal,
			TemporalType:    m.Type,
			NormalizedValue: m.NormalizedValue,
			Confidence:      0.9,
			MentionCount:    1,
		})
	}
	return entities
}

// salience = min( mentions*0.2 + (1 - firstPosition/len)*0.3, 1.0 )
func capBySalience(entities []memmodel.ExtractedEntity, content string, max int) []memmodel.ExtractedEntity {
	contentLen := len(content)
	if contentLen == 0 {
		contentLen = 1
	}
	for i := range entities {
		firstPos := strings.Index(content, entities[i].Name)
		if firstPos < 0 {
			firstPos = contentLen
		}
		entities[i].Salience = memmodel.Clamp01(
			float64(entities[i].MentionCount)*0.2 + (1-float64(firstPos)/float64(contentLen))*0.3,
		)
	}
	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Salience > entities[j].Salience })
	if len(entities) > max {
		entities = entities[:max]
	}
	return entities
}

func (e *Extractor) extractFacts(content string) []memmodel.ExtractedFact {
	seen := map[string]struct{}{}
	var facts []memmodel.ExtractedFact

	add := func(subject, predicate, object string) {
		subject = strings.TrimSpace(subject)
		predicate = strings.TrimSpace(predicate)
		object = strings.TrimSpace(object)
		if len(object) < 5 || len(object) > 100 {
			return
		}
		f := memmodel.ExtractedFact{Subject: subject, Predicate: predicate, Object: object}
		key := f.DedupeKey(strings.ToLower)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		f.Content = memmodel.FactContent(subject, predicate, object)
		f.Confidence = 0.7
		f.IsValid = true
		facts = append(facts, f)
	}

	for _, m := range factPattern.FindAllStringSubmatch(content, -1) {
		if len(facts) >= MaxFactsPerEpisode {
			break
		}
		add(m[1], strings.ToLower(m[2]), m[3])
	}
	for _, m := range decisionPattern.FindAllStringSubmatch(content, -1) {
		if len(facts) >= MaxFactsPerEpisode {
			break
		}
		add("decision", "decided to", m[1])
	}

	return facts
}
