package extractor

import (
	"context"
	"testing"
	"time"

	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
}

type fakeLLMExtractor struct {
	entities []RawEntity
	err      error
}

func (f *fakeLLMExtractor) ExtractEntities(ctx context.Context, excerpt string) ([]RawEntity, error) {
	return f.entities, f.err
}

func TestExtractRegexFallbackFindsCapitalizedNames(t *testing.T) {
	e := New(nil, nil, 0, 0, nil, nil)
	entities, _ := e.Extract(context.Background(), "Acme Corp hired Jane Doe last month.", fixedNow())

	var names []string
	for _, en := range entities {
		names = append(names, en.Name)
	}
	assert.Contains(t, names, "Acme Corp")
	assert.Contains(t, names, "Jane Doe")
}

func TestExtractDropsStopwordsFromRegexFallback(t *testing.T) {
	e := New(nil, nil, 0, 0, nil, nil)
	entities, _ := e.Extract(context.Background(), "The team met on Monday to discuss plans.", fixedNow())
	for _, en := range entities {
		assert.NotEqual(t, "The", en.Name)
		assert.NotEqual(t, "Monday", en.Name)
	}
}

func TestExtractUsesLLMPathWhenAvailable(t *testing.T) {
	llm := &fakeLLMExtractor{entities: []RawEntity{
		{Name: "Acme Corp", Type: "organization", Confidence: 0.95},
	}}
	e := New(llm, nil, 0.5, 0, nil, nil)
	entities, _ := e.Extract(context.Background(), "irrelevant content", fixedNow())
	require.Len(t, entities, 1)
	assert.Equal(t, memmodel.EntityOrganization, entities[0].Type)
}

func TestExtractCoercesUnknownTypeToOther(t *testing.T) {
	llm := &fakeLLMExtractor{entities: []RawEntity{
		{Name: "Widget", Type: "bogus_type", Confidence: 0.9},
	}}
	e := New(llm, nil, 0.5, 0, nil, nil)
	entities, _ := e.Extract(context.Background(), "irrelevant content", fixedNow())
	require.Len(t, entities, 1)
	assert.Equal(t, memmodel.EntityOther, entities[0].Type)
}

func TestExtractRejectsEntitiesBelowMinConfidence(t *testing.T) {
	llm := &fakeLLMExtractor{entities: []RawEntity{
		{Name: "Widget", Type: "organization", Confidence: 0.1},
	}}
	e := New(llm, nil, 0.5, 0, nil, nil)
	entities, _ := e.Extract(context.Background(), "irrelevant content", fixedNow())
	assert.Empty(t, entities)
}

func TestExtractFallsBackToRegexOnLLMError(t *testing.T) {
	llm := &fakeLLMExtractor{err: assertError("llm down")}
	e := New(llm, nil, 0, 0, nil, nil)
	entities, _ := e.Extract(context.Background(), "Acme Corp shipped the release.", fixedNow())
	var names []string
	for _, en := range entities {
		names = append(names, en.Name)
	}
	assert.Contains(t, names, "Acme Corp")
}

func TestExtractFusesTemporalEntities(t *testing.T) {
	e := New(nil, nil, 0, 0, nil, nil)
	entities, _ := e.Extract(context.Background(), "We are meeting today to finalize Acme Corp's plan.", fixedNow())

	found := false
	for _, en := range entities {
		if en.Type == memmodel.EntityTemporal {
			found = true
			assert.Equal(t, memmodel.TemporalRelative, en.TemporalType)
			assert.Equal(t, "2026-07-31", en.NormalizedValue)
		}
	}
	assert.True(t, found, "expected a fused temporal entity")
}

func TestExtractCapsEntityListToMaxPerEpisode(t *testing.T) {
	e := New(nil, nil, 0, 2, nil, nil)
	entities, _ := e.Extract(context.Background(), "Acme Corp met Beta Inc and Gamma LLC and Delta Co today.", fixedNow())
	assert.LessOrEqual(t, len(entities), 2)
}

func TestExtractFactsParsesSubjectPredicateObject(t *testing.T) {
	e := New(nil, nil, 0, 0, nil, nil)
	_, facts := e.Extract(context.Background(), "Postgres uses write-ahead logging for durability.", fixedNow())
	require.NotEmpty(t, facts)
	assert.Equal(t, "uses", facts[0].Predicate)
}

func TestExtractFactsParsesDecisionMarker(t *testing.T) {
	e := New(nil, nil, 0, 0, nil, nil)
	_, facts := e.Extract(context.Background(), "The team decided to migrate the database next quarter.", fixedNow())
	require.NotEmpty(t, facts)
	assert.Equal(t, "decided to", facts[0].Predicate)
}

func TestExtractFactsDedupesCaseInsensitiveDuplicates(t *testing.T) {
	e := New(nil, nil, 0, 0, nil, nil)
	_, facts := e.Extract(context.Background(), "Postgres uses write-ahead logging. POSTGRES USES write-ahead logging.", fixedNow())
	count := 0
	for _, f := range facts {
		if f.Subject == "Postgres" {
			count++
		}
	}
	assert.LessOrEqual(t, count, 1)
}

func TestExtractFactsCapsAtMaxFactsPerEpisode(t *testing.T) {
	e := New(nil, nil, 0, 0, nil, nil)
	content := ""
	for i := 0; i < 15; i++ {
		content += "Thing" + string(rune('A'+i)) + " uses module" + string(rune('A'+i)) + " internally. "
	}
	_, facts := e.Extract(context.Background(), content, fixedNow())
	assert.LessOrEqual(t, len(facts), MaxFactsPerEpisode)
}

type assertError string

func (e assertError) Error() string { return string(e) }
