package memmodel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddAliasDedupes(t *testing.T) {
	e := ExtractedEntity{Name: "Jane Doe"}
	e.AddAlias("J. Doe")
	e.AddAlias("J. Doe")
	assert.Equal(t, []string{"J. Doe"}, e.Aliases)
}

func TestFactContent(t *testing.T) {
	assert.Equal(t, "Jane works_at Acme", FactContent("Jane", "works_at", "Acme"))
}

func TestFactDedupeKeyIsCaseInsensitive(t *testing.T) {
	a := ExtractedFact{Subject: "Jane", Predicate: "Works_At", Object: "ACME"}
	b := ExtractedFact{Subject: "jane", Predicate: "works_at", Object: "acme"}
	assert.Equal(t, a.DedupeKey(strings.ToLower), b.DedupeKey(strings.ToLower))
}
