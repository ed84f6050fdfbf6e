package recall

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractQueryEntitiesCapitalizedPhrase(t *testing.T) {
	got := ExtractQueryEntities("Tell me about Kubernetes and Amazon Web Services")
	assert.Contains(t, got, "Kubernetes")
	assert.Contains(t, got, "Amazon Web Services")
}

func TestExtractQueryEntitiesQuoted(t *testing.T) {
	got := ExtractQueryEntities(`what does "connection refused" mean`)
	assert.Contains(t, got, "connection refused")
}

func TestExtractQueryEntitiesCamelAndSnakeCase(t *testing.T) {
	got := ExtractQueryEntities("why does getUserById fail and user_id stay null")
	assert.Contains(t, got, "getUserById")
	assert.Contains(t, got, "user_id")
}

func TestExtractQueryEntitiesLongWordExcludesCommon(t *testing.T) {
	got := ExtractQueryEntities("can you explain the different configuration options available")
	assert.NotContains(t, got, "different")
	assert.Contains(t, got, "configuration")
}

func TestExtractQueryEntitiesDeduplicatesCaseInsensitive(t *testing.T) {
	got := ExtractQueryEntities("Kubernetes networking and kubernetes storage")
	count := 0
	for _, e := range got {
		if e == "Kubernetes" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
