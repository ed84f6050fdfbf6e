package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitIntoChunksSingleChunkWhenShort(t *testing.T) {
	chunks := splitIntoChunks("a short memory")
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short memory", chunks[0].Content)
}

func TestSplitIntoChunksWindowsLongContent(t *testing.T) {
	content := strings.Repeat("x", 2500)
	chunks := splitIntoChunks(content)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), ChunkSize)
	}
}

func TestSplitIntoChunksOverlap(t *testing.T) {
	content := strings.Repeat("x", 2200)
	chunks := splitIntoChunks(content)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, chunks[0].End-ChunkOverlap, chunks[1].Start)
}

func TestEstimateTokensRoughlyFourCharsPerToken(t *testing.T) {
	tokens := estimateTokens(strings.Repeat("a", 2000))
	assert.InDelta(t, 500, tokens, 1)
}
