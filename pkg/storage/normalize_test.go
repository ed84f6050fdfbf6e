package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeContentCollapsesWhitespace(t *testing.T) {
	out, err := NormalizeContent("hello   \t\n  world   this is fine")
	require.NoError(t, err)
	assert.Equal(t, "hello world this is fine", out)
}

func TestNormalizeContentStripsControlChars(t *testing.T) {
	out, err := NormalizeContent("hello\x00\x01world this has enough length")
	require.NoError(t, err)
	assert.NotContains(t, out, "\x00")
}

func TestNormalizeContentRejectsTooShort(t *testing.T) {
	_, err := NormalizeContent("hi")
	require.Error(t, err)
}

func TestNormalizeContentTruncatesTooLong(t *testing.T) {
	long := strings.Repeat("a", 9000)
	out, err := NormalizeContent(long)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 8000)
}

func TestContentHashIsStableAndSixteenHex(t *testing.T) {
	h1 := ContentHash("some normalized content")
	h2 := ContentHash("some normalized content")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)
}

func TestContentHashDiffersForDifferentContent(t *testing.T) {
	h1 := ContentHash("content one")
	h2 := ContentHash("content two")
	assert.NotEqual(t, h1, h2)
}
