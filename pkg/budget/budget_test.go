package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManagerReservesOverhead(t *testing.T) {
	m := New(1000)
	stats := m.GetStats()
	assert.Equal(t, 100, stats.Overhead)
	assert.Equal(t, 900, stats.Available)
}

func TestManagerAllocateWithinBudget(t *testing.T) {
	m := New(1000)
	assert.True(t, m.Allocate(400))
	assert.True(t, m.Allocate(400))
	assert.Equal(t, 100, m.Available())
}

func TestManagerAllocateRejectsOverBudget(t *testing.T) {
	m := New(1000)
	assert.True(t, m.Allocate(800))
	assert.False(t, m.Allocate(200))
	assert.Equal(t, 800, m.GetStats().Used)
}

func TestManagerAllocateRejectsNegative(t *testing.T) {
	m := New(1000)
	assert.False(t, m.Allocate(-5))
}

func TestManagerIsExhausted(t *testing.T) {
	m := New(1000)
	assert.False(t, m.IsExhausted())
	m.Allocate(870)
	assert.True(t, m.IsExhausted())
}

func TestManagerZeroTotalIsExhausted(t *testing.T) {
	m := New(0)
	assert.True(t, m.IsExhausted())
	assert.False(t, m.Allocate(1))
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		minCount int
		maxCount int
	}{
		{name: "empty text", text: "", minCount: 0, maxCount: 0},
		{name: "single word", text: "Hello", minCount: 1, maxCount: 1},
		{name: "simple sentence", text: "This is a simple sentence.", minCount: 6, maxCount: 8},
		{name: "punctuation heavy", text: "Hello, world! How are you?", minCount: 6, maxCount: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := EstimateTokens(tt.text)
			assert.GreaterOrEqual(t, count, tt.minCount)
			assert.LessOrEqual(t, count, tt.maxCount)
		})
	}
}

func TestEstimateJSONTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateJSONTokens(0))
	assert.Greater(t, EstimateJSONTokens(400), EstimateJSONTokens(200))
}
