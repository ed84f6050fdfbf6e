package embedpipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/adverant/nexus-memory/pkg/memerr"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/stretchr/testify/assert"
)

type fakeEmbedder struct {
	name   string
	fail   int
	calls  int
	vector []float32
}

func (f *fakeEmbedder) Name() string { return f.name }

func (f *fakeEmbedder) Embed(ctx context.Context, text, model string) ([]float32, error) {
	f.calls++
	if f.calls <= f.fail {
		return nil, errors.New("transient failure")
	}
	return f.vector, nil
}

func validVector() []float32 {
	v := make([]float32, memmodel.VectorDimension)
	for i := range v {
		v[i] = 0.001
	}
	return v
}

func TestEmbedSucceedsOnPrimary(t *testing.T) {
	p := NewPipeline(&fakeEmbedder{name: "primary", vector: validVector()}, nil, "m", nil, nil)
	vec, err := p.Embed(context.Background(), "hello world")
	assert.NoError(t, err)
	assert.Len(t, vec, memmodel.VectorDimension)
}

func TestEmbedRetriesThenSucceeds(t *testing.T) {
	e := &fakeEmbedder{name: "primary", fail: 2, vector: validVector()}
	p := NewPipeline(e, nil, "m", nil, nil)
	vec, err := p.Embed(context.Background(), "hello world")
	assert.NoError(t, err)
	assert.Len(t, vec, memmodel.VectorDimension)
	assert.Equal(t, 3, e.calls)
}

func TestEmbedFallsBackToSecondaryEmbedder(t *testing.T) {
	primary := &fakeEmbedder{name: "primary", fail: 99}
	fallback := &fakeEmbedder{name: "fallback", vector: validVector()}
	p := NewPipeline(primary, fallback, "m", nil, nil)
	vec, err := p.Embed(context.Background(), "hello world")
	assert.NoError(t, err)
	assert.Len(t, vec, memmodel.VectorDimension)
	assert.Equal(t, 3, primary.calls)
}

func TestEmbedReturnsTypedErrorWhenAllEmbeddersExhausted(t *testing.T) {
	primary := &fakeEmbedder{name: "primary", fail: 99}
	fallback := &fakeEmbedder{name: "fallback", fail: 99}
	p := NewPipeline(primary, fallback, "m", nil, nil)
	_, err := p.Embed(context.Background(), "hello world")
	assert.Error(t, err)
	kind, ok := memerr.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, memerr.KindEmbeddingUnavailable, kind)
}
