package memmodel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateVectorRejectsWrongDimension(t *testing.T) {
	err := ValidateVector(make([]float32, 512))
	assert.ErrorContains(t, err, "1024")
}

func TestValidateVectorRejectsNaN(t *testing.T) {
	v := make([]float32, VectorDimension)
	v[3] = float32(math.NaN())
	err := ValidateVector(v)
	assert.ErrorContains(t, err, "component 3")
}

func TestValidateVectorAcceptsValidVector(t *testing.T) {
	v := make([]float32, VectorDimension)
	for i := range v {
		v[i] = 0.01
	}
	assert.NoError(t, ValidateVector(v))
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 1.0, Clamp01(1.5))
	assert.Equal(t, 0.4, Clamp01(0.4))
}
