package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantisePath_Deterministic(t *testing.T) {
	v := testEmbedding(3)
	a := QuantisePath(v)
	b := QuantisePath(v)
	assert.Equal(t, a, b)
}

func TestQuantisePath_HasFourSegments(t *testing.T) {
	segs := QuantisePath(testEmbedding(1))
	assert.Len(t, segs, 4)
	for _, s := range segs {
		assert.NotEmpty(t, s)
	}
}

func TestQuantisePath_DifferentEmbeddingsUsuallyDiffer(t *testing.T) {
	a := QuantisePath(testEmbedding(1))
	b := QuantisePath(testEmbedding(-50))
	assert.NotEqual(t, a, b)
}
