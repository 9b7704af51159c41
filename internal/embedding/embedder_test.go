package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestL2Normalize(t *testing.T) {
	v := []float32{3, 4}
	L2Normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	L2Normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestBatches(t *testing.T) {
	got := Batches([]string{"a", "b", "c", "d", "e"}, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, got)
	assert.Len(t, Batches([]string{"a", "b"}, 0), 1)
	assert.Empty(t, Batches(nil, 3))
}
