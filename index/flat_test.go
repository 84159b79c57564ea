package index

import (
	"testing"

	"github.com/poiesic/semindex/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rows(neighbors []Neighbor) []int {
	out := make([]int, len(neighbors))
	for i, n := range neighbors {
		out[i] = n.Row
	}
	return out
}

func TestNewFlat(t *testing.T) {
	_, err := NewFlat(core.MetricInnerProduct, 0)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = NewFlat("cosine", 3)
	assert.ErrorIs(t, err, core.ErrValidation)

	f, err := NewFlat(core.MetricL2, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, 3, f.Dim())
	assert.Equal(t, core.MetricL2, f.Metric())
}

func TestFlat_Add(t *testing.T) {
	f, err := NewFlat(core.MetricInnerProduct, 2)
	require.NoError(t, err)

	require.NoError(t, f.Add([]float32{1, 0}, []float32{0, 1}))
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, []float32{0, 1}, f.Row(1))

	err = f.Add([]float32{1, 1}, []float32{1, 1, 1})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.Equal(t, 2, f.Len(), "failed add must not append any row")
}

func TestFlat_Search(t *testing.T) {
	t.Run("inner product ranks descending", func(t *testing.T) {
		f, err := NewFlat(core.MetricInnerProduct, 2)
		require.NoError(t, err)
		require.NoError(t, f.Add([]float32{0, 1}, []float32{1, 0}, []float32{0.6, 0.8}))

		got, err := f.Search([]float32{1, 0}, 3)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 0}, rows(got))
		assert.InDelta(t, 1.0, got[0].Score, 1e-6)
		assert.InDelta(t, 0.6, got[1].Score, 1e-6)
	})

	t.Run("l2 ranks ascending", func(t *testing.T) {
		f, err := NewFlat(core.MetricL2, 2)
		require.NoError(t, err)
		require.NoError(t, f.Add([]float32{5, 5}, []float32{1, 1}, []float32{2, 2}))

		got, err := f.Search([]float32{0, 0}, 2)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, rows(got))
		assert.InDelta(t, 2.0, got[0].Score, 1e-6)
	})

	t.Run("ties keep row order", func(t *testing.T) {
		f, err := NewFlat(core.MetricInnerProduct, 1)
		require.NoError(t, err)
		require.NoError(t, f.Add([]float32{1}, []float32{1}, []float32{1}))

		got, err := f.Search([]float32{1}, 3)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, rows(got))
	})

	t.Run("k larger than rows returns all", func(t *testing.T) {
		f, err := NewFlat(core.MetricInnerProduct, 1)
		require.NoError(t, err)
		require.NoError(t, f.Add([]float32{1}, []float32{2}))

		got, err := f.Search([]float32{1}, 10)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("query dimension mismatch", func(t *testing.T) {
		f, err := NewFlat(core.MetricInnerProduct, 2)
		require.NoError(t, err)
		_, err = f.Search([]float32{1}, 1)
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	})
}
