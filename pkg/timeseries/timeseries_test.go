package timeseries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name        string
		time        []int64
		data        []float64
		granularity int64
	}{
		{name: "length mismatch", time: []int64{0, 10}, data: []float64{1}, granularity: 10},
		{name: "zero granularity", time: []int64{0, 10}, data: []float64{1, 2}, granularity: 0},
		{name: "not increasing", time: []int64{0, 10, 10}, data: []float64{1, 2, 3}, granularity: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.time, tt.data, tt.granularity, false)
			assert.Error(t, err)
		})
	}
}

func TestResamplingPreservesGridValues(t *testing.T) {
	s, err := New([]int64{0, 10, 30, 40, 70}, []float64{1, 2, 5, 4, 7}, 10, false)
	require.NoError(t, err)

	r, err := s.EquallySpacedResampling()
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 10, 20, 30, 40, 50, 60, 70}, r.Time())
	for i, ts := range s.Time() {
		v, ok := r.ValueAt(ts)
		require.True(t, ok)
		assert.Equal(t, s.Values()[i], v, "value at %d changed", ts)
	}
}

func TestResamplingInterpolatesLinearly(t *testing.T) {
	s, err := New([]int64{0, 40}, []float64{0, 8}, 10, false)
	require.NoError(t, err)

	r, err := s.EquallySpacedResampling()
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 2, 4, 6, 8}, r.Values())
	assert.False(t, r.IsStep())
}

func TestResamplingForwardFillsSteps(t *testing.T) {
	s, err := New([]int64{0, 30, 40}, []float64{1, 0, 1}, 10, true)
	require.NoError(t, err)

	r, err := s.EquallySpacedResampling()
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 1, 1, 0, 1}, r.Values())
	assert.True(t, r.IsStep())
}

func TestResamplingRequiresTwoPoints(t *testing.T) {
	s, err := New([]int64{5}, []float64{1}, 10, false)
	require.NoError(t, err)

	_, err = s.EquallySpacedResampling()
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestAlignUsesCoarserGranularityAndOverlap(t *testing.T) {
	a, err := New([]int64{0, 10, 20, 30, 40, 50, 60}, []float64{0, 1, 2, 3, 4, 5, 6}, 10, false)
	require.NoError(t, err)
	b, err := New([]int64{20, 40, 60, 80}, []float64{1, 1, 0, 0}, 20, true)
	require.NoError(t, err)

	aligned, err := Align(a, b, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(20), aligned.Granularity)
	assert.Equal(t, []int64{20, 40, 60}, aligned.Time)
	assert.Equal(t, []float64{2, 4, 6}, aligned.A)
	assert.Equal(t, []float64{1, 1, 0}, aligned.B)
	assert.Len(t, aligned.A, len(aligned.B))
}

func TestAlignWithoutOverlap(t *testing.T) {
	a, err := New([]int64{0, 10}, []float64{1, 1}, 10, true)
	require.NoError(t, err)
	b, err := New([]int64{20, 30}, []float64{1, 1}, 10, true)
	require.NoError(t, err)

	_, err = Align(a, b, 0)
	assert.ErrorIs(t, err, ErrNoOverlap)
}

func TestSeriesIsNotMutatedByAccessors(t *testing.T) {
	s, err := New([]int64{0, 10}, []float64{1, 2}, 10, false)
	require.NoError(t, err)

	values := s.Values()
	values[0] = 99
	_, v := s.At(0)
	assert.Equal(t, 1.0, v)
}
