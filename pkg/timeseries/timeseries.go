// Package timeseries holds the uniform-grid time series representation used by
// the data sampling pipeline, together with its resampling and alignment helpers.
package timeseries

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrTooShort is returned when a series has fewer than two points and cannot be resampled.
	ErrTooShort = errors.New("timeseries: at least two data points are required")

	// ErrNoOverlap is returned when two series share no common time range.
	ErrNoOverlap = errors.New("timeseries: series do not overlap in time")
)

// Series is an immutable time series on millisecond timestamps. Operations never
// mutate the receiver; they return new series.
type Series struct {
	time        []int64
	data        []float64
	granularity int64
	isStep      bool
}

// New creates a series from parallel timestamp and value slices. Timestamps must be
// strictly increasing and granularity (milliseconds) positive. The slices are copied.
func New(time []int64, data []float64, granularity int64, isStep bool) (*Series, error) {
	if len(time) != len(data) {
		return nil, fmt.Errorf("timeseries: %d timestamps but %d values", len(time), len(data))
	}
	if granularity <= 0 {
		return nil, fmt.Errorf("timeseries: granularity must be positive, got %d", granularity)
	}
	for i := 1; i < len(time); i++ {
		if time[i] <= time[i-1] {
			return nil, fmt.Errorf("timeseries: timestamps not strictly increasing at index %d", i)
		}
	}

	s := &Series{
		time:        make([]int64, len(time)),
		data:        make([]float64, len(data)),
		granularity: granularity,
		isStep:      isStep,
	}
	copy(s.time, time)
	copy(s.data, data)
	return s, nil
}

// Len returns the number of points.
func (s *Series) Len() int { return len(s.time) }

// Granularity returns the declared spacing in milliseconds.
func (s *Series) Granularity() int64 { return s.granularity }

// IsStep reports whether values hold until the next point (forward fill) rather than
// being linearly interpolated.
func (s *Series) IsStep() bool { return s.isStep }

// Time returns a copy of the timestamps.
func (s *Series) Time() []int64 {
	out := make([]int64, len(s.time))
	copy(out, s.time)
	return out
}

// Values returns a copy of the values.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.data))
	copy(out, s.data)
	return out
}

// At returns the i-th point.
func (s *Series) At(i int) (int64, float64) {
	return s.time[i], s.data[i]
}

// ValueAt evaluates the series at t using its step or interpolation semantics.
// The second result is false when t lies outside the series' time range.
func (s *Series) ValueAt(t int64) (float64, bool) {
	n := len(s.time)
	if n == 0 || t < s.time[0] || t > s.time[n-1] {
		return 0, false
	}

	idx := sort.Search(n, func(i int) bool { return s.time[i] >= t })
	if s.time[idx] == t {
		return s.data[idx], true
	}

	// t falls strictly between idx-1 and idx.
	if s.isStep {
		return s.data[idx-1], true
	}
	t0, t1 := s.time[idx-1], s.time[idx]
	v0, v1 := s.data[idx-1], s.data[idx]
	frac := float64(t-t0) / float64(t1-t0)
	return v0 + frac*(v1-v0), true
}

// EquallySpacedResampling fills gaps using the series' own granularity.
func (s *Series) EquallySpacedResampling() (*Series, error) {
	return s.Resample(s.granularity)
}

// Resample returns the series on an equally spaced grid that starts at the first
// timestamp and advances by granularity milliseconds. Original points that lie on
// the grid keep their value.
func (s *Series) Resample(granularity int64) (*Series, error) {
	if len(s.time) < 2 {
		return nil, ErrTooShort
	}
	if granularity <= 0 {
		return nil, fmt.Errorf("timeseries: granularity must be positive, got %d", granularity)
	}

	grid := makeGrid(s.time[0], s.time[len(s.time)-1], granularity)
	values := make([]float64, len(grid))
	for i, t := range grid {
		values[i], _ = s.ValueAt(t)
	}

	return &Series{time: grid, data: values, granularity: granularity, isStep: s.isStep}, nil
}

// Map returns a new series with fn applied to every value.
func (s *Series) Map(fn func(float64) float64, isStep bool) *Series {
	values := make([]float64, len(s.data))
	for i, v := range s.data {
		values[i] = fn(v)
	}
	timeCopy := make([]int64, len(s.time))
	copy(timeCopy, s.time)
	return &Series{time: timeCopy, data: values, granularity: s.granularity, isStep: isStep}
}

// Equal reports whether both series hold the same points and metadata.
func (s *Series) Equal(other *Series) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.granularity != other.granularity || s.isStep != other.isStep || len(s.time) != len(other.time) {
		return false
	}
	for i := range s.time {
		if s.time[i] != other.time[i] || s.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

// Aligned holds two series evaluated on one shared grid.
type Aligned struct {
	Time        []int64
	A           []float64
	B           []float64
	Granularity int64
}

// Align resamples a and b onto a common equally spaced grid covering the range both
// series span. A zero granularity selects the coarser of the two declared granularities.
func Align(a, b *Series, granularity int64) (*Aligned, error) {
	if a.Len() < 2 || b.Len() < 2 {
		return nil, ErrTooShort
	}
	if granularity <= 0 {
		granularity = max(a.granularity, b.granularity)
	}

	start := max(a.time[0], b.time[0])
	end := min(a.time[len(a.time)-1], b.time[len(b.time)-1])
	if start > end {
		return nil, ErrNoOverlap
	}

	grid := makeGrid(start, end, granularity)
	out := &Aligned{
		Time:        grid,
		A:           make([]float64, len(grid)),
		B:           make([]float64, len(grid)),
		Granularity: granularity,
	}
	for i, t := range grid {
		out.A[i], _ = a.ValueAt(t)
		out.B[i], _ = b.ValueAt(t)
	}
	return out, nil
}

func makeGrid(start, end, step int64) []int64 {
	n := (end-start)/step + 1
	grid := make([]int64, n)
	for i := range grid {
		grid[i] = start + int64(i)*step
	}
	return grid
}
