package sampling

import (
	"fmt"
	"math"
	"sort"

	"github.com/picogrid/legion-connector/pkg/timeseries"
)

// SteadyStateParams configures the steady-state detector.
type SteadyStateParams struct {
	// MinSectionSize is the minimum number of points per segment.
	MinSectionSize int
	// VarThreshold is the largest segment variance still considered steady.
	VarThreshold float64
	// SlopeThreshold is the largest absolute segment slope, in value units per second,
	// still considered steady.
	SlopeThreshold float64
}

func (p SteadyStateParams) validate() error {
	if p.MinSectionSize < 2 {
		return &ConfigurationError{Field: "steady_state_detection.min_section_size", Reason: "must be at least 2"}
	}
	if p.VarThreshold < 0 {
		return &ConfigurationError{Field: "steady_state_detection.var_threshold", Reason: "must not be negative"}
	}
	if p.SlopeThreshold < 0 {
		return &ConfigurationError{Field: "steady_state_detection.slope_threshold", Reason: "must not be negative"}
	}
	return nil
}

// DetectSteadyState marks steady regions of ts. The series is resampled on its own
// granularity, split into segments by binary segmentation on the squared error, and
// every segment whose variance and least-squares slope stay within the thresholds is
// marked 1. All other points are 0. The result is a step series on the resampled grid.
func DetectSteadyState(ts *timeseries.Series, p SteadyStateParams) (*timeseries.Series, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	resampled, err := ts.EquallySpacedResampling()
	if err != nil {
		return nil, fmt.Errorf("failed to resample steady state series: %w", err)
	}

	x := resampled.Values()
	out := make([]float64, len(x))
	if len(x) >= p.MinSectionSize {
		seg := newSegmenter(x, p.MinSectionSize)
		stepSeconds := float64(resampled.Granularity()) / 1000
		bounds := seg.breakpoints()
		for i := 0; i+1 < len(bounds); i++ {
			a, b := bounds[i], bounds[i+1]
			if seg.variance(a, b) <= p.VarThreshold && math.Abs(slope(x[a:b], stepSeconds)) <= p.SlopeThreshold {
				for j := a; j < b; j++ {
					out[j] = 1
				}
			}
		}
	}

	return timeseries.New(resampled.Time(), out, resampled.Granularity(), true)
}

// segmenter runs binary segmentation over x using prefix sums for O(1) segment costs.
type segmenter struct {
	n       int
	minSize int
	sum     []float64
	sumSq   []float64
	penalty float64
}

func newSegmenter(x []float64, minSize int) *segmenter {
	s := &segmenter{
		n:       len(x),
		minSize: minSize,
		sum:     make([]float64, len(x)+1),
		sumSq:   make([]float64, len(x)+1),
	}
	for i, v := range x {
		s.sum[i+1] = s.sum[i] + v
		s.sumSq[i+1] = s.sumSq[i] + v*v
	}

	sigma := noiseLevel(x)
	s.penalty = math.Max(2*sigma*sigma*math.Log(float64(len(x))), 1e-12)
	return s
}

// cost is the squared error of x[a:b] around its mean.
func (s *segmenter) cost(a, b int) float64 {
	n := float64(b - a)
	sum := s.sum[b] - s.sum[a]
	c := (s.sumSq[b] - s.sumSq[a]) - sum*sum/n
	if c < 0 {
		return 0
	}
	return c
}

func (s *segmenter) variance(a, b int) float64 {
	return s.cost(a, b) / float64(b-a)
}

// breakpoints returns the sorted segment boundaries, including 0 and n.
func (s *segmenter) breakpoints() []int {
	bounds := []int{0, s.n}
	var split func(a, b int)
	split = func(a, b int) {
		if b-a < 2*s.minSize {
			return
		}
		whole := s.cost(a, b)
		best, bestCost := -1, whole
		for k := a + s.minSize; k <= b-s.minSize; k++ {
			if c := s.cost(a, k) + s.cost(k, b); c < bestCost {
				best, bestCost = k, c
			}
		}
		if best < 0 || whole-bestCost <= s.penalty {
			return
		}
		bounds = append(bounds, best)
		split(a, best)
		split(best, b)
	}
	split(0, s.n)
	sort.Ints(bounds)
	return bounds
}

// noiseLevel estimates the noise standard deviation from the median absolute deviation
// of first differences, which is insensitive to level shifts.
func noiseLevel(x []float64) float64 {
	if len(x) < 3 {
		return 0
	}
	diffs := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		diffs[i-1] = x[i] - x[i-1]
	}
	med := median(diffs)
	for i, d := range diffs {
		diffs[i] = math.Abs(d - med)
	}
	return median(diffs) / 0.6745 / math.Sqrt2
}

func median(v []float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// slope fits y = a + b*t by least squares with points stepSeconds apart and returns b.
func slope(y []float64, stepSeconds float64) float64 {
	n := float64(len(y))
	if n < 2 || stepSeconds == 0 {
		return 0
	}
	meanT := (n - 1) / 2 * stepSeconds
	var meanY float64
	for _, v := range y {
		meanY += v
	}
	meanY /= n

	var num, den float64
	for i, v := range y {
		dt := float64(i)*stepSeconds - meanT
		num += dt * (v - meanY)
		den += dt * dt
	}
	return num / den
}
