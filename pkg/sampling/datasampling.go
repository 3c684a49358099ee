// Package sampling decides when process data may be sampled for a simulation run.
// It evaluates logical checks and steady-state detection over a validation window and
// searches the combined condition for the most recent instant with a long enough valid
// history.
package sampling

import (
	"fmt"
	"strings"

	"github.com/picogrid/legion-connector/pkg/timeseries"
)

// Operator compares a value against a logical check threshold.
type Operator string

const (
	OpEqual        Operator = "eq"
	OpNotEqual     Operator = "ne"
	OpGreater      Operator = "gt"
	OpGreaterEqual Operator = "ge"
	OpLess         Operator = "lt"
	OpLessEqual    Operator = "le"
)

// ParseOperator accepts the operator names used in routine configurations.
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OpEqual, OpNotEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
		return op, nil
	}
	return "", fmt.Errorf("unknown logical check operator %q", s)
}

func (op Operator) apply(v, threshold float64) (bool, error) {
	switch op {
	case OpEqual:
		return v == threshold, nil
	case OpNotEqual:
		return v != threshold, nil
	case OpGreater:
		return v > threshold, nil
	case OpGreaterEqual:
		return v >= threshold, nil
	case OpLess:
		return v < threshold, nil
	case OpLessEqual:
		return v <= threshold, nil
	}
	return false, fmt.Errorf("unknown logical check operator %q", string(op))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// UnionLogicTimeSeries is the logical AND of two boolean-coded series. Both are aligned
// on a common grid and the result is 1 only where both inputs are exactly 1.
func UnionLogicTimeSeries(a, b *timeseries.Series) (*timeseries.Series, error) {
	aligned, err := timeseries.Align(a, b, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to align condition series: %w", err)
	}

	out := make([]float64, len(aligned.Time))
	for i := range aligned.Time {
		out[i] = boolValue(aligned.A[i] == 1 && aligned.B[i] == 1)
	}
	return timeseries.New(aligned.Time, out, aligned.Granularity, true)
}

// LogicalCheck resamples ts on its own granularity and maps every value to 1 when
// `value op threshold` holds, 0 otherwise.
func LogicalCheck(ts *timeseries.Series, threshold float64, op Operator) (*timeseries.Series, error) {
	if _, err := op.apply(0, threshold); err != nil {
		return nil, err
	}
	resampled, err := ts.EquallySpacedResampling()
	if err != nil {
		return nil, fmt.Errorf("failed to resample logical check series: %w", err)
	}

	return resampled.Map(func(v float64) float64 {
		ok, _ := op.apply(v, threshold)
		return boolValue(ok)
	}, true), nil
}

// FindSamplingTime scans logicMap backwards for the latest instant t1 such that the
// condition held for at least minWindowMs before it. A point that fails the condition
// moves the candidate end to that point. The returned instant is the end of the valid
// window, not the start. ok is false when no window qualifies.
func FindSamplingTime(logicMap *timeseries.Series, minWindowMs int64) (t1 int64, ok bool) {
	n := logicMap.Len()
	if n == 0 {
		return 0, false
	}

	t1, _ = logicMap.At(n - 1)
	for i := n - 1; i >= 0; i-- {
		t, v := logicMap.At(i)
		if v == 1 {
			if t1-t >= minWindowMs {
				return t1, true
			}
			continue
		}
		t1 = t
	}
	return 0, false
}
