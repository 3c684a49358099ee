package sampling

import (
	"context"
	"errors"
	"fmt"

	"github.com/picogrid/legion-connector/pkg/models"
)

// SampledInput is the value chosen for one routine input and where it came from.
type SampledInput struct {
	Input models.RoutineInput
	Value models.SimulationValue
}

// SampleInputs resolves every routine input to a value. Constant inputs use their
// configured value. Time-series inputs are averaged over the sampling range, or read as
// the latest value at or before its end when the range has no start.
func SampleInputs(ctx context.Context, accessor Accessor, cfg models.RoutineConfiguration, r SamplingRange) (map[string]SampledInput, error) {
	granularity := 1
	if g := cfg.DataSampling.Granularity; g != nil && *g > 0 {
		granularity = *g
	}

	out := make(map[string]SampledInput, len(cfg.Inputs))
	for _, in := range cfg.Inputs {
		if in.ReferenceID == "" {
			return nil, &ConfigurationError{Field: fmt.Sprintf("inputs[%s].reference_id", in.Name)}
		}

		var value models.SimulationValue
		switch {
		case in.IsTimeSeries():
			v, err := sampleInput(ctx, accessor, in, granularity, r)
			if err != nil {
				return nil, err
			}
			value = models.DoubleValue(v)
		case in.Value != nil:
			value = *in.Value
		default:
			return nil, &ConfigurationError{Field: fmt.Sprintf("inputs[%s].value", in.ReferenceID), Reason: "is required for constant inputs"}
		}

		if value.Unit == nil {
			value.Unit = in.Unit
		}
		out[in.ReferenceID] = SampledInput{Input: in, Value: value}
	}
	return out, nil
}

func sampleInput(ctx context.Context, accessor Accessor, in models.RoutineInput, granularity int, r SamplingRange) (float64, error) {
	source := *in.SourceExternalID

	if r.Start == nil {
		v, err := accessor.GetLatestValue(ctx, source, TimeRange{End: r.End})
		if err != nil {
			if errors.Is(err, ErrNoData) {
				return 0, &DataError{SeriesID: source, Input: in.ReferenceID, Err: err}
			}
			return 0, fmt.Errorf("failed to read latest value of %q: %w", source, err)
		}
		return v, nil
	}

	_, values, err := accessor.GetSample(ctx, source, aggregateOr(in.Aggregate, "average"), granularity, TimeRange{Start: *r.Start, End: r.End})
	if err != nil && !errors.Is(err, ErrNoData) {
		return 0, fmt.Errorf("failed to sample input %q: %w", in.ReferenceID, err)
	}
	if len(values) == 0 {
		return 0, &DataError{SeriesID: source, Input: in.ReferenceID, Err: ErrNoData}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

// Values flattens sampled inputs into the value map handed to the simulator.
func Values(inputs map[string]SampledInput) map[string]models.SimulationValue {
	out := make(map[string]models.SimulationValue, len(inputs))
	for ref, in := range inputs {
		out[ref] = in.Value
	}
	return out
}
