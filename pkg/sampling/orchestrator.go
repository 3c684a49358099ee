package sampling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/models"
	"github.com/picogrid/legion-connector/pkg/timeseries"
)

// TimeRange is a closed interval in epoch milliseconds.
type TimeRange struct {
	Start int64
	End   int64
}

// Accessor reads process data points.
type Accessor interface {
	// GetSample returns aggregated points of seriesID over r at the given granularity.
	GetSample(ctx context.Context, seriesID, aggregate string, granularityMinutes int, r TimeRange) ([]int64, []float64, error)
	// GetLatestValue returns the most recent value of seriesID within r. It returns
	// ErrNoData when the range holds no points.
	GetLatestValue(ctx context.Context, seriesID string, r TimeRange) (float64, error)
}

// SamplingRange is the window inputs are sampled over. Start is nil when data sampling
// is disabled and inputs are read at End.
type SamplingRange struct {
	Start *int64
	End   int64
}

// Midpoint is the instant the simulation is considered to represent.
func (r SamplingRange) Midpoint() int64 {
	if r.Start == nil {
		return r.End
	}
	return *r.Start + (r.End-*r.Start)/2
}

// PointInTime returns a range that samples at t without a window.
func PointInTime(t int64) SamplingRange {
	return SamplingRange{End: t}
}

// settings is the validated subset of a routine configuration the orchestrator needs.
type settings struct {
	validationWindow time.Duration
	samplingWindow   time.Duration
	granularity      int

	logical     *models.LogicalCheckConfig
	operator    Operator
	threshold   float64
	steadyState *models.SteadyStateDetectionConfig
	ssdParams   SteadyStateParams
}

func validate(cfg models.RoutineConfiguration) (*settings, error) {
	ds := cfg.DataSampling
	if ds.SamplingWindow == nil {
		return nil, missing("data_sampling.sampling_window")
	}
	if *ds.SamplingWindow <= 0 {
		return nil, &ConfigurationError{Field: "data_sampling.sampling_window", Reason: "must be positive"}
	}
	if ds.Granularity == nil {
		return nil, missing("data_sampling.granularity")
	}
	if *ds.Granularity <= 0 {
		return nil, &ConfigurationError{Field: "data_sampling.granularity", Reason: "must be positive"}
	}

	s := &settings{
		samplingWindow: time.Duration(*ds.SamplingWindow) * time.Minute,
		granularity:    *ds.Granularity,
	}

	logicalEnabled := cfg.LogicalCheck != nil && cfg.LogicalCheck.Enabled
	ssdEnabled := cfg.SteadyStateDetection != nil && cfg.SteadyStateDetection.Enabled
	if logicalEnabled || ssdEnabled {
		if ds.ValidationWindow == nil {
			return nil, missing("data_sampling.validation_window")
		}
		if *ds.ValidationWindow < *ds.SamplingWindow {
			return nil, &ConfigurationError{Field: "data_sampling.validation_window", Reason: "must not be shorter than the sampling window"}
		}
		s.validationWindow = time.Duration(*ds.ValidationWindow) * time.Minute
	}

	if logicalEnabled {
		lc := cfg.LogicalCheck
		if lc.TimeseriesExternalID == "" {
			return nil, missing("logical_check.timeseries_external_id")
		}
		if lc.Value == nil {
			return nil, missing("logical_check.value")
		}
		op, err := ParseOperator(lc.Operator)
		if err != nil {
			return nil, &ConfigurationError{Field: "logical_check.operator", Reason: err.Error()}
		}
		s.logical, s.operator, s.threshold = lc, op, *lc.Value
	}

	if ssdEnabled {
		sc := cfg.SteadyStateDetection
		if sc.TimeseriesExternalID == "" {
			return nil, missing("steady_state_detection.timeseries_external_id")
		}
		if sc.MinSectionSize == nil {
			return nil, missing("steady_state_detection.min_section_size")
		}
		if sc.VarThreshold == nil {
			return nil, missing("steady_state_detection.var_threshold")
		}
		if sc.SlopeThreshold == nil {
			return nil, missing("steady_state_detection.slope_threshold")
		}
		s.steadyState = sc
		s.ssdParams = SteadyStateParams{
			MinSectionSize: *sc.MinSectionSize,
			VarThreshold:   *sc.VarThreshold,
			SlopeThreshold: *sc.SlopeThreshold,
		}
		if err := s.ssdParams.validate(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// describe renders the enabled checks for user-facing messages.
func (s *settings) describe() string {
	var parts []string
	if s.logical != nil {
		parts = append(parts, fmt.Sprintf("logical check %q %s %g", s.logical.TimeseriesExternalID, s.operator, s.threshold))
	}
	if s.steadyState != nil {
		parts = append(parts, fmt.Sprintf("steady state %q (min section %d, var <= %g, slope <= %g)",
			s.steadyState.TimeseriesExternalID, s.ssdParams.MinSectionSize, s.ssdParams.VarThreshold, s.ssdParams.SlopeThreshold))
	}
	return strings.Join(parts, " and ")
}

// RunSteadyStateAndLogicalCheck computes the sampling range for a run whose data must be
// validated up to validationEnd. Configuration problems are reported before any data is
// requested. When neither check is enabled the range simply ends at validationEnd.
func RunSteadyStateAndLogicalCheck(ctx context.Context, accessor Accessor, cfg models.RoutineConfiguration, validationEnd int64) (SamplingRange, error) {
	s, err := validate(cfg)
	if err != nil {
		return SamplingRange{}, err
	}

	log := logger.WithPrefix("sampling")
	validationStart := validationEnd - s.validationWindow.Milliseconds()
	window := TimeRange{Start: validationStart, End: validationEnd}

	var logicalSeries, ssdSeries *timeseries.Series
	if s.logical != nil {
		raw, err := fetchSeries(ctx, accessor, s.logical.TimeseriesExternalID, aggregateOr(s.logical.Aggregate, "stepInterpolation"), s.granularity, window)
		if err != nil {
			return SamplingRange{}, err
		}
		logicalSeries, err = LogicalCheck(raw, s.threshold, s.operator)
		if err != nil {
			return SamplingRange{}, &DataError{SeriesID: s.logical.TimeseriesExternalID, Err: err}
		}
	}
	if s.steadyState != nil {
		raw, err := fetchSeries(ctx, accessor, s.steadyState.TimeseriesExternalID, aggregateOr(s.steadyState.Aggregate, "average"), s.granularity, window)
		if err != nil {
			return SamplingRange{}, err
		}
		ssdSeries, err = DetectSteadyState(raw, s.ssdParams)
		if err != nil {
			return SamplingRange{}, &DataError{SeriesID: s.steadyState.TimeseriesExternalID, Err: err}
		}
	}

	var feasible *timeseries.Series
	switch {
	case logicalSeries != nil && ssdSeries != nil:
		feasible, err = UnionLogicTimeSeries(logicalSeries, ssdSeries)
		if err != nil {
			return SamplingRange{}, &DataError{SeriesID: s.logical.TimeseriesExternalID, Err: err}
		}
	case logicalSeries != nil:
		feasible = logicalSeries
	case ssdSeries != nil:
		feasible = ssdSeries
	}

	samplingEnd := validationEnd
	if feasible != nil {
		t, ok := FindSamplingTime(feasible, s.samplingWindow.Milliseconds())
		if !ok {
			return SamplingRange{}, &NoSamplingWindowError{
				ValidationStart: validationStart,
				ValidationEnd:   validationEnd,
				SamplingWindow:  s.samplingWindow,
				Checks:          s.describe(),
			}
		}
		samplingEnd = t
	}

	samplingStart := samplingEnd - s.samplingWindow.Milliseconds()
	log.Debugf("Sampling window [%d, %d] within validation window [%d, %d]", samplingStart, samplingEnd, validationStart, validationEnd)
	return SamplingRange{Start: &samplingStart, End: samplingEnd}, nil
}

func fetchSeries(ctx context.Context, accessor Accessor, seriesID, aggregate string, granularity int, r TimeRange) (*timeseries.Series, error) {
	ts, values, err := accessor.GetSample(ctx, seriesID, aggregate, granularity, r)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return nil, &DataError{SeriesID: seriesID, Err: err}
		}
		return nil, fmt.Errorf("failed to sample time series %q: %w", seriesID, err)
	}
	if len(ts) == 0 {
		return nil, &DataError{SeriesID: seriesID, Err: ErrNoData}
	}

	series, err := timeseries.New(ts, values, int64(granularity)*time.Minute.Milliseconds(), aggregate == "stepInterpolation")
	if err != nil {
		return nil, &DataError{SeriesID: seriesID, Err: err}
	}
	return series, nil
}

func aggregateOr(aggregate, fallback string) string {
	if aggregate == "" {
		return fallback
	}
	return aggregate
}
