package sampling

import (
	"context"
	"fmt"

	"github.com/picogrid/legion-connector/pkg/models"
)

// DataPointsAPI is the subset of the platform client used to read process data.
type DataPointsAPI interface {
	RetrieveAggregates(ctx context.Context, q models.AggregateQuery) (*models.DataPointList, error)
	RetrieveLatest(ctx context.Context, q models.LatestQuery) (*models.DataPointList, error)
}

// PlatformAccessor reads data points through the platform API.
type PlatformAccessor struct {
	api DataPointsAPI
}

// NewPlatformAccessor wraps api as an Accessor.
func NewPlatformAccessor(api DataPointsAPI) *PlatformAccessor {
	return &PlatformAccessor{api: api}
}

// GetSample implements Accessor.
func (a *PlatformAccessor) GetSample(ctx context.Context, seriesID, aggregate string, granularityMinutes int, r TimeRange) ([]int64, []float64, error) {
	list, err := a.api.RetrieveAggregates(ctx, models.AggregateQuery{
		ExternalID:  seriesID,
		Start:       r.Start,
		End:         r.End + 1,
		Aggregate:   aggregate,
		Granularity: fmt.Sprintf("%dm", granularityMinutes),
	})
	if err != nil {
		return nil, nil, err
	}
	if list == nil || len(list.DataPoints) == 0 {
		return nil, nil, ErrNoData
	}

	timestamps := make([]int64, 0, len(list.DataPoints))
	values := make([]float64, 0, len(list.DataPoints))
	for _, dp := range list.DataPoints {
		if dp.Value == nil {
			continue
		}
		timestamps = append(timestamps, dp.Timestamp)
		values = append(values, *dp.Value)
	}
	if len(timestamps) == 0 {
		return nil, nil, ErrNoData
	}
	return timestamps, values, nil
}

// GetLatestValue implements Accessor.
func (a *PlatformAccessor) GetLatestValue(ctx context.Context, seriesID string, r TimeRange) (float64, error) {
	list, err := a.api.RetrieveLatest(ctx, models.LatestQuery{ExternalID: seriesID, Before: r.End + 1})
	if err != nil {
		return 0, err
	}
	if list == nil || len(list.DataPoints) == 0 {
		return 0, ErrNoData
	}

	dp := list.DataPoints[0]
	if dp.Value == nil || dp.Timestamp < r.Start {
		return 0, ErrNoData
	}
	return *dp.Value, nil
}
