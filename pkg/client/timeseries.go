package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/picogrid/legion-connector/pkg/models"
)

// RetrieveAggregates retrieves aggregated data points for a single time series
func (c *Legion) RetrieveAggregates(ctx context.Context, q models.AggregateQuery) (*models.DataPointList, error) {
	body := models.ItemsResponse[models.AggregateQuery]{Items: []models.AggregateQuery{q}}
	resp, err := c.doRequest(ctx, http.MethodPost, "/v3/timeseries/data/list", body)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve data points for %s: %w", q.ExternalID, err)
	}

	var result models.ItemsResponse[models.DataPointList]
	if err := decodeResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to decode data points response: %w", err)
	}
	if len(result.Items) == 0 {
		return &models.DataPointList{ExternalID: q.ExternalID}, nil
	}

	return &result.Items[0], nil
}

// RetrieveLatest retrieves the latest data point before q.Before
func (c *Legion) RetrieveLatest(ctx context.Context, q models.LatestQuery) (*models.DataPointList, error) {
	body := models.ItemsResponse[models.LatestQuery]{Items: []models.LatestQuery{q}}
	resp, err := c.doRequest(ctx, http.MethodPost, "/v3/timeseries/data/latest", body)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve latest data point for %s: %w", q.ExternalID, err)
	}

	var result models.ItemsResponse[models.DataPointList]
	if err := decodeResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to decode latest data point response: %w", err)
	}
	if len(result.Items) == 0 {
		return &models.DataPointList{ExternalID: q.ExternalID}, nil
	}

	return &result.Items[0], nil
}

// CreateTimeSeries creates the given time series. Series that already exist are
// retrieved instead, so the result always holds one entry per request item.
func (c *Legion) CreateTimeSeries(ctx context.Context, items []models.TimeSeriesCreate) ([]models.TimeSeries, error) {
	if len(items) == 0 {
		return nil, nil
	}

	body := models.ItemsResponse[models.TimeSeriesCreate]{Items: items}
	resp, err := c.doRequest(ctx, http.MethodPost, "/v3/timeseries", body)
	if err == nil {
		var result models.ItemsResponse[models.TimeSeries]
		if err := decodeResponse(resp, &result); err != nil {
			return nil, fmt.Errorf("failed to decode time series response: %w", err)
		}
		return result.Items, nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || len(apiErr.Duplicated) == 0 {
		return nil, fmt.Errorf("failed to create time series: %w", err)
	}

	duplicated := make(map[string]bool, len(apiErr.Duplicated))
	for _, id := range apiErr.Duplicated {
		duplicated[id] = true
	}
	var missing []models.TimeSeriesCreate
	for _, item := range items {
		if !duplicated[item.ExternalID] {
			missing = append(missing, item)
		}
	}

	created, err := c.CreateTimeSeries(ctx, missing)
	if err != nil {
		return nil, err
	}
	existing, err := retrieveByIDs[models.TimeSeries](ctx, c, "/v3/timeseries/byids", apiErr.Duplicated...)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve existing time series: %w", err)
	}

	return append(created, existing...), nil
}

// InsertDataPoints appends data points to existing time series
func (c *Legion) InsertDataPoints(ctx context.Context, items []models.DataPointInsert) error {
	if len(items) == 0 {
		return nil
	}

	body := models.ItemsResponse[models.DataPointInsert]{Items: items}
	resp, err := c.doRequest(ctx, http.MethodPost, "/v3/timeseries/data", body)
	if err != nil {
		return fmt.Errorf("failed to insert data points: %w", err)
	}
	closeBody(resp.Body)

	return nil
}
