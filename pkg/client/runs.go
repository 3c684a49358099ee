package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/picogrid/legion-connector/pkg/models"
)

const defaultPageSize = 100

// ListSimulationRuns lists one page of simulation runs
func (c *Legion) ListSimulationRuns(ctx context.Context, req *models.ListRunsRequest) (*models.PaginatedResponse[models.SimulationRun], error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v3/simulators/runs/list", req)
	if err != nil {
		return nil, fmt.Errorf("failed to list simulation runs: %w", err)
	}

	var result models.PaginatedResponse[models.SimulationRun]
	if err := decodeResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to decode simulation runs response: %w", err)
	}

	return &result, nil
}

// ListRuns returns every run matching filter, oldest first
func (c *Legion) ListRuns(ctx context.Context, filter models.RunFilter) ([]models.SimulationRun, error) {
	req := &models.ListRunsRequest{
		Filter: filter,
		Sort:   []models.SortOption{{Property: "created_time", Order: "asc"}},
		Limit:  defaultPageSize,
	}

	var runs []models.SimulationRun
	for {
		page, err := c.ListSimulationRuns(ctx, req)
		if err != nil {
			return nil, err
		}
		runs = append(runs, page.Results...)
		if !page.HasMore() {
			return runs, nil
		}
		req.Cursor = page.Paging.NextCursor
	}
}

// UpdateSimulationRun transitions a run and returns the updated record
func (c *Legion) UpdateSimulationRun(ctx context.Context, req *models.UpdateRunRequest) (*models.SimulationRun, error) {
	body := models.ItemsResponse[models.UpdateRunRequest]{Items: []models.UpdateRunRequest{*req}}
	resp, err := c.doRequest(ctx, http.MethodPost, "/v3/simulators/runs/update", body)
	if err != nil {
		return nil, fmt.Errorf("failed to update simulation run %d: %w", req.ID, err)
	}

	var result models.ItemsResponse[models.SimulationRun]
	if err := decodeResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to decode simulation run response: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, fmt.Errorf("failed to update simulation run %d: empty response", req.ID)
	}

	return &result.Items[0], nil
}

// UpdateRunStatus implements the run registry used by the runner
func (c *Legion) UpdateRunStatus(ctx context.Context, req models.UpdateRunRequest) (*models.SimulationRun, error) {
	return c.UpdateSimulationRun(ctx, &req)
}
