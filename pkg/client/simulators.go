package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/picogrid/legion-connector/pkg/models"
)

// GetRoutineRevision retrieves a routine revision by external id. It returns nil
// without an error when the revision does not exist.
func (c *Legion) GetRoutineRevision(ctx context.Context, externalID string) (*models.RoutineRevision, error) {
	items, err := retrieveByIDs[models.RoutineRevision](ctx, c, "/v3/simulators/routines/revisions/byids", externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get routine revision %s: %w", externalID, err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// GetModelRevision retrieves a model revision by external id. It returns nil
// without an error when the revision does not exist.
func (c *Legion) GetModelRevision(ctx context.Context, externalID string) (*models.ModelRevision, error) {
	items, err := retrieveByIDs[models.ModelRevision](ctx, c, "/v3/simulators/models/revisions/byids", externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get model revision %s: %w", externalID, err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func retrieveByIDs[T any](ctx context.Context, c *Legion, path string, externalIDs ...string) ([]T, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, path, models.NewByIDsRequest(true, externalIDs...))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var result models.ItemsResponse[T]
	if err := decodeResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Items, nil
}

// ListRoutineRevisions returns every routine revision matching filter
func (c *Legion) ListRoutineRevisions(ctx context.Context, filter models.RoutineRevisionFilter) ([]models.RoutineRevision, error) {
	req := &models.ListRoutineRevisionsRequest{Filter: filter, Limit: defaultPageSize}

	var all []models.RoutineRevision
	for {
		resp, err := c.doRequest(ctx, http.MethodPost, "/v3/simulators/routines/revisions/list", req)
		if err != nil {
			return nil, fmt.Errorf("failed to list routine revisions: %w", err)
		}
		var page models.PaginatedResponse[models.RoutineRevision]
		if err := decodeResponse(resp, &page); err != nil {
			return nil, fmt.Errorf("failed to decode routine revisions response: %w", err)
		}
		all = append(all, page.Results...)
		if !page.HasMore() {
			return all, nil
		}
		req.Cursor = page.Paging.NextCursor
	}
}

// ListModelRevisions returns every model revision matching filter
func (c *Legion) ListModelRevisions(ctx context.Context, filter models.ModelRevisionFilter) ([]models.ModelRevision, error) {
	req := &models.ListModelRevisionsRequest{Filter: filter, Limit: defaultPageSize}

	var all []models.ModelRevision
	for {
		resp, err := c.doRequest(ctx, http.MethodPost, "/v3/simulators/models/revisions/list", req)
		if err != nil {
			return nil, fmt.Errorf("failed to list model revisions: %w", err)
		}
		var page models.PaginatedResponse[models.ModelRevision]
		if err := decodeResponse(resp, &page); err != nil {
			return nil, fmt.Errorf("failed to decode model revisions response: %w", err)
		}
		all = append(all, page.Results...)
		if !page.HasMore() {
			return all, nil
		}
		req.Cursor = page.Paging.NextCursor
	}
}

// UpsertSimulator publishes a simulator definition, creating it when missing
func (c *Legion) UpsertSimulator(ctx context.Context, def models.SimulatorDefinition) error {
	body := models.ItemsResponse[models.SimulatorDefinition]{Items: []models.SimulatorDefinition{def}}
	resp, err := c.doRequest(ctx, http.MethodPost, "/v3/simulators", body)
	if err == nil {
		closeBody(resp.Body)
		return nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || len(apiErr.Duplicated) == 0 {
		return fmt.Errorf("failed to create simulator %s: %w", def.ExternalID, err)
	}

	update := map[string]interface{}{
		"items": []map[string]interface{}{{
			"external_id": def.ExternalID,
			"update": map[string]interface{}{
				"name":                 map[string]interface{}{"set": def.Name},
				"file_extension_types": map[string]interface{}{"set": def.FileExtensionTypes},
				"model_types":          map[string]interface{}{"set": def.ModelTypes},
				"step_fields":          map[string]interface{}{"set": def.StepFields},
				"unit_quantities":      map[string]interface{}{"set": def.UnitQuantities},
			},
		}},
	}
	resp, err = c.doRequest(ctx, http.MethodPost, "/v3/simulators/update", update)
	if err != nil {
		return fmt.Errorf("failed to update simulator %s: %w", def.ExternalID, err)
	}
	closeBody(resp.Body)
	return nil
}
