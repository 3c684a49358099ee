package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/picogrid/legion-connector/pkg/models"
)

// UpdateIntegration patches the integration record of this connector
func (c *Legion) UpdateIntegration(ctx context.Context, update models.IntegrationUpdate) error {
	body := models.ItemsResponse[models.IntegrationUpdate]{Items: []models.IntegrationUpdate{update}}
	resp, err := c.doRequest(ctx, http.MethodPost, "/v3/simulators/integrations/update", body)
	if err != nil {
		return fmt.Errorf("failed to update integration %s: %w", update.ExternalID, err)
	}
	closeBody(resp.Body)

	return nil
}

// GetIntegration retrieves an integration by external id. It returns nil without an
// error when the integration does not exist.
func (c *Legion) GetIntegration(ctx context.Context, externalID string) (*models.Integration, error) {
	items, err := retrieveByIDs[models.Integration](ctx, c, "/v3/simulators/integrations/byids", externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get integration %s: %w", externalID, err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// CreateIntegration registers a new integration and returns the stored record
func (c *Legion) CreateIntegration(ctx context.Context, create models.IntegrationCreate) (*models.Integration, error) {
	body := models.ItemsResponse[models.IntegrationCreate]{Items: []models.IntegrationCreate{create}}
	resp, err := c.doRequest(ctx, http.MethodPost, "/v3/simulators/integrations", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create integration %s: %w", create.ExternalID, err)
	}

	var result models.ItemsResponse[models.Integration]
	if err := decodeResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, fmt.Errorf("failed to create integration %s: empty response", create.ExternalID)
	}
	return &result.Items[0], nil
}
