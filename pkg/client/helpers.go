package client

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"
)

// NewLegionClient creates a new Legion client with API key authentication
// This is a convenience wrapper around NewClient
func NewLegionClient(baseURL string, apiKey string) (*Legion, error) {
	cfg := Config{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: 30 * time.Second,
	}

	return NewClient(cfg)
}

// GetAPIKey retrieves the API key from an environment variable
func GetAPIKey(envVarName string) string {
	if envVarName == "" {
		return ""
	}
	return os.Getenv(envVarName)
}

// ValidateConnection tests the connection to Legion by inspecting the current token
func (c *Legion) ValidateConnection(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v3/token/inspect", nil)
	if err != nil {
		return fmt.Errorf("connection validation failed: %w", err)
	}
	closeBody(resp.Body)

	return nil
}
