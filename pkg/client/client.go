package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/picogrid/legion-connector/pkg/logger"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// Context keys for Legion client
const (
	// ProjectContextKey is the context key for the project a request targets
	ProjectContextKey contextKey = "legion-project"
)

// Legion is the main client for interacting with the Legion API
type Legion struct {
	baseURL      string
	apiKey       string
	project      string
	httpClient   *http.Client
	tokenManager TokenManager
}

// TokenManager interface for token management
type TokenManager interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// Config holds the configuration for the Legion client
type Config struct {
	BaseURL      string
	APIKey       string
	Project      string
	Timeout      time.Duration
	TokenManager TokenManager // Optional: for OAuth2 authentication
}

// APIError is returned for HTTP responses with a status of 400 or above
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	// Missing lists identifiers the platform could not find
	Missing []string
	// Duplicated lists identifiers that already exist
	Duplicated []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("HTTP %d", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// IsNotFound reports whether err is an APIError for a missing resource
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotFound || len(apiErr.Missing) > 0
}

// errorBody is the JSON error envelope returned by the platform
type errorBody struct {
	Error struct {
		Code       string              `json:"code"`
		Message    string              `json:"message"`
		Missing    []map[string]string `json:"missing"`
		Duplicated []map[string]string `json:"duplicated"`
	} `json:"error"`
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil || (parsed.Error.Message == "" && parsed.Error.Code == "") {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}
	apiErr.Code = parsed.Error.Code
	apiErr.Message = parsed.Error.Message
	for _, m := range parsed.Error.Missing {
		apiErr.Missing = append(apiErr.Missing, m["external_id"])
	}
	for _, d := range parsed.Error.Duplicated {
		apiErr.Duplicated = append(apiErr.Duplicated, d["external_id"])
	}
	return apiErr
}

// NewClient creates a new Legion client with the given configuration
func NewClient(cfg Config) (*Legion, error) {
	// Parse and validate the base URL
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL: %q", cfg.BaseURL)
	}

	// Set default timeout if not provided
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Legion{
		baseURL:      strings.TrimRight(u.String(), "/"),
		apiKey:       cfg.APIKey,
		project:      cfg.Project,
		tokenManager: cfg.TokenManager,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// doRequest performs an HTTP request with authentication and error handling
func (c *Legion) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	// Build the full URL
	fullURL := c.baseURL + path

	// Marshal body if provided
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	// Create the request
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// Set project header, preferring the one carried by the context
	project := c.project
	if p, ok := ctx.Value(ProjectContextKey).(string); ok && p != "" {
		project = p
	}
	if project != "" {
		req.Header.Set("X-Legion-Project", project)
	}

	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	// Perform the request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	// Check for HTTP errors
	if resp.StatusCode >= 400 {
		defer closeBody(resp.Body)
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, parseAPIError(resp.StatusCode, bodyBytes)
	}

	return resp, nil
}

// authorize sets the authorization header
func (c *Legion) authorize(ctx context.Context, req *http.Request) error {
	if c.tokenManager != nil {
		// Use OAuth2 token
		token, err := c.tokenManager.GetAccessToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to get access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	} else if c.apiKey != "" {
		// Use API key
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return nil
}

// decodeResponse decodes a JSON response into the provided interface
func decodeResponse(resp *http.Response, v interface{}) error {
	defer closeBody(resp.Body)

	if v == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		logger.Errorf("failed to close response body: %v", err)
	}
}

// WithProject returns a new context with the project set
func WithProject(ctx context.Context, project string) context.Context {
	return context.WithValue(ctx, ProjectContextKey, project)
}
