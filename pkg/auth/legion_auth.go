package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/picogrid/legion-connector/pkg/logger"
)

// GetAuthorizationURLFromLegion fetches the authorization URL from the Legion API
func GetAuthorizationURLFromLegion(ctx context.Context, legionURL string) (string, error) {
	if _, err := url.Parse(legionURL); err != nil {
		return "", fmt.Errorf("invalid Legion URL: %w", err)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	authURLEndpoint := fmt.Sprintf("%s/v3/integrations/oauth/authorization-url", strings.TrimRight(legionURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURLEndpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get authorization URL: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warnf("failed to close response body: %v", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get authorization URL: status %d", resp.StatusCode)
	}

	var authResp struct {
		AuthorizationURL string `json:"authorization_url"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if authResp.AuthorizationURL == "" {
		return "", fmt.Errorf("empty authorization URL in response")
	}

	return authResp.AuthorizationURL, nil
}

// ParseAuthorizationURL extracts the Keycloak base URL and realm from an
// authorization URL such as https://auth.legion.com/auth/realms/legion/protocol/openid-connect/auth
func ParseAuthorizationURL(authURL string) (keycloakURL, realm string, err error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid authorization URL: %w", err)
	}

	pathParts := strings.Split(u.Path, "/")
	for i, part := range pathParts {
		if part == "realms" && i+1 < len(pathParts) {
			realm = pathParts[i+1]
			keycloakURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
			if strings.Contains(u.Path, "/auth/realms") {
				keycloakURL += "/auth"
			}
			break
		}
	}

	if realm == "" {
		return "", "", fmt.Errorf("could not extract realm from authorization URL")
	}
	return keycloakURL, realm, nil
}

// GetAuthConfigFromLegion creates an AuthConfig by fetching the auth URL from Legion.
// The client id and secret variable come from base.
func GetAuthConfigFromLegion(ctx context.Context, legionURL string, base AuthConfig) (AuthConfig, error) {
	authURL, err := GetAuthorizationURLFromLegion(ctx, legionURL)
	if err != nil {
		return AuthConfig{}, fmt.Errorf("failed to get authorization URL from Legion: %w", err)
	}

	keycloakURL, realm, err := ParseAuthorizationURL(authURL)
	if err != nil {
		return AuthConfig{}, err
	}

	base.KeycloakURL = keycloakURL
	base.Realm = realm
	return base, nil
}

// AuthenticateConnectorWithLegion authenticates using the auth server advertised by
// Legion, falling back to base when discovery fails
func AuthenticateConnectorWithLegion(ctx context.Context, legionURL string, base AuthConfig) (*TokenManager, error) {
	config, err := GetAuthConfigFromLegion(ctx, legionURL, base)
	if err != nil {
		logger.Warnf("Could not fetch auth config from Legion, using %s: %v", base.KeycloakURL, err)
		config = base
	}

	return AuthenticateConnector(ctx, config)
}
