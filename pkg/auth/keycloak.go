package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// KeycloakConfig holds the configuration for Keycloak client-credentials authentication
type KeycloakConfig struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// TokenURL returns the realm's OpenID Connect token endpoint
func (c KeycloakConfig) TokenURL() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", strings.TrimRight(c.BaseURL, "/"), c.Realm)
}

// Validate checks that the configuration can request tokens
func (c KeycloakConfig) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("keycloak base url is required")
	case c.Realm == "":
		return fmt.Errorf("keycloak realm is required")
	case c.ClientID == "":
		return fmt.Errorf("client id is required")
	case c.ClientSecret == "":
		return fmt.Errorf("client secret is required")
	}
	return nil
}

// KeycloakClient requests access tokens from Keycloak
type KeycloakClient struct {
	config     KeycloakConfig
	oauth      *clientcredentials.Config
	httpClient *http.Client
}

// NewKeycloakClient creates a new Keycloak client
func NewKeycloakClient(config KeycloakConfig) *KeycloakClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &KeycloakClient{
		config: config,
		oauth: &clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     config.TokenURL(),
			Scopes:       config.Scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Authenticate performs a client-credentials grant
func (k *KeycloakClient) Authenticate(ctx context.Context) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, k.httpClient)

	token, err := k.oauth.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("invalid client credentials")
		}
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	return token, nil
}
