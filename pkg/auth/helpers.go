package auth

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/picogrid/legion-connector/pkg/client"
	"github.com/picogrid/legion-connector/pkg/logger"
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	KeycloakURL     string
	Realm           string
	ClientID        string
	ClientSecretEnv string
}

// DefaultAuthConfig returns the default authentication configuration
func DefaultAuthConfig() AuthConfig {
	keycloakURL := os.Getenv("KEYCLOAK_URL")
	if keycloakURL == "" {
		keycloakURL = "https://auth.legion-staging.com"
	}

	return AuthConfig{
		KeycloakURL:     keycloakURL,
		Realm:           "legion",
		ClientID:        os.Getenv("LEGION_CLIENT_ID"),
		ClientSecretEnv: "LEGION_CLIENT_SECRET",
	}
}

// ClientSecret reads the client secret from the configured environment variable,
// prompting for it when running in a terminal
func ClientSecret(config AuthConfig) (string, error) {
	if config.ClientSecretEnv != "" {
		if secret := os.Getenv(config.ClientSecretEnv); secret != "" {
			return secret, nil
		}
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("client secret not set in %s and stdin is not a terminal", config.ClientSecretEnv)
	}

	fmt.Print("Client secret: ")
	secret, err := term.ReadPassword(fd)
	fmt.Println() // New line after secret input
	if err != nil {
		return "", fmt.Errorf("failed to read client secret: %w", err)
	}
	return string(secret), nil
}

// AuthenticateConnector requests an initial token with the connector's client
// credentials and returns a manager that keeps it fresh
func AuthenticateConnector(ctx context.Context, config AuthConfig) (*TokenManager, error) {
	secret, err := ClientSecret(config)
	if err != nil {
		return nil, err
	}

	kc := KeycloakConfig{
		BaseURL:      config.KeycloakURL,
		Realm:        config.Realm,
		ClientID:     config.ClientID,
		ClientSecret: secret,
	}
	if err := kc.Validate(); err != nil {
		return nil, err
	}

	keycloakClient := NewKeycloakClient(kc)

	logger.Networkf("Authenticating connector client %s", config.ClientID)
	token, err := keycloakClient.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	logger.Success("Authentication successful")

	return NewTokenManager(keycloakClient, token), nil
}

// CreateAuthenticatedClient creates a Legion client with OAuth2 authentication
func CreateAuthenticatedClient(baseURL, project string, tokenManager *TokenManager) (*client.Legion, error) {
	return client.NewClient(client.Config{
		BaseURL:      baseURL,
		Project:      project,
		TokenManager: tokenManager,
	})
}
