package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// tokenSource fetches a fresh token. KeycloakClient implements it.
type tokenSource interface {
	Authenticate(ctx context.Context) (*oauth2.Token, error)
}

// TokenManager caches an access token and renews it shortly before expiry
type TokenManager struct {
	source        tokenSource
	token         *oauth2.Token
	refreshMargin time.Duration
	mu            sync.RWMutex
}

// NewTokenManager creates a new token manager. token may be nil, in which case the
// first call to GetAccessToken authenticates.
func NewTokenManager(source tokenSource, token *oauth2.Token) *TokenManager {
	return &TokenManager{
		source:        source,
		token:         token,
		refreshMargin: 30 * time.Second, // Refresh 30 seconds before expiry
	}
}

func (tm *TokenManager) fresh() bool {
	if tm.token == nil || tm.token.AccessToken == "" {
		return false
	}
	if tm.token.Expiry.IsZero() {
		return true
	}
	return time.Now().Before(tm.token.Expiry.Add(-tm.refreshMargin))
}

// GetAccessToken returns a valid access token, refreshing if necessary
func (tm *TokenManager) GetAccessToken(ctx context.Context) (string, error) {
	tm.mu.RLock()

	if tm.fresh() {
		token := tm.token.AccessToken
		tm.mu.RUnlock()
		return token, nil
	}

	tm.mu.RUnlock()

	return tm.refreshAccessToken(ctx)
}

// refreshAccessToken fetches a new access token
func (tm *TokenManager) refreshAccessToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.fresh() {
		return tm.token.AccessToken, nil
	}

	token, err := tm.source.Authenticate(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	tm.token = token

	return tm.token.AccessToken, nil
}

// IsExpired checks if the current token is expired
func (tm *TokenManager) IsExpired() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if tm.token == nil {
		return true
	}
	return !tm.token.Expiry.IsZero() && time.Now().After(tm.token.Expiry)
}
