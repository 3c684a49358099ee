package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type countingSource struct {
	calls  atomic.Int32
	expiry time.Duration
	err    error
}

func (s *countingSource) Authenticate(context.Context) (*oauth2.Token, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{
		AccessToken: "token-" + string(rune('0'+n)),
		Expiry:      time.Now().Add(s.expiry),
	}, nil
}

func TestTokenManagerCachesUntilMargin(t *testing.T) {
	src := &countingSource{expiry: time.Hour}
	tm := NewTokenManager(src, nil)

	first, err := tm.GetAccessToken(context.Background())
	require.NoError(t, err)
	second, err := tm.GetAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "token-1", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.False(t, tm.IsExpired())
}

func TestTokenManagerRefreshesNearExpiry(t *testing.T) {
	src := &countingSource{expiry: 10 * time.Second}
	tm := NewTokenManager(src, &oauth2.Token{AccessToken: "initial", Expiry: time.Now().Add(10 * time.Second)})

	token, err := tm.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
}

func TestTokenManagerRefreshError(t *testing.T) {
	tm := NewTokenManager(&countingSource{err: errors.New("boom")}, nil)

	_, err := tm.GetAccessToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to refresh token")
	assert.True(t, tm.IsExpired())
}

func TestKeycloakClientCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realms/legion/protocol/openid-connect/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "connector", r.PostForm.Get("client_id"))

		if r.PostForm.Get("client_secret") != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized_client"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "abc",
			"token_type":   "bearer",
			"expires_in":   300,
		})
	}))
	defer srv.Close()

	kc := NewKeycloakClient(KeycloakConfig{BaseURL: srv.URL + "/", Realm: "legion", ClientID: "connector", ClientSecret: "s3cret"})
	token, err := kc.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token.AccessToken)

	bad := NewKeycloakClient(KeycloakConfig{BaseURL: srv.URL, Realm: "legion", ClientID: "connector", ClientSecret: "wrong"})
	_, err = bad.Authenticate(context.Background())
	require.Error(t, err)
}

func TestKeycloakConfigValidate(t *testing.T) {
	full := KeycloakConfig{BaseURL: "https://auth", Realm: "legion", ClientID: "id", ClientSecret: "secret"}
	require.NoError(t, full.Validate())
	assert.Equal(t, "https://auth/realms/legion/protocol/openid-connect/token", full.TokenURL())

	missing := full
	missing.ClientSecret = ""
	assert.Error(t, missing.Validate())
}

func TestParseAuthorizationURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantBase string
		wantErr  bool
	}{
		{"legacy auth prefix", "https://auth.legion.com/auth/realms/legion/protocol/openid-connect/auth", "https://auth.legion.com/auth", false},
		{"plain", "https://auth.legion.com/realms/legion/protocol/openid-connect/auth", "https://auth.legion.com", false},
		{"no realm", "https://auth.legion.com/oauth/authorize", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, realm, err := ParseAuthorizationURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBase, base)
			assert.Equal(t, "legion", realm)
		})
	}
}
