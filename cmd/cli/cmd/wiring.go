package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/picogrid/legion-connector/pkg/auth"
	"github.com/picogrid/legion-connector/pkg/client"
	"github.com/picogrid/legion-connector/pkg/config"
	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/metrics"
	"github.com/picogrid/legion-connector/pkg/objectstore"
	"github.com/picogrid/legion-connector/pkg/provenance"
	"github.com/picogrid/legion-connector/pkg/state"
)

// newPlatformClient authenticates against the configured Legion environment
func newPlatformClient(ctx context.Context, cfg *config.Config) (*client.Legion, error) {
	p := cfg.Platform

	if p.OAuth != nil {
		defaults := auth.DefaultAuthConfig()
		base := auth.AuthConfig{
			KeycloakURL:     p.OAuth.KeycloakURL,
			Realm:           p.OAuth.Realm,
			ClientID:        p.OAuth.ClientID,
			ClientSecretEnv: p.OAuth.ClientSecretEnv,
		}

		var tokenManager *auth.TokenManager
		var err error
		if base.KeycloakURL != "" && base.Realm != "" {
			tokenManager, err = auth.AuthenticateConnector(ctx, base)
		} else {
			if base.KeycloakURL == "" {
				base.KeycloakURL = defaults.KeycloakURL
			}
			if base.Realm == "" {
				base.Realm = defaults.Realm
			}
			tokenManager, err = auth.AuthenticateConnectorWithLegion(ctx, p.URL, base)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}

		legionClient, err := auth.CreateAuthenticatedClient(p.URL, p.Project, tokenManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create authenticated client: %w", err)
		}
		return legionClient, nil
	}

	apiKey := client.GetAPIKey(p.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not set: export %s or configure platform.oauth", p.APIKeyEnv)
	}
	legionClient, err := client.NewClient(client.Config{
		BaseURL: p.URL,
		APIKey:  apiKey,
		Project: p.Project,
		Timeout: p.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Legion client: %w", err)
	}
	return legionClient, nil
}

// openState opens the local state store of the integration
func openState(cfg *config.Config) (*state.Store, error) {
	store, err := state.Open(state.Config{
		Path:             cfg.State.Dir,
		CompressionLevel: cfg.State.CompressionLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state in %s: %w", cfg.State.Dir, err)
	}
	return store, nil
}

// newProvenanceStore records run configurations in Postgres when a database is
// configured and in the local state store otherwise.
func newProvenanceStore(ctx context.Context, cfg *config.Config, store *state.Store) (provenance.Store, func(), error) {
	if cfg.Provenance.URL == "" {
		return provenance.NewStateStore(store), func() {}, nil
	}

	db, err := provenance.Open(ctx, cfg.Provenance)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open provenance database: %w", err)
	}
	pg := provenance.NewPostgresStore(db, "")
	if err := pg.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Info("Recording run configurations in Postgres")
	return pg, func() { _ = db.Close() }, nil
}

// newFileSource serves model files from the object store mirror when one is
// configured and straight from the platform otherwise.
func newFileSource(ctx context.Context, cfg *config.Config, legionClient *client.Legion) (objectstore.FileSource, error) {
	platform := objectstore.PlatformSource{Files: legionClient}
	if !cfg.ObjectStore.Enabled() {
		return platform, nil
	}

	mirror, err := objectstore.NewMirror(ctx, cfg.ObjectStore, platform)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to object store: %w", err)
	}
	logger.Infof("Mirroring model files in bucket %s", cfg.ObjectStore.Bucket)
	return mirror, nil
}

// serveMetrics exposes m on addr until the returned function is called. An empty
// addr disables the endpoint.
func serveMetrics(addr string, m *metrics.Metrics) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics endpoint stopped: %v", err)
		}
	}()
	logger.Infof("Serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
