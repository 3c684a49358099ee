// Package config loads the connector configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/picogrid/legion-connector/pkg/connector"
	"github.com/picogrid/legion-connector/pkg/objectstore"
	"github.com/picogrid/legion-connector/pkg/provenance"
	"github.com/picogrid/legion-connector/pkg/simulation"
	"github.com/picogrid/legion-connector/pkg/telemetry"
)

// DefaultAPIKeyEnv is read for the platform API key when no OAuth client is configured.
const DefaultAPIKeyEnv = "LEGION_API_KEY"

// Config is the connector configuration file
type Config struct {
	Connector   ConnectorConfig           `yaml:"connector"`
	Platform    PlatformConfig            `yaml:"platform"`
	Intervals   connector.Intervals       `yaml:"intervals"`
	State       StateConfig               `yaml:"state"`
	Provenance  provenance.PostgresConfig `yaml:"provenance"`
	ObjectStore objectstore.Config        `yaml:"object_store"`
	Metrics     MetricsConfig             `yaml:"metrics"`
	Telemetry   telemetry.Config          `yaml:"telemetry"`
	Log         LogConfig                 `yaml:"log"`
}

// ConnectorConfig identifies this connector and its simulator plugin
type ConnectorConfig struct {
	Name                  string `yaml:"name"`
	IntegrationExternalID string `yaml:"integration_external_id"`
	// Simulator is the name of a registered simulator plugin
	Simulator    string              `yaml:"simulator"`
	DataSetID    int64               `yaml:"data_set_id,omitempty"`
	LicenseCheck bool                `yaml:"license_check"`
	Settings     simulation.Settings `yaml:"settings,omitempty"`
}

// PlatformConfig points at a Legion environment
type PlatformConfig struct {
	URL       string        `yaml:"url"`
	Project   string        `yaml:"project,omitempty"`
	APIKeyEnv string        `yaml:"api_key_env,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
	OAuth     *OAuthConfig  `yaml:"oauth,omitempty"`
}

// OAuthConfig configures the client credentials flow. KeycloakURL and Realm are
// discovered from the platform when empty.
type OAuthConfig struct {
	KeycloakURL     string `yaml:"keycloak_url,omitempty"`
	Realm           string `yaml:"realm,omitempty"`
	ClientID        string `yaml:"client_id"`
	ClientSecretEnv string `yaml:"client_secret_env"`
}

// StateConfig places local state on disk
type StateConfig struct {
	Dir              string `yaml:"dir"`
	ModelDir         string `yaml:"model_dir"`
	CompressionLevel int    `yaml:"compression_level,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level   string `yaml:"level"`
	NoColor bool   `yaml:"no_color"`
}

// Environment is a known Legion deployment
type Environment struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Environments returns the Legion deployments offered when creating a configuration
func Environments() []Environment {
	return []Environment{
		{
			Name: "Demo",
			URL:  "https://legion-demo.com",
		},
		{
			Name: "Staging",
			URL:  "https://legion-staging.com",
		},
	}
}

// DefaultDir returns the directory holding the configuration and local state
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".legion-connector"), nil
}

// DefaultPath returns the default configuration file location
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads, defaults and validates the configuration file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a configuration document
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset values
func (c *Config) ApplyDefaults() error {
	if c.Connector.Name == "" {
		c.Connector.Name = c.Connector.IntegrationExternalID
	}
	if c.Platform.Timeout == 0 {
		c.Platform.Timeout = 30 * time.Second
	}
	if c.Platform.OAuth == nil && c.Platform.APIKeyEnv == "" {
		c.Platform.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.Platform.OAuth != nil && c.Platform.OAuth.ClientSecretEnv == "" {
		c.Platform.OAuth.ClientSecretEnv = "LEGION_CLIENT_SECRET"
	}

	d := connector.DefaultIntervals()
	setDuration(&c.Intervals.Heartbeat, d.Heartbeat)
	setDuration(&c.Intervals.LicenseCheck, d.LicenseCheck)
	setDuration(&c.Intervals.RemoteConfig, d.RemoteConfig)
	setDuration(&c.Intervals.RunPoll, d.RunPoll)
	setDuration(&c.Intervals.LibraryRefresh, d.LibraryRefresh)
	setDuration(&c.Intervals.StatePersist, d.StatePersist)

	if c.State.Dir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return err
		}
		c.State.Dir = filepath.Join(dir, "state", c.Connector.IntegrationExternalID)
	}
	if c.State.ModelDir == "" {
		c.State.ModelDir = filepath.Join(c.State.Dir, "models")
	}
	if c.Provenance.URL != "" && c.Provenance.PingTimeout == 0 {
		c.Provenance.PingTimeout = 5 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return nil
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v == 0 {
		*v = def
	}
}

// Validate checks required fields and the optional sections that are enabled
func (c *Config) Validate() error {
	if c.Connector.IntegrationExternalID == "" {
		return errors.New("connector.integration_external_id is required")
	}
	if c.Connector.Simulator == "" {
		return errors.New("connector.simulator is required")
	}
	if c.Platform.URL == "" {
		return errors.New("platform.url is required")
	}
	if c.Platform.OAuth != nil && c.Platform.OAuth.ClientID == "" {
		return errors.New("platform.oauth.client_id is required")
	}

	for name, d := range map[string]time.Duration{
		"heartbeat":       c.Intervals.Heartbeat,
		"license_check":   c.Intervals.LicenseCheck,
		"remote_config":   c.Intervals.RemoteConfig,
		"run_poll":        c.Intervals.RunPoll,
		"library_refresh": c.Intervals.LibraryRefresh,
		"state_persist":   c.Intervals.StatePersist,
	} {
		if d < 0 {
			return fmt.Errorf("intervals.%s must be positive", name)
		}
	}

	if c.State.CompressionLevel < 0 || c.State.CompressionLevel > 4 {
		return errors.New("state.compression_level must be between 0 and 4")
	}
	if c.Provenance.URL != "" {
		if err := c.Provenance.Validate(); err != nil {
			return fmt.Errorf("provenance: %w", err)
		}
	}
	if c.ObjectStore.Enabled() {
		if err := c.ObjectStore.Validate(); err != nil {
			return fmt.Errorf("object_store: %w", err)
		}
	}
	return nil
}

// Save writes cfg to path, creating the directory when needed
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
