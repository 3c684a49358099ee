// Package connector runs the long-lived loops of a simulator connector: heartbeat,
// license check, remote configuration check, run polling, library refresh and state
// persistence. All loops share one context and stop together.
package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/metrics"
	"github.com/picogrid/legion-connector/pkg/models"
)

// ErrRestartRequested is returned by Run when the remote configuration of the
// integration changed. The caller is expected to reload and start again.
var ErrRestartRequested = errors.New("remote configuration changed, restart requested")

// Platform is the part of the platform client the connector talks to directly.
type Platform interface {
	IntegrationUpdater
	UpsertSimulator(ctx context.Context, def models.SimulatorDefinition) error
	GetIntegration(ctx context.Context, externalID string) (*models.Integration, error)
	CreateIntegration(ctx context.Context, create models.IntegrationCreate) (*models.Integration, error)
}

// Simulator describes and probes the simulator installation.
type Simulator interface {
	Definition() models.SimulatorDefinition
	ConnectorVersion() string
	SimulatorVersion(ctx context.Context) (string, error)
	TestConnection(ctx context.Context) error
}

// Poller processes one batch of pending work.
type Poller interface {
	RunOnce(ctx context.Context) error
}

// Refresher synchronizes a local cache with the platform.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Persister flushes local state to disk.
type Persister interface {
	Persist() error
}

// Intervals are the delays between iterations of each loop.
type Intervals struct {
	Heartbeat      time.Duration `yaml:"heartbeat"`
	LicenseCheck   time.Duration `yaml:"license_check"`
	RemoteConfig   time.Duration `yaml:"remote_config"`
	RunPoll        time.Duration `yaml:"run_poll"`
	LibraryRefresh time.Duration `yaml:"library_refresh"`
	StatePersist   time.Duration `yaml:"state_persist"`
}

// DefaultIntervals returns the intervals used for unset values.
func DefaultIntervals() Intervals {
	return Intervals{
		Heartbeat:      10 * time.Second,
		LicenseCheck:   10 * time.Minute,
		RemoteConfig:   30 * time.Second,
		RunPoll:        5 * time.Second,
		LibraryRefresh: time.Minute,
		StatePersist:   30 * time.Second,
	}
}

func (i Intervals) withDefaults() Intervals {
	d := DefaultIntervals()
	set := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	set(&i.Heartbeat, d.Heartbeat)
	set(&i.LicenseCheck, d.LicenseCheck)
	set(&i.RemoteConfig, d.RemoteConfig)
	set(&i.RunPoll, d.RunPoll)
	set(&i.LibraryRefresh, d.LibraryRefresh)
	set(&i.StatePersist, d.StatePersist)
	return i
}

// Config holds the identity and collaborators of a Connector. Models, Routines and
// State are optional.
type Config struct {
	IntegrationExternalID string
	DataSetID             int64
	// LicenseCheck enables the periodic simulator license probe.
	LicenseCheck bool

	Platform  Platform
	Simulator Simulator
	Runner    Poller
	Models    Refresher
	Routines  Refresher
	State     Persister

	Intervals Intervals
	// Errors trips an error notification on the integration. Defaults to 10 errors
	// within 5 minutes.
	Errors  *ErrorLimiter
	Metrics *metrics.Metrics
	Logger  logger.Logger
}

// Connector runs the polling loops of one integration.
type Connector struct {
	cfg Config
	log logger.Logger

	configRevision int64
}

// New validates cfg and creates a Connector.
func New(cfg Config) (*Connector, error) {
	if cfg.IntegrationExternalID == "" {
		return nil, fmt.Errorf("integration external id is required")
	}
	if cfg.Platform == nil || cfg.Simulator == nil || cfg.Runner == nil {
		return nil, fmt.Errorf("platform, simulator and runner are required")
	}
	cfg.Intervals = cfg.Intervals.withDefaults()
	if cfg.Errors == nil {
		cfg.Errors = NewErrorLimiter(5*time.Minute, 10)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.WithPrefix("connector")
	}
	log = log.WithFields(map[string]interface{}{
		"integration": cfg.IntegrationExternalID,
		"session":     uuid.NewString(),
	})
	return &Connector{cfg: cfg, log: log}, nil
}

// Run registers the connector and runs all loops until ctx is canceled, a loop fails
// to start, or the remote configuration changes. Cancellation returns nil; a
// configuration change returns ErrRestartRequested.
func (c *Connector) Run(ctx context.Context) error {
	if err := c.register(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	iv := c.cfg.Intervals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.loop(gctx, "heartbeat", iv.Heartbeat, c.heartbeat) })
	g.Go(func() error { return c.loop(gctx, "remote_config", iv.RemoteConfig, c.checkRemoteConfig) })
	g.Go(func() error { return c.loop(gctx, "runs", iv.RunPoll, c.cfg.Runner.RunOnce) })
	if c.cfg.LicenseCheck {
		g.Go(func() error { return c.loop(gctx, "license", iv.LicenseCheck, c.checkLicense) })
	}
	if c.cfg.Models != nil {
		g.Go(func() error { return c.loop(gctx, "models", iv.LibraryRefresh, c.cfg.Models.Refresh) })
	}
	if c.cfg.Routines != nil {
		g.Go(func() error { return c.loop(gctx, "routines", iv.LibraryRefresh, c.cfg.Routines.Refresh) })
	}
	if c.cfg.State != nil {
		g.Go(func() error {
			return c.loop(gctx, "state", iv.StatePersist, func(context.Context) error { return c.cfg.State.Persist() })
		})
	}

	c.log.Infof("Connector started")
	err := g.Wait()
	switch {
	case errors.Is(err, ErrRestartRequested):
		c.log.Infof("Remote configuration changed, restarting")
		return err
	case ctx.Err() != nil:
		c.log.Infof("Connector stopped")
		return nil
	default:
		return err
	}
}

// loop calls fn every interval until ctx is done. Errors are recorded and the loop
// continues; only ErrRestartRequested ends it.
func (c *Connector) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	log := c.log.WithField("loop", name)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if err := fn(ctx); err != nil {
			if errors.Is(err, ErrRestartRequested) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			c.recordError(ctx, log, name, err)
		}
		timer.Reset(interval)
	}
}

func (c *Connector) recordError(ctx context.Context, log logger.Logger, loop string, err error) {
	log.Errorf("Loop iteration failed: %v", err)
	c.cfg.Metrics.PollError(loop)

	if !c.cfg.Errors.Record() {
		return
	}
	msg := fmt.Sprintf("repeated errors in connector loops, last in %s: %v", loop, err)
	if uerr := c.cfg.Platform.UpdateIntegration(ctx, models.IntegrationUpdate{
		ExternalID:   c.cfg.IntegrationExternalID,
		ErrorMessage: &msg,
	}); uerr != nil {
		log.Warnf("Failed to report errors on the integration: %v", uerr)
	}
}

// register publishes the simulator definition and makes sure the integration exists
// with up-to-date versions.
func (c *Connector) register(ctx context.Context) error {
	def := c.cfg.Simulator.Definition()
	if err := c.cfg.Platform.UpsertSimulator(ctx, def); err != nil {
		return err
	}

	simVersion, err := c.cfg.Simulator.SimulatorVersion(ctx)
	if err != nil {
		c.log.Warnf("Could not read simulator version: %v", err)
	}
	connVersion := c.cfg.Simulator.ConnectorVersion()

	integ, err := c.cfg.Platform.GetIntegration(ctx, c.cfg.IntegrationExternalID)
	if err != nil {
		return err
	}
	if integ == nil {
		integ, err = c.cfg.Platform.CreateIntegration(ctx, models.IntegrationCreate{
			ExternalID:          c.cfg.IntegrationExternalID,
			SimulatorExternalID: def.ExternalID,
			DataSetID:           c.cfg.DataSetID,
			ConnectorVersion:    connVersion,
			SimulatorVersion:    simVersion,
		})
		if err != nil {
			return err
		}
		c.log.Infof("Registered integration for simulator %s", def.ExternalID)
	}
	c.configRevision = integ.ConfigRevision

	now := time.Now().UnixMilli()
	idle := models.ConnectorStatusIdle
	update := models.IntegrationUpdate{
		ExternalID:       c.cfg.IntegrationExternalID,
		ConnectorVersion: &connVersion,
		ConnectorStatus:  &idle,
		Heartbeat:        &now,
	}
	if simVersion != "" {
		update.SimulatorVersion = &simVersion
	}
	if err := c.cfg.Platform.UpdateIntegration(ctx, update); err != nil {
		return err
	}
	c.cfg.Metrics.SetStatus(idle)
	return nil
}

func (c *Connector) heartbeat(ctx context.Context) error {
	now := time.Now().UnixMilli()
	return c.cfg.Platform.UpdateIntegration(ctx, models.IntegrationUpdate{
		ExternalID: c.cfg.IntegrationExternalID,
		Heartbeat:  &now,
	})
}

func (c *Connector) checkLicense(ctx context.Context) error {
	status := models.LicenseStatusAvailable
	if err := c.cfg.Simulator.TestConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warnf("Simulator license check failed: %v", err)
		status = models.LicenseStatusNotAvailable
	}

	now := time.Now().UnixMilli()
	return c.cfg.Platform.UpdateIntegration(ctx, models.IntegrationUpdate{
		ExternalID:             c.cfg.IntegrationExternalID,
		LicenseStatus:          &status,
		LicenseLastCheckedTime: &now,
	})
}

func (c *Connector) checkRemoteConfig(ctx context.Context) error {
	integ, err := c.cfg.Platform.GetIntegration(ctx, c.cfg.IntegrationExternalID)
	if err != nil {
		return err
	}
	if integ == nil {
		return fmt.Errorf("integration %s no longer exists", c.cfg.IntegrationExternalID)
	}
	if integ.ConfigRevision != c.configRevision {
		c.log.Infof("Configuration revision changed from %d to %d", c.configRevision, integ.ConfigRevision)
		return ErrRestartRequested
	}
	return nil
}
