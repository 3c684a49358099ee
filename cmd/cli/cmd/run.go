package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/picogrid/legion-connector/pkg/connector"
	"github.com/picogrid/legion-connector/pkg/library"
	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/metrics"
	"github.com/picogrid/legion-connector/pkg/runner"
	"github.com/picogrid/legion-connector/pkg/sampling"
	"github.com/picogrid/legion-connector/pkg/simulation"
	"github.com/picogrid/legion-connector/pkg/telemetry"

	// Import simulators to register them
	_ "github.com/picogrid/legion-connector/cmd/heatexchanger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the connector",
	Long: `Run the connector until interrupted. The connector registers its simulator
and integration, then polls Legion for simulation runs. When the integration's
remote configuration changes the connector reloads and starts again.`,
	RunE: runConnector,
}

func runConnector(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		err := runSession(ctx)
		if errors.Is(err, connector.ErrRestartRequested) {
			logger.Progress("Remote configuration changed, restarting connector")
			continue
		}
		if err != nil {
			return err
		}
		logger.Success("Connector stopped")
		return nil
	}
}

// runSession wires one connector from the configuration file and runs it until ctx
// is canceled or a restart is requested.
func runSession(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger.LogSection(fmt.Sprintf("Legion Connector %s", version))
	logger.LogKeyValue("Integration", cfg.Connector.IntegrationExternalID)
	logger.LogKeyValue("Simulator", cfg.Connector.Simulator)
	logger.LogKeyValue("Legion", cfg.Platform.URL)

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, "legion-connector", version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warnf("Failed to flush traces: %v", err)
		}
	}()

	m := metrics.New(prometheus.NewRegistry())
	stopMetrics := serveMetrics(cfg.Metrics.Addr, m)
	defer stopMetrics()

	legionClient, err := newPlatformClient(ctx, cfg)
	if err != nil {
		return err
	}

	sim, err := simulation.DefaultRegistry.Get(cfg.Connector.Simulator, cfg.Connector.Settings)
	if err != nil {
		return fmt.Errorf("failed to create simulator: %w", err)
	}
	def := sim.Definition()

	store, err := openState(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("Failed to close state: %v", err)
		}
	}()

	prov, closeProvenance, err := newProvenanceStore(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer closeProvenance()

	files, err := newFileSource(ctx, cfg, legionClient)
	if err != nil {
		return err
	}

	modelLibrary, err := library.NewModelLibrary(library.ModelLibraryConfig{
		SimulatorExternalID: def.ExternalID,
		Dir:                 cfg.State.ModelDir,
		API:                 legionClient,
		Files:               files,
		Opener:              sim,
		Store:               store,
		Metrics:             m,
		SettleDelay:         time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create model library: %w", err)
	}
	defer modelLibrary.Close()

	routineLibrary, err := library.NewRoutineLibrary(legionClient, cfg.Connector.IntegrationExternalID, store)
	if err != nil {
		return fmt.Errorf("failed to create routine library: %w", err)
	}

	coordinator, err := runner.New(runner.Config{
		SimulatorExternalID:   def.ExternalID,
		IntegrationExternalID: cfg.Connector.IntegrationExternalID,
		DataSetID:             cfg.Connector.DataSetID,
		Runs:                  legionClient,
		Models:                modelLibrary,
		Routines:              routineLibrary,
		Accessor:              sampling.NewPlatformAccessor(legionClient),
		Simulator:             sim,
		Sink:                  legionClient,
		Provenance:            prov,
		Status:                connector.NewStatusPublisher(legionClient, cfg.Connector.IntegrationExternalID, m),
		Cleaner:               modelLibrary,
		Metrics:               m,
	})
	if err != nil {
		return fmt.Errorf("failed to create run coordinator: %w", err)
	}

	conn, err := connector.New(connector.Config{
		IntegrationExternalID: cfg.Connector.IntegrationExternalID,
		DataSetID:             cfg.Connector.DataSetID,
		LicenseCheck:          cfg.Connector.LicenseCheck,
		Platform:              legionClient,
		Simulator:             sim,
		Runner:                coordinator,
		Models:                modelLibrary,
		Routines:              routineLibrary,
		State:                 store,
		Intervals:             cfg.Intervals,
		Metrics:               m,
	})
	if err != nil {
		return fmt.Errorf("failed to create connector: %w", err)
	}

	logger.Successf("Connector %s started", cfg.Connector.Name)
	return conn.Run(ctx)
}
