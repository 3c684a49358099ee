package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/picogrid/legion-connector/pkg/client"
	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/simulation"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration, Legion access and the simulator",
	RunE:  validateSetup,
}

func validateSetup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Success("Configuration is valid")

	sim, err := simulation.DefaultRegistry.Get(cfg.Connector.Simulator, cfg.Connector.Settings)
	if err != nil {
		return fmt.Errorf("failed to create simulator: %w", err)
	}

	var legionClient *client.Legion
	err = logger.WithSpinner("Connecting to Legion", func() error {
		var err error
		legionClient, err = newPlatformClient(ctx, cfg)
		if err != nil {
			return err
		}
		return legionClient.ValidateConnection(ctx)
	})
	if err != nil {
		return err
	}

	err = logger.WithSpinner("Testing simulator", func() error {
		if err := sim.TestConnection(ctx); err != nil {
			return err
		}
		v, err := sim.SimulatorVersion(ctx)
		if err != nil {
			return err
		}
		logger.Infof("%s version %s", sim.Definition().Name, v)
		return nil
	})
	if err != nil {
		return err
	}

	return checkIntegration(ctx, legionClient, cfg.Connector.IntegrationExternalID)
}

func checkIntegration(ctx context.Context, legionClient *client.Legion, externalID string) error {
	integration, err := legionClient.GetIntegration(ctx, externalID)
	if err != nil {
		return err
	}
	if integration == nil {
		logger.Infof("Integration %s does not exist yet and will be created on first run", externalID)
		return nil
	}
	logger.Successf("Integration %s found", externalID)
	return nil
}
