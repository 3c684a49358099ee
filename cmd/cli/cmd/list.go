package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/simulation"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available simulators",
	Long:  `List the simulator plugins built into this connector and their settings`,
	RunE:  listSimulators,
}

func listSimulators(cmd *cobra.Command, args []string) error {
	names := simulation.DefaultRegistry.List()
	if len(names) == 0 {
		logger.Warn("No simulators registered")
		return nil
	}

	table := logger.NewTable("NAME", "SETTINGS", "DESCRIPTION")
	for _, name := range names {
		plugin, _ := simulation.DefaultRegistry.Plugin(name)
		table.AddRow(name, fmt.Sprintf("%d", len(plugin.Parameters)), plugin.Description)
	}
	table.Print()
	return nil
}
