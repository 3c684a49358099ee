package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/picogrid/legion-connector/pkg/config"
	"github.com/picogrid/legion-connector/pkg/logger"
)

// version is set at build time with -ldflags "-X .../cmd.version=..."
var version = "dev"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "legion-connector",
	Short: "Legion simulator connector",
	Long: `Legion Connector links a simulator installation to Legion. It keeps the
simulator's models and routines in sync, samples plant data for each requested
run, executes the simulation and writes the results back as time series.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config file (default is $HOME/.legion-connector/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.no_color", rootCmd.PersistentFlags().Lookup("no-color"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// initConfig reads flags and LEGION_CONNECTOR_* environment variables
func initConfig() {
	viper.SetEnvPrefix("LEGION_CONNECTOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	logger.SetLevel(logger.ParseLevel(viper.GetString("log.level")))
	logger.SetNoColor(viper.GetBool("log.no_color"))
}

// configPath returns the configuration file selected by flag or environment
func configPath() (string, error) {
	if path := viper.GetString("config"); path != "" {
		return path, nil
	}
	return config.DefaultPath()
}

// loadConfig loads the configuration file. Log settings given on the command line
// or in the environment take precedence over the file, as do
// LEGION_CONNECTOR_PLATFORM_URL and LEGION_CONNECTOR_PLATFORM_PROJECT.
func loadConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if url := viper.GetString("platform.url"); url != "" {
		cfg.Platform.URL = url
	}
	if project := viper.GetString("platform.project"); project != "" {
		cfg.Platform.Project = project
	}

	level := cfg.Log.Level
	if viper.IsSet("log.level") && viper.GetString("log.level") != "" {
		level = viper.GetString("log.level")
	}
	logger.SetLevel(logger.ParseLevel(level))
	logger.SetNoColor(cfg.Log.NoColor || viper.GetBool("log.no_color"))
	return cfg, nil
}
