package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/picogrid/legion-connector/pkg/config"
	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/simulation"
	"github.com/picogrid/legion-connector/pkg/utils"
)

const customURLOption = "Custom URL"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the connector configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file interactively",
	RunE:  initConfigFile,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  showConfig,
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing configuration file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func initConfigFile(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("config init is interactive; run it in a terminal or write the file by hand")
	}

	path, err := configPath()
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		overwrite := false
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("%s exists. Overwrite it?", path),
			Default: false,
		}
		if err := survey.AskOne(prompt, &overwrite); err != nil {
			return err
		}
		if !overwrite {
			logger.Info("Configuration left unchanged")
			return nil
		}
	}

	var cfg config.Config

	cfg.Platform.URL, err = selectEnvironmentURL()
	if err != nil {
		return err
	}
	if err := promptAuthentication(&cfg.Platform); err != nil {
		return err
	}

	idPrompt := &survey.Input{
		Message: "Integration external id:",
		Help:    "Identifies this connector installation in Legion",
	}
	if err := survey.AskOne(idPrompt, &cfg.Connector.IntegrationExternalID, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	plugin, err := selectSimulator()
	if err != nil {
		return err
	}
	cfg.Connector.Simulator = plugin.Name

	dataSetID, err := promptDataSetID()
	if err != nil {
		return err
	}
	cfg.Connector.DataSetID = dataSetID

	licensePrompt := &survey.Confirm{
		Message: "Check the simulator license periodically?",
		Default: false,
	}
	if err := survey.AskOne(licensePrompt, &cfg.Connector.LicenseCheck); err != nil {
		return err
	}

	if len(plugin.Parameters) > 0 {
		logger.LogSubSection(fmt.Sprintf("%s settings", plugin.Name))
		settings, err := utils.PromptForParameters(plugin.Parameters)
		if err != nil {
			return fmt.Errorf("failed to get simulator settings: %w", err)
		}
		cfg.Connector.Settings = settings
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.Save(&cfg, path); err != nil {
		return err
	}

	logger.Successf("Configuration written to %s", path)
	return nil
}

func selectEnvironmentURL() (string, error) {
	envs := config.Environments()
	options := make([]string, 0, len(envs)+1)
	urls := make(map[string]string, len(envs))
	for _, env := range envs {
		options = append(options, env.Name)
		urls[env.Name] = env.URL
	}
	options = append(options, customURLOption)

	var selected string
	prompt := &survey.Select{
		Message: "Select environment:",
		Options: options,
		Description: func(value string, _ int) string {
			return urls[value]
		},
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	if selected != customURLOption {
		return urls[selected], nil
	}

	var customURL string
	urlPrompt := &survey.Input{
		Message: "Enter Legion API URL:",
		Default: "https://legion.example.com",
	}
	if err := survey.AskOne(urlPrompt, &customURL, survey.WithValidator(survey.Required), survey.WithValidator(utils.ValidateURL)); err != nil {
		return "", err
	}
	return strings.TrimRight(strings.TrimSpace(customURL), "/"), nil
}

func promptAuthentication(p *config.PlatformConfig) error {
	const (
		apiKeyOption = "API Key (Environment Variable)"
		oauthOption  = "OAuth Client Credentials"
	)

	var method string
	authPrompt := &survey.Select{
		Message: "Authentication method:",
		Options: []string{apiKeyOption, oauthOption},
		Default: apiKeyOption,
	}
	if err := survey.AskOne(authPrompt, &method); err != nil {
		return err
	}

	if method == apiKeyOption {
		keyPrompt := &survey.Input{
			Message: "API key environment variable:",
			Default: config.DefaultAPIKeyEnv,
			Help:    "Name of the environment variable that contains the API key",
		}
		return survey.AskOne(keyPrompt, &p.APIKeyEnv, survey.WithValidator(survey.Required))
	}

	p.OAuth = &config.OAuthConfig{}
	questions := []*survey.Question{
		{
			Name:     "client_id",
			Prompt:   &survey.Input{Message: "OAuth client id:"},
			Validate: survey.Required,
		},
		{
			Name: "client_secret_env",
			Prompt: &survey.Input{
				Message: "Client secret environment variable:",
				Default: "LEGION_CLIENT_SECRET",
			},
			Validate: survey.Required,
		},
	}
	answers := struct {
		ClientID        string `survey:"client_id"`
		ClientSecretEnv string `survey:"client_secret_env"`
	}{}
	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}
	p.OAuth.ClientID = answers.ClientID
	p.OAuth.ClientSecretEnv = answers.ClientSecretEnv
	return nil
}

func selectSimulator() (simulation.Plugin, error) {
	names := simulation.DefaultRegistry.List()
	if len(names) == 0 {
		return simulation.Plugin{}, errors.New("no simulators registered")
	}

	var selected string
	prompt := &survey.Select{
		Message: "Select simulator:",
		Options: names,
		Description: func(value string, _ int) string {
			p, _ := simulation.DefaultRegistry.Plugin(value)
			return p.Description
		},
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return simulation.Plugin{}, err
	}

	plugin, _ := simulation.DefaultRegistry.Plugin(selected)
	return plugin, nil
}

func promptDataSetID() (int64, error) {
	var answer string
	prompt := &survey.Input{
		Message: "Data set id for result time series (optional):",
	}
	err := survey.AskOne(prompt, &answer, survey.WithValidator(func(val interface{}) error {
		s, _ := val.(string)
		if s == "" {
			return nil
		}
		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			return errors.New("data set id must be a number")
		}
		return nil
	}))
	if err != nil || answer == "" {
		return 0, err
	}
	return strconv.ParseInt(answer, 10, 64)
}

func showConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	shown := *cfg
	if shown.ObjectStore.SecretKey != "" {
		shown.ObjectStore.SecretKey = "********"
	}

	out, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
