package heatexchanger

import (
	"fmt"
	"time"

	"github.com/picogrid/legion-connector/pkg/simulation"
)

// Config holds the settings of the heat exchanger simulator
type Config struct {
	// MaxTemperature is the outlet temperature above which a solve reports a warning
	MaxTemperature float64
	// EfficiencyFactor is the fraction of the heat transfer reaching the fluid
	EfficiencyFactor float64
	SolveTimeout     time.Duration
}

// Parameters lists the settings accepted in the connector configuration
func Parameters() []simulation.Parameter {
	return []simulation.Parameter{
		{
			Name:        "max_temperature",
			Type:        "float",
			Description: "Outlet temperature (degC) above which a solve reports a warning",
			Default:     100.0,
			Min:         0.0,
		},
		{
			Name:        "efficiency_factor",
			Type:        "float",
			Description: "Fraction of the heat transfer reaching the fluid",
			Default:     0.95,
			Min:         0.01,
			Max:         1.0,
		},
		{
			Name:        "solve_timeout",
			Type:        "duration",
			Description: "Maximum duration of one simulation",
			Default:     "30s",
		},
	}
}

// ValidateAndParse validates resolved settings into a Config
func ValidateAndParse(settings simulation.Settings) (*Config, error) {
	config := &Config{
		MaxTemperature:   settings.Float("max_temperature", 100),
		EfficiencyFactor: settings.Float("efficiency_factor", 0.95),
		SolveTimeout:     settings.Duration("solve_timeout", 30*time.Second),
	}

	if config.EfficiencyFactor <= 0 || config.EfficiencyFactor > 1 {
		return nil, fmt.Errorf("efficiency_factor must be in (0, 1]")
	}
	if config.SolveTimeout <= 0 {
		return nil, fmt.Errorf("solve_timeout must be positive")
	}

	return config, nil
}
