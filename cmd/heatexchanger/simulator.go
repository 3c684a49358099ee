// Package heatexchanger is a simulator plugin solving a single-pass heat exchanger.
// Models are YAML files holding default values of the exchanger variables.
package heatexchanger

import (
	"context"
	"fmt"
	"strings"

	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/models"
	"github.com/picogrid/legion-connector/pkg/routine"
	"github.com/picogrid/legion-connector/pkg/simulation"
)

// Version of the plugin and of the bundled solver
const (
	ConnectorVersion = "1.0.0"
	EngineVersion    = "1.0.0"
)

// Simulator implements simulation.SimulatorClient
type Simulator struct {
	config *Config
	log    logger.Logger
}

// NewSimulator creates a simulator from resolved settings
func NewSimulator(settings simulation.Settings) (simulation.SimulatorClient, error) {
	config, err := ValidateAndParse(settings)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return &Simulator{
		config: config,
		log:    logger.WithPrefix("heatexchanger"),
	}, nil
}

func init() {
	if err := simulation.DefaultRegistry.Register(simulation.Plugin{
		Name:        "heatexchanger",
		Description: "Single-pass heat exchanger solved from an energy balance",
		Parameters:  Parameters(),
		Factory:     NewSimulator,
	}); err != nil {
		panic(err)
	}
}

func (s *Simulator) Definition() models.SimulatorDefinition {
	return Definition()
}

func (s *Simulator) ConnectorVersion() string {
	return ConnectorVersion
}

func (s *Simulator) SimulatorVersion(_ context.Context) (string, error) {
	return "HeatExchanger " + EngineVersion, nil
}

// TestConnection solves the built-in operating point
func (s *Simulator) TestConnection(ctx context.Context) error {
	return simulation.WithAutomation(ctx, newEngine("", s.config), func(a simulation.Automation) error {
		_, err := a.Invoke(ctx, MethodSolve)
		return err
	})
}

// OpenModel checks that the model file exists, has a known extension and parses
func (s *Simulator) OpenModel(_ context.Context, model models.ModelState) error {
	ext := strings.TrimPrefix(strings.ToLower(model.FileExtension), ".")
	if ext != "" && !supportedExtension(ext) {
		return fmt.Errorf("unsupported model file extension %q", model.FileExtension)
	}
	if _, err := LoadModel(model.FilePath); err != nil {
		return err
	}
	s.log.Debugf("Model %s accepted", model.ExternalID)
	return nil
}

// RunSimulation loads the model, runs the routine script against it and returns
// the outputs read by the script
func (s *Simulator) RunSimulation(ctx context.Context, model models.ModelState, rev models.RoutineRevision, inputs map[string]models.SimulationValue) (map[string]models.SimulationValue, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.SolveTimeout)
	defer cancel()

	var outputs map[string]models.SimulationValue
	err := simulation.WithAutomation(ctx, newEngine(model.FilePath, s.config), func(a simulation.Automation) error {
		var err error
		outputs, err = routine.Perform(ctx, &routineImpl{engine: a}, rev, inputs)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("routine", rev.ExternalID).Debugf("Simulation produced %d outputs", len(outputs))
	return outputs, nil
}

func supportedExtension(ext string) bool {
	for _, e := range Definition().FileExtensionTypes {
		if e == ext {
			return true
		}
	}
	return false
}
