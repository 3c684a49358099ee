package simulation

import (
	"context"

	"github.com/picogrid/legion-connector/pkg/models"
)

// SimulatorClient defines the interface every simulator plugin must implement
type SimulatorClient interface {
	// Definition describes the simulator to the platform
	Definition() models.SimulatorDefinition

	// ConnectorVersion returns the version of the plugin
	ConnectorVersion() string

	// SimulatorVersion returns the version of the simulator installation
	SimulatorVersion(ctx context.Context) (string, error)

	// TestConnection checks that the simulator can be reached and is licensed
	TestConnection(ctx context.Context) error

	// OpenModel verifies that the simulator can load the model file at model.FilePath
	OpenModel(ctx context.Context, model models.ModelState) error

	// RunSimulation executes routine against model with the given input values and
	// returns the outputs keyed by reference id
	RunSimulation(ctx context.Context, model models.ModelState, routine models.RoutineRevision, inputs map[string]models.SimulationValue) (map[string]models.SimulationValue, error)
}

// Automation is the capability a simulator exposes for scripting: connect once,
// invoke named methods, release when done.
type Automation interface {
	Connect(ctx context.Context) error
	Invoke(ctx context.Context, method string, args ...any) (any, error)
	Release() error
}

// WithAutomation connects a, runs fn and always releases a afterwards.
func WithAutomation(ctx context.Context, a Automation, fn func(Automation) error) (err error) {
	if err := a.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if relErr := a.Release(); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return fn(a)
}
