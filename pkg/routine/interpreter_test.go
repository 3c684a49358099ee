package routine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/legion-connector/pkg/models"
)

// memorySimulator stores values set through SetInput and returns them through GetOutput,
// keyed by the "variable" argument.
type memorySimulator struct {
	values   map[string]models.SimulationValue
	commands []map[string]string
	onCmd    func(args map[string]string) error
}

func newMemorySimulator() *memorySimulator {
	return &memorySimulator{values: make(map[string]models.SimulationValue)}
}

func (m *memorySimulator) SetInput(_ context.Context, _ models.RoutineInput, value models.SimulationValue, args map[string]string) error {
	m.values[args["variable"]] = value
	return nil
}

func (m *memorySimulator) GetOutput(_ context.Context, output models.RoutineOutput, args map[string]string) (models.SimulationValue, error) {
	v, ok := m.values[args["variable"]]
	if !ok {
		return models.SimulationValue{}, errors.New("variable not found: " + args["variable"])
	}
	return v, nil
}

func (m *memorySimulator) RunCommand(_ context.Context, args map[string]string) error {
	m.commands = append(m.commands, args)
	if m.onCmd != nil {
		return m.onCmd(args)
	}
	return nil
}

func revision(script ...models.ScriptStage) models.RoutineRevision {
	return models.RoutineRevision{
		ExternalID: "hx-routine-1",
		Configuration: models.RoutineConfiguration{
			Inputs: []models.RoutineInput{
				{Name: "Inlet temperature", ReferenceID: "T_IN", ValueType: models.ValueTypeDouble},
			},
			Outputs: []models.RoutineOutput{
				{Name: "Outlet temperature", ReferenceID: "T_OUT", ValueType: models.ValueTypeDouble, Unit: &models.Unit{Name: "degC"}},
			},
		},
		Script: script,
	}
}

func TestPerformSimulationRoundTrip(t *testing.T) {
	sim := newMemorySimulator()
	rev := revision(
		models.ScriptStage{Order: 2, Steps: []models.ScriptStep{
			{Order: 1, StepType: models.StepTypeGet, Arguments: map[string]string{"referenceId": "T_OUT", "variable": "temperature"}},
		}},
		models.ScriptStage{Order: 1, Steps: []models.ScriptStep{
			{Order: 1, StepType: models.StepTypeSet, Arguments: map[string]string{"referenceId": "T_IN", "variable": "temperature"}},
		}},
	)
	inputs := map[string]models.SimulationValue{"T_IN": models.DoubleValue(42.5)}

	results, err := NewInterpreter(sim, rev, inputs).PerformSimulation(context.Background())
	require.NoError(t, err)

	require.Contains(t, results, "T_OUT")
	assert.Equal(t, 42.5, results["T_OUT"].Number)
	assert.Equal(t, "degC", results["T_OUT"].Unit.Name)
}

func TestPerformSimulationOrdersSteps(t *testing.T) {
	sim := newMemorySimulator()
	rev := revision(models.ScriptStage{Order: 1, Steps: []models.ScriptStep{
		{Order: 3, StepType: models.StepTypeCommand, Arguments: map[string]string{"command": "third"}},
		{Order: 1, StepType: models.StepTypeCommand, Arguments: map[string]string{"command": "first", "type": "solve"}},
		{Order: 2, StepType: models.StepTypeCommand, Arguments: map[string]string{"command": "second"}},
	}})

	_, err := NewInterpreter(sim, rev, nil).PerformSimulation(context.Background())
	require.NoError(t, err)

	require.Len(t, sim.commands, 3)
	assert.Equal(t, "first", sim.commands[0]["command"])
	assert.NotContains(t, sim.commands[0], "type")
	assert.Equal(t, "second", sim.commands[1]["command"])
	assert.Equal(t, "third", sim.commands[2]["command"])
}

func TestPerformSimulationErrors(t *testing.T) {
	tests := []struct {
		name    string
		step    models.ScriptStep
		inputs  map[string]models.SimulationValue
		wantErr error
	}{
		{
			name:    "input without value",
			step:    models.ScriptStep{Order: 4, StepType: models.StepTypeSet, Arguments: map[string]string{"referenceId": "T_IN"}},
			wantErr: ErrInputNotFound,
		},
		{
			name:    "undeclared input",
			step:    models.ScriptStep{Order: 4, StepType: models.StepTypeSet, Arguments: map[string]string{"referenceId": "P_IN"}},
			inputs:  map[string]models.SimulationValue{"P_IN": models.DoubleValue(1)},
			wantErr: ErrInputNotFound,
		},
		{
			name:    "undeclared output",
			step:    models.ScriptStep{Order: 4, StepType: models.StepTypeGet, Arguments: map[string]string{"referenceId": "DUTY"}},
			wantErr: ErrOutputNotFound,
		},
		{
			name:    "unknown step type",
			step:    models.ScriptStep{Order: 4, StepType: "Wait"},
			wantErr: ErrUnknownStepType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rev := revision(models.ScriptStage{Order: 7, Steps: []models.ScriptStep{tt.step}})

			_, err := NewInterpreter(newMemorySimulator(), rev, tt.inputs).PerformSimulation(context.Background())
			require.ErrorIs(t, err, tt.wantErr)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, 7, stepErr.Stage)
			assert.Equal(t, 4, stepErr.Step)
		})
	}
}

func TestPerformSimulationMissingReferenceID(t *testing.T) {
	rev := revision(models.ScriptStage{Order: 1, Steps: []models.ScriptStep{
		{Order: 1, StepType: models.StepTypeGet, Arguments: map[string]string{"variable": "x"}},
	}})

	_, err := NewInterpreter(newMemorySimulator(), rev, nil).PerformSimulation(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "referenceId")
}

func TestPerformSimulationEmptyScript(t *testing.T) {
	_, err := NewInterpreter(newMemorySimulator(), revision(), nil).PerformSimulation(context.Background())
	assert.ErrorIs(t, err, ErrEmptyScript)
}

func TestWrapStepKeepsOriginalLocation(t *testing.T) {
	inner := wrapStep(2, 5, errors.New("solver diverged"))
	outer := wrapStep(9, 9, inner)

	var stepErr *StepError
	require.ErrorAs(t, outer, &stepErr)
	assert.Equal(t, 2, stepErr.Stage)
	assert.Equal(t, 5, stepErr.Step)
}

func TestPerformSimulationStopsWhenCanceled(t *testing.T) {
	sim := newMemorySimulator()
	ctx, cancel := context.WithCancel(context.Background())
	sim.onCmd = func(map[string]string) error {
		cancel()
		return nil
	}
	rev := revision(models.ScriptStage{Order: 1, Steps: []models.ScriptStep{
		{Order: 1, StepType: models.StepTypeCommand, Arguments: map[string]string{"command": "solve"}},
		{Order: 2, StepType: models.StepTypeCommand, Arguments: map[string]string{"command": "solve"}},
	}})

	_, err := NewInterpreter(sim, rev, nil).PerformSimulation(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sim.commands, 1)
}
