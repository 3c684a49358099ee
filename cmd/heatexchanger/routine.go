package heatexchanger

import (
	"context"
	"fmt"

	"github.com/picogrid/legion-connector/pkg/models"
	"github.com/picogrid/legion-connector/pkg/simulation"
)

// Step arguments understood by the heat exchanger
const (
	ArgVariable  = "variable"
	ArgCommand   = "command"
	CommandSolve = "solve"
)

// routineImpl maps routine steps onto engine calls
type routineImpl struct {
	engine simulation.Automation
}

func variableArg(args map[string]string) (string, error) {
	name, ok := args[ArgVariable]
	if !ok {
		return "", fmt.Errorf("missing required '%s' argument", ArgVariable)
	}
	if name == "" {
		return "", fmt.Errorf("'%s' cannot be empty", ArgVariable)
	}
	return name, nil
}

func (r *routineImpl) SetInput(ctx context.Context, _ models.RoutineInput, value models.SimulationValue, args map[string]string) error {
	name, err := variableArg(args)
	if err != nil {
		return err
	}
	_, err = r.engine.Invoke(ctx, MethodSetVariable, name, value)
	return err
}

func (r *routineImpl) GetOutput(ctx context.Context, _ models.RoutineOutput, args map[string]string) (models.SimulationValue, error) {
	name, err := variableArg(args)
	if err != nil {
		return models.SimulationValue{}, err
	}
	v, err := r.engine.Invoke(ctx, MethodGetVariable, name)
	if err != nil {
		return models.SimulationValue{}, err
	}
	value, ok := v.(models.SimulationValue)
	if !ok {
		return models.SimulationValue{}, fmt.Errorf("variable %s has unexpected value %v", name, v)
	}
	return value, nil
}

func (r *routineImpl) RunCommand(ctx context.Context, args map[string]string) error {
	command := args[ArgCommand]
	if command == "" {
		command = CommandSolve
	}
	if command != CommandSolve {
		return fmt.Errorf("unsupported command %q", command)
	}
	_, err := r.engine.Invoke(ctx, MethodSolve)
	return err
}
