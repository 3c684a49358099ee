package heatexchanger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/picogrid/legion-connector/pkg/models"
)

// Engine methods reachable through simulation.Automation.Invoke
const (
	MethodSetVariable = "SetVariable"
	MethodGetVariable = "GetVariable"
	MethodSolve       = "Solve"
)

// Solve status values
const (
	StatusConverged       = "converged"
	StatusHighTemperature = "warning_high_temperature"
	StatusCoolingDetected = "error_cooling_detected"
)

// Default operating point, water at 20 degC
var defaultVariables = map[string]float64{
	"inlet_temp":    20.0,
	"flow_rate":     1.0,
	"heat_capacity": 4186.0,
	"heat_transfer": 10000.0,
}

// inputVariables are read by a solve, in validation order
var inputVariables = []string{"inlet_temp", "flow_rate", "heat_capacity", "heat_transfer"}

var errNotConnected = errors.New("engine is not connected")

// LoadModel reads a model file: a YAML map of variable names to numbers or strings.
func LoadModel(path string) (map[string]models.SimulationValue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("model file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}

	vars := make(map[string]models.SimulationValue, len(raw))
	for name, v := range raw {
		switch val := v.(type) {
		case int:
			vars[name] = models.DoubleValue(float64(val))
		case float64:
			vars[name] = models.DoubleValue(val)
		case string:
			vars[name] = models.StringValue(val)
		default:
			return nil, fmt.Errorf("variable %s has unsupported value %v", name, v)
		}
	}
	return vars, nil
}

// engine is the heat exchanger solver. It holds the variables of one loaded model.
type engine struct {
	modelPath string
	cfg       *Config
	variables map[string]models.SimulationValue
}

func newEngine(modelPath string, cfg *Config) *engine {
	return &engine{modelPath: modelPath, cfg: cfg}
}

// Connect loads the model defaults. An empty model path starts from the built-in
// operating point only.
func (e *engine) Connect(_ context.Context) error {
	e.variables = make(map[string]models.SimulationValue, len(defaultVariables))
	for name, v := range defaultVariables {
		e.variables[name] = models.DoubleValue(v)
	}
	if e.modelPath == "" {
		return nil
	}

	vars, err := LoadModel(e.modelPath)
	if err != nil {
		return err
	}
	for name, v := range vars {
		e.variables[name] = v
	}
	return nil
}

func (e *engine) Invoke(ctx context.Context, method string, args ...any) (any, error) {
	if e.variables == nil {
		return nil, errNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch method {
	case MethodSetVariable:
		if len(args) != 2 {
			return nil, fmt.Errorf("%s expects a name and a value", method)
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s: variable name must be a string", method)
		}
		value, ok := args[1].(models.SimulationValue)
		if !ok {
			return nil, fmt.Errorf("%s: unsupported value %v", method, args[1])
		}
		e.variables[name] = value
		return nil, nil

	case MethodGetVariable:
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects a name", method)
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s: variable name must be a string", method)
		}
		value, ok := e.variables[name]
		if !ok {
			return nil, fmt.Errorf("variable %q not found in simulation results", name)
		}
		return value, nil

	case MethodSolve:
		return nil, e.solve()

	default:
		return nil, fmt.Errorf("unknown engine method %s", method)
	}
}

func (e *engine) Release() error {
	e.variables = nil
	return nil
}

func (e *engine) number(name string) (float64, error) {
	v, ok := e.variables[name]
	if !ok {
		return 0, fmt.Errorf("variable %q is not set", name)
	}
	f, err := v.Float()
	if err != nil {
		return 0, fmt.Errorf("variable %s: %w", name, err)
	}
	return f, nil
}

// solve applies Q = m * cp * dT to the current variables and stores the results.
func (e *engine) solve() error {
	inputs := make(map[string]float64, len(inputVariables))
	for _, name := range inputVariables {
		v, err := e.number(name)
		if err != nil {
			return err
		}
		inputs[name] = v
	}

	inletTemp := inputs["inlet_temp"]
	flowRate := inputs["flow_rate"]
	heatCapacity := inputs["heat_capacity"]
	heatTransfer := inputs["heat_transfer"]

	if flowRate <= 0 {
		return errors.New("flow rate must be positive")
	}
	if heatCapacity <= 0 {
		return errors.New("heat capacity must be positive")
	}

	deltaT := heatTransfer / (flowRate * heatCapacity)
	outletTemp := inletTemp + deltaT
	heatDuty := heatTransfer / 1000.0

	maxRise := deltaT / e.cfg.EfficiencyFactor
	efficiency := 0.0
	if maxRise > 0 {
		efficiency = deltaT / maxRise * 100
	}

	status := StatusConverged
	switch {
	case outletTemp > e.cfg.MaxTemperature:
		status = StatusHighTemperature
	case outletTemp < inletTemp:
		status = StatusCoolingDetected
	}

	e.variables["outlet_temp"] = models.DoubleValue(round2(outletTemp))
	e.variables["heat_duty"] = models.DoubleValue(round2(heatDuty))
	e.variables["temperature_rise"] = models.DoubleValue(round2(deltaT))
	e.variables["efficiency"] = models.DoubleValue(round2(efficiency))
	e.variables["status"] = models.StringValue(status)
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
