// Package routine executes routine scripts against a simulator plugin. A script is an
// ordered list of stages, each holding ordered Set, Get and Command steps. The plugin
// only implements the three hooks of Implementation.
package routine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/models"
)

// Step argument keys.
const (
	ArgReferenceID = "referenceId"
	ArgType        = "type"
)

var (
	// ErrEmptyScript is returned for a routine revision without steps.
	ErrEmptyScript = errors.New("routine script is empty")
	// ErrInputNotFound is returned by a Set step whose input is not declared or has no value.
	ErrInputNotFound = errors.New("input not found")
	// ErrOutputNotFound is returned by a Get step whose output is not declared.
	ErrOutputNotFound = errors.New("output not found")
	// ErrUnknownStepType is returned for a step type the interpreter cannot dispatch.
	ErrUnknownStepType = errors.New("unknown step type")
)

// Implementation is the simulator-specific side of a routine.
type Implementation interface {
	SetInput(ctx context.Context, input models.RoutineInput, value models.SimulationValue, args map[string]string) error
	GetOutput(ctx context.Context, output models.RoutineOutput, args map[string]string) (models.SimulationValue, error)
	RunCommand(ctx context.Context, args map[string]string) error
}

// StepError locates a failure within a script. Stage and Step are the Order values of
// the failing stage and step.
type StepError struct {
	Stage int
	Step  int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("error in stage %d, step %d: %v", e.Stage, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// wrapStep attaches a location to err unless it already carries one.
func wrapStep(stage, step int, err error) error {
	var se *StepError
	if errors.As(err, &se) {
		return err
	}
	return &StepError{Stage: stage, Step: step, Err: err}
}

// hooks holds what both interpreters need to drive an Implementation.
type hooks struct {
	impl    Implementation
	config  models.RoutineConfiguration
	inputs  map[string]models.SimulationValue
	results map[string]models.SimulationValue
}

func newHooks(impl Implementation, config models.RoutineConfiguration, inputs map[string]models.SimulationValue) hooks {
	return hooks{
		impl:    impl,
		config:  config,
		inputs:  inputs,
		results: make(map[string]models.SimulationValue),
	}
}

func referenceID(args map[string]string) (string, error) {
	ref, ok := args[ArgReferenceID]
	if !ok || ref == "" {
		return "", fmt.Errorf("step is missing the %s argument", ArgReferenceID)
	}
	return ref, nil
}

func (h *hooks) set(ctx context.Context, args map[string]string) error {
	ref, err := referenceID(args)
	if err != nil {
		return err
	}
	input, declared := h.config.Input(ref)
	value, present := h.inputs[ref]
	if !declared || !present {
		return fmt.Errorf("%w: %s", ErrInputNotFound, ref)
	}
	return h.impl.SetInput(ctx, input, value, args)
}

func (h *hooks) get(ctx context.Context, args map[string]string) (models.SimulationValue, error) {
	ref, err := referenceID(args)
	if err != nil {
		return models.SimulationValue{}, err
	}
	output, ok := h.config.Output(ref)
	if !ok {
		return models.SimulationValue{}, fmt.Errorf("%w: %s", ErrOutputNotFound, ref)
	}
	value, err := h.impl.GetOutput(ctx, output, args)
	if err != nil {
		return models.SimulationValue{}, err
	}
	if value.Unit == nil {
		value.Unit = output.Unit
	}
	h.results[ref] = value
	return value, nil
}

func (h *hooks) command(ctx context.Context, args map[string]string) error {
	cmdArgs := maps.Clone(args)
	delete(cmdArgs, ArgType)
	return h.impl.RunCommand(ctx, cmdArgs)
}

// Interpreter runs routine revisions in the current script format.
type Interpreter struct {
	hooks
	script []models.ScriptStage
	log    logger.Logger
}

// NewInterpreter prepares revision for execution with the given input values, keyed by
// input reference id.
func NewInterpreter(impl Implementation, revision models.RoutineRevision, inputs map[string]models.SimulationValue) *Interpreter {
	return &Interpreter{
		hooks:  newHooks(impl, revision.Configuration, inputs),
		script: revision.Script,
		log:    logger.WithPrefix("routine").WithField("routine", revision.ExternalID),
	}
}

// PerformSimulation executes every step in order and returns the outputs read by Get
// steps, keyed by output reference id.
func (r *Interpreter) PerformSimulation(ctx context.Context) (map[string]models.SimulationValue, error) {
	if len(r.script) == 0 {
		return nil, ErrEmptyScript
	}

	for _, stage := range sortedStages(r.script) {
		for _, step := range sortedSteps(stage.Steps) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r.log.Debugf("Stage %d step %d: %s", stage.Order, step.Order, step.StepType)
			if err := r.runStep(ctx, step); err != nil {
				return nil, wrapStep(stage.Order, step.Order, err)
			}
		}
	}
	return r.results, nil
}

func (r *Interpreter) runStep(ctx context.Context, step models.ScriptStep) error {
	switch step.StepType {
	case models.StepTypeSet:
		return r.set(ctx, step.Arguments)
	case models.StepTypeGet:
		_, err := r.get(ctx, step.Arguments)
		return err
	case models.StepTypeCommand:
		return r.command(ctx, step.Arguments)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStepType, step.StepType)
	}
}

func sortedStages(stages []models.ScriptStage) []models.ScriptStage {
	out := append([]models.ScriptStage(nil), stages...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func sortedSteps(steps []models.ScriptStep) []models.ScriptStep {
	out := append([]models.ScriptStep(nil), steps...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Perform runs revision with the interpreter matching its script format.
func Perform(ctx context.Context, impl Implementation, revision models.RoutineRevision, inputs map[string]models.SimulationValue) (map[string]models.SimulationValue, error) {
	if revision.IsLegacy() {
		return NewLegacyInterpreter(impl, revision, inputs).PerformSimulation(ctx)
	}
	return NewInterpreter(impl, revision, inputs).PerformSimulation(ctx)
}
