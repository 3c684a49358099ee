package routine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"

	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/models"
)

// Legacy step argument keys.
const (
	ArgVariables     = "variables"
	ArgName          = "name"
	ArgValue         = "value"
	ArgStoreAs       = "storeAs"
	ArgTimesToLoop   = "timesToLoop"
	ArgLoopIterator  = "loopIterator"
	ArgLeftSide      = "leftSide"
	ArgComparator    = "comparator"
	ArgRightSide     = "rightSide"
	localVariableArg = "localVariable"
)

// ErrUndeclaredVariable is returned when a script references a name that is neither a
// live local variable nor an active loop iterator.
var ErrUndeclaredVariable = errors.New("undeclared variable")

// localVariable is a script variable. Its accessor combines the declaring scope, the
// loop iteration path and the name, so same-named variables of different scopes or
// iterations never collide.
type localVariable struct {
	Name      string
	Value     string
	Scope     int
	Iterator  string
	Iteration int
	Accessor  string
}

type loopFrame struct {
	iterator  string
	iteration int
	scope     int
}

// LegacyInterpreter runs routine revisions in the older script format, which adds
// Loop and Conditional steps and block-scoped local variables.
type LegacyInterpreter struct {
	hooks
	script []models.LegacyStage
	log    logger.Logger

	scope int
	loops []*loopFrame
	vars  map[string]*localVariable
}

// NewLegacyInterpreter prepares a legacy revision for execution.
func NewLegacyInterpreter(impl Implementation, revision models.RoutineRevision, inputs map[string]models.SimulationValue) *LegacyInterpreter {
	return &LegacyInterpreter{
		hooks:  newHooks(impl, revision.Configuration, inputs),
		script: revision.LegacyScript,
		log:    logger.WithPrefix("routine").WithField("routine", revision.ExternalID),
		vars:   make(map[string]*localVariable),
	}
}

// PerformSimulation executes the script and returns the outputs read by Get steps.
// Local variables are discarded when the call returns.
func (r *LegacyInterpreter) PerformSimulation(ctx context.Context) (map[string]models.SimulationValue, error) {
	if len(r.script) == 0 {
		return nil, ErrEmptyScript
	}
	defer func() {
		clear(r.vars)
		r.loops = nil
		r.scope = 0
	}()

	stages := append([]models.LegacyStage(nil), r.script...)
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })

	for _, stage := range stages {
		for _, step := range sortedLegacySteps(stage.Steps) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := r.runStep(ctx, step); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
					return nil, err
				}
				return nil, wrapStep(stage.Order, step.Order, err)
			}
		}
	}
	return r.results, nil
}

func (r *LegacyInterpreter) runSteps(ctx context.Context, steps []models.LegacyStep) error {
	for _, step := range sortedLegacySteps(steps) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (r *LegacyInterpreter) runStep(ctx context.Context, step models.LegacyStep) error {
	switch step.StepType {
	case models.StepTypeSet:
		args, err := r.substitute(step.Arguments)
		if err != nil {
			return err
		}
		if args[ArgType] == localVariableArg {
			name := args[ArgName]
			if name == "" {
				return fmt.Errorf("local variable step is missing the %s argument", ArgName)
			}
			r.assign(name, args[ArgValue])
			return nil
		}
		return r.set(ctx, args)

	case models.StepTypeGet:
		args, err := r.substitute(step.Arguments)
		if err != nil {
			return err
		}
		value, err := r.get(ctx, args)
		if err != nil {
			return err
		}
		if name := args[ArgStoreAs]; name != "" {
			r.assign(name, value.Format())
		}
		return nil

	case models.StepTypeCommand:
		args, err := r.substitute(step.Arguments)
		if err != nil {
			return err
		}
		return r.command(ctx, args)

	case models.StepTypeLoop:
		return r.runLoop(ctx, step)

	case models.StepTypeConditional:
		return r.runConditional(ctx, step)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownStepType, step.StepType)
	}
}

func (r *LegacyInterpreter) runLoop(ctx context.Context, step models.LegacyStep) error {
	times, err := strconv.Atoi(strings.TrimSpace(step.Arguments[ArgTimesToLoop]))
	if err != nil || times < 0 {
		return fmt.Errorf("invalid %s %q", ArgTimesToLoop, step.Arguments[ArgTimesToLoop])
	}
	iterator := step.Arguments[ArgLoopIterator]
	if iterator == "" {
		return fmt.Errorf("loop step is missing the %s argument", ArgLoopIterator)
	}

	r.scope++
	frame := &loopFrame{iterator: iterator, scope: r.scope}
	r.loops = append(r.loops, frame)
	defer func() {
		r.loops = r.loops[:len(r.loops)-1]
		r.dropScope(frame.scope)
		r.scope--
	}()

	for i := 1; i <= times; i++ {
		frame.iteration = i
		if err := r.runIteration(ctx, frame, step.Steps); err != nil {
			return err
		}
	}
	return nil
}

func (r *LegacyInterpreter) runIteration(ctx context.Context, frame *loopFrame, steps []models.LegacyStep) error {
	defer r.dropScope(frame.scope)
	return r.runSteps(ctx, steps)
}

func (r *LegacyInterpreter) runConditional(ctx context.Context, step models.LegacyStep) error {
	args, err := r.substitute(step.Arguments)
	if err != nil {
		return err
	}
	ok, err := compare(args[ArgLeftSide], args[ArgComparator], args[ArgRightSide])
	if err != nil {
		return err
	}

	branch := step.Else
	if ok {
		branch = step.If
	}
	if len(branch) == 0 {
		return nil
	}

	r.scope++
	scope := r.scope
	defer func() {
		r.dropScope(scope)
		r.scope--
	}()
	return r.runSteps(ctx, branch)
}

// compare evaluates a conditional. Both sides are compared as numbers when they parse;
// otherwise only equality operators are allowed.
func compare(left, comparator, right string) (bool, error) {
	op := strings.ToLower(strings.TrimSpace(comparator))
	l, lerr := strconv.ParseFloat(strings.TrimSpace(left), 64)
	rv, rerr := strconv.ParseFloat(strings.TrimSpace(right), 64)
	numeric := lerr == nil && rerr == nil

	switch op {
	case "==", "eq", "equal":
		if numeric {
			return l == rv, nil
		}
		return left == right, nil
	case "!=", "ne", "notequal":
		if numeric {
			return l != rv, nil
		}
		return left != right, nil
	}

	if !numeric {
		return false, fmt.Errorf("cannot compare %q and %q with %q: operands are not numeric", left, right, comparator)
	}
	switch op {
	case ">", "gt", "greaterthan":
		return l > rv, nil
	case ">=", "ge", "greaterthanorequal":
		return l >= rv, nil
	case "<", "lt", "lessthan":
		return l < rv, nil
	case "<=", "le", "lessthanorequal":
		return l <= rv, nil
	}
	return false, fmt.Errorf("unknown comparator %q", comparator)
}

// Arguments that name things are never substituted.
var nameArgs = map[string]bool{ArgType: true, ArgName: true, ArgStoreAs: true, ArgLoopIterator: true}

// substitute replaces every name listed in the variables argument by its value in all
// other arguments.
func (r *LegacyInterpreter) substitute(args map[string]string) (map[string]string, error) {
	out := maps.Clone(args)
	if out == nil {
		out = make(map[string]string)
	}
	list, ok := out[ArgVariables]
	if !ok || strings.TrimSpace(list) == "" {
		return out, nil
	}
	delete(out, ArgVariables)

	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		value, err := r.resolve(name)
		if err != nil {
			return nil, err
		}
		for k, v := range out {
			if nameArgs[k] {
				continue
			}
			out[k] = strings.ReplaceAll(v, name, value)
		}
	}
	return out, nil
}

func (r *LegacyInterpreter) currentFrame() *loopFrame {
	if len(r.loops) == 0 {
		return nil
	}
	return r.loops[len(r.loops)-1]
}

// iterationPath identifies the active iteration of every enclosing loop.
func (r *LegacyInterpreter) iterationPath() string {
	parts := make([]string, len(r.loops))
	for i, f := range r.loops {
		parts[i] = f.iterator + ":" + strconv.Itoa(f.iteration)
	}
	return strings.Join(parts, "/")
}

func (r *LegacyInterpreter) accessor(name string) string {
	return fmt.Sprintf("%d-%s-%s", r.scope, r.iterationPath(), name)
}

// lookup finds a live variable by name, trying the exact accessor, then the current
// scope within the current iteration, then the nearest enclosing scope.
func (r *LegacyInterpreter) lookup(name string) *localVariable {
	if v, ok := r.vars[r.accessor(name)]; ok {
		return v
	}

	if frame := r.currentFrame(); frame != nil {
		for _, v := range r.vars {
			if v.Name == name && v.Scope == r.scope && v.Iterator == frame.iterator && v.Iteration == frame.iteration {
				return v
			}
		}
	}

	var nearest *localVariable
	for _, v := range r.vars {
		if v.Name == name && v.Scope < r.scope && (nearest == nil || v.Scope > nearest.Scope) {
			nearest = v
		}
	}
	return nearest
}

// resolve returns the value of a local variable or of an active loop iterator.
func (r *LegacyInterpreter) resolve(name string) (string, error) {
	if v := r.lookup(name); v != nil {
		return v.Value, nil
	}
	for i := len(r.loops) - 1; i >= 0; i-- {
		if r.loops[i].iterator == name {
			return strconv.Itoa(r.loops[i].iteration), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUndeclaredVariable, name)
}

// assign updates a visible variable or declares a new one in the current scope.
func (r *LegacyInterpreter) assign(name, value string) {
	if v := r.lookup(name); v != nil {
		v.Value = value
		return
	}

	v := &localVariable{
		Name:     name,
		Value:    value,
		Scope:    r.scope,
		Accessor: r.accessor(name),
	}
	if frame := r.currentFrame(); frame != nil {
		v.Iterator = frame.iterator
		v.Iteration = frame.iteration
	}
	r.vars[v.Accessor] = v
	r.log.Debugf("Declared %s = %q", v.Accessor, value)
}

// dropScope removes every variable declared in scope or deeper.
func (r *LegacyInterpreter) dropScope(scope int) {
	for key, v := range r.vars {
		if v.Scope >= scope {
			delete(r.vars, key)
		}
	}
}

func sortedLegacySteps(steps []models.LegacyStep) []models.LegacyStep {
	out := append([]models.LegacyStep(nil), steps...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
