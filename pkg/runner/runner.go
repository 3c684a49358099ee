// Package runner drives simulation runs through their lifecycle. Runs assigned to this
// connector are polled from the platform and executed one at a time: inputs are sampled,
// the simulator is invoked, results are written back and the run is moved to a terminal
// status.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/metrics"
	"github.com/picogrid/legion-connector/pkg/models"
	"github.com/picogrid/legion-connector/pkg/provenance"
	"github.com/picogrid/legion-connector/pkg/sampling"
	"github.com/picogrid/legion-connector/pkg/telemetry"
)

// MaxStatusMessageLength is the longest status message the platform accepts, in runes.
const MaxStatusMessageLength = 255

// ErrCrashedRun is the failure reported for runs that were left running by a previous
// connector process.
var ErrCrashedRun = errors.New("run was left in running state by a previous connector process and cannot be recovered")

// RunRegistry lists and updates simulation runs.
type RunRegistry interface {
	ListRuns(ctx context.Context, filter models.RunFilter) ([]models.SimulationRun, error)
	UpdateRunStatus(ctx context.Context, req models.UpdateRunRequest) (*models.SimulationRun, error)
}

// ModelResolver returns the local state of a model revision, or nil when it does not exist.
type ModelResolver interface {
	GetModel(ctx context.Context, externalID string) (*models.ModelState, error)
}

// RoutineResolver returns a routine revision, or nil when it does not exist.
type RoutineResolver interface {
	GetRoutine(ctx context.Context, externalID string) (*models.RoutineRevision, error)
}

// Simulator executes a routine against a model.
type Simulator interface {
	RunSimulation(ctx context.Context, model models.ModelState, routine models.RoutineRevision, inputs map[string]models.SimulationValue) (map[string]models.SimulationValue, error)
}

// ResultSink stores the time series produced by runs.
type ResultSink interface {
	CreateTimeSeries(ctx context.Context, items []models.TimeSeriesCreate) ([]models.TimeSeries, error)
	InsertDataPoints(ctx context.Context, items []models.DataPointInsert) error
}

// StatusPublisher reports the connector status. Implementations are best-effort.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, status string)
}

// Cleaner removes temporary artifacts left by a run.
type Cleaner interface {
	WipeTemporaryFiles() error
}

// Config holds the identity and collaborators of a Coordinator. Sink, Provenance,
// Status, Cleaner and Metrics are optional.
type Config struct {
	SimulatorExternalID   string
	IntegrationExternalID string
	// DataSetID is assigned to the time series created for results.
	DataSetID int64

	Runs       RunRegistry
	Models     ModelResolver
	Routines   RoutineResolver
	Accessor   sampling.Accessor
	Simulator  Simulator
	Sink       ResultSink
	Provenance provenance.Store
	Status     StatusPublisher
	Cleaner    Cleaner
	Metrics    *metrics.Metrics
	Logger     logger.Logger

	// Now is the clock used for runs without a requested time.
	Now func() time.Time
}

// Coordinator executes simulation runs sequentially.
type Coordinator struct {
	cfg    Config
	log    logger.Logger
	tracer trace.Tracer
}

// New validates cfg and creates a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	switch {
	case cfg.IntegrationExternalID == "":
		return nil, fmt.Errorf("integration external id is required")
	case cfg.Runs == nil:
		return nil, fmt.Errorf("run registry is required")
	case cfg.Models == nil || cfg.Routines == nil:
		return nil, fmt.Errorf("model and routine resolvers are required")
	case cfg.Accessor == nil:
		return nil, fmt.Errorf("data points accessor is required")
	case cfg.Simulator == nil:
		return nil, fmt.Errorf("simulator is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = logger.WithPrefix("runner")
	}
	return &Coordinator{cfg: cfg, log: log, tracer: telemetry.Tracer("runner")}, nil
}

// Pending returns the runs to process in this cycle: runs left running by a crashed
// process first, then ready runs oldest first.
func (c *Coordinator) Pending(ctx context.Context) ([]models.SimulationRun, error) {
	filter := models.RunFilter{
		SimulatorIntegrationExternalIDs: []string{c.cfg.IntegrationExternalID},
	}
	if c.cfg.SimulatorExternalID != "" {
		filter.SimulatorExternalIDs = []string{c.cfg.SimulatorExternalID}
	}

	filter.Status = models.RunStatusRunning
	running, err := c.cfg.Runs.ListRuns(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list running simulation runs: %w", err)
	}

	filter.Status = models.RunStatusReady
	ready, err := c.cfg.Runs.ListRuns(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list ready simulation runs: %w", err)
	}
	sort.SliceStable(ready, func(i, j int) bool { return ready[i].CreatedTime < ready[j].CreatedTime })

	return append(running, ready...), nil
}

// RunOnce processes every pending run. Failures of single runs are reported to the
// platform and do not stop the batch; only a failed listing is returned.
func (c *Coordinator) RunOnce(ctx context.Context) error {
	runs, err := c.Pending(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if len(runs) > 0 {
		c.log.Debugf("Found %d runs to process", len(runs))
	}

	for _, run := range runs {
		if ctx.Err() != nil {
			return nil
		}
		c.ProcessRun(ctx, run)
	}
	return nil
}

// outcome is how a run ended.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeSkipped
	outcomeCanceled
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return string(models.RunStatusSuccess)
	case outcomeFailure:
		return string(models.RunStatusFailure)
	case outcomeSkipped:
		return "skipped"
	default:
		return "canceled"
	}
}

// ProcessRun executes one run and moves it to a terminal status.
func (c *Coordinator) ProcessRun(ctx context.Context, run models.SimulationRun) {
	start := time.Now()
	log := c.log.WithFields(map[string]interface{}{
		"run_id":  run.ID,
		"routine": run.RoutineRevisionExternalID,
	})

	ctx, span := c.tracer.Start(ctx, "runner.process_run", trace.WithAttributes(
		attribute.Int64("run.id", run.ID),
		attribute.String("run.routine", run.RoutineRevisionExternalID),
		attribute.String("run.model", run.ModelRevisionExternalID),
	))
	defer span.End()

	simTime, err := c.execute(ctx, run, log)

	var result outcome
	switch {
	case err == nil:
		result = outcomeSuccess
		c.complete(ctx, log, models.UpdateRunRequest{
			ID:             run.ID,
			Status:         models.RunStatusSuccess,
			StatusMessage:  ptr("Simulation ran to completion"),
			SimulationTime: &simTime,
		})
		log.Infof("Run completed")
	case errors.Is(err, errSkipped):
		result = outcomeSkipped
		log.Debugf("Run skipped: %v", err)
	case ctx.Err() != nil:
		result = outcomeCanceled
		log.Infof("Run interrupted by shutdown")
	default:
		result = outcomeFailure
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Errorf("Run failed: %v", err)
		c.complete(ctx, log, models.UpdateRunRequest{
			ID:            run.ID,
			Status:        models.RunStatusFailure,
			StatusMessage: ptr(TruncateMessage(err.Error())),
		})
	}
	span.SetAttributes(attribute.String("run.status", result.String()))

	if result != outcomeCanceled {
		c.cfg.Metrics.ObserveRun(result.String(), time.Since(start))
	}
	c.finish(ctx, log)
}

// errSkipped marks runs that belong to another connector.
var errSkipped = errors.New("run belongs to another integration")

// execute performs the run and returns its simulation time.
func (c *Coordinator) execute(ctx context.Context, run models.SimulationRun, log logger.Logger) (simTime int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Debugf("Recovered panic: %s", debug.Stack())
			err = fmt.Errorf("simulation panicked: %v", r)
		}
	}()

	routine, err := c.cfg.Routines.GetRoutine(ctx, run.RoutineRevisionExternalID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve routine revision %s: %w", run.RoutineRevisionExternalID, err)
	}
	if routine != nil && routine.SimulatorIntegrationExternalID != c.cfg.IntegrationExternalID {
		return 0, fmt.Errorf("%w %s", errSkipped, routine.SimulatorIntegrationExternalID)
	}

	if run.Status == models.RunStatusRunning {
		return 0, ErrCrashedRun
	}
	if routine == nil {
		return 0, fmt.Errorf("routine revision %s not found", run.RoutineRevisionExternalID)
	}

	model, err := c.cfg.Models.GetModel(ctx, run.ModelRevisionExternalID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve model revision %s: %w", run.ModelRevisionExternalID, err)
	}
	if model == nil {
		return 0, fmt.Errorf("model revision %s not found", run.ModelRevisionExternalID)
	}
	if !model.Parsed {
		return 0, fmt.Errorf("model revision %s could not be opened by the simulator: %s", model.ExternalID, model.ParseError)
	}

	if c.cfg.Status != nil {
		c.cfg.Status.PublishStatus(ctx, models.ConnectorStatusRunningSimulation)
	}
	if _, err := c.cfg.Runs.UpdateRunStatus(ctx, models.UpdateRunRequest{
		ID:            run.ID,
		Status:        models.RunStatusRunning,
		StatusMessage: ptr("Running simulation"),
	}); err != nil {
		return 0, fmt.Errorf("failed to mark run as running: %w", err)
	}
	log.Infof("Running %s against model %s version %d", routine.ExternalID, model.ExternalID, model.VersionNumber)

	validationEnd := c.cfg.Now().UnixMilli()
	if run.RunTime != nil {
		validationEnd = *run.RunTime
	}

	cfg := routine.Configuration
	window := sampling.PointInTime(validationEnd)
	if cfg.DataSampling.Enabled {
		window, err = sampling.RunSteadyStateAndLogicalCheck(ctx, c.cfg.Accessor, cfg, validationEnd)
		if err != nil {
			return 0, err
		}
	}

	inputs, err := sampling.SampleInputs(ctx, c.cfg.Accessor, cfg, window)
	if err != nil {
		return 0, err
	}

	outputs, err := c.cfg.Simulator.RunSimulation(ctx, *model, *routine, sampling.Values(inputs))
	if err != nil {
		return 0, fmt.Errorf("simulation failed: %w", err)
	}

	simTime = window.Midpoint()
	res := result{
		run:           run,
		routine:       *routine,
		model:         *model,
		validationEnd: validationEnd,
		window:        window,
		inputs:        inputs,
		outputs:       outputs,
		simTime:       simTime,
	}
	if err := c.storeResults(ctx, res); err != nil {
		return 0, err
	}
	if err := c.recordProvenance(ctx, res); err != nil {
		return 0, err
	}
	return simTime, nil
}

// complete sends a terminal status update. Errors are logged; the run is picked up
// again on the next poll.
func (c *Coordinator) complete(ctx context.Context, log logger.Logger, req models.UpdateRunRequest) {
	if _, err := c.cfg.Runs.UpdateRunStatus(ctx, req); err != nil {
		log.Errorf("Failed to set run status to %s: %v", req.Status, err)
	}
}

func (c *Coordinator) finish(ctx context.Context, log logger.Logger) {
	if c.cfg.Status != nil {
		c.cfg.Status.PublishStatus(context.WithoutCancel(ctx), models.ConnectorStatusIdle)
	}
	if c.cfg.Cleaner != nil {
		if err := c.cfg.Cleaner.WipeTemporaryFiles(); err != nil {
			log.Warnf("Failed to remove temporary files: %v", err)
		}
	}
}

// TruncateMessage shortens msg to MaxStatusMessageLength runes.
func TruncateMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxStatusMessageLength {
		return msg
	}
	return string(runes[:MaxStatusMessageLength-3]) + "..."
}

func ptr[T any](v T) *T {
	return &v
}
