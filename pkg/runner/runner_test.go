package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/legion-connector/pkg/models"
	"github.com/picogrid/legion-connector/pkg/provenance"
	"github.com/picogrid/legion-connector/pkg/sampling"
)

const integration = "site-a"

type fakeRegistry struct {
	mu      sync.Mutex
	runs    []models.SimulationRun
	updates []models.UpdateRunRequest
	listErr error
}

func (f *fakeRegistry) ListRuns(_ context.Context, filter models.RunFilter) ([]models.SimulationRun, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.SimulationRun
	for _, r := range f.runs {
		if r.Status == filter.Status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRegistry) UpdateRunStatus(_ context.Context, req models.UpdateRunRequest) (*models.SimulationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	return &models.SimulationRun{ID: req.ID, Status: req.Status}, nil
}

func (f *fakeRegistry) statuses(id int64) []models.RunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RunStatus
	for _, u := range f.updates {
		if u.ID == id {
			out = append(out, u.Status)
		}
	}
	return out
}

func (f *fakeRegistry) last(id int64) models.UpdateRunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last models.UpdateRunRequest
	for _, u := range f.updates {
		if u.ID == id {
			last = u
		}
	}
	return last
}

type fakeModels map[string]models.ModelState

func (f fakeModels) GetModel(_ context.Context, id string) (*models.ModelState, error) {
	m, ok := f[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

type fakeRoutines map[string]models.RoutineRevision

func (f fakeRoutines) GetRoutine(_ context.Context, id string) (*models.RoutineRevision, error) {
	r, ok := f[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

type fakeAccessor struct {
	latest map[string]float64
	sample map[string][]float64
}

func (f *fakeAccessor) GetSample(_ context.Context, seriesID, _ string, _ int, r sampling.TimeRange) ([]int64, []float64, error) {
	values, ok := f.sample[seriesID]
	if !ok {
		return nil, nil, sampling.ErrNoData
	}
	ts := make([]int64, len(values))
	for i := range values {
		ts[i] = r.Start + int64(i)*60_000
	}
	return ts, values, nil
}

func (f *fakeAccessor) GetLatestValue(_ context.Context, seriesID string, _ sampling.TimeRange) (float64, error) {
	v, ok := f.latest[seriesID]
	if !ok {
		return 0, sampling.ErrNoData
	}
	return v, nil
}

type fakeSimulator struct {
	calls  int
	inputs map[string]models.SimulationValue
	run    func(ctx context.Context) (map[string]models.SimulationValue, error)
}

func (f *fakeSimulator) RunSimulation(ctx context.Context, _ models.ModelState, _ models.RoutineRevision, inputs map[string]models.SimulationValue) (map[string]models.SimulationValue, error) {
	f.calls++
	f.inputs = inputs
	if f.run != nil {
		return f.run(ctx)
	}
	return map[string]models.SimulationValue{"T_out": models.DoubleValue(22.4)}, nil
}

type fakeSink struct {
	creates []models.TimeSeriesCreate
	inserts []models.DataPointInsert
}

func (f *fakeSink) CreateTimeSeries(_ context.Context, items []models.TimeSeriesCreate) ([]models.TimeSeries, error) {
	f.creates = append(f.creates, items...)
	return nil, nil
}

func (f *fakeSink) InsertDataPoints(_ context.Context, items []models.DataPointInsert) error {
	f.inserts = append(f.inserts, items...)
	return nil
}

func (f *fakeSink) point(externalID string) *models.DataPoint {
	for _, in := range f.inserts {
		if in.ExternalID == externalID && len(in.DataPoints) == 1 {
			return &in.DataPoints[0]
		}
	}
	return nil
}

type fakeProvenance struct {
	records map[int64]provenance.RunConfiguration
}

func (f *fakeProvenance) Record(_ context.Context, rc provenance.RunConfiguration) error {
	if f.records == nil {
		f.records = make(map[int64]provenance.RunConfiguration)
	}
	f.records[rc.RunID] = rc
	return nil
}

func (f *fakeProvenance) Get(_ context.Context, runID int64) (*provenance.RunConfiguration, error) {
	rc, ok := f.records[runID]
	if !ok {
		return nil, provenance.ErrNotFound
	}
	return &rc, nil
}

type fakeStatus struct {
	mu       sync.Mutex
	statuses []string
}

func (f *fakeStatus) PublishStatus(_ context.Context, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
}

type fakeCleaner struct{ calls int }

func (f *fakeCleaner) WipeTemporaryFiles() error {
	f.calls++
	return nil
}

type harness struct {
	registry   *fakeRegistry
	models     fakeModels
	routines   fakeRoutines
	accessor   *fakeAccessor
	simulator  *fakeSimulator
	sink       *fakeSink
	provenance *fakeProvenance
	status     *fakeStatus
	cleaner    *fakeCleaner
	coord      *Coordinator
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func newHarness(t *testing.T, runs ...models.SimulationRun) *harness {
	t.Helper()
	h := &harness{
		registry: &fakeRegistry{runs: runs},
		models: fakeModels{
			"hx-1": {
				ExternalID:      "hx-1",
				ModelExternalID: "hx",
				VersionNumber:   4,
				FilePath:        "/models/hx-1.yaml",
				Parsed:          true,
			},
			"hx-broken": {
				ExternalID: "hx-broken",
				ParseError: "yaml: line 3: mapping values are not allowed",
			},
		},
		routines: fakeRoutines{
			"cooling-1": {
				ExternalID:                     "cooling-1",
				RoutineExternalID:              "cooling",
				SimulatorExternalID:            "heatexchanger",
				SimulatorIntegrationExternalID: integration,
				Configuration: models.RoutineConfiguration{
					Inputs: []models.RoutineInput{
						{Name: "Inlet temperature", ReferenceID: "T_in", ValueType: models.ValueTypeDouble, SourceExternalID: strPtr("plant/T_in"), SaveTimeseriesExternalID: strPtr("cooling/T_in")},
						{Name: "Flow", ReferenceID: "flow", ValueType: models.ValueTypeDouble, Value: &models.SimulationValue{Type: models.ValueTypeDouble, Number: 2}},
					},
					Outputs: []models.RoutineOutput{
						{Name: "Outlet temperature", ReferenceID: "T_out", ValueType: models.ValueTypeDouble, Unit: &models.Unit{Name: "degC"}, SaveTimeseriesExternalID: strPtr("cooling/T_out")},
					},
				},
			},
			"foreign-1": {ExternalID: "foreign-1", SimulatorIntegrationExternalID: "site-b"},
		},
		accessor:   &fakeAccessor{latest: map[string]float64{"plant/T_in": 18.5}},
		simulator:  &fakeSimulator{},
		sink:       &fakeSink{},
		provenance: &fakeProvenance{},
		status:     &fakeStatus{},
		cleaner:    &fakeCleaner{},
	}

	coord, err := New(Config{
		SimulatorExternalID:   "heatexchanger",
		IntegrationExternalID: integration,
		Runs:                  h.registry,
		Models:                h.models,
		Routines:              h.routines,
		Accessor:              h.accessor,
		Simulator:             h.simulator,
		Sink:                  h.sink,
		Provenance:            h.provenance,
		Status:                h.status,
		Cleaner:               h.cleaner,
		Now:                   func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	})
	require.NoError(t, err)
	h.coord = coord
	return h
}

func readyRun(id int64, routine, model string) models.SimulationRun {
	return models.SimulationRun{
		ID:                        id,
		Status:                    models.RunStatusReady,
		RoutineRevisionExternalID: routine,
		ModelRevisionExternalID:   model,
		CreatedTime:               id * 1000,
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{IntegrationExternalID: integration, Runs: &fakeRegistry{}})
	assert.Error(t, err)
}

func TestPendingOrder(t *testing.T) {
	crashed := readyRun(9, "cooling-1", "hx-1")
	crashed.Status = models.RunStatusRunning
	newer := readyRun(3, "cooling-1", "hx-1")
	older := readyRun(1, "cooling-1", "hx-1")
	h := newHarness(t, newer, crashed, older)

	runs, err := h.coord.Pending(context.Background())
	require.NoError(t, err)

	ids := make([]int64, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{9, 1, 3}, ids)
}

func TestProcessRunSuccess(t *testing.T) {
	run := readyRun(1, "cooling-1", "hx-1")
	runTime := int64(1_699_000_000_000)
	run.RunTime = &runTime
	h := newHarness(t, run)

	require.NoError(t, h.coord.RunOnce(context.Background()))

	assert.Equal(t, []models.RunStatus{models.RunStatusRunning, models.RunStatusSuccess}, h.registry.statuses(1))
	final := h.registry.last(1)
	require.NotNil(t, final.SimulationTime)
	assert.Equal(t, runTime, *final.SimulationTime)

	assert.Equal(t, 1, h.simulator.calls)
	assert.Equal(t, 18.5, h.simulator.inputs["T_in"].Number)
	assert.Equal(t, 2.0, h.simulator.inputs["flow"].Number)

	var ids []string
	for _, c := range h.sink.creates {
		ids = append(ids, c.ExternalID)
	}
	assert.ElementsMatch(t, []string{"cooling/T_in", "cooling" + ModelVersionSuffix, "cooling/T_out"}, ids)

	version := h.sink.point("cooling" + ModelVersionSuffix)
	require.NotNil(t, version)
	assert.Equal(t, 4.0, *version.Value)
	assert.Equal(t, runTime, version.Timestamp)
	out := h.sink.point("cooling/T_out")
	require.NotNil(t, out)
	assert.Equal(t, 22.4, *out.Value)

	rc, err := h.provenance.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "hx-1", rc.ModelRevisionExternalID)
	assert.Equal(t, 4, rc.ModelVersion)
	assert.False(t, rc.DataSampling)
	assert.Nil(t, rc.SamplingStart)
	require.Len(t, rc.Inputs, 2)
	assert.Equal(t, "plant/T_in", rc.Inputs[0].SourceExternalID)

	assert.Equal(t, []string{models.ConnectorStatusRunningSimulation, models.ConnectorStatusIdle}, h.status.statuses)
	assert.Equal(t, 1, h.cleaner.calls)
}

func TestProcessRunWithDataSampling(t *testing.T) {
	h := newHarness(t, readyRun(1, "cooling-1", "hx-1"))
	routine := h.routines["cooling-1"]
	routine.Configuration.DataSampling = models.DataSamplingConfig{
		Enabled:        true,
		SamplingWindow: intPtr(3),
		Granularity:    intPtr(1),
	}
	h.routines["cooling-1"] = routine
	h.accessor.sample = map[string][]float64{"plant/T_in": {10, 20, 30}}

	require.NoError(t, h.coord.RunOnce(context.Background()))

	assert.Equal(t, models.RunStatusSuccess, h.registry.last(1).Status)
	assert.Equal(t, 20.0, h.simulator.inputs["T_in"].Number)

	now := int64(1_700_000_000_000)
	rc := h.provenance.records[1]
	assert.True(t, rc.DataSampling)
	require.NotNil(t, rc.SamplingStart)
	assert.Equal(t, now-3*60_000, *rc.SamplingStart)
	assert.Equal(t, now, rc.SamplingEnd)

	midpoint := now - 3*60_000/2
	assert.Equal(t, midpoint, rc.SimulationTime)
	last := h.registry.last(1)
	require.NotNil(t, last.SimulationTime)
	assert.Equal(t, midpoint, *last.SimulationTime)
	out := h.sink.point("cooling/T_out")
	require.NotNil(t, out)
	assert.Equal(t, midpoint, out.Timestamp)
}

func TestCrashedRunFailsWithoutSimulation(t *testing.T) {
	run := readyRun(7, "cooling-1", "hx-1")
	run.Status = models.RunStatusRunning
	h := newHarness(t, run)

	require.NoError(t, h.coord.RunOnce(context.Background()))

	assert.Equal(t, 0, h.simulator.calls)
	assert.Equal(t, []models.RunStatus{models.RunStatusFailure}, h.registry.statuses(7))
	msg := h.registry.last(7).StatusMessage
	require.NotNil(t, msg)
	assert.Equal(t, ErrCrashedRun.Error(), *msg)
}

func TestCrashedRunWithMissingRoutine(t *testing.T) {
	run := readyRun(8, "missing-routine", "hx-1")
	run.Status = models.RunStatusRunning
	h := newHarness(t, run)

	require.NoError(t, h.coord.RunOnce(context.Background()))

	assert.Equal(t, []models.RunStatus{models.RunStatusFailure}, h.registry.statuses(8))
	msg := h.registry.last(8).StatusMessage
	require.NotNil(t, msg)
	assert.Equal(t, ErrCrashedRun.Error(), *msg)
}

func TestFailureDoesNotStopBatch(t *testing.T) {
	h := newHarness(t,
		readyRun(1, "missing-routine", "hx-1"),
		readyRun(2, "cooling-1", "hx-broken"),
		readyRun(3, "cooling-1", "hx-1"),
	)

	require.NoError(t, h.coord.RunOnce(context.Background()))

	assert.Equal(t, models.RunStatusFailure, h.registry.last(1).Status)
	assert.Contains(t, *h.registry.last(1).StatusMessage, "missing-routine not found")
	assert.Equal(t, models.RunStatusFailure, h.registry.last(2).Status)
	assert.Contains(t, *h.registry.last(2).StatusMessage, "could not be opened")
	assert.Equal(t, models.RunStatusSuccess, h.registry.last(3).Status)
	assert.Equal(t, 1, h.simulator.calls)
	assert.Equal(t, 3, h.cleaner.calls)
}

func TestRunForOtherIntegrationIsSkipped(t *testing.T) {
	h := newHarness(t, readyRun(1, "foreign-1", "hx-1"))

	require.NoError(t, h.coord.RunOnce(context.Background()))

	assert.Empty(t, h.registry.statuses(1))
	assert.Equal(t, 0, h.simulator.calls)
	assert.Equal(t, []string{models.ConnectorStatusIdle}, h.status.statuses)
}

func TestSamplingErrorFailsRun(t *testing.T) {
	h := newHarness(t, readyRun(1, "cooling-1", "hx-1"))
	h.accessor.latest = nil

	require.NoError(t, h.coord.RunOnce(context.Background()))

	final := h.registry.last(1)
	assert.Equal(t, models.RunStatusFailure, final.Status)
	assert.Contains(t, *final.StatusMessage, "plant/T_in")
	assert.Equal(t, 0, h.simulator.calls)
}

func TestPanicIsRecovered(t *testing.T) {
	h := newHarness(t, readyRun(1, "cooling-1", "hx-1"), readyRun(2, "cooling-1", "hx-1"))
	calls := 0
	h.simulator.run = func(context.Context) (map[string]models.SimulationValue, error) {
		calls++
		if calls == 1 {
			panic("solver crashed")
		}
		return map[string]models.SimulationValue{}, nil
	}

	require.NoError(t, h.coord.RunOnce(context.Background()))

	assert.Equal(t, models.RunStatusFailure, h.registry.last(1).Status)
	assert.Contains(t, *h.registry.last(1).StatusMessage, "solver crashed")
	assert.Equal(t, models.RunStatusSuccess, h.registry.last(2).Status)
}

func TestCancellationLeavesRunUntouched(t *testing.T) {
	h := newHarness(t, readyRun(1, "cooling-1", "hx-1"), readyRun(2, "cooling-1", "hx-1"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.simulator.run = func(ctx context.Context) (map[string]models.SimulationValue, error) {
		cancel()
		return nil, ctx.Err()
	}

	require.NoError(t, h.coord.RunOnce(ctx))

	assert.Equal(t, []models.RunStatus{models.RunStatusRunning}, h.registry.statuses(1))
	assert.Empty(t, h.registry.statuses(2))
	assert.Equal(t, 1, h.simulator.calls)
}

func TestListErrorIsReturned(t *testing.T) {
	h := newHarness(t)
	h.registry.listErr = errors.New("unavailable")

	err := h.coord.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestTruncateMessage(t *testing.T) {
	short := "model not found"
	assert.Equal(t, short, TruncateMessage(short))

	long := strings.Repeat("é", 300)
	got := TruncateMessage(long)
	assert.Len(t, []rune(got), MaxStatusMessageLength)
	assert.True(t, strings.HasSuffix(got, "..."))
}
