package runner

import (
	"context"
	"fmt"
	"sort"

	"github.com/picogrid/legion-connector/pkg/models"
	"github.com/picogrid/legion-connector/pkg/provenance"
	"github.com/picogrid/legion-connector/pkg/sampling"
)

// ModelVersionSuffix is appended to the routine external id to name the series that
// records which model version each run used.
const ModelVersionSuffix = "-MODEL_VERSION"

// result is everything a finished simulation produced.
type result struct {
	run           models.SimulationRun
	routine       models.RoutineRevision
	model         models.ModelState
	validationEnd int64
	window        sampling.SamplingRange
	inputs        map[string]sampling.SampledInput
	outputs       map[string]models.SimulationValue
	simTime       int64
}

// seriesWrite is one time series and the point written to it.
type seriesWrite struct {
	create models.TimeSeriesCreate
	point  models.DataPoint
}

// resultSeries lists the series to write for res: saved inputs, the model version and
// saved outputs.
func (c *Coordinator) resultSeries(res result) []seriesWrite {
	routineID := res.routine.RoutineExternalID
	if routineID == "" {
		routineID = res.routine.ExternalID
	}
	meta := func(kind, ref string) map[string]string {
		return map[string]string{
			"kind":                         kind,
			"reference_id":                 ref,
			"routine_external_id":          routineID,
			"routine_revision_external_id": res.routine.ExternalID,
			"simulator_external_id":        res.routine.SimulatorExternalID,
		}
	}

	var writes []seriesWrite

	refs := make([]string, 0, len(res.inputs))
	for ref := range res.inputs {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	for _, ref := range refs {
		in := res.inputs[ref]
		if in.Input.SaveTimeseriesExternalID == nil || *in.Input.SaveTimeseriesExternalID == "" {
			continue
		}
		m := meta("input", ref)
		if in.Input.IsTimeSeries() {
			m["source_external_id"] = *in.Input.SourceExternalID
		}
		writes = append(writes, c.valueSeries(*in.Input.SaveTimeseriesExternalID, in.Input.Name, in.Value, m, res.simTime))
	}

	version := float64(res.model.VersionNumber)
	versionMeta := meta("model_version", "")
	delete(versionMeta, "reference_id")
	versionMeta["model_external_id"] = res.model.ModelExternalID
	writes = append(writes, seriesWrite{
		create: models.TimeSeriesCreate{
			ExternalID:  routineID + ModelVersionSuffix,
			Name:        routineID + " model version",
			Description: "Model revision version used by each simulation run",
			IsStep:      true,
			DataSetID:   c.cfg.DataSetID,
			Metadata:    versionMeta,
		},
		point: models.DataPoint{Timestamp: res.simTime, Value: &version},
	})

	for _, out := range res.routine.Configuration.Outputs {
		if out.SaveTimeseriesExternalID == nil || *out.SaveTimeseriesExternalID == "" {
			continue
		}
		value, ok := res.outputs[out.ReferenceID]
		if !ok {
			c.log.Warnf("Output %s was not produced by the simulation", out.ReferenceID)
			continue
		}
		if value.Unit == nil {
			value.Unit = out.Unit
		}
		writes = append(writes, c.valueSeries(*out.SaveTimeseriesExternalID, out.Name, value, meta("output", out.ReferenceID), res.simTime))
	}
	return writes
}

func (c *Coordinator) valueSeries(externalID, name string, v models.SimulationValue, meta map[string]string, ts int64) seriesWrite {
	w := seriesWrite{
		create: models.TimeSeriesCreate{
			ExternalID: externalID,
			Name:       name,
			IsString:   v.Type == models.ValueTypeString,
			DataSetID:  c.cfg.DataSetID,
			Metadata:   meta,
		},
		point: models.DataPoint{Timestamp: ts},
	}
	if v.Unit != nil {
		w.create.Unit = v.Unit.Name
	}
	if v.Type == models.ValueTypeString {
		w.point.StringValue = ptr(v.Text)
	} else {
		w.point.Value = ptr(v.Number)
	}
	return w
}

// storeResults creates the result series and writes one point per series.
func (c *Coordinator) storeResults(ctx context.Context, res result) error {
	if c.cfg.Sink == nil {
		return nil
	}
	writes := c.resultSeries(res)

	creates := make([]models.TimeSeriesCreate, 0, len(writes))
	inserts := make([]models.DataPointInsert, 0, len(writes))
	for _, w := range writes {
		creates = append(creates, w.create)
		inserts = append(inserts, models.DataPointInsert{
			ExternalID: w.create.ExternalID,
			DataPoints: []models.DataPoint{w.point},
		})
	}

	if _, err := c.cfg.Sink.CreateTimeSeries(ctx, creates); err != nil {
		return fmt.Errorf("failed to create result time series: %w", err)
	}
	if err := c.cfg.Sink.InsertDataPoints(ctx, inserts); err != nil {
		return fmt.Errorf("failed to store result data points: %w", err)
	}
	return nil
}

// recordProvenance stores the run configuration record of res.
func (c *Coordinator) recordProvenance(ctx context.Context, res result) error {
	if c.cfg.Provenance == nil {
		return nil
	}
	cfg := res.routine.Configuration

	rc := provenance.RunConfiguration{
		RunID:                     res.run.ID,
		RoutineRevisionExternalID: res.routine.ExternalID,
		ModelRevisionExternalID:   res.model.ExternalID,
		ModelVersion:              res.model.VersionNumber,
		DataSampling:              cfg.DataSampling.Enabled,
		ValidationEnd:             res.validationEnd,
		SamplingStart:             res.window.Start,
		SamplingEnd:               res.window.End,
		Outputs:                   res.outputs,
		SimulationTime:            res.simTime,
	}
	if cfg.DataSampling.Enabled {
		rc.LogicalCheck = cfg.LogicalCheck
		rc.SteadyStateDetection = cfg.SteadyStateDetection
		if w := cfg.DataSampling.ValidationWindow; w != nil {
			rc.ValidationStart = ptr(res.validationEnd - int64(*w)*60_000)
		}
	}

	refs := make([]string, 0, len(res.inputs))
	for ref := range res.inputs {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	for _, ref := range refs {
		in := res.inputs[ref]
		rec := provenance.InputRecord{ReferenceID: ref, Value: in.Value}
		if in.Input.IsTimeSeries() {
			rec.SourceExternalID = *in.Input.SourceExternalID
			rec.Aggregate = in.Input.Aggregate
		}
		rc.Inputs = append(rc.Inputs, rec)
	}

	if err := c.cfg.Provenance.Record(ctx, rc); err != nil {
		return fmt.Errorf("failed to record run configuration for run %d: %w", res.run.ID, err)
	}
	return nil
}
