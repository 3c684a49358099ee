package models

import (
	"fmt"
	"strconv"
)

// StepType dispatches a routine script step.
type StepType string

const (
	StepTypeSet         StepType = "Set"
	StepTypeGet         StepType = "Get"
	StepTypeCommand     StepType = "Command"
	StepTypeLoop        StepType = "Loop"
	StepTypeConditional StepType = "Conditional"
)

// ValueType is the payload kind of a simulation value.
type ValueType string

const (
	ValueTypeDouble ValueType = "DOUBLE"
	ValueTypeString ValueType = "STRING"
)

// Unit attaches a unit and its physical quantity to a value.
type Unit struct {
	Name     string `json:"name" yaml:"name" example:"degC"`
	Quantity string `json:"quantity,omitempty" yaml:"quantity,omitempty" example:"temperature"`
}

// SimulationValue is a numeric or textual value exchanged with a simulator.
// @Description A value set on or read from a simulator, with its unit.
// @name SimulationValue
type SimulationValue struct {
	Type   ValueType `json:"type" enums:"DOUBLE,STRING"`
	Number float64   `json:"number,omitempty"`
	Text   string    `json:"text,omitempty"`
	Unit   *Unit     `json:"unit,omitempty"`
}

// DoubleValue wraps a number.
func DoubleValue(v float64) SimulationValue {
	return SimulationValue{Type: ValueTypeDouble, Number: v}
}

// StringValue wraps a string.
func StringValue(s string) SimulationValue {
	return SimulationValue{Type: ValueTypeString, Text: s}
}

// Float returns the numeric payload, parsing textual values.
func (v SimulationValue) Float() (float64, error) {
	if v.Type == ValueTypeString {
		f, err := strconv.ParseFloat(v.Text, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", v.Text)
		}
		return f, nil
	}
	return v.Number, nil
}

// Format renders the payload as a string.
func (v SimulationValue) Format() string {
	if v.Type == ValueTypeString {
		return v.Text
	}
	return strconv.FormatFloat(v.Number, 'g', -1, 64)
}

// ScriptStep is one instruction of a routine script.
type ScriptStep struct {
	Order       int               `json:"order"`
	StepType    StepType          `json:"step_type" enums:"Set,Get,Command"`
	Description string            `json:"description,omitempty"`
	Arguments   map[string]string `json:"arguments"`
}

// ScriptStage groups ordered steps.
type ScriptStage struct {
	Order       int          `json:"order"`
	Description string       `json:"description,omitempty"`
	Steps       []ScriptStep `json:"steps"`
}

// LegacyStep is a step of the older routine format, which may nest a loop body or
// conditional branches.
type LegacyStep struct {
	Order     int               `json:"order"`
	StepType  StepType          `json:"step_type" enums:"Set,Get,Command,Loop,Conditional"`
	Arguments map[string]string `json:"arguments"`
	Steps     []LegacyStep      `json:"steps,omitempty"`
	If        []LegacyStep      `json:"if,omitempty"`
	Else      []LegacyStep      `json:"else,omitempty"`
}

// LegacyStage groups ordered legacy steps.
type LegacyStage struct {
	Order int          `json:"order"`
	Steps []LegacyStep `json:"steps"`
}

// RoutineInput describes one value fed to the simulator. It is either a constant or
// sampled from a time series.
type RoutineInput struct {
	Name        string           `json:"name"`
	ReferenceID string           `json:"reference_id"`
	ValueType   ValueType        `json:"value_type" enums:"DOUBLE,STRING"`
	Unit        *Unit            `json:"unit,omitempty"`
	Value       *SimulationValue `json:"value,omitempty"`
	// SourceExternalID names the time series to sample; nil for constants.
	SourceExternalID *string `json:"source_external_id,omitempty"`
	// Aggregate applied when sampling, e.g. "average".
	Aggregate string `json:"aggregate,omitempty"`
	// SaveTimeseriesExternalID, when set, receives the value used for the run.
	SaveTimeseriesExternalID *string `json:"save_timeseries_external_id,omitempty"`
}

// IsTimeSeries reports whether the input is sampled from a time series.
func (i RoutineInput) IsTimeSeries() bool {
	return i.SourceExternalID != nil && *i.SourceExternalID != ""
}

// RoutineOutput describes one value read back from the simulator.
type RoutineOutput struct {
	Name                     string    `json:"name"`
	ReferenceID              string    `json:"reference_id"`
	ValueType                ValueType `json:"value_type" enums:"DOUBLE,STRING"`
	Unit                     *Unit     `json:"unit,omitempty"`
	SaveTimeseriesExternalID *string   `json:"save_timeseries_external_id,omitempty"`
}

// DataSamplingConfig controls the validation and sampling windows. Durations are minutes.
type DataSamplingConfig struct {
	Enabled          bool `json:"enabled"`
	ValidationWindow *int `json:"validation_window,omitempty"`
	SamplingWindow   *int `json:"sampling_window,omitempty"`
	Granularity      *int `json:"granularity,omitempty"`
}

// LogicalCheckConfig gates sampling on a boolean condition over a time series.
type LogicalCheckConfig struct {
	Enabled              bool     `json:"enabled"`
	TimeseriesExternalID string   `json:"timeseries_external_id,omitempty"`
	Aggregate            string   `json:"aggregate,omitempty"`
	Operator             string   `json:"operator,omitempty" enums:"eq,ne,gt,ge,lt,le"`
	Value                *float64 `json:"value,omitempty"`
}

// SteadyStateDetectionConfig gates sampling on a steady process variable.
type SteadyStateDetectionConfig struct {
	Enabled              bool     `json:"enabled"`
	TimeseriesExternalID string   `json:"timeseries_external_id,omitempty"`
	Aggregate            string   `json:"aggregate,omitempty"`
	MinSectionSize       *int     `json:"min_section_size,omitempty"`
	VarThreshold         *float64 `json:"var_threshold,omitempty"`
	SlopeThreshold       *float64 `json:"slope_threshold,omitempty"`
}

// RoutineConfiguration holds the sampling rules and the input and output declarations of a routine.
type RoutineConfiguration struct {
	DataSampling         DataSamplingConfig          `json:"data_sampling"`
	LogicalCheck         *LogicalCheckConfig         `json:"logical_check,omitempty"`
	SteadyStateDetection *SteadyStateDetectionConfig `json:"steady_state_detection,omitempty"`
	Inputs               []RoutineInput              `json:"inputs,omitempty"`
	Outputs              []RoutineOutput             `json:"outputs,omitempty"`
}

// Input returns the input declared under referenceID.
func (c RoutineConfiguration) Input(referenceID string) (RoutineInput, bool) {
	for _, in := range c.Inputs {
		if in.ReferenceID == referenceID {
			return in, true
		}
	}
	return RoutineInput{}, false
}

// Output returns the output declared under referenceID.
func (c RoutineConfiguration) Output(referenceID string) (RoutineOutput, bool) {
	for _, out := range c.Outputs {
		if out.ReferenceID == referenceID {
			return out, true
		}
	}
	return RoutineOutput{}, false
}

// RoutineRevision is an immutable, versioned routine script plus its configuration.
// @Description A routine revision as stored by the platform.
// @name RoutineRevision
type RoutineRevision struct {
	ID                             int64                `json:"id"`
	ExternalID                     string               `json:"external_id"`
	RoutineExternalID              string               `json:"routine_external_id"`
	SimulatorExternalID            string               `json:"simulator_external_id"`
	SimulatorIntegrationExternalID string               `json:"simulator_integration_external_id"`
	ModelExternalID                string               `json:"model_external_id"`
	Configuration                  RoutineConfiguration `json:"configuration"`
	Script                         []ScriptStage        `json:"script,omitempty"`
	// LegacyScript is set instead of Script for routines authored in the older format.
	LegacyScript []LegacyStage `json:"legacy_script,omitempty"`
	CreatedTime  int64         `json:"created_time"`
}

// IsLegacy reports whether the revision uses the older script format.
func (r RoutineRevision) IsLegacy() bool {
	return len(r.Script) == 0 && len(r.LegacyScript) > 0
}

// RoutineRevisionFilter narrows a routine revision listing.
type RoutineRevisionFilter struct {
	SimulatorIntegrationExternalIDs []string `json:"simulator_integration_external_ids,omitempty"`
	SimulatorExternalIDs            []string `json:"simulator_external_ids,omitempty"`
	AllVersions                     bool     `json:"all_versions,omitempty"`
}

// ListRoutineRevisionsRequest is the body of a routine revision listing call.
type ListRoutineRevisionsRequest struct {
	Filter RoutineRevisionFilter `json:"filter"`
	Limit  int                   `json:"limit,omitempty"`
	Cursor *string               `json:"cursor,omitempty"`
}
