package models

import "time"

// ModelRevision is a versioned simulator model file.
// @Description A model revision as stored by the platform.
// @name ModelRevision
type ModelRevision struct {
	ID                  int64  `json:"id"`
	ExternalID          string `json:"external_id"`
	ModelExternalID     string `json:"model_external_id"`
	SimulatorExternalID string `json:"simulator_external_id"`
	DataSetID           int64  `json:"data_set_id,omitempty"`
	FileID              int64  `json:"file_id"`
	// FileName is used to derive the local file extension.
	FileName      string `json:"file_name,omitempty"`
	VersionNumber int    `json:"version_number"`
	Status        string `json:"status,omitempty" enums:"unknown,success,failure"`
	CreatedTime   int64  `json:"created_time"`
	UpdatedTime   int64  `json:"last_updated_time"`
}

// ModelRevisionFilter narrows a model revision listing.
type ModelRevisionFilter struct {
	SimulatorExternalIDs []string `json:"simulator_external_ids,omitempty"`
	AllVersions          bool     `json:"all_versions,omitempty"`
}

// ListModelRevisionsRequest is the body of a model revision listing call.
type ListModelRevisionsRequest struct {
	Filter ModelRevisionFilter `json:"filter"`
	Limit  int                 `json:"limit,omitempty"`
	Cursor *string             `json:"cursor,omitempty"`
}

// ModelState is the connector's local view of a model revision: where its file lives
// and whether the simulator managed to open it.
type ModelState struct {
	ExternalID          string    `json:"external_id"`
	ModelExternalID     string    `json:"model_external_id"`
	SimulatorExternalID string    `json:"simulator_external_id"`
	FileID              int64     `json:"file_id"`
	FileExtension       string    `json:"file_extension"`
	FilePath            string    `json:"file_path"`
	VersionNumber       int       `json:"version_number"`
	UpdatedTime         int64     `json:"updated_time"`
	DownloadedAt        time.Time `json:"downloaded_at"`
	Parsed              bool      `json:"parsed"`
	ParseError          string    `json:"parse_error,omitempty"`
}

// Downloaded reports whether the model file is present locally.
func (m ModelState) Downloaded() bool {
	return m.FilePath != "" && !m.DownloadedAt.IsZero()
}

// SimulatorStepField describes one argument accepted by a script step of a simulator.
type SimulatorStepField struct {
	Name     string   `json:"name" yaml:"name"`
	Label    string   `json:"label" yaml:"label"`
	Info     string   `json:"info,omitempty" yaml:"info,omitempty"`
	Options  []string `json:"options,omitempty" yaml:"options,omitempty"`
	Required bool     `json:"required,omitempty" yaml:"required,omitempty"`
}

// Step type keys of a simulator definition. Set and Get steps share their fields.
const (
	StepFieldsGetSet  StepType = "get/set"
	StepFieldsCommand StepType = "command"
)

// SimulatorStepFields groups step fields by step type.
type SimulatorStepFields struct {
	StepType StepType             `json:"step_type" yaml:"step_type"`
	Fields   []SimulatorStepField `json:"fields" yaml:"fields"`
}

// SimulatorUnitEntry is one unit of a quantity.
type SimulatorUnitEntry struct {
	Label string `json:"label" yaml:"label"`
	Name  string `json:"name" yaml:"name"`
}

// SimulatorQuantity lists the units accepted for a physical quantity.
type SimulatorQuantity struct {
	Name  string               `json:"name" yaml:"name"`
	Label string               `json:"label" yaml:"label"`
	Units []SimulatorUnitEntry `json:"units" yaml:"units"`
}

// SimulatorModelType is a model flavour accepted by a simulator.
type SimulatorModelType struct {
	Name string `json:"name" yaml:"name"`
	Key  string `json:"key" yaml:"key"`
}

// SimulatorDefinition describes a simulator to the platform.
// @Description Simulator capabilities published by a connector.
// @name SimulatorDefinition
type SimulatorDefinition struct {
	ExternalID         string                `json:"external_id" yaml:"external_id"`
	Name               string                `json:"name" yaml:"name"`
	FileExtensionTypes []string              `json:"file_extension_types" yaml:"file_extension_types"`
	ModelTypes         []SimulatorModelType  `json:"model_types" yaml:"model_types"`
	StepFields         []SimulatorStepFields `json:"step_fields" yaml:"step_fields"`
	UnitQuantities     []SimulatorQuantity   `json:"unit_quantities" yaml:"unit_quantities"`
}

// Integration is the platform record of a running connector.
// @Description A simulator integration as stored by the platform.
// @name Integration
type Integration struct {
	ID                         int64  `json:"id"`
	ExternalID                 string `json:"external_id"`
	SimulatorExternalID        string `json:"simulator_external_id"`
	DataSetID                  int64  `json:"data_set_id,omitempty"`
	ConnectorVersion           string `json:"connector_version"`
	SimulatorVersion           string `json:"simulator_version,omitempty"`
	ConnectorStatus            string `json:"connector_status,omitempty"`
	ConnectorStatusUpdatedTime int64  `json:"connector_status_updated_time,omitempty"`
	LicenseStatus              string `json:"license_status,omitempty"`
	LicenseLastCheckedTime     int64  `json:"license_last_checked_time,omitempty"`
	Heartbeat                  int64  `json:"heartbeat,omitempty"`
	// ConfigRevision changes whenever the remote configuration is edited.
	ConfigRevision int64 `json:"config_revision,omitempty"`
}

// Connector and license status values published on the integration.
const (
	ConnectorStatusIdle              = "IDLE"
	ConnectorStatusRunningSimulation = "RUNNING_SIMULATION"

	LicenseStatusAvailable    = "AVAILABLE"
	LicenseStatusNotAvailable = "NOT_AVAILABLE"
)

// IntegrationCreate registers a connector with the platform.
type IntegrationCreate struct {
	ExternalID          string `json:"external_id" binding:"required"`
	SimulatorExternalID string `json:"simulator_external_id" binding:"required"`
	DataSetID           int64  `json:"data_set_id,omitempty"`
	ConnectorVersion    string `json:"connector_version"`
	SimulatorVersion    string `json:"simulator_version,omitempty"`
}

// IntegrationUpdate patches an integration. Nil fields are left untouched.
type IntegrationUpdate struct {
	ExternalID             string  `json:"external_id"`
	Heartbeat              *int64  `json:"heartbeat,omitempty"`
	ConnectorVersion       *string `json:"connector_version,omitempty"`
	SimulatorVersion       *string `json:"simulator_version,omitempty"`
	ConnectorStatus        *string `json:"connector_status,omitempty"`
	LicenseStatus          *string `json:"license_status,omitempty"`
	LicenseLastCheckedTime *int64  `json:"license_last_checked_time,omitempty"`
	ErrorMessage           *string `json:"error_message,omitempty"`
}
