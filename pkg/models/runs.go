package models

// RunStatus is the lifecycle state of a simulation run.
type RunStatus string

const (
	RunStatusReady   RunStatus = "ready"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailure RunStatus = "failure"
)

// IsTerminal reports whether no further transitions are expected.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailure
}

// RunType describes who requested a run.
type RunType string

const (
	RunTypeExternal  RunType = "external"
	RunTypeManual    RunType = "manual"
	RunTypeScheduled RunType = "scheduled"
)

// SimulationRun represents a single execution attempt of a routine revision against a model revision.
// @Description A simulation run with its lifecycle status and the revisions it references.
// @name SimulationRun
type SimulationRun struct {
	// ID is the platform identifier of the run.
	ID int64 `json:"id" example:"4821"`
	// Status is the current lifecycle state.
	Status RunStatus `json:"status" enums:"ready,running,success,failure"`
	// StatusMessage is a human readable explanation of the status.
	StatusMessage string `json:"status_message,omitempty"`
	// RunType describes who requested the run.
	RunType RunType `json:"run_type,omitempty" enums:"external,manual,scheduled"`
	// SimulatorExternalID identifies the simulator the run targets.
	SimulatorExternalID string `json:"simulator_external_id"`
	// SimulatorIntegrationExternalID identifies the connector expected to execute the run.
	SimulatorIntegrationExternalID string `json:"simulator_integration_external_id"`
	// ModelRevisionExternalID identifies the model revision to simulate.
	ModelRevisionExternalID string `json:"model_revision_external_id"`
	// RoutineRevisionExternalID identifies the routine revision to execute.
	RoutineRevisionExternalID string `json:"routine_revision_external_id"`
	// RunTime is the requested simulation instant in epoch milliseconds, when the caller chose one.
	RunTime *int64 `json:"run_time,omitempty"`
	// SimulationTime is the instant the inputs were sampled at, set on success.
	SimulationTime *int64 `json:"simulation_time,omitempty"`
	// CreatedTime is the creation timestamp in epoch milliseconds.
	CreatedTime int64 `json:"created_time"`
	// LastUpdatedTime is the last modification timestamp in epoch milliseconds.
	LastUpdatedTime int64 `json:"last_updated_time"`
}

// RunFilter narrows a run listing.
type RunFilter struct {
	Status                          RunStatus `json:"status,omitempty"`
	SimulatorExternalIDs            []string  `json:"simulator_external_ids,omitempty"`
	SimulatorIntegrationExternalIDs []string  `json:"simulator_integration_external_ids,omitempty"`
}

// ListRunsRequest is the body of a run listing call.
// @Description Filter, sorting and cursor for listing simulation runs.
// @name ListRunsRequest
type ListRunsRequest struct {
	Filter RunFilter    `json:"filter"`
	Sort   []SortOption `json:"sort,omitempty"`
	Limit  int          `json:"limit,omitempty" example:"100"`
	Cursor *string      `json:"cursor,omitempty"`
}

// UpdateRunRequest transitions a run to a new status.
// @Description Request body for updating the status of a simulation run.
// @name UpdateRunRequest
type UpdateRunRequest struct {
	// ID of the run to update.
	ID int64 `json:"id" binding:"required"`
	// Status is the new status.
	Status RunStatus `json:"status" binding:"required" enums:"running,success,failure"`
	// StatusMessage explains the new status.
	StatusMessage *string `json:"status_message,omitempty"`
	// SimulationTime records the instant the inputs were sampled at.
	SimulationTime *int64 `json:"simulation_time,omitempty"`
}
