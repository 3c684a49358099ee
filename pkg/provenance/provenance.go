// Package provenance records, for every simulation run, which data the inputs were
// sampled from and under which validation settings.
package provenance

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/picogrid/legion-connector/pkg/models"
	"github.com/picogrid/legion-connector/pkg/state"
)

// ErrNotFound is returned by Get for a run without a record.
var ErrNotFound = errors.New("run configuration not found")

// InputRecord is the provenance of one routine input.
type InputRecord struct {
	ReferenceID      string                 `json:"reference_id"`
	SourceExternalID string                 `json:"source_external_id,omitempty"`
	Aggregate        string                 `json:"aggregate,omitempty"`
	Value            models.SimulationValue `json:"value"`
}

// RunConfiguration describes how a run was prepared. Timestamps are epoch ms.
type RunConfiguration struct {
	ID                        uuid.UUID                          `json:"id"`
	RunID                     int64                              `json:"run_id"`
	RoutineRevisionExternalID string                             `json:"routine_revision_external_id"`
	ModelRevisionExternalID   string                             `json:"model_revision_external_id"`
	ModelVersion              int                                `json:"model_version"`
	DataSampling              bool                               `json:"data_sampling"`
	ValidationStart           *int64                             `json:"validation_start,omitempty"`
	ValidationEnd             int64                              `json:"validation_end"`
	SamplingStart             *int64                             `json:"sampling_start,omitempty"`
	SamplingEnd               int64                              `json:"sampling_end"`
	LogicalCheck              *models.LogicalCheckConfig         `json:"logical_check,omitempty"`
	SteadyStateDetection      *models.SteadyStateDetectionConfig `json:"steady_state_detection,omitempty"`
	Inputs                    []InputRecord                      `json:"inputs"`
	Outputs                   map[string]models.SimulationValue  `json:"outputs,omitempty"`
	SimulationTime            int64                              `json:"simulation_time"`
	RecordedAt                time.Time                          `json:"recorded_at"`
}

// Store keeps run configurations keyed by run id.
type Store interface {
	Record(ctx context.Context, rc RunConfiguration) error
	Get(ctx context.Context, runID int64) (*RunConfiguration, error)
}

func stamp(rc *RunConfiguration) {
	if rc.ID == uuid.Nil {
		rc.ID = uuid.New()
	}
	if rc.RecordedAt.IsZero() {
		rc.RecordedAt = time.Now().UTC()
	}
}

const stateNamespace = "run-configurations"

// StateStore keeps run configurations in the local state store. It is used when no
// database is configured.
type StateStore struct {
	store *state.Store
}

func NewStateStore(store *state.Store) *StateStore {
	return &StateStore{store: store}
}

func (s *StateStore) Record(_ context.Context, rc RunConfiguration) error {
	stamp(&rc)
	return s.store.Put(stateNamespace, strconv.FormatInt(rc.RunID, 10), rc)
}

func (s *StateStore) Get(_ context.Context, runID int64) (*RunConfiguration, error) {
	var rc RunConfiguration
	found, err := s.store.Get(stateNamespace, strconv.FormatInt(runID, 10), &rc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &rc, nil
}
