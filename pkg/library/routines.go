package library

import (
	"context"

	"github.com/picogrid/legion-connector/pkg/models"
	"github.com/picogrid/legion-connector/pkg/state"
)

// RoutineAPI is the part of the platform client used by the routine library.
type RoutineAPI interface {
	ListRoutineRevisions(ctx context.Context, filter models.RoutineRevisionFilter) ([]models.RoutineRevision, error)
	GetRoutineRevision(ctx context.Context, externalID string) (*models.RoutineRevision, error)
}

// RoutineLibrary caches the routine revisions of one integration. Revisions are
// immutable, so cached entries are never prepared again.
type RoutineLibrary struct {
	*Library[models.RoutineRevision]
}

// NewRoutineLibrary creates a routine library for the given integration.
func NewRoutineLibrary(api RoutineAPI, integrationExternalID string, store *state.Store) (*RoutineLibrary, error) {
	lib, err := New(Source[models.RoutineRevision]{
		Name: "routines",
		List: func(ctx context.Context) ([]models.RoutineRevision, error) {
			return api.ListRoutineRevisions(ctx, models.RoutineRevisionFilter{
				SimulatorIntegrationExternalIDs: []string{integrationExternalID},
			})
		},
		Get: api.GetRoutineRevision,
		Key: func(r models.RoutineRevision) string { return r.ExternalID },
	}, store)
	if err != nil {
		return nil, err
	}
	return &RoutineLibrary{Library: lib}, nil
}

// GetRoutine returns a routine revision, fetching it on a cache miss. It returns nil
// when the revision does not exist.
func (r *RoutineLibrary) GetRoutine(ctx context.Context, externalID string) (*models.RoutineRevision, error) {
	return r.Get(ctx, externalID)
}
