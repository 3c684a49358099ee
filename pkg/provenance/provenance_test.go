package provenance

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/legion-connector/pkg/models"
	"github.com/picogrid/legion-connector/pkg/state"
)

func sampleConfiguration() RunConfiguration {
	start := int64(1_000)
	return RunConfiguration{
		RunID:                     42,
		RoutineRevisionExternalID: "hx-routine-v1",
		ModelRevisionExternalID:   "hx-model-v2",
		ModelVersion:              2,
		DataSampling:              true,
		ValidationEnd:             3_600_000,
		SamplingStart:             &start,
		SamplingEnd:               601_000,
		Inputs: []InputRecord{
			{ReferenceID: "inlet", SourceExternalID: "plant.inlet_temp", Aggregate: "average", Value: models.DoubleValue(21.5)},
		},
		SimulationTime: 601_000,
	}
}

func TestPostgresStoreMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS run_configurations")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewPostgresStore(db, "").Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rc := sampleConfiguration()
	rc.ID = uuid.MustParse("7d7e8b1e-4a43-4a5e-9b55-2f4f1e2a0c11")
	rc.RecordedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	expectedQuery := regexp.QuoteMeta("INSERT INTO run_configurations (run_id, id, routine_revision, model_revision, record, recorded_at) VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (run_id) DO UPDATE")
	mock.ExpectExec(expectedQuery).
		WithArgs(int64(42), rc.ID.String(), "hx-routine-v1", "hx-model-v2", sqlmock.AnyArg(), rc.RecordedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewPostgresStore(db, "run_configurations").Record(context.Background(), rc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRecordError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO run_configurations").WillReturnError(errors.New("connection reset"))

	err = NewPostgresStore(db, "").Record(context.Background(), sampleConfiguration())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record run 42")
}

func TestPostgresStoreGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rc := sampleConfiguration()
	record, err := json.Marshal(rc)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT record FROM run_configurations WHERE run_id = $1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(record))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT record FROM run_configurations WHERE run_id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"record"}))

	store := NewPostgresStore(db, "")
	got, err := store.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "hx-model-v2", got.ModelRevisionExternalID)
	require.NotNil(t, got.SamplingStart)
	assert.Equal(t, int64(1_000), *got.SamplingStart)
	require.Len(t, got.Inputs, 1)
	assert.Equal(t, 21.5, got.Inputs[0].Value.Number)

	_, err = store.Get(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateStoreRoundTrip(t *testing.T) {
	st, err := state.Open(state.Config{InMemory: true})
	require.NoError(t, err)
	defer st.Close()

	store := NewStateStore(st)
	require.NoError(t, store.Record(context.Background(), sampleConfiguration()))

	got, err := store.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.False(t, got.RecordedAt.IsZero())
	assert.Equal(t, "hx-routine-v1", got.RoutineRevisionExternalID)

	_, err = store.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresConfigValidate(t *testing.T) {
	assert.Error(t, PostgresConfig{}.Validate())
	assert.NoError(t, PostgresConfig{URL: "postgres://localhost/legion"}.Validate())
}
