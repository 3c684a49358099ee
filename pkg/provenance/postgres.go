package provenance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresConfig holds the database connection settings.
type PostgresConfig struct {
	URL          string        `yaml:"database_url"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
}

func (c PostgresConfig) Validate() error {
	if c.URL == "" {
		return errors.New("database url is required")
	}
	if c.PingTimeout < 0 {
		return errors.New("ping timeout must be >= 0")
	}
	if c.MaxOpenConns < 0 {
		return errors.New("max open conns must be >= 0")
	}
	return nil
}

// Open connects to the database in cfg and checks it is reachable.
func Open(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 4
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(30 * time.Minute)

	timeout := cfg.PingTimeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return db, nil
}

// PostgresStore keeps run configurations in a Postgres table, one JSONB record per run.
type PostgresStore struct {
	db        *sql.DB
	tableName string
}

func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = "run_configurations"
	}
	return &PostgresStore{db: db, tableName: table}
}

// Migrate creates the table when missing.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	query := "CREATE TABLE IF NOT EXISTS " + p.tableName +
		" (run_id BIGINT PRIMARY KEY, id UUID NOT NULL, routine_revision TEXT NOT NULL," +
		" model_revision TEXT NOT NULL, record JSONB NOT NULL, recorded_at TIMESTAMPTZ NOT NULL)"
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create %s: %w", p.tableName, err)
	}
	return nil
}

// Record inserts rc, replacing an earlier record for the same run.
func (p *PostgresStore) Record(ctx context.Context, rc RunConfiguration) error {
	stamp(&rc)

	record, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("marshal run configuration: %w", err)
	}

	query := "INSERT INTO " + p.tableName +
		" (run_id, id, routine_revision, model_revision, record, recorded_at) VALUES ($1,$2,$3,$4,$5,$6)" +
		" ON CONFLICT (run_id) DO UPDATE SET id = EXCLUDED.id, record = EXCLUDED.record, recorded_at = EXCLUDED.recorded_at"
	_, err = p.db.ExecContext(ctx, query,
		rc.RunID,
		rc.ID.String(),
		rc.RoutineRevisionExternalID,
		rc.ModelRevisionExternalID,
		record,
		rc.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %d: %w", rc.RunID, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, runID int64) (*RunConfiguration, error) {
	var record []byte
	err := p.db.QueryRowContext(ctx, "SELECT record FROM "+p.tableName+" WHERE run_id = $1", runID).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run %d: %w", runID, err)
	}

	var rc RunConfiguration
	if err := json.Unmarshal(record, &rc); err != nil {
		return nil, fmt.Errorf("unmarshal run configuration: %w", err)
	}
	return &rc, nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*StateStore)(nil)
)
