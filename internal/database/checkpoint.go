package database

import (
	"context"
	"fmt"
	"time"
)

// CheckpointTable holds one row per in-flight ingestion.
const CheckpointTable = "ingest_checkpoints"

// Checkpoint is the durable resume state of one ingestion.
// Columns is the JSON-encoded column schema; this package treats it as opaque.
type Checkpoint struct {
	Table        string
	SourcePath   string
	RowsConsumed int64
	TotalRows    int64
	Columns      []byte
	UpdatedAt    time.Time
}

type checkpointBackend interface {
	Executor
	scanOne(ctx context.Context, query string, args []any, dest ...any) error
}

// CheckpointStore persists checkpoints in CheckpointTable.
type CheckpointStore struct {
	backend checkpointBackend
	now     func() time.Time
}

// NewPostgresCheckpoints returns a store sharing p's pool.
func NewPostgresCheckpoints(p *Postgres) *CheckpointStore {
	return &CheckpointStore{backend: p, now: time.Now}
}

// NewSQLiteCheckpoints returns a store sharing s's database.
func NewSQLiteCheckpoints(s *SQLite) *CheckpointStore {
	return &CheckpointStore{backend: s, now: time.Now}
}

// Init creates the checkpoint table if it does not exist.
func (c *CheckpointStore) Init(ctx context.Context) error {
	d := c.backend.Dialect()
	stmt := Statement{SQL: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	table_name varchar(256) PRIMARY KEY,
	source_path text NOT NULL,
	rows_consumed bigint NOT NULL,
	total_rows bigint NOT NULL,
	column_schema text NOT NULL,
	updated_at bigint NOT NULL
)`, d.QuoteIdentifier(CheckpointTable))}

	if err := c.backend.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create checkpoint table: %w", err)
	}
	return nil
}

// Save upserts cp keyed by cp.Table.
func (c *CheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	d := c.backend.Dialect()
	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = c.now()
	}

	stmt := Statement{
		SQL: fmt.Sprintf(`INSERT INTO %s (table_name, source_path, rows_consumed, total_rows, column_schema, updated_at)
VALUES (%s)
ON CONFLICT (table_name) DO UPDATE SET
	source_path = excluded.source_path,
	rows_consumed = excluded.rows_consumed,
	total_rows = excluded.total_rows,
	column_schema = excluded.column_schema,
	updated_at = excluded.updated_at`,
			d.QuoteIdentifier(CheckpointTable), d.Placeholders(6)),
		Args: []any{cp.Table, cp.SourcePath, cp.RowsConsumed, cp.TotalRows, string(cp.Columns), updated.UnixMilli()},
	}

	if err := c.backend.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Table, err)
	}
	return nil
}

// Load returns the checkpoint for table, or ErrNoCheckpoint.
func (c *CheckpointStore) Load(ctx context.Context, table string) (Checkpoint, error) {
	d := c.backend.Dialect()
	query := fmt.Sprintf(
		`SELECT source_path, rows_consumed, total_rows, column_schema, updated_at FROM %s WHERE table_name = %s`,
		d.QuoteIdentifier(CheckpointTable), d.Placeholder(1),
	)

	cp := Checkpoint{Table: table}
	var columns string
	var updatedMillis int64
	err := c.backend.scanOne(ctx, query, []any{table},
		&cp.SourcePath, &cp.RowsConsumed, &cp.TotalRows, &columns, &updatedMillis)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint %s: %w", table, err)
	}

	cp.Columns = []byte(columns)
	cp.UpdatedAt = time.UnixMilli(updatedMillis)
	return cp, nil
}

// Delete removes the checkpoint for table. Deleting a missing checkpoint is not an error.
func (c *CheckpointStore) Delete(ctx context.Context, table string) error {
	d := c.backend.Dialect()
	stmt := Statement{
		SQL:  fmt.Sprintf(`DELETE FROM %s WHERE table_name = %s`, d.QuoteIdentifier(CheckpointTable), d.Placeholder(1)),
		Args: []any{table},
	}
	if err := c.backend.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", table, err)
	}
	return nil
}
