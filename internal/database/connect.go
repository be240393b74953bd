package database

import (
	"context"
	"fmt"
)

// Backend is an open destination database with its checkpoint store.
type Backend struct {
	Exec        Executor
	Checkpoints *CheckpointStore
	close       func() error
}

// Connect opens the backend for driver. cfg.URL is the PostgreSQL connection
// string or the SQLite file path; the pool settings apply to postgres only.
func Connect(ctx context.Context, driver string, cfg PoolConfig) (*Backend, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case PostgresDialect:
		pg, err := NewPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Backend{Exec: pg, Checkpoints: NewPostgresCheckpoints(pg), close: pg.Close}, nil
	default:
		lite, err := OpenSQLite(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return &Backend{Exec: lite, Checkpoints: NewSQLiteCheckpoints(lite), close: lite.Close}, nil
	}
}

// InitCheckpoints creates the checkpoint table if needed.
func (b *Backend) InitCheckpoints(ctx context.Context) error {
	if err := b.Checkpoints.Init(ctx); err != nil {
		return fmt.Errorf("init checkpoints: %w", err)
	}
	return nil
}

// Close releases the connection pool or file handle.
func (b *Backend) Close() error {
	return b.close()
}
