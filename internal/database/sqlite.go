package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLite is an Executor backed by an embedded SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at dsn.
// Use ":memory:" only in tests; each connection would see its own database,
// so the pool is pinned to a single connection.
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Exec runs stmt.
func (s *SQLite) Exec(ctx context.Context, stmt Statement) error {
	_, err := s.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	return translateSQLiteError(err)
}

// Dialect implements Executor.
func (s *SQLite) Dialect() Dialect {
	return SQLiteDialect
}

// DB exposes the underlying handle for read queries in tests and tooling.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) scanOne(ctx context.Context, query string, args []any, dest ...any) error {
	err := s.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoCheckpoint
	}
	return translateSQLiteError(err)
}

func translateSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "table") && strings.Contains(msg, "already exists") {
		return fmt.Errorf("%w: %s", ErrDuplicateTable, msg)
	}
	return err
}
