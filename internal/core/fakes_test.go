package core

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/tabload/internal/database"
)

// memSource is an in-memory RowSource.
type memSource struct {
	path   string
	header []string
	rows   [][]string

	// failAt makes RowsFrom yield failErr at that data row index.
	failAt  int
	failErr error
}

func newMemSource(header []string, rows ...[]string) *memSource {
	return &memSource{path: "mem.csv", header: header, rows: rows, failAt: -1}
}

func (m *memSource) Path() string { return m.path }

func (m *memSource) Header() ([]string, error) { return m.header, nil }

func (m *memSource) RowsFrom(offset int) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		for i := offset; i < len(m.rows); i++ {
			if i == m.failAt {
				yield(nil, m.failErr)
				return
			}
			if !yield(m.rows[i], nil) {
				return
			}
		}
	}
}

func (m *memSource) TotalRowCount() (int, error) { return len(m.rows), nil }

// memExec is an Executor that models tables in memory and lets tests
// intercept statements.
type memExec struct {
	mu     sync.Mutex
	tables map[string][][]any
	stmts  []string

	// before runs ahead of every statement; a non-nil error fails it.
	before func(stmt database.Statement) error
}

func newMemExec() *memExec {
	return &memExec{tables: make(map[string][][]any)}
}

func (e *memExec) Dialect() database.Dialect { return database.SQLiteDialect }

func (e *memExec) Exec(ctx context.Context, stmt database.Statement) error {
	if hook := e.hook(); hook != nil {
		if err := hook(stmt); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stmts = append(e.stmts, stmt.SQL)

	table := firstIdentifier(stmt.SQL)
	_, exists := e.tables[table]
	switch {
	case strings.HasPrefix(stmt.SQL, "CREATE TABLE"):
		if exists {
			return fmt.Errorf("table %q: %w", table, database.ErrDuplicateTable)
		}
		e.tables[table] = nil
	case strings.HasPrefix(stmt.SQL, "DROP TABLE IF EXISTS"):
		delete(e.tables, table)
	case strings.HasPrefix(stmt.SQL, "INSERT INTO"):
		if !exists {
			return fmt.Errorf("no such table: %s", table)
		}
		e.tables[table] = append(e.tables[table], stmt.Args)
	case strings.HasPrefix(stmt.SQL, "SELECT COUNT(*)"):
		if !exists {
			return fmt.Errorf("no such table: %s", table)
		}
	default:
		return fmt.Errorf("unexpected statement: %s", stmt.SQL)
	}
	return nil
}

func (e *memExec) hook() func(database.Statement) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.before
}

func (e *memExec) setBefore(fn func(database.Statement) error) {
	e.mu.Lock()
	e.before = fn
	e.mu.Unlock()
}

func (e *memExec) rows(table string) [][]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]any(nil), e.tables[table]...)
}

func (e *memExec) hasTable(table string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.tables[table]
	return ok
}

func firstIdentifier(sql string) string {
	_, rest, ok := strings.Cut(sql, `"`)
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, `"`)
	return name
}

func isInsert(stmt database.Statement) bool {
	return strings.HasPrefix(stmt.SQL, "INSERT INTO")
}

// memCheckpoints is an in-memory Checkpointer.
type memCheckpoints struct {
	mu    sync.Mutex
	byTab map[string]database.Checkpoint
	saves int
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{byTab: make(map[string]database.Checkpoint)}
}

func (c *memCheckpoints) Save(_ context.Context, cp database.Checkpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp.UpdatedAt = time.Now()
	c.byTab[cp.Table] = cp
	c.saves++
	return nil
}

func (c *memCheckpoints) Load(_ context.Context, table string) (database.Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp, ok := c.byTab[table]
	if !ok {
		return database.Checkpoint{}, fmt.Errorf("load %q: %w", table, database.ErrNoCheckpoint)
	}
	return cp, nil
}

func (c *memCheckpoints) Delete(_ context.Context, table string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byTab, table)
	return nil
}

func (c *memCheckpoints) get(table string) (database.Checkpoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp, ok := c.byTab[table]
	return cp, ok
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var errBoom = errors.New("boom")
