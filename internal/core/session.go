package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/tabload/internal/database"
	"github.com/JonMunkholm/tabload/internal/logging"
	"github.com/JonMunkholm/tabload/internal/schema"
	"github.com/google/uuid"
)

// DefaultCheckpointInterval is how many committed rows pass between
// checkpoint writes when none is configured.
const DefaultCheckpointInterval = 100

// SessionConfig describes one ingestion.
type SessionConfig struct {
	ID         string // generated when empty
	Table      string
	Source     RowSource
	Exec       database.Executor
	NullMarker string // defaults to schema.DefaultSentinel

	// Checkpoints is optional. CheckpointInterval <= 0 uses the default.
	Checkpoints        Checkpointer
	CheckpointInterval int

	Logger *slog.Logger
}

// Session moves one row source into one destination table. Control methods
// may be called from any goroutine; at most one run loop is active at once.
type Session struct {
	id          string
	table       string
	src         RowSource
	exec        database.Executor
	nullMarker  string
	checkpoints Checkpointer
	interval    int64
	log         *slog.Logger
	createdAt   time.Time

	mu           sync.Mutex
	state        State
	lastErr      error
	columns      []schema.Column
	tableCreated bool

	// Signals observed by the run loop at row boundaries.
	pauseRequested atomic.Bool
	terminated     atomic.Bool
	completed      atomic.Bool

	rowsConsumed atomic.Int64
	totalRows    atomic.Int64
}

// NewSession returns an Idle session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Table == "" {
		return nil, errors.New("session: table name is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("session: row source is required")
	}
	if cfg.Exec == nil {
		return nil, errors.New("session: executor is required")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	if cfg.NullMarker == "" {
		cfg.NullMarker = schema.DefaultSentinel
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = DefaultCheckpointInterval
	}

	return &Session{
		id:          cfg.ID,
		table:       cfg.Table,
		src:         cfg.Source,
		exec:        cfg.Exec,
		nullMarker:  cfg.NullMarker,
		checkpoints: cfg.Checkpoints,
		interval:    int64(cfg.CheckpointInterval),
		log:         logging.ForSession(cfg.Logger, cfg.ID, cfg.Table),
		createdAt:   time.Now(),
	}, nil
}

// RestoreSession rebuilds a Paused session from a checkpoint. The table is
// assumed to exist with the checkpointed columns.
func RestoreSession(cfg SessionConfig, cp database.Checkpoint) (*Session, error) {
	if cfg.Table == "" {
		cfg.Table = cp.Table
	}
	if cfg.Table != cp.Table {
		return nil, fmt.Errorf("restore: checkpoint is for %q, not %q", cp.Table, cfg.Table)
	}

	var cols []schema.Column
	if err := json.Unmarshal(cp.Columns, &cols); err != nil {
		return nil, fmt.Errorf("restore %q: decode columns: %w", cp.Table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("restore %q: checkpoint has no columns", cp.Table)
	}

	s, err := NewSession(cfg)
	if err != nil {
		return nil, err
	}
	s.columns = cols
	s.tableCreated = true
	s.state = Paused
	s.rowsConsumed.Store(cp.RowsConsumed)
	s.totalRows.Store(cp.TotalRows)
	return s, nil
}

func (s *Session) ID() string    { return s.id }
func (s *Session) Table() string { return s.table }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that ended the most recent run, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Complete reports whether every source row has been committed.
func (s *Session) Complete() bool { return s.completed.Load() }

// RowsConsumed is the number of data rows committed so far.
func (s *Session) RowsConsumed() int64 { return s.rowsConsumed.Load() }

// TotalRows is the number of data rows in the source, known after the
// schema is built.
func (s *Session) TotalRows() int64 { return s.totalRows.Load() }

// Columns returns the inferred destination schema.
func (s *Session) Columns() []schema.Column {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.Column(nil), s.columns...)
}

// Progress returns the committed share of the source in [0, 100].
func (s *Session) Progress() float64 {
	total := s.totalRows.Load()
	if total <= 0 {
		if s.completed.Load() {
			return 100
		}
		return 0
	}
	return min(float64(s.rowsConsumed.Load())/float64(total)*100, 100)
}

// TableExists probes the destination table. Any execution error means false.
func (s *Session) TableExists(ctx context.Context) bool {
	return TableExists(ctx, s.exec, s.table)
}

// Snapshot captures the session for reporting.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ID:         s.id,
		Table:      s.table,
		SourcePath: s.src.Path(),
		State:      s.state,
		Columns:    append([]schema.Column(nil), s.columns...),
		CreatedAt:  s.createdAt,
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	s.mu.Unlock()

	snap.Complete = s.completed.Load()
	snap.RowsConsumed = s.rowsConsumed.Load()
	snap.TotalRows = s.totalRows.Load()
	snap.Progress = s.Progress()
	return snap
}

// Start runs the ingestion from Idle until the source is exhausted, a pause
// or terminate signal is observed, or an error occurs. The first run builds
// the schema and creates the table.
func (s *Session) Start(ctx context.Context) error {
	if err := s.begin("start"); err != nil {
		return err
	}
	return s.run(ctx)
}

// Resume continues a Paused session from its cursor without re-inferring
// or re-creating the table.
func (s *Session) Resume(ctx context.Context) error {
	if err := s.begin("resume"); err != nil {
		return err
	}
	return s.run(ctx)
}

// Pause asks the run loop to stop after the row in flight. It returns
// before the loop has stopped; the state stays Running until then.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Running:
		s.pauseRequested.Store(true)
		return nil
	case Paused:
		return nil
	case Terminated:
		return &TransitionError{Op: "pause", From: s.state, Reason: ErrTerminated}
	default:
		return &TransitionError{Op: "pause", From: s.state}
	}
}

// Terminate drops the destination table and ends the session. Rows already
// inserted are discarded with the table. Calling it again re-issues the
// drop and returns nil.
func (s *Session) Terminate(ctx context.Context) error {
	s.mu.Lock()
	if s.completed.Load() {
		s.mu.Unlock()
		return &TransitionError{Op: "terminate", From: s.state, Reason: ErrCompleted}
	}
	s.terminated.Store(true)
	s.state = Terminated
	s.mu.Unlock()

	if err := s.dropTable(ctx); err != nil {
		return err
	}
	s.deleteCheckpoint(ctx)
	s.log.Info("session terminated", "rows_discarded", s.rowsConsumed.Load())
	return nil
}

// begin performs the transition into Running for op.
func (s *Session) begin(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated.Load() {
		return &TransitionError{Op: op, From: s.state, Reason: ErrTerminated}
	}

	switch op {
	case "start":
		if s.state != Idle {
			return &TransitionError{Op: op, From: s.state}
		}
		if s.completed.Load() {
			return &TransitionError{Op: op, From: s.state, Reason: ErrCompleted}
		}
	case "resume":
		if s.state != Paused {
			return &TransitionError{Op: op, From: s.state}
		}
	}

	s.state = Running
	s.lastErr = nil
	s.pauseRequested.Store(false)
	return nil
}

// run is the body of one Running period. It always leaves the session out
// of Running.
func (s *Session) run(ctx context.Context) (err error) {
	var exhausted bool
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingest %q: internal error: %v", s.table, r)
		}
		s.finish(ctx, exhausted, err)
	}()

	s.mu.Lock()
	created := s.tableCreated
	s.mu.Unlock()

	if !created {
		if err = s.prepare(ctx); err != nil {
			return err
		}
	}

	exhausted, err = s.stream(ctx)
	return err
}

// prepare infers the schema, creates the table and records the row count.
func (s *Session) prepare(ctx context.Context) error {
	_, cols, err := BuildSchema(s.src, s.nullMarker)
	if err != nil {
		return err
	}
	total, err := s.src.TotalRowCount()
	if err != nil {
		return sourceError(err)
	}
	if s.terminated.Load() {
		return nil
	}

	if err := CreateTable(ctx, s.exec, s.table, cols); err != nil {
		return err
	}

	s.mu.Lock()
	s.columns = cols
	s.tableCreated = true
	s.mu.Unlock()
	s.totalRows.Store(int64(total))

	s.log.Info("table created", "columns", len(cols), "total_rows", total)
	s.saveCheckpoint(ctx)
	return nil
}

// stream inserts rows from the cursor onward. exhausted is true when the
// source has no rows left to commit.
func (s *Session) stream(ctx context.Context) (exhausted bool, err error) {
	if s.stopRequested(ctx) {
		return false, nil
	}

	cols := s.Columns()
	dialect := s.exec.Dialect()
	total := s.totalRows.Load()
	offset := s.rowsConsumed.Load()
	if offset >= total {
		return true, nil
	}

	for row, err := range s.src.RowsFrom(int(offset)) {
		if err != nil {
			return false, sourceError(err)
		}
		if s.rowsConsumed.Load() >= total {
			break
		}

		stmt := schema.Insert(dialect, s.table, cols, row, s.nullMarker)
		if err := s.exec.Exec(ctx, stmt); err != nil {
			if s.terminated.Load() || ctx.Err() != nil {
				return false, nil
			}
			return false, &InsertError{Table: s.table, Row: s.rowsConsumed.Load() + 1, Err: err}
		}

		n := s.rowsConsumed.Add(1)
		if n%s.interval == 0 {
			s.log.Debug("rows committed", "rows", n, "total_rows", total)
			s.saveCheckpoint(ctx)
		}

		if s.stopRequested(ctx) {
			return n >= total, nil
		}
	}
	return true, nil
}

func (s *Session) stopRequested(ctx context.Context) bool {
	return s.pauseRequested.Load() || s.terminated.Load() || ctx.Err() != nil
}

// finish settles the state after a run and performs the matching
// persistence side effect.
func (s *Session) finish(ctx context.Context, exhausted bool, err error) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	terminated := s.terminated.Load()
	switch {
	case terminated:
		s.state = Terminated
	case err != nil:
		s.lastErr = err
		if s.tableCreated {
			s.state = Paused
		} else {
			s.state = Idle
		}
	case exhausted:
		s.state = Idle
		if consumed := s.rowsConsumed.Load(); consumed < s.totalRows.Load() {
			// Source shrank since it was counted.
			s.totalRows.Store(consumed)
		}
		s.completed.Store(true)
	default:
		s.state = Paused
	}
	s.pauseRequested.Store(false)
	created := s.tableCreated
	s.mu.Unlock()

	rows := s.rowsConsumed.Load()
	switch {
	case terminated:
		// Terminate may have raced a table creation or insert.
		if err := s.dropTable(ctx); err != nil {
			s.log.Error("drop after terminate failed", "error", err)
		}
		s.deleteCheckpoint(ctx)
	case err != nil:
		s.log.Error("ingestion failed", "error", err, "rows", rows)
		if created {
			s.saveCheckpoint(ctx)
		}
	case exhausted:
		s.deleteCheckpoint(ctx)
		s.log.Info("ingestion complete", "rows", rows)
	default:
		s.saveCheckpoint(ctx)
		s.log.Info("session paused", "rows", rows, "progress", s.Progress())
	}
}

func (s *Session) dropTable(ctx context.Context) error {
	if err := s.exec.Exec(ctx, schema.DropTable(s.exec.Dialect(), s.table)); err != nil {
		return fmt.Errorf("drop %q: %w", s.table, err)
	}
	return nil
}

func (s *Session) saveCheckpoint(ctx context.Context) {
	if s.checkpoints == nil {
		return
	}
	cols, err := json.Marshal(s.Columns())
	if err != nil {
		s.log.Warn("encode checkpoint columns", "error", err)
		return
	}
	cp := database.Checkpoint{
		Table:        s.table,
		SourcePath:   s.src.Path(),
		RowsConsumed: s.rowsConsumed.Load(),
		TotalRows:    s.totalRows.Load(),
		Columns:      cols,
	}
	if err := s.checkpoints.Save(ctx, cp); err != nil {
		s.log.Warn("checkpoint save failed", "error", err, "rows", cp.RowsConsumed)
	}
}

func (s *Session) deleteCheckpoint(ctx context.Context) {
	if s.checkpoints == nil {
		return
	}
	if err := s.checkpoints.Delete(ctx, s.table); err != nil {
		s.log.Warn("checkpoint delete failed", "error", err)
	}
}
