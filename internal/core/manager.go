package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/tabload/internal/database"
	"github.com/JonMunkholm/tabload/internal/source"
	"github.com/google/uuid"
)

// Opener opens the row source at path.
type Opener func(path string) (RowSource, error)

// DefaultOpener opens files with source.Open and auto-detected delimiters.
func DefaultOpener(path string) (RowSource, error) {
	return source.Open(path, source.Options{})
}

// ManagerConfig wires a Manager to its backends.
type ManagerConfig struct {
	Exec   database.Executor
	Open   Opener // defaults to DefaultOpener
	Logger *slog.Logger

	// SourceDir confines source paths. Empty allows any path.
	SourceDir  string
	NullMarker string

	Checkpoints        Checkpointer // nil disables checkpoints
	CheckpointInterval int

	MaxConcurrent int
	MaxWait       time.Duration
}

// Manager owns the sessions of one process and runs their loops in the
// background.
type Manager struct {
	cfg     ManagerConfig
	limiter *RunLimiter
	log     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns an empty manager.
func NewManager(cfg ManagerConfig) *Manager {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Open == nil {
		cfg.Open = DefaultOpener
	}
	return &Manager{
		cfg:      cfg,
		limiter:  NewRunLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Limiter exposes run slot usage.
func (m *Manager) Limiter() *RunLimiter { return m.limiter }

// Create opens sourcePath and registers an Idle session targeting table.
func (m *Manager) Create(table, sourcePath string) (*Session, error) {
	if err := m.claim(table); err != nil {
		return nil, err
	}
	src, err := m.open(sourcePath)
	if err != nil {
		return nil, err
	}

	s, err := NewSession(m.sessionConfig(table, src))
	if err != nil {
		return nil, err
	}
	return m.add(s)
}

// Restore rebuilds a Paused session for table from its checkpoint.
func (m *Manager) Restore(ctx context.Context, table string) (*Session, error) {
	if m.cfg.Checkpoints == nil {
		return nil, ErrCheckpointsDisabled
	}
	if err := m.claim(table); err != nil {
		return nil, err
	}

	cp, err := m.cfg.Checkpoints.Load(ctx, table)
	if err != nil {
		return nil, err
	}
	src, err := m.open(cp.SourcePath)
	if err != nil {
		return nil, err
	}

	s, err := RestoreSession(m.sessionConfig(table, src), cp)
	if err != nil {
		return nil, err
	}
	s.log.Info("session restored", "rows", cp.RowsConsumed, "total_rows", cp.TotalRows)
	return m.add(s)
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// List snapshots every session, oldest first.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	snaps := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		snaps = append(snaps, s.Snapshot())
	}
	m.mu.RUnlock()

	slices.SortFunc(snaps, func(a, b Snapshot) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return snaps
}

// Remove forgets a session that is not running. The destination table is
// left as it is.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if st := s.State(); st == Running {
		return &TransitionError{Op: "remove", From: st}
	}
	delete(m.sessions, id)
	return nil
}

// Start launches the first run of an Idle session in the background.
// Transition errors and limiter rejection are returned synchronously.
func (m *Manager) Start(ctx context.Context, id string) error {
	return m.launch(ctx, id, "start")
}

// Resume launches a Paused session in the background.
func (m *Manager) Resume(ctx context.Context, id string) error {
	return m.launch(ctx, id, "resume")
}

// Pause signals a running session to stop at the next row boundary.
func (m *Manager) Pause(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Pause()
}

// Terminate drops the session's table.
func (m *Manager) Terminate(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Terminate(ctx)
}

// TableExists probes a destination table.
func (m *Manager) TableExists(ctx context.Context, table string) bool {
	return TableExists(ctx, m.cfg.Exec, table)
}

// Shutdown pauses every running session and waits for the loops to stop.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, s := range m.sessions {
		if s.State() == Running {
			_ = s.Pause()
		}
	}
	m.mu.RUnlock()

	if err := m.limiter.WaitForDrain(ctx); err != nil {
		return fmt.Errorf("wait for ingestions: %w", err)
	}
	return nil
}

func (m *Manager) launch(ctx context.Context, id, op string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := m.limiter.Acquire(ctx); err != nil {
		return err
	}
	if err := s.begin(op); err != nil {
		m.limiter.Release()
		return err
	}

	go func() {
		defer m.limiter.Release()
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("panic in ingestion",
					"session_id", s.id,
					"table", s.table,
					"panic", r,
				)
			}
		}()
		// The run outlives the request that started it.
		if err := s.run(context.WithoutCancel(ctx)); err != nil {
			m.log.Warn("ingestion stopped with error",
				"session_id", s.id,
				"table", s.table,
				"code", MapError(err).Code,
			)
		}
	}()
	return nil
}

// claim fails when a live session already targets table.
func (m *Manager) claim(table string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.claimLocked(table)
}

func (m *Manager) claimLocked(table string) error {
	for _, s := range m.sessions {
		if s.table == table && s.State() != Terminated && !s.Complete() {
			return fmt.Errorf("%w: %q (session %s)", ErrTableInUse, table, s.id)
		}
	}
	return nil
}

func (m *Manager) add(s *Session) (*Session, error) {
	m.mu.Lock()
	if err := m.claimLocked(s.table); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.sessions[s.id] = s
	m.mu.Unlock()
	s.log.Info("session created", "source", s.src.Path())
	return s, nil
}

func (m *Manager) sessionConfig(table string, src RowSource) SessionConfig {
	return SessionConfig{
		ID:                 uuid.New().String(),
		Table:              table,
		Source:             src,
		Exec:               m.cfg.Exec,
		NullMarker:         m.cfg.NullMarker,
		Checkpoints:        m.cfg.Checkpoints,
		CheckpointInterval: m.cfg.CheckpointInterval,
		Logger:             m.log,
	}
}

// open resolves path inside SourceDir and opens it.
func (m *Manager) open(path string) (RowSource, error) {
	resolved, err := m.resolve(path)
	if err != nil {
		return nil, err
	}
	src, err := m.cfg.Open(resolved)
	if err != nil {
		return nil, sourceError(err)
	}
	return src, nil
}

func (m *Manager) resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("source path is required")
	}
	if m.cfg.SourceDir == "" {
		return filepath.Clean(path), nil
	}

	root, err := filepath.Abs(m.cfg.SourceDir)
	if err != nil {
		return "", fmt.Errorf("resolve source dir: %w", err)
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, full)
	}
	full = filepath.Clean(full)

	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrSourceOutsideDir, path)
	}
	return full, nil
}
