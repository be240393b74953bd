package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTableAlreadyExists is returned when the destination table exists
	// before the first run. It is never retried.
	ErrTableAlreadyExists = errors.New("table already exists")

	// ErrInsertFailed marks a row insert failure. The cursor stays on the
	// failed row so a later Resume retries it.
	ErrInsertFailed = errors.New("insert failed")

	// ErrInvalidTransition is returned for operations the current state
	// does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrTerminated is returned for operations on a terminated session.
	ErrTerminated = fmt.Errorf("%w: session terminated", ErrInvalidTransition)

	// ErrCompleted is returned for operations on a fully ingested session.
	ErrCompleted = fmt.Errorf("%w: ingestion already complete", ErrInvalidTransition)

	// ErrSourceUnreadable wraps row source I/O and parse failures.
	ErrSourceUnreadable = errors.New("source unreadable")

	// ErrSessionNotFound is returned by Manager lookups.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTableInUse is returned when another live session targets the table.
	ErrTableInUse = errors.New("table in use by another session")

	// ErrSourceOutsideDir is returned for source paths that escape the
	// configured source directory.
	ErrSourceOutsideDir = errors.New("source path outside source directory")

	// ErrCheckpointsDisabled is returned by Restore when no store is configured.
	ErrCheckpointsDisabled = errors.New("checkpoints disabled")
)

// InsertError reports the 1-based data row whose insert failed.
type InsertError struct {
	Table string
	Row   int64
	Err   error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("%s: insert row %d into %q: %v", ErrInsertFailed, e.Row, e.Table, e.Err)
}

func (e *InsertError) Unwrap() []error {
	return []error{ErrInsertFailed, e.Err}
}

// TransitionError reports an operation rejected by the state machine.
type TransitionError struct {
	Op     string
	From   State
	Reason error // nil means plain ErrInvalidTransition
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s session in state %s: %v", e.Op, e.From, e.Unwrap())
}

func (e *TransitionError) Unwrap() error {
	if e.Reason != nil {
		return e.Reason
	}
	return ErrInvalidTransition
}

func sourceError(err error) error {
	if errors.Is(err, ErrSourceUnreadable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
}
