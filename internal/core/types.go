package core

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/JonMunkholm/tabload/internal/database"
	"github.com/JonMunkholm/tabload/internal/schema"
)

// RowSource is a tabular file that can be read from any data-row offset.
type RowSource interface {
	Path() string
	Header() ([]string, error)
	RowsFrom(offset int) iter.Seq2[[]string, error]
	TotalRowCount() (int, error)
}

// Checkpointer persists session cursors across process restarts.
// Load returns an error wrapping database.ErrNoCheckpoint when absent.
type Checkpointer interface {
	Save(ctx context.Context, cp database.Checkpoint) error
	Load(ctx context.Context, table string) (database.Checkpoint, error)
	Delete(ctx context.Context, table string) error
}

// State is the lifecycle position of a session.
type State int

const (
	Idle State = iota
	Running
	Paused
	Terminated
)

var stateNames = [...]string{"idle", "running", "paused", "terminated"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Snapshot is a point-in-time view of a session, safe to serialize.
type Snapshot struct {
	ID           string          `json:"id"`
	Table        string          `json:"table"`
	SourcePath   string          `json:"source_path"`
	State        State           `json:"state"`
	Complete     bool            `json:"complete"`
	RowsConsumed int64           `json:"rows_consumed"`
	TotalRows    int64           `json:"total_rows"`
	Progress     float64         `json:"progress"`
	Columns      []schema.Column `json:"columns,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
