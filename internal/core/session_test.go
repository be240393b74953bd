package core

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/JonMunkholm/tabload/internal/database"
	"github.com/JonMunkholm/tabload/internal/schema"
)

func scenarioSource() *memSource {
	return newMemSource(
		[]string{"id", "amount", "name"},
		[]string{"1", "10", "A"},
		[]string{"2", "32768", "B"},
	)
}

func newTestSession(t *testing.T, src RowSource, exec database.Executor) *Session {
	t.Helper()
	s, err := NewSession(SessionConfig{Table: "uploads", Source: src, Exec: exec})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s
}

// pauseAfterInserts calls Pause while the n-th insert is in flight.
func pauseAfterInserts(exec *memExec, s **Session, n int64) {
	var seen atomic.Int64
	exec.setBefore(func(stmt database.Statement) error {
		if isInsert(stmt) && seen.Add(1) == n {
			if err := (*s).Pause(); err != nil {
				return err
			}
		}
		return nil
	})
}

func TestSession_StartToCompletion(t *testing.T) {
	exec := newMemExec()
	s := newTestSession(t, scenarioSource(), exec)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := s.State(); got != Idle {
		t.Errorf("State() = %v, want idle", got)
	}
	if !s.Complete() {
		t.Error("Complete() = false, want true")
	}
	if got := s.Progress(); got != 100 {
		t.Errorf("Progress() = %v, want 100", got)
	}
	if got := len(exec.rows("uploads")); got != 2 {
		t.Errorf("inserted %d rows, want 2", got)
	}

	want := []schema.Column{
		{Name: "id", Type: schema.Smallint},
		{Name: "amount", Type: schema.Int},
		{Name: "name", Type: schema.Varchar},
	}
	if got := s.Columns(); !reflect.DeepEqual(got, want) {
		t.Errorf("Columns() = %v, want %v", got, want)
	}
	if exec.stmts[0] != `CREATE TABLE "uploads" ("id" smallint, "amount" int, "name" varchar(256))` {
		t.Errorf("first statement = %s", exec.stmts[0])
	}
}

func TestSession_PauseAfterFirstRowReportsHalf(t *testing.T) {
	exec := newMemExec()
	s := newTestSession(t, scenarioSource(), exec)
	pauseAfterInserts(exec, &s, 1)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := s.State(); got != Paused {
		t.Fatalf("State() = %v, want paused", got)
	}
	if got := s.Progress(); got != 50.0 {
		t.Errorf("Progress() = %v, want 50", got)
	}
	if got := s.RowsConsumed(); got != 1 {
		t.Errorf("RowsConsumed() = %d, want 1", got)
	}
}

func TestSession_ResumeMatchesUninterruptedRun(t *testing.T) {
	header := []string{"id", "price", "label"}
	var rows [][]string
	for i := range 25 {
		rows = append(rows, []string{strconv.Itoa(i), strconv.Itoa(i) + ".5", "row" + strconv.Itoa(i)})
	}
	rows[7][2] = "NA"

	straight := newMemExec()
	full := newTestSession(t, newMemSource(header, rows...), straight)
	if err := full.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, k := range []int64{1, 5, 24} {
		t.Run("pause after "+strconv.FormatInt(k, 10), func(t *testing.T) {
			exec := newMemExec()
			s := newTestSession(t, newMemSource(header, rows...), exec)
			pauseAfterInserts(exec, &s, k)

			if err := s.Start(context.Background()); err != nil {
				t.Fatal(err)
			}
			if s.RowsConsumed() != k || s.State() != Paused {
				t.Fatalf("after pause: rows=%d state=%v", s.RowsConsumed(), s.State())
			}

			exec.setBefore(nil)
			if err := s.Resume(context.Background()); err != nil {
				t.Fatalf("Resume() error = %v", err)
			}
			if !s.Complete() {
				t.Fatalf("Complete() = false after resume")
			}
			if got, want := exec.rows("uploads"), straight.rows("uploads"); !reflect.DeepEqual(got, want) {
				t.Errorf("resumed contents differ from uninterrupted run:\n got %v\nwant %v", got, want)
			}
		})
	}
}

func TestSession_ResumeSkipsSchemaCreation(t *testing.T) {
	exec := newMemExec()
	s := newTestSession(t, scenarioSource(), exec)
	pauseAfterInserts(exec, &s, 1)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	exec.setBefore(nil)
	if err := s.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}

	creates := 0
	for _, sql := range exec.stmts {
		if sql[:6] == "CREATE" {
			creates++
		}
	}
	if creates != 1 {
		t.Errorf("issued %d CREATE statements, want 1", creates)
	}
}

func TestSession_TerminateIsIdempotent(t *testing.T) {
	exec := newMemExec()
	s := newTestSession(t, scenarioSource(), exec)
	pauseAfterInserts(exec, &s, 1)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.TableExists(context.Background()) {
		t.Fatal("TableExists() = false after partial run")
	}

	for i := range 2 {
		if err := s.Terminate(context.Background()); err != nil {
			t.Fatalf("Terminate() #%d error = %v", i+1, err)
		}
		if exec.hasTable("uploads") || s.TableExists(context.Background()) {
			t.Fatalf("table still present after Terminate() #%d", i+1)
		}
		if got := s.State(); got != Terminated {
			t.Errorf("State() = %v, want terminated", got)
		}
	}
}

func TestSession_TerminateWhileRunning(t *testing.T) {
	exec := newMemExec()
	s := newTestSession(t, scenarioSource(), exec)
	exec.setBefore(func(stmt database.Statement) error {
		if isInsert(stmt) {
			return s.Terminate(context.Background())
		}
		return nil
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.State() != Terminated {
		t.Errorf("State() = %v, want terminated", s.State())
	}
	if exec.hasTable("uploads") {
		t.Error("table should be dropped")
	}
}

func TestSession_InvalidTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("resume from idle", func(t *testing.T) {
		s := newTestSession(t, scenarioSource(), newMemExec())
		if err := s.Resume(ctx); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Resume() error = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("pause from idle", func(t *testing.T) {
		s := newTestSession(t, scenarioSource(), newMemExec())
		if err := s.Pause(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Pause() error = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("start while paused", func(t *testing.T) {
		exec := newMemExec()
		s := newTestSession(t, scenarioSource(), exec)
		pauseAfterInserts(exec, &s, 1)
		if err := s.Start(ctx); err != nil {
			t.Fatal(err)
		}
		var te *TransitionError
		if err := s.Start(ctx); !errors.As(err, &te) || te.From != Paused {
			t.Errorf("Start() error = %v, want TransitionError from paused", err)
		}
		if err := s.Pause(); err != nil {
			t.Errorf("Pause() on paused session = %v, want nil", err)
		}
	})

	t.Run("start while running", func(t *testing.T) {
		exec := newMemExec()
		s := newTestSession(t, scenarioSource(), exec)
		var inner error
		exec.setBefore(func(stmt database.Statement) error {
			if isInsert(stmt) && inner == nil {
				inner = s.Start(ctx)
				if inner == nil {
					inner = errors.New("nested Start() succeeded")
				}
				_ = s.Resume(ctx)
			}
			return nil
		})
		if err := s.Start(ctx); err != nil {
			t.Fatal(err)
		}
		if !errors.Is(inner, ErrInvalidTransition) {
			t.Errorf("nested Start() error = %v, want ErrInvalidTransition", inner)
		}
	})

	t.Run("after terminate", func(t *testing.T) {
		s := newTestSession(t, scenarioSource(), newMemExec())
		if err := s.Terminate(ctx); err != nil {
			t.Fatal(err)
		}
		if err := s.Start(ctx); !errors.Is(err, ErrTerminated) {
			t.Errorf("Start() error = %v, want ErrTerminated", err)
		}
		if err := s.Resume(ctx); !errors.Is(err, ErrTerminated) || !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Resume() error = %v, want ErrTerminated", err)
		}
	})

	t.Run("after completion", func(t *testing.T) {
		s := newTestSession(t, scenarioSource(), newMemExec())
		if err := s.Start(ctx); err != nil {
			t.Fatal(err)
		}
		if err := s.Start(ctx); !errors.Is(err, ErrCompleted) {
			t.Errorf("Start() error = %v, want ErrCompleted", err)
		}
		if err := s.Terminate(ctx); !errors.Is(err, ErrCompleted) {
			t.Errorf("Terminate() error = %v, want ErrCompleted", err)
		}
	})
}

func TestSession_InsertFailureKeepsCursor(t *testing.T) {
	exec := newMemExec()
	s := newTestSession(t, scenarioSource(), exec)

	var inserts atomic.Int64
	exec.setBefore(func(stmt database.Statement) error {
		if isInsert(stmt) && inserts.Add(1) == 2 {
			return errBoom
		}
		return nil
	})

	err := s.Start(context.Background())
	var ie *InsertError
	if !errors.As(err, &ie) || !errors.Is(err, ErrInsertFailed) || !errors.Is(err, errBoom) {
		t.Fatalf("Start() error = %v, want InsertError wrapping boom", err)
	}
	if ie.Row != 2 {
		t.Errorf("InsertError.Row = %d, want 2", ie.Row)
	}
	if s.RowsConsumed() != 1 || s.Progress() != 50 {
		t.Errorf("rows=%d progress=%v, want 1 and 50", s.RowsConsumed(), s.Progress())
	}
	if s.State() != Paused || !errors.Is(s.Err(), ErrInsertFailed) {
		t.Errorf("state=%v err=%v, want paused with the insert error", s.State(), s.Err())
	}

	if err := s.Resume(context.Background()); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if !s.Complete() || len(exec.rows("uploads")) != 2 {
		t.Errorf("complete=%v rows=%d after retry", s.Complete(), len(exec.rows("uploads")))
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v after successful resume", s.Err())
	}
}

func TestSession_TableAlreadyExists(t *testing.T) {
	exec := newMemExec()
	exec.tables["uploads"] = nil

	s := newTestSession(t, scenarioSource(), exec)
	err := s.Start(context.Background())
	if !errors.Is(err, ErrTableAlreadyExists) {
		t.Fatalf("Start() error = %v, want ErrTableAlreadyExists", err)
	}
	if s.State() != Idle || s.Complete() {
		t.Errorf("state=%v complete=%v, want idle and incomplete", s.State(), s.Complete())
	}
	if s.Progress() != 0 {
		t.Errorf("Progress() = %v, want 0", s.Progress())
	}
}

func TestSession_SourceUnreadable(t *testing.T) {
	src := scenarioSource()
	src.failAt, src.failErr = 1, errBoom

	s := newTestSession(t, src, newMemExec())
	err := s.Start(context.Background())
	if !errors.Is(err, ErrSourceUnreadable) || !errors.Is(err, errBoom) {
		t.Fatalf("Start() error = %v, want ErrSourceUnreadable wrapping boom", err)
	}
	if s.State() != Idle {
		t.Errorf("State() = %v, want idle when nothing was created", s.State())
	}
}

func TestSession_ProgressBounds(t *testing.T) {
	exec := newMemExec()
	var rows [][]string
	for i := range 7 {
		rows = append(rows, []string{strconv.Itoa(i)})
	}
	s := newTestSession(t, newMemSource([]string{"n"}, rows...), exec)

	if p := s.Progress(); p != 0 {
		t.Errorf("Progress() before start = %v, want 0", p)
	}

	exec.setBefore(func(stmt database.Statement) error {
		if p := s.Progress(); p < 0 || p > 100 {
			t.Errorf("Progress() = %v out of range", p)
		}
		if s.RowsConsumed() < s.TotalRows() && s.Progress() == 100 {
			t.Error("Progress() = 100 before all rows committed")
		}
		return nil
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p := s.Progress(); p != 100 {
		t.Errorf("Progress() after completion = %v, want 100", p)
	}
}

func TestSession_EmptySourceCompletes(t *testing.T) {
	exec := newMemExec()
	s := newTestSession(t, newMemSource([]string{"a", "b"}), exec)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.Complete() || s.Progress() != 100 {
		t.Errorf("complete=%v progress=%v", s.Complete(), s.Progress())
	}
	if !exec.hasTable("uploads") {
		t.Error("empty source should still create the table")
	}
}

func TestSession_ContextCancelPauses(t *testing.T) {
	exec := newMemExec()
	s := newTestSession(t, scenarioSource(), exec)

	ctx, cancel := context.WithCancel(context.Background())
	var inserts atomic.Int64
	exec.setBefore(func(stmt database.Statement) error {
		if isInsert(stmt) && inserts.Add(1) == 1 {
			cancel()
		}
		return nil
	})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.State() != Paused || s.RowsConsumed() != 1 {
		t.Errorf("state=%v rows=%d, want paused after 1", s.State(), s.RowsConsumed())
	}
}

func TestSession_Checkpoints(t *testing.T) {
	exec := newMemExec()
	cps := newMemCheckpoints()

	var rows [][]string
	for i := range 10 {
		rows = append(rows, []string{strconv.Itoa(i), "x"})
	}
	src := newMemSource([]string{"n", "s"}, rows...)

	var s *Session
	s, err := NewSession(SessionConfig{
		Table: "cp", Source: src, Exec: exec,
		Checkpoints: cps, CheckpointInterval: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	pauseAfterInserts(exec, &s, 4)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	cp, ok := cps.get("cp")
	if !ok {
		t.Fatal("no checkpoint after pause")
	}
	if cp.RowsConsumed != 4 || cp.TotalRows != 10 || cp.SourcePath != "mem.csv" {
		t.Errorf("checkpoint = %+v", cp)
	}

	restored, err := RestoreSession(SessionConfig{Source: src, Exec: exec, Checkpoints: cps}, cp)
	if err != nil {
		t.Fatalf("RestoreSession() error = %v", err)
	}
	if restored.State() != Paused || restored.RowsConsumed() != 4 {
		t.Fatalf("restored state=%v rows=%d", restored.State(), restored.RowsConsumed())
	}
	if !reflect.DeepEqual(restored.Columns(), s.Columns()) {
		t.Errorf("restored columns = %v, want %v", restored.Columns(), s.Columns())
	}

	exec.setBefore(nil)
	if err := restored.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(exec.rows("cp")); got != 10 {
		t.Errorf("rows after restore = %d, want 10", got)
	}
	if _, ok := cps.get("cp"); ok {
		t.Error("checkpoint should be deleted on completion")
	}
}

func TestRestoreSession_Rejects(t *testing.T) {
	cfg := SessionConfig{Table: "a", Source: scenarioSource(), Exec: newMemExec()}

	if _, err := RestoreSession(cfg, database.Checkpoint{Table: "b", Columns: []byte(`[]`)}); err == nil {
		t.Error("mismatched table should fail")
	}
	if _, err := RestoreSession(cfg, database.Checkpoint{Table: "a", Columns: []byte(`not json`)}); err == nil {
		t.Error("corrupt columns should fail")
	}
	if _, err := RestoreSession(cfg, database.Checkpoint{Table: "a", Columns: []byte(`[]`)}); err == nil {
		t.Error("empty columns should fail")
	}
}

func TestNewSession_Validation(t *testing.T) {
	if _, err := NewSession(SessionConfig{Source: scenarioSource(), Exec: newMemExec()}); err == nil {
		t.Error("missing table should fail")
	}
	if _, err := NewSession(SessionConfig{Table: "t", Exec: newMemExec()}); err == nil {
		t.Error("missing source should fail")
	}
	if _, err := NewSession(SessionConfig{Table: "t", Source: scenarioSource()}); err == nil {
		t.Error("missing executor should fail")
	}
}

func TestState_TextRoundTrip(t *testing.T) {
	for _, st := range []State{Idle, Running, Paused, Terminated} {
		text, err := st.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got State
		if err := got.UnmarshalText(text); err != nil || got != st {
			t.Errorf("UnmarshalText(%q) = %v, %v", text, got, err)
		}
	}
	var st State
	if err := st.UnmarshalText([]byte("exploded")); err == nil {
		t.Error("UnmarshalText(exploded) = nil error")
	}
}
