// Package core drives resumable ingestion of tabular files into a database.
//
// It holds the domain logic independent of any transport: the web server,
// the CLI and the tests all drive the same types.
//
// # Sessions
//
// A [Session] moves one source file into one destination table. Its first run
// infers a column schema in a single streaming pass, creates the table, and
// then inserts rows one parameterized statement at a time:
//
//	Idle ──Start──▶ Running ──(rows exhausted)──▶ Idle (complete)
//	                  │   ▲
//	             Pause│   │Resume
//	                  ▼   │
//	                Paused
//
//	Terminate from any state but complete ──▶ Terminated (table dropped)
//
// Pause is cooperative: the running loop finishes the row in flight and then
// stops. The row cursor only advances after an insert succeeds, so resuming
// never skips or repeats a row within one process.
//
// # Checkpoints
//
// When a [Checkpointer] is configured, the cursor and column schema are
// persisted on schema creation, every few rows, and whenever a run stops.
// [Manager.Restore] rebuilds a paused session from that record after a
// restart. Rows inserted after the last checkpoint may be inserted again.
//
// # Error Handling
//
// Every failure is a typed error ([ErrTableAlreadyExists], [ErrInsertFailed],
// [ErrInvalidTransition], [ErrSourceUnreadable]) and [MapError] turns any
// error into a user-facing message with a support code.
package core
