package core

// error_messages.go maps technical errors to user-facing messages with a
// support code. Users quote the code; support staff look it up here.
//
// # Ingestion Errors (ING001-ING099)
//
// Matched with errors.Is against the package's sentinel errors:
//
//	ING001 - Table already exists      (ErrTableAlreadyExists)
//	ING002 - Row insert failed         (ErrInsertFailed)
//	ING003 - Operation not allowed now (ErrInvalidTransition, ErrTerminated, ErrCompleted)
//	ING004 - Source file unreadable    (ErrSourceUnreadable)
//	ING005 - Session not found         (ErrSessionNotFound)
//	ING006 - System busy               (ErrTooManyRuns)
//	ING007 - Table in use              (ErrTableInUse)
//	ING008 - No checkpoint             (database.ErrNoCheckpoint, ErrCheckpointsDisabled)
//	ING009 - Source outside directory  (ErrSourceOutsideDir)
//
// # Database Errors (DB001-DB099)
//
// Matched case-insensitively by substring against the error text, so they
// also apply to driver errors wrapped inside an InsertError. Codes DB008 and
// DB009 cover the usual reasons a row no longer fits its inferred column.
//
// # Default Error (ERR000)
//
// Fallback when nothing matches; check the logs for the technical error.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/tabload/internal/database"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorKind struct {
	target error
	msg    UserMessage
}

// errorKinds is checked in order; the first errors.Is match wins, so the
// narrower sentinels come first.
var errorKinds = []errorKind{
	{ErrTableAlreadyExists, UserMessage{
		Message: "The destination table already exists",
		Action:  "Choose a different table name or drop the existing table",
		Code:    "ING001",
	}},
	{ErrTerminated, UserMessage{
		Message: "This ingestion was terminated",
		Action:  "Create a new session to load the file again",
		Code:    "ING003",
	}},
	{ErrCompleted, UserMessage{
		Message: "This ingestion has already finished",
		Action:  "No further action is needed",
		Code:    "ING003",
	}},
	{ErrInvalidTransition, UserMessage{
		Message: "That operation is not allowed in the session's current state",
		Action:  "Check the session state and try a valid operation",
		Code:    "ING003",
	}},
	{ErrSourceOutsideDir, UserMessage{
		Message: "The source file is outside the allowed directory",
		Action:  "Place the file in the configured source directory",
		Code:    "ING009",
	}},
	{ErrSourceUnreadable, UserMessage{
		Message: "The source file could not be read",
		Action:  "Check that the file exists and is a valid delimited file or workbook",
		Code:    "ING004",
	}},
	{ErrSessionNotFound, UserMessage{
		Message: "Ingestion session not found",
		Action:  "List sessions to find the right id, or restore from a checkpoint",
		Code:    "ING005",
	}},
	{ErrTooManyRuns, UserMessage{
		Message: "System is busy processing other ingestions",
		Action:  "Please wait a moment and try again",
		Code:    "ING006",
	}},
	{ErrTableInUse, UserMessage{
		Message: "Another session is already loading this table",
		Action:  "Terminate or finish the other session first",
		Code:    "ING007",
	}},
	{database.ErrNoCheckpoint, UserMessage{
		Message: "No checkpoint was found for this table",
		Action:  "Start a new session instead",
		Code:    "ING008",
	}},
	{ErrCheckpointsDisabled, UserMessage{
		Message: "Checkpoints are disabled on this server",
		Action:  "Enable INGEST_CHECKPOINT to restore sessions",
		Code:    "ING008",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns cover raw database failures. Order matters: specific
// patterns before general ones.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{
		Message: "A record with this key already exists",
		Action:  "Review the source for duplicate rows",
		Code:    "DB001",
	}},
	{"unique constraint", UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check for duplicate entries in your file",
		Code:    "DB002",
	}},
	{"violates unique", UserMessage{
		Message: "A duplicate value was found",
		Action:  "Review your data for duplicate key values",
		Code:    "DB002",
	}},
	{"foreign key", UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Load the referenced table first",
		Code:    "DB003",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Resume the session once the database is reachable",
		Code:    "DB005",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Resume the session to continue from the last committed row",
		Code:    "DB006",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},
	{"value too long", UserMessage{
		Message: "A text value is longer than 256 characters",
		Action:  "Shorten the value in the source file, then resume",
		Code:    "DB008",
	}},
	{"invalid input syntax", UserMessage{
		Message: "A value does not match its column's inferred type",
		Action:  "Fix the value in the source file, then resume",
		Code:    "DB009",
	}},
	{"out of range", UserMessage{
		Message: "A numeric value is out of range for its column",
		Action:  "Fix the value in the source file, then resume",
		Code:    "DB009",
	}},
	{"context canceled", UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "Request timed out",
		Action:  "Please try again",
		Code:    "REQ002",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Insert
// failures caused by a recognizable database error report that error's
// code, since it says more about the fix than ING002 does.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if errors.Is(err, ErrInsertFailed) {
		if msg, ok := matchPattern(err); ok {
			return msg
		}
		return UserMessage{
			Message: "A row could not be inserted",
			Action:  "Fix the row in the source file, then resume",
			Code:    "ING002",
		}
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.msg
		}
	}
	if msg, ok := matchPattern(err); ok {
		return msg
	}
	return defaultMessage
}

func matchPattern(err error) (UserMessage, bool) {
	text := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(text, ep.pattern) {
			return ep.msg, true
		}
	}
	return UserMessage{}, false
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != defaultMessage.Code
}
