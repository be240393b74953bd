package web

// errors.go turns errors into JSON responses.
//
// Every error is:
//   - Logged with the technical details and the request ID
//   - Mapped through core.MapError to a message, an action and a support code
//   - Given an HTTP status from the sentinel it wraps
//
// Handlers call respondError and return; they never pick a status by hand
// except for malformed requests.

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/tabload/internal/core"
	"github.com/JonMunkholm/tabload/internal/database"
	"github.com/JonMunkholm/tabload/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

type statusRule struct {
	target error
	status int
}

// statusRules is checked in order; the first match decides the status.
var statusRules = []statusRule{
	{core.ErrSessionNotFound, http.StatusNotFound},
	{database.ErrNoCheckpoint, http.StatusNotFound},
	{core.ErrTableAlreadyExists, http.StatusConflict},
	{core.ErrTableInUse, http.StatusConflict},
	{core.ErrInvalidTransition, http.StatusConflict},
	{core.ErrSourceOutsideDir, http.StatusBadRequest},
	{core.ErrSourceUnreadable, http.StatusUnprocessableEntity},
	{core.ErrTooManyRuns, http.StatusServiceUnavailable},
	{core.ErrCheckpointsDisabled, http.StatusNotImplemented},
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	for _, rule := range statusRules {
		if errors.Is(err, rule.target) {
			return rule.status
		}
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes its user-facing form.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// badRequest reports a malformed request. The detail is safe to show.
func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	logging.FromContext(r.Context()).Warn("bad request",
		"path", r.URL.Path,
		"detail", detail,
	)
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   detail,
		Message: detail,
		Code:    "REQ400",
	})
}
