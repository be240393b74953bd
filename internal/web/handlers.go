package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabload/internal/core"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 64 << 10

type createSessionRequest struct {
	Table  string `json:"table"`
	Source string `json:"source"`
}

type previewRequest struct {
	Source  string `json:"source"`
	Samples int    `json:"samples"`
}

type restoreSessionRequest struct {
	Table string `json:"table"`
}

type progressResponse struct {
	State        core.State `json:"state"`
	Complete     bool       `json:"complete"`
	RowsConsumed int64      `json:"rows_consumed"`
	TotalRows    int64      `json:"total_rows"`
	Progress     float64    `json:"progress"`
}

type tableExistsResponse struct {
	Table  string `json:"table"`
	Exists bool   `json:"exists"`
}

type healthResponse struct {
	Status   string             `json:"status"`
	Runs     core.LimiterStatus `json:"runs"`
	Sessions int                `json:"sessions"`
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Runs:     s.manager.Limiter().Status(),
		Sessions: len(s.manager.List()),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

// handleCreateSession registers an Idle session for a file under the
// source directory. The session does not run until it is started.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	req.Table = strings.TrimSpace(req.Table)
	if req.Table == "" || req.Source == "" {
		badRequest(w, r, "table and source are required")
		return
	}

	sess, err := s.manager.Create(req.Table, req.Source)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

// handleRestoreSession rebuilds a Paused session from the table's
// checkpoint, typically after a restart.
func (s *Server) handleRestoreSession(w http.ResponseWriter, r *http.Request) {
	var req restoreSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if strings.TrimSpace(req.Table) == "" {
		badRequest(w, r, "table is required")
		return
	}

	sess, err := s.manager.Restore(r.Context(), strings.TrimSpace(req.Table))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Remove(chi.URLParam(r, "sessionID")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progressOf(sess.Snapshot()))
}

// handleStart launches the first run. The run continues after the response;
// poll progress or follow the event stream to see it finish.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.manager.Start(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	s.respondSnapshot(w, r, id, http.StatusAccepted)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.manager.Resume(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	s.respondSnapshot(w, r, id, http.StatusAccepted)
}

// handlePause requests a pause. The run stops at its next row boundary, so
// the returned state may still be running.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.manager.Pause(id); err != nil {
		respondError(w, r, err)
		return
	}
	s.respondSnapshot(w, r, id, http.StatusAccepted)
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.manager.Terminate(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	s.respondSnapshot(w, r, id, http.StatusOK)
}

// handlePreview infers the schema a source would produce without creating
// anything.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if req.Source == "" {
		badRequest(w, r, "source is required")
		return
	}

	preview, err := s.manager.Preview(req.Source, req.Samples)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleTableExists(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	writeJSON(w, http.StatusOK, tableExistsResponse{
		Table:  table,
		Exists: s.manager.TableExists(r.Context(), table),
	})
}

// handleEvents streams progress via Server-Sent Events. An event is sent
// whenever the snapshot changes; the stream ends with an "end" event once
// the session is no longer running.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		badRequest(w, r, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(eventInterval)
	defer ticker.Stop()

	var (
		last    progressResponse
		eventID int
	)
	for {
		cur := progressOf(sess.Snapshot())
		if eventID == 0 || cur != last {
			eventID++
			data, _ := json.Marshal(cur)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", eventID, data)
			flusher.Flush()
			last = cur
		}
		if cur.State != core.Running {
			fmt.Fprintf(w, "event: end\ndata: {}\n\n")
			flusher.Flush()
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// respondSnapshot writes the session's current snapshot.
func (s *Server) respondSnapshot(w http.ResponseWriter, r *http.Request, id string, status int) {
	sess, err := s.manager.Get(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, status, sess.Snapshot())
}

func progressOf(snap core.Snapshot) progressResponse {
	return progressResponse{
		State:        snap.State,
		Complete:     snap.Complete,
		RowsConsumed: snap.RowsConsumed,
		TotalRows:    snap.TotalRows,
		Progress:     snap.Progress,
	}
}
