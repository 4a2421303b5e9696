package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/tracecut/internal/pipeline"
	"github.com/dgallion1/tracecut/internal/selection"
)

// handleOpenSession traces an upload and returns its contours for
// interactive selection.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	sess, err := s.orchestrator.OpenSession(r.Context(), up.filename, up.data, up.params, up.formats)
	if err != nil {
		s.log.Warn("session trace failed", "filename", up.filename, "error", err)
		code := http.StatusUnprocessableEntity
		if errors.Is(err, pipeline.ErrStopped) {
			code = http.StatusServiceUnavailable
		}
		jsonError(w, err.Error(), code)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sess.Snapshot())
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) *pipeline.Session {
	sess := s.orchestrator.GetSession(chi.URLParam(r, "sessionID"))
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
	}
	return sess
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess.Snapshot())
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "contourID"))
	if err != nil {
		jsonError(w, fmt.Sprintf("invalid contour id: %q", chi.URLParam(r, "contourID")), http.StatusBadRequest)
		return
	}
	if err := sess.Toggle(r.Context(), id); err != nil {
		sessionError(w, err)
		return
	}

	snap := sess.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"session_id": snap.ID,
		"contour":    snap.Contours[id],
		"active":     snap.Active,
	})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	jobID, err := sess.Commit(r.Context())
	if err != nil {
		sessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"session_id": sess.ID,
		"job_id":     jobID,
		"poll_url":   fmt.Sprintf("/api/jobs/%s", jobID),
	})
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	if err := sess.Discard(r.Context()); err != nil {
		sessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, selection.ErrUnknownContour):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, pipeline.ErrSessionClosed):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
	}
}
