package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"docarchive/internal/actiontoken"
	"docarchive/internal/catalog"
	"docarchive/internal/orchestrator"
)

// handleAction serves POST /ingest/actions/{job_id}/{action}, verifying the
// signed action token carried in the X-Bot-Action-Token header or the
// token query parameter.
func (s *server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/ingest/actions/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	jobID, err := uuid.Parse(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed job_id")
		return
	}

	var action actiontoken.Action
	switch parts[1] {
	case string(actiontoken.ActionRetry):
		action = actiontoken.ActionRetry
	case string(actiontoken.ActionReprocess):
		action = actiontoken.ActionReprocess
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}

	token := r.Header.Get("X-Bot-Action-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing action token")
		return
	}

	if err := s.issuer.Verify(token, jobID, action, time.Now().UTC()); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired action token")
		return
	}

	job, err := s.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if err == catalog.ErrNotFound {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !catalog.TerminalStates[job.State] {
		writeError(w, http.StatusConflict, "job is not in a terminal state")
		return
	}

	// reprocess gives the job a fresh attempt budget; retry preserves the
	// existing attempt_count so a job that has burned through most of its
	// budget still dead-letters on the same schedule it would have.
	resetAttempts := action == actiontoken.ActionReprocess
	if err := s.jobs.Requeue(r.Context(), jobID, resetAttempts); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.publisher != nil {
		_ = s.publisher.PublishTask(r.Context(), orchestrator.TaskProcessIngestJob, map[string]any{"job_id": jobID.String()})
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID.String(), "state": "RECEIVED"})
}
