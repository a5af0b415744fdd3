package main

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"docarchive/internal/catalog"
	"docarchive/internal/observability"
	"docarchive/internal/searchsync"
)

// handleDeleteDocument serves DELETE /documents/{id}. It removes the
// catalog row, sweeps any file blobs that become unreferenced as a result,
// and best-effort enqueues a search index delete.
func (s *server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	idStr := strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/")
	docID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed document id")
		return
	}

	doc, err := s.documents.GetByID(r.Context(), docID)
	if err != nil {
		if err == catalog.ErrNotFound {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	orphaned, err := s.documents.DeleteDocument(r.Context(), docID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger := observability.LoggerWithTrace(r.Context())
	for _, file := range orphaned {
		if err := s.content.OrphanSweep(r.Context(), file); err != nil {
			logger.Warn().Err(err).Str("file_id", file.ID.String()).Msg("orphan blob sweep failed")
		}
	}

	if err := s.auditLog.Record(r.Context(), "operator", "DOCUMENT_DELETED", "document", &docID,
		map[string]any{"title": doc.Title}, nil); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.publisher != nil {
		searchsync.EnqueueDelete(r.Context(), s.publisher, docID)
	}

	w.WriteHeader(http.StatusNoContent)
}
