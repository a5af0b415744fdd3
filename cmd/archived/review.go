package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"docarchive/internal/catalog"
	"docarchive/internal/rules"
	"docarchive/internal/searchsync"
)

const defaultReviewPageSize = 50

type reviewDocumentView struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Category      string   `json:"category,omitempty"`
	EventDate     string   `json:"event_date,omitempty"`
	ReviewReasons []string `json:"review_reasons"`
	CreatedAt     string   `json:"created_at"`
}

// handleReviewList serves GET /review/documents, a cursor-paginated listing
// of documents with review_status = NEEDS_REVIEW.
func (s *server) handleReviewList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pageSize := defaultReviewPageSize
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pageSize = n
		}
	}
	var afterCreatedAt time.Time
	if v := r.URL.Query().Get("after_created_at"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			afterCreatedAt = t
		}
	}
	var afterID uuid.UUID
	if v := r.URL.Query().Get("after_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			afterID = id
		}
	}

	docs, err := s.documents.ListPage(r.Context(), catalog.DocumentFilter{NeedsReviewOnly: true}, afterCreatedAt, afterID, pageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]reviewDocumentView, 0, len(docs))
	for _, d := range docs {
		eventDate := ""
		if d.EventDate != nil {
			eventDate = d.EventDate.Format("2006-01-02")
		}
		out = append(out, reviewDocumentView{
			ID:            d.ID.String(),
			Title:         d.Title,
			EventDate:     eventDate,
			ReviewReasons: d.ReviewReasons,
			CreatedAt:     d.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

type resolveRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	CategoryID  *uuid.UUID `json:"category_id"`
	EventDate   *string    `json:"event_date"`
	TagIDs      *[]string  `json:"tag_ids"`
}

type dismissRequest struct {
	Reason string `json:"reason"`
}

// handleReviewResolveOrDismiss serves:
//
//	POST /review/documents/{id}/resolve
//	POST /review/documents/{id}/dismiss
func (s *server) handleReviewResolveOrDismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/review/documents/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	docID, err := uuid.Parse(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed document id")
		return
	}

	switch parts[1] {
	case "resolve":
		s.resolveReview(w, r, docID)
	case "dismiss":
		s.dismissReviewReason(w, r, docID)
	default:
		writeError(w, http.StatusNotFound, "unknown review action")
	}
}

// resolveReview applies a manual correction, clearing whatever
// review_reasons the correction addresses and flipping to RESOLVED when
// none remain.
func (s *server) resolveReview(w http.ResponseWriter, r *http.Request, docID uuid.UUID) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
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

	patch := catalog.DocumentPatch{
		Title:        req.Title,
		Description:  req.Description,
		ChangeReason: "review_resolution",
	}

	remaining := append([]string{}, doc.ReviewReasons...)
	if req.CategoryID != nil {
		patch.CategoryID = req.CategoryID
		remaining = removeReason(remaining, rules.ReasonClassifyFail)
	}
	if req.EventDate != nil {
		t, err := time.Parse("2006-01-02", *req.EventDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed event_date, expected YYYY-MM-DD")
			return
		}
		patch.EventDate = &t
		remaining = removeReason(remaining, rules.ReasonDateMissing)
	}
	if req.TagIDs != nil {
		ids := make([]uuid.UUID, 0, len(*req.TagIDs))
		for _, s := range *req.TagIDs {
			id, err := uuid.Parse(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "malformed tag_id")
				return
			}
			ids = append(ids, id)
		}
		patch.Tags = &ids
	}

	status := catalog.ReviewStatusNeedsReview
	if len(remaining) == 0 {
		status = catalog.ReviewStatusResolved
	}
	patch.ReviewStatus = &status
	patch.ReviewReasons = &remaining

	updated, _, err := s.documents.UpdateDocument(r.Context(), docID, patch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	before := map[string]any{"review_reasons": doc.ReviewReasons, "review_status": doc.ReviewStatus}
	after := map[string]any{"review_reasons": updated.ReviewReasons, "review_status": updated.ReviewStatus}
	if err := s.auditLog.Record(r.Context(), "operator", "REVIEW_DOCUMENT_RESOLVED", "document", &docID, before, after); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.publisher != nil {
		searchsync.EnqueueSync(r.Context(), s.publisher, docID)
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": updated.ID.String(), "review_status": updated.ReviewStatus})
}

// dismissReviewReason clears exactly one reason code without touching any
// other field, recorded as a REVIEW_REASON_DISMISSED audit entry.
func (s *server) dismissReviewReason(w http.ResponseWriter, r *http.Request, docID uuid.UUID) {
	var req dismissRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "missing reason")
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

	remaining := removeReason(doc.ReviewReasons, req.Reason)
	status := catalog.ReviewStatusNeedsReview
	if len(remaining) == 0 {
		status = catalog.ReviewStatusResolved
	}

	updated, _, err := s.documents.UpdateDocument(r.Context(), docID, catalog.DocumentPatch{
		ReviewReasons: &remaining,
		ReviewStatus:  &status,
		ChangeReason:  "review_dismissal",
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	before := map[string]any{"review_reasons": doc.ReviewReasons}
	after := map[string]any{"review_reasons": updated.ReviewReasons, "dismissed": req.Reason}
	if err := s.auditLog.Record(r.Context(), "operator", "REVIEW_REASON_DISMISSED", "document", &docID, before, after); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": updated.ID.String(), "review_status": updated.ReviewStatus})
}

func removeReason(reasons []string, target string) []string {
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if r != target {
			out = append(out, r)
		}
	}
	return out
}
