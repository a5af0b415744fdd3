package main

import (
	"net/http"

	"docarchive/internal/actiontoken"
	"docarchive/internal/catalog"
	"docarchive/internal/config"
	"docarchive/internal/contentstore"
	"docarchive/internal/searchsync"
)

// server holds the catalog repositories and collaborators every handler
// needs. It carries no state beyond what's wired at startup.
type server struct {
	cfg config.Config

	jobs       *catalog.IngestJobRepo
	documents  *catalog.DocumentRepo
	categories *catalog.CategoryRepo
	tags       *catalog.TagRepo
	auditLog   *catalog.AuditLogRepo
	content    *contentstore.Store

	publisher searchsync.TaskPublisher
	issuer    *actiontoken.Issuer
	metrics   *httpMetrics
}

func (s *server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleHealthz)

	mux.HandleFunc("/ingest/", s.handleIngestUpload)

	mux.HandleFunc("/ingest/actions/", s.handleAction)

	mux.HandleFunc("/review/documents", s.handleReviewList)
	mux.HandleFunc("/review/documents/", s.handleReviewResolveOrDismiss)

	mux.HandleFunc("/categories", s.handleListCategories)
	mux.HandleFunc("/tags", s.handleListTags)

	mux.HandleFunc("/documents/", s.handleDeleteDocument)
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
