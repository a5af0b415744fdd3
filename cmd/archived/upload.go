package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docarchive/internal/catalog"
	"docarchive/internal/ingest"
	"docarchive/internal/observability"
	"docarchive/internal/orchestrator"
)

const maxBatchFiles = 50

// uploadResponse mirrors spec.md §6's accepted-upload shape.
type uploadResponse struct {
	JobID     string `json:"job_id"`
	State     string `json:"state"`
	Source    string `json:"source"`
	SourceRef string `json:"source_ref"`
	QueuedAt  string `json:"queued_at"`
}

type batchItem struct {
	SourceRef string `json:"source_ref"`
	JobID     string `json:"job_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type batchResponse struct {
	Accepted []batchItem `json:"accepted"`
	Rejected []batchItem `json:"rejected"`
}

// handleIngestUpload serves both POST /ingest/<source> and
// POST /ingest/<source>/batch.
func (s *server) handleIngestUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/ingest/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "missing source")
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	source := parts[0]
	batch := len(parts) == 2 && parts[1] == "batch"

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse multipart form: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	if batch {
		s.handleBatchUpload(w, r, source)
		return
	}
	s.handleSingleUpload(w, r, source)
}

func (s *server) handleSingleUpload(w http.ResponseWriter, r *http.Request, source string) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	sourceRef := r.FormValue("source_ref")
	if sourceRef == "" {
		writeError(w, http.StatusBadRequest, "missing source_ref")
		return
	}

	job, err := s.createJob(r, source, sourceRef, file, header)
	if err != nil {
		if err == catalog.ErrDuplicate {
			writeError(w, http.StatusConflict, "duplicate source_ref")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResponse{
		JobID:     job.ID.String(),
		State:     string(job.State),
		Source:    job.Source,
		SourceRef: job.SourceRef,
		QueuedAt:  job.ReceivedAt.UTC().Format(time.RFC3339),
	})
}

func (s *server) handleBatchUpload(w http.ResponseWriter, r *http.Request, source string) {
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "missing files")
		return
	}
	if len(files) > maxBatchFiles {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch exceeds max of %d files", maxBatchFiles))
		return
	}

	refs := r.MultipartForm.Value["source_ref"]
	resp := batchResponse{Accepted: []batchItem{}, Rejected: []batchItem{}}

	for i, header := range files {
		sourceRef := ""
		if i < len(refs) {
			sourceRef = refs[i]
		}
		if sourceRef == "" {
			resp.Rejected = append(resp.Rejected, batchItem{SourceRef: sourceRef, Error: "missing source_ref"})
			continue
		}

		file, err := header.Open()
		if err != nil {
			resp.Rejected = append(resp.Rejected, batchItem{SourceRef: sourceRef, Error: err.Error()})
			continue
		}

		job, err := s.createJob(r, source, sourceRef, file, header)
		file.Close()
		if err != nil {
			reason := err.Error()
			if err == catalog.ErrDuplicate {
				reason = "duplicate source_ref"
			}
			resp.Rejected = append(resp.Rejected, batchItem{SourceRef: sourceRef, Error: reason})
			continue
		}
		resp.Accepted = append(resp.Accepted, batchItem{SourceRef: sourceRef, JobID: job.ID.String()})
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// createJob spools the uploaded file to a well-known OS temp subdirectory,
// creates the RECEIVED IngestJob row, and best-effort publishes the
// process_ingest_job task so ingestd picks it up without waiting on the
// retry scanner's next tick.
func (s *server) createJob(r *http.Request, source, sourceRef string, file multipart.File, header *multipart.FileHeader) (catalog.IngestJob, error) {
	tempPath, err := spoolTempFile(file, header.Filename)
	if err != nil {
		return catalog.IngestJob{}, fmt.Errorf("spool upload: %w", err)
	}

	payload := ingest.JobPayload{
		Filename:    header.Filename,
		MimeType:    header.Header.Get("Content-Type"),
		MessageID:   r.FormValue("message_id"),
		ChatID:      r.FormValue("chat_id"),
		SentAt:      r.FormValue("sent_at"),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		_ = os.Remove(tempPath)
		return catalog.IngestJob{}, fmt.Errorf("marshal job payload: %w", err)
	}

	job, err := s.jobs.Create(r.Context(), catalog.NewJobInput{
		Source:       source,
		SourceRef:    sourceRef,
		FilePathTemp: tempPath,
		Caption:      r.FormValue("caption"),
		PayloadJSON:  payloadJSON,
		MaxAttempts:  s.cfg.Retry.MaxAttempts,
	})
	if err != nil {
		_ = os.Remove(tempPath)
		return catalog.IngestJob{}, err
	}

	if s.publisher != nil {
		if perr := s.publisher.PublishTask(r.Context(), orchestrator.TaskProcessIngestJob, map[string]any{"job_id": job.ID.String()}); perr != nil {
			// The retry scanner will pick this job up on its next tick even
			// if the initial publish is lost, so this is a warning, not a
			// failed upload.
			observability.LoggerWithTrace(r.Context()).Warn().Err(perr).Str("job_id", job.ID.String()).Msg("publish process_ingest_job failed")
		}
	}

	return job, nil
}

func spoolTempFile(src multipart.File, originalFilename string) (string, error) {
	dir := filepath.Join(os.TempDir(), "docarchive-ingest")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}

	ext := filepath.Ext(originalFilename)
	dst, err := os.CreateTemp(dir, "job-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return dst.Name(), nil
}
