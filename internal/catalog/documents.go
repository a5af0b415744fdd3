package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepo implements the Catalog operations from spec.md §4.5 on top of
// a pgx pool: creation from the ingest pipeline, partial updates with
// version snapshotting, file-level mutations with orphan sweep, and
// deletion.
type DocumentRepo struct {
	pool  *pgxpool.Pool
	files *FileRepo
}

func NewDocumentRepo(pool *pgxpool.Pool, files *FileRepo) *DocumentRepo {
	return &DocumentRepo{pool: pool, files: files}
}

// NewDocumentInput is everything create_document_from_pipeline needs: the
// ingest pipeline's final classified state plus the primary file link.
type NewDocumentInput struct {
	Source        string
	SourceRef     string
	Title         string
	Description   string
	CaptionRaw    string
	Summary       string
	CategoryID    *uuid.UUID
	EventDate     *time.Time
	IngestedAt    time.Time
	ReviewStatus  ReviewStatus
	ReviewReasons []string
	TagIDs        []uuid.UUID
	FileID        uuid.UUID
	Filename      string
}

// CreateFromPipeline inserts the Document, its v1 DocumentVersion, the
// primary DocumentFile link, and DocumentTag rows, then refreshes the
// search vector - all in one transaction so a crash midway leaves nothing
// half-built.
func (r *DocumentRepo) CreateFromPipeline(ctx context.Context, in NewDocumentInput) (Document, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("begin create document: %w", err)
	}
	defer tx.Rollback(ctx)

	var doc Document
	err = tx.QueryRow(ctx,
		`INSERT INTO documents (source, source_ref, title, description, caption_raw, summary,
		                         category_id, event_date, ingested_at, review_status, review_reasons,
		                         current_version_no)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
		 RETURNING id, source, source_ref, title, description, caption_raw, summary, category_id,
		           event_date, ingested_at, review_status, review_reasons, current_version_no,
		           created_at, updated_at`,
		in.Source, in.SourceRef, in.Title, in.Description, in.CaptionRaw, in.Summary,
		in.CategoryID, in.EventDate, in.IngestedAt, string(in.ReviewStatus), in.ReviewReasons,
	).Scan(&doc.ID, &doc.Source, &doc.SourceRef, &doc.Title, &doc.Description, &doc.CaptionRaw,
		&doc.Summary, &doc.CategoryID, &doc.EventDate, &doc.IngestedAt, &doc.ReviewStatus,
		&doc.ReviewReasons, &doc.CurrentVersionNo, &doc.CreatedAt, &doc.UpdatedAt)
	if isUniqueViolation(err) {
		return Document{}, ErrDuplicate
	}
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}

	tagSlugs, err := r.snapshotTagSlugs(ctx, tx, in.TagIDs)
	if err != nil {
		return Document{}, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO document_versions (document_id, version_no, title, description, summary,
		                                 category_id, event_date, tags_snapshot, change_reason)
		 VALUES ($1, 1, $2, $3, $4, $5, $6, $7, 'ingest')`,
		doc.ID, doc.Title, doc.Description, doc.Summary, doc.CategoryID, doc.EventDate, tagSlugs,
	); err != nil {
		return Document{}, fmt.Errorf("insert document version: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO document_files (document_id, file_id, is_primary, filename) VALUES ($1, $2, true, $3)`,
		doc.ID, in.FileID, in.Filename,
	); err != nil {
		return Document{}, fmt.Errorf("insert document file: %w", err)
	}

	if err := r.replaceTagLinks(ctx, tx, doc.ID, in.TagIDs); err != nil {
		return Document{}, err
	}

	if err := r.refreshSearchVector(ctx, tx, doc.ID); err != nil {
		return Document{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Document{}, fmt.Errorf("commit create document: %w", err)
	}
	doc.Tags = tagSlugs
	return doc, nil
}

func (r *DocumentRepo) snapshotTagSlugs(ctx context.Context, q queryer, tagIDs []uuid.UUID) ([]string, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}
	rows, err := q.Query(ctx, `SELECT slug FROM tags WHERE id = ANY($1)`, tagIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot tag slugs: %w", err)
	}
	defer rows.Close()
	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs, rows.Err()
}

func (r *DocumentRepo) replaceTagLinks(ctx context.Context, q queryer, documentID uuid.UUID, tagIDs []uuid.UUID) error {
	if _, err := q.Exec(ctx, `DELETE FROM document_tags WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("clear document tags: %w", err)
	}
	for _, tagID := range tagIDs {
		if _, err := q.Exec(ctx,
			`INSERT INTO document_tags (document_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			documentID, tagID,
		); err != nil {
			return fmt.Errorf("link document tag: %w", err)
		}
	}
	return nil
}

func (r *DocumentRepo) refreshSearchVector(ctx context.Context, q queryer, documentID uuid.UUID) error {
	_, err := q.Exec(ctx,
		`UPDATE documents SET search_vector =
		    to_tsvector('simple', coalesce(title,'') || ' ' || coalesce(description,'') || ' ' ||
		                coalesce(summary,'') || ' ' || coalesce(caption_raw,''))
		 WHERE id = $1`,
		documentID,
	)
	if err != nil {
		return fmt.Errorf("refresh search vector: %w", err)
	}
	return nil
}

// DocumentPatch is a partial update; nil/unset fields are left unchanged.
// Tags, when non-nil, fully replaces the current tag set.
type DocumentPatch struct {
	Title         *string
	Description   *string
	CategoryID    *uuid.UUID
	EventDate     *time.Time
	Tags          *[]uuid.UUID
	ReviewStatus  *ReviewStatus
	ReviewReasons *[]string
	ChangeReason  string
}

// UpdateDocument applies patch; any semantic change bumps current_version_no
// and writes a new DocumentVersion snapshot. A patch that changes nothing
// returns the unchanged document and changed=false.
func (r *DocumentRepo) UpdateDocument(ctx context.Context, id uuid.UUID, patch DocumentPatch) (Document, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Document{}, false, fmt.Errorf("begin update document: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := r.getForUpdate(ctx, tx, id)
	if err != nil {
		return Document{}, false, err
	}

	next := current
	changed := false
	if patch.Title != nil && *patch.Title != current.Title {
		next.Title = *patch.Title
		changed = true
	}
	if patch.Description != nil && *patch.Description != current.Description {
		next.Description = *patch.Description
		changed = true
	}
	if patch.CategoryID != nil && !uuidPtrEqual(patch.CategoryID, current.CategoryID) {
		next.CategoryID = patch.CategoryID
		changed = true
	}
	if patch.EventDate != nil && !timePtrEqual(patch.EventDate, current.EventDate) {
		next.EventDate = patch.EventDate
		changed = true
	}
	if patch.ReviewStatus != nil && *patch.ReviewStatus != current.ReviewStatus {
		next.ReviewStatus = *patch.ReviewStatus
		changed = true
	}
	if patch.ReviewReasons != nil && !stringSetEqual(*patch.ReviewReasons, current.ReviewReasons) {
		next.ReviewReasons = *patch.ReviewReasons
		changed = true
	}

	var tagSlugs []string
	tagsChanged := false
	if patch.Tags != nil {
		slugs, err := r.snapshotTagSlugs(ctx, tx, *patch.Tags)
		if err != nil {
			return Document{}, false, err
		}
		existing, err := r.currentTagSlugs(ctx, tx, id)
		if err != nil {
			return Document{}, false, err
		}
		if !stringSetEqual(slugs, existing) {
			tagsChanged = true
			changed = true
		}
		tagSlugs = slugs
	}

	if !changed {
		if err := tx.Commit(ctx); err != nil {
			return Document{}, false, fmt.Errorf("commit no-op update: %w", err)
		}
		return current, false, nil
	}

	next.CurrentVersionNo = current.CurrentVersionNo + 1
	_, err = tx.Exec(ctx,
		`UPDATE documents SET title=$1, description=$2, category_id=$3, event_date=$4,
		        review_status=$5, review_reasons=$6, current_version_no=$7, updated_at=now()
		 WHERE id=$8`,
		next.Title, next.Description, next.CategoryID, next.EventDate, string(next.ReviewStatus),
		next.ReviewReasons, next.CurrentVersionNo, id,
	)
	if err != nil {
		return Document{}, false, fmt.Errorf("update document: %w", err)
	}

	if patch.Tags != nil && tagsChanged {
		if err := r.replaceTagLinks(ctx, tx, id, *patch.Tags); err != nil {
			return Document{}, false, err
		}
	} else {
		tagSlugs, err = r.currentTagSlugs(ctx, tx, id)
		if err != nil {
			return Document{}, false, err
		}
	}

	reason := patch.ChangeReason
	if reason == "" {
		reason = "manual_update"
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO document_versions (document_id, version_no, title, description, summary,
		                                 category_id, event_date, tags_snapshot, change_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, next.CurrentVersionNo, next.Title, next.Description, next.Summary, next.CategoryID,
		next.EventDate, tagSlugs, reason,
	); err != nil {
		return Document{}, false, fmt.Errorf("insert document version: %w", err)
	}

	if err := r.refreshSearchVector(ctx, tx, id); err != nil {
		return Document{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Document{}, false, fmt.Errorf("commit update document: %w", err)
	}
	next.Tags = tagSlugs
	return next, true, nil
}

func (r *DocumentRepo) getForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Document, error) {
	var doc Document
	err := tx.QueryRow(ctx,
		`SELECT id, source, source_ref, title, description, caption_raw, summary, category_id,
		        event_date, ingested_at, review_status, review_reasons, current_version_no,
		        created_at, updated_at
		 FROM documents WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&doc.ID, &doc.Source, &doc.SourceRef, &doc.Title, &doc.Description, &doc.CaptionRaw,
		&doc.Summary, &doc.CategoryID, &doc.EventDate, &doc.IngestedAt, &doc.ReviewStatus,
		&doc.ReviewReasons, &doc.CurrentVersionNo, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s for update: %w", id, err)
	}
	return doc, nil
}

func (r *DocumentRepo) currentTagSlugs(ctx context.Context, q queryer, documentID uuid.UUID) ([]string, error) {
	rows, err := q.Query(ctx,
		`SELECT t.slug FROM tags t JOIN document_tags dt ON dt.tag_id = t.id WHERE dt.document_id = $1 ORDER BY t.slug`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("current tag slugs: %w", err)
	}
	defer rows.Close()
	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// GetByID loads a document with its tag slugs populated.
func (r *DocumentRepo) GetByID(ctx context.Context, id uuid.UUID) (Document, error) {
	var doc Document
	err := r.pool.QueryRow(ctx,
		`SELECT id, source, source_ref, title, description, caption_raw, summary, category_id,
		        event_date, ingested_at, review_status, review_reasons, current_version_no,
		        created_at, updated_at
		 FROM documents WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.Source, &doc.SourceRef, &doc.Title, &doc.Description, &doc.CaptionRaw,
		&doc.Summary, &doc.CategoryID, &doc.EventDate, &doc.IngestedAt, &doc.ReviewStatus,
		&doc.ReviewReasons, &doc.CurrentVersionNo, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	tags, err := r.currentTagSlugs(ctx, r.pool, id)
	if err != nil {
		return Document{}, err
	}
	doc.Tags = tags
	return doc, nil
}

// GetBySourceRef supports the pre-insert duplicate check for chat-bot
// uploads: (source, source_ref) is partial-unique for source='chat-bot'.
func (r *DocumentRepo) GetBySourceRef(ctx context.Context, source, sourceRef string) (Document, error) {
	var doc Document
	err := r.pool.QueryRow(ctx,
		`SELECT id, source, source_ref, title, description, caption_raw, summary, category_id,
		        event_date, ingested_at, review_status, review_reasons, current_version_no,
		        created_at, updated_at
		 FROM documents WHERE source = $1 AND source_ref = $2`,
		source, sourceRef,
	).Scan(&doc.ID, &doc.Source, &doc.SourceRef, &doc.Title, &doc.Description, &doc.CaptionRaw,
		&doc.Summary, &doc.CategoryID, &doc.EventDate, &doc.IngestedAt, &doc.ReviewStatus,
		&doc.ReviewReasons, &doc.CurrentVersionNo, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document by source ref: %w", err)
	}
	return doc, nil
}

// AddFile links a new File to an existing document (non-primary by default)
// and snapshots a DocumentVersion with change_reason="file_added".
func (r *DocumentRepo) AddFile(ctx context.Context, documentID, fileID uuid.UUID, filename string, isPrimary bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin add file: %w", err)
	}
	defer tx.Rollback(ctx)

	doc, err := r.getForUpdate(ctx, tx, documentID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO document_files (document_id, file_id, is_primary, filename) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (document_id, file_id) DO NOTHING`,
		documentID, fileID, isPrimary, filename,
	); err != nil {
		return fmt.Errorf("insert document file: %w", err)
	}

	if err := r.bumpVersion(ctx, tx, doc, "file_added"); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ReplaceFile swaps the primary file link for documentID: unlinks oldFileID,
// links newFileID as primary, and orphan-sweeps oldFileID if it has no
// remaining links. Returns the orphaned file, if any, so the caller can
// delete the underlying blob.
func (r *DocumentRepo) ReplaceFile(ctx context.Context, documentID, oldFileID, newFileID uuid.UUID, filename string) (*File, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin replace file: %w", err)
	}
	defer tx.Rollback(ctx)

	doc, err := r.getForUpdate(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM document_files WHERE document_id = $1 AND file_id = $2`, documentID, oldFileID); err != nil {
		return nil, fmt.Errorf("unlink old file: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO document_files (document_id, file_id, is_primary, filename) VALUES ($1, $2, true, $3)`,
		documentID, newFileID, filename,
	); err != nil {
		return nil, fmt.Errorf("link new file: %w", err)
	}

	orphan, err := r.orphanSweep(ctx, tx, oldFileID)
	if err != nil {
		return nil, err
	}

	if err := r.bumpVersion(ctx, tx, doc, "file_replaced"); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit replace file: %w", err)
	}
	return orphan, nil
}

// DeleteFile unlinks fileID from documentID and orphan-sweeps it.
func (r *DocumentRepo) DeleteFile(ctx context.Context, documentID, fileID uuid.UUID) (*File, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin delete file: %w", err)
	}
	defer tx.Rollback(ctx)

	doc, err := r.getForUpdate(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM document_files WHERE document_id = $1 AND file_id = $2`, documentID, fileID); err != nil {
		return nil, fmt.Errorf("unlink file: %w", err)
	}

	orphan, err := r.orphanSweep(ctx, tx, fileID)
	if err != nil {
		return nil, err
	}

	if err := r.bumpVersion(ctx, tx, doc, "file_removed"); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit delete file: %w", err)
	}
	return orphan, nil
}

// orphanSweep deletes the File row and returns it when it has zero
// remaining document_files links; it leaves the row untouched otherwise.
func (r *DocumentRepo) orphanSweep(ctx context.Context, tx pgx.Tx, fileID uuid.UUID) (*File, error) {
	count, err := r.files.linkCount(ctx, tx, fileID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, nil
	}
	var file File
	err = tx.QueryRow(ctx,
		`SELECT id, checksum_sha256, storage_backend, bucket, storage_key, original_filename,
		        COALESCE(mime_type,''), size_bytes, COALESCE(extension,''), metadata_json, source,
		        source_ref, created_at
		 FROM files WHERE id = $1`,
		fileID,
	).Scan(&file.ID, &file.ChecksumSHA256, &file.StorageBackend, &file.Bucket, &file.StorageKey,
		&file.OriginalFilename, &file.MimeType, &file.SizeBytes, &file.Extension, &file.MetadataJSON,
		&file.Source, &file.SourceRef, &file.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load orphan candidate file: %w", err)
	}
	if err := r.files.delete(ctx, tx, fileID); err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *DocumentRepo) bumpVersion(ctx context.Context, tx pgx.Tx, doc Document, reason string) error {
	nextVersion := doc.CurrentVersionNo + 1
	if _, err := tx.Exec(ctx, `UPDATE documents SET current_version_no = $1, updated_at = now() WHERE id = $2`, nextVersion, doc.ID); err != nil {
		return fmt.Errorf("bump document version: %w", err)
	}
	tagSlugs, err := r.currentTagSlugs(ctx, tx, doc.ID)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO document_versions (document_id, version_no, title, description, summary,
		                                 category_id, event_date, tags_snapshot, change_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, nextVersion, doc.Title, doc.Description, doc.Summary, doc.CategoryID, doc.EventDate,
		tagSlugs, reason,
	); err != nil {
		return fmt.Errorf("insert document version: %w", err)
	}
	return r.refreshSearchVector(ctx, tx, doc.ID)
}

// DeleteDocument detaches referencing ingest jobs, deletes the document
// (cascading to versions/links/tags), and orphan-sweeps its files. It
// returns the files that became orphaned so the caller can delete their
// blobs.
func (r *DocumentRepo) DeleteDocument(ctx context.Context, id uuid.UUID) ([]File, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin delete document: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE ingest_jobs SET document_id = NULL WHERE document_id = $1`, id); err != nil {
		return nil, fmt.Errorf("detach ingest jobs: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT file_id FROM document_files WHERE document_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("list document files: %w", err)
	}
	var fileIDs []uuid.UUID
	for rows.Next() {
		var fid uuid.UUID
		if err := rows.Scan(&fid); err != nil {
			rows.Close()
			return nil, err
		}
		fileIDs = append(fileIDs, fid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete document %s: %w", id, err)
	}

	var orphaned []File
	for _, fid := range fileIDs {
		orphan, err := r.orphanSweep(ctx, tx, fid)
		if err != nil {
			return nil, err
		}
		if orphan != nil {
			orphaned = append(orphaned, *orphan)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit delete document: %w", err)
	}
	return orphaned, nil
}

// DocumentFilter narrows ListPage to a subset of documents, used by both the
// review queue and the backfill engine.
type DocumentFilter struct {
	CategoryID      *uuid.UUID
	EventDateFrom   *time.Time
	EventDateTo     *time.Time
	NeedsReviewOnly bool
}

// ListPage returns up to pageSize documents matching filter, ordered by
// insertion (created_at, id) and starting strictly after the
// (afterCreatedAt, afterID) cursor (the zero time with the zero UUID
// selects the first page).
func (r *DocumentRepo) ListPage(ctx context.Context, filter DocumentFilter, afterCreatedAt time.Time, afterID uuid.UUID, pageSize int) ([]Document, error) {
	query := `SELECT id, source, source_ref, title, description, caption_raw, summary, category_id,
	                  event_date, ingested_at, review_status, review_reasons, current_version_no,
	                  created_at, updated_at
	           FROM documents
	           WHERE (created_at, id) > ($1, $2)`
	args := []any{afterCreatedAt, afterID}
	n := 2

	if filter.CategoryID != nil {
		n++
		query += fmt.Sprintf(" AND category_id = $%d", n)
		args = append(args, *filter.CategoryID)
	}
	if filter.EventDateFrom != nil {
		n++
		query += fmt.Sprintf(" AND event_date >= $%d", n)
		args = append(args, *filter.EventDateFrom)
	}
	if filter.EventDateTo != nil {
		n++
		query += fmt.Sprintf(" AND event_date <= $%d", n)
		args = append(args, *filter.EventDateTo)
	}
	if filter.NeedsReviewOnly {
		query += " AND review_status = 'NEEDS_REVIEW'"
	}

	n++
	query += fmt.Sprintf(" ORDER BY created_at, id LIMIT $%d", n)
	args = append(args, pageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents page: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Source, &doc.SourceRef, &doc.Title, &doc.Description,
			&doc.CaptionRaw, &doc.Summary, &doc.CategoryID, &doc.EventDate, &doc.IngestedAt,
			&doc.ReviewStatus, &doc.ReviewReasons, &doc.CurrentVersionNo, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range docs {
		tags, err := r.currentTagSlugs(ctx, r.pool, docs[i].ID)
		if err != nil {
			return nil, err
		}
		docs[i].Tags = tags
	}
	return docs, nil
}

// PrimaryFilename returns the filename of a document's primary file, used
// by the Backfill Engine as a Rule Engine input.
func (r *DocumentRepo) PrimaryFilename(ctx context.Context, documentID uuid.UUID) (string, error) {
	var filename string
	err := r.pool.QueryRow(ctx,
		`SELECT filename FROM document_files WHERE document_id = $1 AND is_primary LIMIT 1`,
		documentID,
	).Scan(&filename)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("primary filename for %s: %w", documentID, err)
	}
	return filename, nil
}

// Search is the DB-tokenized-search-vector fallback used when the external
// search service is disabled or unreachable. It applies the same
// filter/sort semantics as the external path: query text is matched
// against the search_vector, results ordered by rank then created_at.
func (r *DocumentRepo) Search(ctx context.Context, query string, filter DocumentFilter, limit int) ([]Document, error) {
	sql := `SELECT id, source, source_ref, title, description, caption_raw, summary, category_id,
	               event_date, ingested_at, review_status, review_reasons, current_version_no,
	               created_at, updated_at
	        FROM documents
	        WHERE ($1 = '' OR search_vector @@ plainto_tsquery('simple', $1))`
	args := []any{query}
	n := 1

	if filter.CategoryID != nil {
		n++
		sql += fmt.Sprintf(" AND category_id = $%d", n)
		args = append(args, *filter.CategoryID)
	}
	if filter.EventDateFrom != nil {
		n++
		sql += fmt.Sprintf(" AND event_date >= $%d", n)
		args = append(args, *filter.EventDateFrom)
	}
	if filter.EventDateTo != nil {
		n++
		sql += fmt.Sprintf(" AND event_date <= $%d", n)
		args = append(args, *filter.EventDateTo)
	}
	if filter.NeedsReviewOnly {
		sql += " AND review_status = 'NEEDS_REVIEW'"
	}

	n++
	sql += fmt.Sprintf(" ORDER BY ts_rank(search_vector, plainto_tsquery('simple', $1)) DESC, created_at DESC LIMIT $%d", n)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Source, &doc.SourceRef, &doc.Title, &doc.Description,
			&doc.CaptionRaw, &doc.Summary, &doc.CategoryID, &doc.EventDate, &doc.IngestedAt,
			&doc.ReviewStatus, &doc.ReviewReasons, &doc.CurrentVersionNo, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string{}, a...)
	sb := append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
