package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FileRepo persists content-addressed File rows. The actual bytes live in
// an objectstore.ObjectStore; this repo only tracks the catalog metadata.
type FileRepo struct {
	pool *pgxpool.Pool
}

func NewFileRepo(pool *pgxpool.Pool) *FileRepo {
	return &FileRepo{pool: pool}
}

// GetByChecksum finds an existing File by its content hash, the basis of
// content-addressed deduplication. ok is false when no such row exists.
func (r *FileRepo) GetByChecksum(ctx context.Context, checksum string) (File, bool, error) {
	return r.getByChecksum(ctx, r.pool, checksum)
}

func (r *FileRepo) getByChecksum(ctx context.Context, q queryer, checksum string) (File, bool, error) {
	var f File
	err := q.QueryRow(ctx,
		`SELECT id, checksum_sha256, storage_backend, bucket, storage_key, original_filename,
		        COALESCE(mime_type, ''), size_bytes, COALESCE(extension, ''), metadata_json,
		        source, source_ref, created_at
		 FROM files WHERE checksum_sha256 = $1`,
		checksum,
	).Scan(&f.ID, &f.ChecksumSHA256, &f.StorageBackend, &f.Bucket, &f.StorageKey, &f.OriginalFilename,
		&f.MimeType, &f.SizeBytes, &f.Extension, &f.MetadataJSON, &f.Source, &f.SourceRef, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return File{}, false, nil
	}
	if err != nil {
		return File{}, false, fmt.Errorf("get file by checksum: %w", err)
	}
	return f, true, nil
}

// Insert writes a new File row. Callers are expected to have already
// checked GetByChecksum; a concurrent racing insert on the same checksum is
// surfaced as ErrDuplicate so the caller can fall back to GetByChecksum.
func (r *FileRepo) Insert(ctx context.Context, f File) (File, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO files (checksum_sha256, storage_backend, bucket, storage_key, original_filename,
		                     mime_type, size_bytes, extension, metadata_json, source, source_ref)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10, $11)
		 RETURNING id, created_at`,
		f.ChecksumSHA256, f.StorageBackend, f.Bucket, f.StorageKey, f.OriginalFilename,
		f.MimeType, f.SizeBytes, f.Extension, f.MetadataJSON, f.Source, f.SourceRef,
	).Scan(&f.ID, &f.CreatedAt)
	if isUniqueViolation(err) {
		return File{}, ErrDuplicate
	}
	if err != nil {
		return File{}, fmt.Errorf("insert file: %w", err)
	}
	return f, nil
}

// LinkCount returns how many document_files rows reference fileID.
func (r *FileRepo) LinkCount(ctx context.Context, fileID uuid.UUID) (int, error) {
	return r.linkCount(ctx, r.pool, fileID)
}

func (r *FileRepo) linkCount(ctx context.Context, q queryer, fileID uuid.UUID) (int, error) {
	var count int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM document_files WHERE file_id = $1`, fileID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count file links: %w", err)
	}
	return count, nil
}

// Delete removes a File row. Callers must have already verified it has no
// remaining document_files links (see LinkCount).
func (r *FileRepo) Delete(ctx context.Context, fileID uuid.UUID) error {
	return r.delete(ctx, r.pool, fileID)
}

func (r *FileRepo) delete(ctx context.Context, q queryer, fileID uuid.UUID) error {
	if _, err := q.Exec(ctx, `DELETE FROM files WHERE id = $1`, fileID); err != nil {
		return fmt.Errorf("delete file %s: %w", fileID, err)
	}
	return nil
}

// queryer is the subset of pgxpool.Pool/pgx.Tx used by repo helpers that
// must work identically inside or outside an explicit transaction.
type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
}
