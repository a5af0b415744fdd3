// Package contentstore implements the content-addressed blob layer: bytes
// go into an objectstore.ObjectStore keyed by SHA-256, and the catalog's
// File table tracks the mapping from checksum to backend/key so repeated
// uploads of identical bytes are deduplicated.
package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"docarchive/internal/catalog"
	"docarchive/internal/objectstore"
)

// Error codes from spec.md §4.1's failure semantics. These are returned
// wrapped in fmt.Errorf chains; callers match them with errors.Is.
var (
	ErrTempFileMissing = errors.New("STORAGE_TEMP_FILE_MISSING")
	ErrReadFail        = errors.New("STORAGE_READ_FAIL")
	ErrWriteFail       = errors.New("STORAGE_WRITE_FAIL")
)

// Store is the Content Store: a thin layer over an ObjectStore backend and
// the catalog's File repository.
type Store struct {
	backend    objectstore.ObjectStore
	backendTag string // "disk" or "object-store", persisted on each File
	bucket     string
	files      *catalog.FileRepo
}

func New(backend objectstore.ObjectStore, backendTag, bucket string, files *catalog.FileRepo) *Store {
	return &Store{backend: backend, backendTag: backendTag, bucket: bucket, files: files}
}

// StorageKey derives the bucketized key <sha[0:2]>/<sha[2:4]>/<sha>.<ext>.
func StorageKey(checksum, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if len(checksum) < 4 {
		if ext == "" {
			return checksum
		}
		return checksum + "." + ext
	}
	key := fmt.Sprintf("%s/%s/%s", checksum[0:2], checksum[2:4], checksum)
	if ext != "" {
		key += "." + ext
	}
	return key
}

// PutResult describes the outcome of PutLocalFile.
type PutResult struct {
	File          catalog.File
	AlreadyLinked bool // true when an existing File with >=1 document link was found
}

// PutLocalFile hashes a local temp file, checks for an existing File by
// checksum (content-addressed dedup), and - only when no such File exists -
// uploads the bytes to the backend and inserts the File row. The temp file
// itself is not removed; the caller owns its lifecycle.
func (s *Store) PutLocalFile(ctx context.Context, localPath, originalFilename, source, sourceRef string, metadataJSON []byte) (PutResult, error) {
	checksum, size, err := hashFile(localPath)
	if err != nil {
		return PutResult{}, err
	}

	existing, ok, err := s.files.GetByChecksum(ctx, checksum)
	if err != nil {
		return PutResult{}, fmt.Errorf("lookup existing file: %w", err)
	}
	if ok {
		linked, err := s.files.LinkCount(ctx, existing.ID)
		if err != nil {
			return PutResult{}, err
		}
		return PutResult{File: existing, AlreadyLinked: linked > 0}, nil
	}

	ext := strings.TrimPrefix(filepath.Ext(originalFilename), ".")
	key := StorageKey(checksum, ext)

	f, err := os.Open(localPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return PutResult{}, fmt.Errorf("%w: %s", ErrTempFileMissing, localPath)
		}
		return PutResult{}, fmt.Errorf("%w: %s: %v", ErrReadFail, localPath, err)
	}
	defer f.Close()

	if _, err := s.backend.Put(ctx, key, f, objectstore.PutOptions{}); err != nil {
		return PutResult{}, fmt.Errorf("%w: %s: %v", ErrWriteFail, key, err)
	}

	if metadataJSON == nil {
		metadataJSON = []byte(`{}`)
	}

	file, err := s.files.Insert(ctx, catalog.File{
		ChecksumSHA256:   checksum,
		StorageBackend:   s.backendTag,
		Bucket:           s.bucket,
		StorageKey:       key,
		OriginalFilename: originalFilename,
		SizeBytes:        size,
		Extension:        ext,
		MetadataJSON:     metadataJSON,
		Source:           source,
		SourceRef:        sourceRef,
	})
	if errors.Is(err, catalog.ErrDuplicate) {
		// Lost a race with another writer that inserted the same checksum
		// first; the bytes are already in place under the same key.
		existing, ok, ferr := s.files.GetByChecksum(ctx, checksum)
		if ferr != nil {
			return PutResult{}, ferr
		}
		if !ok {
			return PutResult{}, fmt.Errorf("file %s vanished after duplicate insert race", checksum)
		}
		return PutResult{File: existing}, nil
	}
	if err != nil {
		return PutResult{}, fmt.Errorf("insert file row: %w", err)
	}
	return PutResult{File: file}, nil
}

// Get streams a File's bytes back from the backend.
func (s *Store) Get(ctx context.Context, file catalog.File) (io.ReadCloser, error) {
	r, _, err := s.backend.Get(ctx, file.StorageKey)
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrReadFail, file.StorageKey)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReadFail, file.StorageKey, err)
	}
	return r, nil
}

// Delete removes the backend object for file. "No such key" is treated as
// success, matching spec.md §4.1's idempotent-delete semantics.
func (s *Store) Delete(ctx context.Context, file catalog.File) error {
	if err := s.backend.Delete(ctx, file.StorageKey); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		return fmt.Errorf("%w: %s: %v", ErrWriteFail, file.StorageKey, err)
	}
	return nil
}

// OrphanSweep deletes the backend object for a File that the catalog has
// already determined has zero remaining document links. The catalog row
// itself is removed by catalog.DocumentRepo's own orphan-sweep step; this
// only cleans up the blob.
func (s *Store) OrphanSweep(ctx context.Context, file catalog.File) error {
	return s.Delete(ctx, file)
}

func hashFile(path string) (checksum string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("%w: %s", ErrTempFileMissing, path)
		}
		return "", 0, fmt.Errorf("%w: %s: %v", ErrReadFail, path, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.CopyBuffer(h, f, make([]byte, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %s: %v", ErrReadFail, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
