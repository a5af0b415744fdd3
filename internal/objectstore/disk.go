package objectstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiskStore implements ObjectStore on the local filesystem, writing each
// object to a temp file in the same directory and renaming it into place so
// a crash mid-write never leaves a partial object visible at its final key.
type DiskStore struct {
	root string
}

// NewDiskStore creates a DiskStore rooted at root, creating the directory if
// it does not already exist.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create disk store root %s: %w", root, err)
	}
	return &DiskStore{root: root}, nil
}

func (d *DiskStore) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	return filepath.Join(d.root, filepath.FromSlash(key)), nil
}

func (d *DiskStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectAttrs, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, ObjectAttrs{}, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ObjectAttrs{}, ErrNotFound
	}
	if err != nil {
		return nil, ObjectAttrs{}, fmt.Errorf("open %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectAttrs{}, fmt.Errorf("stat %s: %w", key, err)
	}
	return f, attrsFromInfo(key, info), nil
}

// Put streams r into a temp file beside the final path, then renames it
// into place. Large objects are written in bounded chunks rather than
// buffered entirely in memory.
func (d *DiskStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (string, error) {
	p, err := d.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create parent dir for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file for %s: %w", key, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hash := md5.New()
	buf := make([]byte, 1<<20)
	if _, err := io.CopyBuffer(io.MultiWriter(tmp, hash), r, buf); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file for %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return "", fmt.Errorf("rename into place %s: %w", key, err)
	}

	return `"` + hex.EncodeToString(hash.Sum(nil)) + `"`, nil
}

// Delete is idempotent: a missing key is not an error.
func (d *DiskStore) Delete(ctx context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (d *DiskStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	prefixPath, err := d.path(opts.Prefix)
	if err != nil && opts.Prefix != "" {
		return ListResult{}, err
	}
	if opts.Prefix == "" {
		prefixPath = d.root
	}

	var objects []ObjectAttrs
	walkRoot := prefixPath
	if info, err := os.Stat(prefixPath); err != nil || !info.IsDir() {
		walkRoot = filepath.Dir(prefixPath)
	}

	err = filepath.Walk(walkRoot, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, os.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, opts.Prefix) {
			return nil
		}
		objects = append(objects, attrsFromInfo(key, info))
		return nil
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("list %s: %w", opts.Prefix, err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	if opts.MaxKeys > 0 && len(objects) > opts.MaxKeys {
		objects = objects[:opts.MaxKeys]
	}
	return ListResult{Objects: objects}, nil
}

func (d *DiskStore) Head(ctx context.Context, key string) (ObjectAttrs, error) {
	p, err := d.path(key)
	if err != nil {
		return ObjectAttrs{}, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return ObjectAttrs{}, ErrNotFound
	}
	if err != nil {
		return ObjectAttrs{}, fmt.Errorf("stat %s: %w", key, err)
	}
	return attrsFromInfo(key, info), nil
}

func (d *DiskStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	r, _, err := d.Get(ctx, srcKey)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = d.Put(ctx, dstKey, r, PutOptions{})
	return err
}

func (d *DiskStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := d.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

func attrsFromInfo(key string, info os.FileInfo) ObjectAttrs {
	return ObjectAttrs{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime().UTC(),
	}
}
