package objectstore

import (
	"context"
	"fmt"

	"docarchive/internal/config"
)

// Build constructs the configured ObjectStore backend along with the bucket
// identifier and backend tag persisted on each catalog.File row. Both
// cmd/ingestd and cmd/archived need the same backend to resolve and clean up
// blobs, so this lives in one place rather than being duplicated per binary.
func Build(ctx context.Context, cfg config.StorageConfig) (store ObjectStore, bucket, backendTag string, err error) {
	switch cfg.Backend {
	case "s3":
		s3Store, err := NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, "", "", fmt.Errorf("init s3 store: %w", err)
		}
		return s3Store, cfg.S3.Bucket, "object-store", nil
	case "disk", "":
		diskStore, err := NewDiskStore(cfg.Disk.Root)
		if err != nil {
			return nil, "", "", fmt.Errorf("init disk store: %w", err)
		}
		return diskStore, cfg.Disk.Root, "disk", nil
	default:
		return nil, "", "", fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
