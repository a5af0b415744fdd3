// Package searchsync keeps an external search service consistent with the
// catalog on a best-effort, non-blocking basis, falling back to the
// catalog's own tokenized search vector when the external service is
// disabled or unreachable.
package searchsync

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// DocumentView is the denormalized shape handed to an Indexer - everything
// a search result listing needs, without requiring the indexer to know
// about the catalog's schema.
type DocumentView struct {
	ID           uuid.UUID
	Title        string
	Description  string
	Summary      string
	CaptionRaw   string
	Category     string
	Tags         []string
	EventDate    string
	ReviewStatus string
}

// Indexer is the contract an external search backend must satisfy.
// Implementations should be safe to call best-effort: a failure here must
// never fail the catalog operation that triggered it.
type Indexer interface {
	EnsureIndex(ctx context.Context) error
	UpsertMany(ctx context.Context, docs []DocumentView) error
	DeleteOne(ctx context.Context, id uuid.UUID) error
}

// ReadyCache caches the outcome of EnsureIndex per process so repeated
// sync calls don't re-provision index settings on every document.
type ReadyCache struct {
	mu    sync.Mutex
	ready bool
}

// Ensure calls ensureIndex at most once per process lifetime (or again
// after a prior attempt failed).
func (c *ReadyCache) Ensure(ctx context.Context, ensureIndex func(context.Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return nil
	}
	if err := ensureIndex(ctx); err != nil {
		return err
	}
	c.ready = true
	return nil
}
