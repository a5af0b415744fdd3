package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CategoryRepo persists categories, upserting by slug so concurrent writers
// racing on a brand-new category name both end up pointing at one row.
type CategoryRepo struct {
	pool *pgxpool.Pool
}

func NewCategoryRepo(pool *pgxpool.Pool) *CategoryRepo {
	return &CategoryRepo{pool: pool}
}

// UpsertBySlug inserts a category if its slug is new, or returns the
// existing row. Concurrent inserts racing on the same slug are resolved by
// catching the unique-violation and re-selecting.
func (r *CategoryRepo) UpsertBySlug(ctx context.Context, slug, name string) (Category, error) {
	var cat Category
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (slug, name) VALUES ($1, $2)
		 ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		 RETURNING id, slug, name`,
		slug, name,
	).Scan(&cat.ID, &cat.Slug, &cat.Name)
	if err == nil {
		return cat, nil
	}
	if isUniqueViolation(err) {
		return r.GetBySlug(ctx, slug)
	}
	return Category{}, fmt.Errorf("upsert category %q: %w", slug, err)
}

func (r *CategoryRepo) GetBySlug(ctx context.Context, slug string) (Category, error) {
	var cat Category
	err := r.pool.QueryRow(ctx, `SELECT id, slug, name FROM categories WHERE slug = $1`, slug).
		Scan(&cat.ID, &cat.Slug, &cat.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, fmt.Errorf("category %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return Category{}, fmt.Errorf("get category %q: %w", slug, err)
	}
	return cat, nil
}

func (r *CategoryRepo) GetByID(ctx context.Context, id uuid.UUID) (Category, error) {
	var cat Category
	err := r.pool.QueryRow(ctx, `SELECT id, slug, name FROM categories WHERE id = $1`, id).
		Scan(&cat.ID, &cat.Slug, &cat.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	if err != nil {
		return Category{}, fmt.Errorf("get category %s: %w", id, err)
	}
	return cat, nil
}

// ListAll returns every category ordered by name, for populating the
// operator-facing category picker in the review queue.
func (r *CategoryRepo) ListAll(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, slug, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var cat Category
		if err := rows.Scan(&cat.ID, &cat.Slug, &cat.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, cat)
	}
	return cats, rows.Err()
}

// TagRepo persists tags with the same upsert-by-slug pattern as CategoryRepo.
type TagRepo struct {
	pool *pgxpool.Pool
}

func NewTagRepo(pool *pgxpool.Pool) *TagRepo {
	return &TagRepo{pool: pool}
}

func (r *TagRepo) UpsertBySlug(ctx context.Context, slug, name string) (Tag, error) {
	var tag Tag
	err := r.pool.QueryRow(ctx,
		`INSERT INTO tags (slug, name) VALUES ($1, $2)
		 ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		 RETURNING id, slug, name`,
		slug, name,
	).Scan(&tag.ID, &tag.Slug, &tag.Name)
	if err == nil {
		return tag, nil
	}
	if isUniqueViolation(err) {
		return r.GetBySlug(ctx, slug)
	}
	return Tag{}, fmt.Errorf("upsert tag %q: %w", slug, err)
}

func (r *TagRepo) GetBySlug(ctx context.Context, slug string) (Tag, error) {
	var tag Tag
	err := r.pool.QueryRow(ctx, `SELECT id, slug, name FROM tags WHERE slug = $1`, slug).
		Scan(&tag.ID, &tag.Slug, &tag.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tag{}, fmt.Errorf("tag %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return Tag{}, fmt.Errorf("get tag %q: %w", slug, err)
	}
	return tag, nil
}

// UpsertMany upserts a batch of tags by slug, in a single round trip per tag
// (the individual row count here is always small - an ingest job's tag
// list, never more than a handful of names).
func (r *TagRepo) UpsertMany(ctx context.Context, names []string) ([]Tag, error) {
	tags := make([]Tag, 0, len(names))
	for _, name := range names {
		slug := Slugify(name)
		if slug == "" {
			continue
		}
		tag, err := r.UpsertBySlug(ctx, slug, name)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// ListAll returns every tag ordered by name, for populating the
// operator-facing tag picker in the review queue.
func (r *TagRepo) ListAll(ctx context.Context) ([]Tag, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, slug, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Slug, &tag.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
