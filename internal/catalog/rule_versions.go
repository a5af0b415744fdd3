package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RuleVersionRepo persists rulesets and their published/draft RuleVersions.
type RuleVersionRepo struct {
	pool *pgxpool.Pool
}

func NewRuleVersionRepo(pool *pgxpool.Pool) *RuleVersionRepo {
	return &RuleVersionRepo{pool: pool}
}

// EnsureRuleset upserts a ruleset by name, returning its id.
func (r *RuleVersionRepo) EnsureRuleset(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO rulesets (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("ensure ruleset %q: %w", name, err)
	}
	return id, nil
}

// PublishVersion inserts a new RuleVersion and, in the same transaction,
// atomically deactivates whatever version was previously active for that
// ruleset - enforced additionally by the partial unique index on
// (ruleset_id) WHERE is_active.
func (r *RuleVersionRepo) PublishVersion(ctx context.Context, rulesetID uuid.UUID, rulesJSON json.RawMessage, checksum string) (RuleVersion, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return RuleVersion{}, fmt.Errorf("begin publish rule version: %w", err)
	}
	defer tx.Rollback(ctx)

	var nextVersion int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version_no), 0) + 1 FROM rule_versions WHERE ruleset_id = $1`, rulesetID).Scan(&nextVersion); err != nil {
		return RuleVersion{}, fmt.Errorf("compute next version: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE rule_versions SET is_active = false WHERE ruleset_id = $1 AND is_active`, rulesetID); err != nil {
		return RuleVersion{}, fmt.Errorf("deactivate prior rule version: %w", err)
	}

	var rv RuleVersion
	err = tx.QueryRow(ctx,
		`INSERT INTO rule_versions (ruleset_id, version_no, rules_json, checksum_sha256, is_active, published_at)
		 VALUES ($1, $2, $3, $4, true, now())
		 RETURNING id, ruleset_id, version_no, rules_json, checksum_sha256, is_active, published_at, created_at`,
		rulesetID, nextVersion, rulesJSON, checksum,
	).Scan(&rv.ID, &rv.RulesetID, &rv.VersionNo, &rv.RulesJSON, &rv.ChecksumSHA256, &rv.IsActive, &rv.PublishedAt, &rv.CreatedAt)
	if err != nil {
		return RuleVersion{}, fmt.Errorf("insert rule version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return RuleVersion{}, fmt.Errorf("commit publish rule version: %w", err)
	}
	return rv, nil
}

// ActiveVersion returns the currently active RuleVersion for a ruleset.
func (r *RuleVersionRepo) ActiveVersion(ctx context.Context, rulesetID uuid.UUID) (RuleVersion, error) {
	var rv RuleVersion
	err := r.pool.QueryRow(ctx,
		`SELECT id, ruleset_id, version_no, rules_json, checksum_sha256, is_active, published_at, created_at
		 FROM rule_versions WHERE ruleset_id = $1 AND is_active`,
		rulesetID,
	).Scan(&rv.ID, &rv.RulesetID, &rv.VersionNo, &rv.RulesJSON, &rv.ChecksumSHA256, &rv.IsActive, &rv.PublishedAt, &rv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RuleVersion{}, ErrNotFound
	}
	if err != nil {
		return RuleVersion{}, fmt.Errorf("get active rule version: %w", err)
	}
	return rv, nil
}

// GetVersion returns a specific (ruleset, version_no) RuleVersion, used by
// the Backfill Engine to re-classify against an explicitly chosen version.
func (r *RuleVersionRepo) GetVersion(ctx context.Context, rulesetID uuid.UUID, versionNo int) (RuleVersion, error) {
	var rv RuleVersion
	err := r.pool.QueryRow(ctx,
		`SELECT id, ruleset_id, version_no, rules_json, checksum_sha256, is_active, published_at, created_at
		 FROM rule_versions WHERE ruleset_id = $1 AND version_no = $2`,
		rulesetID, versionNo,
	).Scan(&rv.ID, &rv.RulesetID, &rv.VersionNo, &rv.RulesJSON, &rv.ChecksumSHA256, &rv.IsActive, &rv.PublishedAt, &rv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RuleVersion{}, ErrNotFound
	}
	if err != nil {
		return RuleVersion{}, fmt.Errorf("get rule version %s/%d: %w", rulesetID, versionNo, err)
	}
	return rv, nil
}
