package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"docarchive/internal/observability"
)

// AuditLogRepo persists before/after audit entries for mutating operations
// that do not already get one via a DocumentVersion snapshot (deletions,
// dead-letters, backfill runs, review-queue dismissals).
type AuditLogRepo struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepo(pool *pgxpool.Pool) *AuditLogRepo {
	return &AuditLogRepo{pool: pool}
}

// Record inserts one audit-log row. before/after may be nil.
func (r *AuditLogRepo) Record(ctx context.Context, actor, action, targetType string, targetID *uuid.UUID, before, after any) error {
	beforeJSON, err := marshalOrEmpty(before)
	if err != nil {
		return err
	}
	afterJSON, err := marshalOrEmpty(after)
	if err != nil {
		return err
	}
	if actor == "" {
		actor = "system"
	}
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO audit_log (actor, action, target_type, target_id, before_json, after_json)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		actor, action, targetType, targetID, beforeJSON, afterJSON,
	); err != nil {
		return fmt.Errorf("record audit log: %w", err)
	}
	return nil
}

// marshalOrEmpty serializes v, redacting anything that looks like a secret
// before it lands in the audit_log table - before/after snapshots sometimes
// carry producer-supplied payload fields verbatim.
func marshalOrEmpty(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage(`{}`), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return observability.RedactJSON(b), nil
}
