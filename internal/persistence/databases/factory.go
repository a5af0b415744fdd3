package databases

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema bootstraps the catalog tables on a freshly opened pool. Production
// deployments are expected to manage real migrations externally; this
// CREATE-IF-NOT-EXISTS path only exists to make local development and tests
// self-contained.
const schema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS categories (
	id   UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id   UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rulesets (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rule_versions (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	ruleset_id       UUID NOT NULL REFERENCES rulesets(id),
	version_no       INT NOT NULL,
	rules_json       JSONB NOT NULL,
	checksum_sha256  TEXT NOT NULL,
	is_active        BOOLEAN NOT NULL DEFAULT false,
	published_at     TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (ruleset_id, version_no)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_rule_versions_one_active
	ON rule_versions (ruleset_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS files (
	id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	checksum_sha256   TEXT NOT NULL UNIQUE,
	storage_backend   TEXT NOT NULL,
	bucket            TEXT NOT NULL DEFAULT '',
	storage_key       TEXT NOT NULL,
	original_filename TEXT NOT NULL DEFAULT '',
	mime_type         TEXT,
	size_bytes        BIGINT NOT NULL CHECK (size_bytes >= 0),
	extension         TEXT,
	metadata_json     JSONB NOT NULL DEFAULT '{}',
	source            TEXT NOT NULL DEFAULT '',
	source_ref        TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	source             TEXT NOT NULL,
	source_ref         TEXT,
	title              TEXT,
	description        TEXT,
	caption_raw        TEXT,
	summary            TEXT,
	category_id        UUID REFERENCES categories(id),
	event_date         DATE,
	ingested_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	review_status      TEXT NOT NULL DEFAULT 'NONE',
	review_reasons     TEXT[] NOT NULL DEFAULT '{}',
	current_version_no INT NOT NULL DEFAULT 0,
	search_vector      TSVECTOR,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_documents_source_ref_chat_bot
	ON documents (source_ref) WHERE source = 'chat-bot';

CREATE INDEX IF NOT EXISTS idx_documents_search_vector_gin ON documents USING GIN (search_vector);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at);

CREATE TABLE IF NOT EXISTS document_versions (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	document_id   UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	version_no    INT NOT NULL,
	title         TEXT,
	description   TEXT,
	summary       TEXT,
	category_id   UUID REFERENCES categories(id),
	event_date    DATE,
	tags_snapshot TEXT[] NOT NULL DEFAULT '{}',
	change_reason TEXT NOT NULL,
	changed_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (document_id, version_no)
);

CREATE TABLE IF NOT EXISTS document_files (
	id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	file_id     UUID NOT NULL REFERENCES files(id),
	is_primary  BOOLEAN NOT NULL DEFAULT false,
	filename    TEXT NOT NULL,
	UNIQUE (document_id, file_id)
);

CREATE TABLE IF NOT EXISTS document_tags (
	document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	tag_id      UUID NOT NULL REFERENCES tags(id),
	PRIMARY KEY (document_id, tag_id)
);

CREATE TABLE IF NOT EXISTS ingest_jobs (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	source           TEXT NOT NULL,
	source_ref       TEXT,
	document_id      UUID REFERENCES documents(id) ON DELETE SET NULL,
	state            TEXT NOT NULL DEFAULT 'RECEIVED',
	file_path_temp   TEXT,
	caption          TEXT,
	payload_json     JSONB NOT NULL DEFAULT '{}',
	attempt_count    INT NOT NULL DEFAULT 0,
	max_attempts     INT NOT NULL DEFAULT 5,
	retry_after      TIMESTAMPTZ,
	last_error_code  TEXT,
	last_error_msg   TEXT,
	received_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at       TIMESTAMPTZ,
	finished_at      TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_ingest_jobs_source_ref_chat_bot
	ON ingest_jobs (source_ref) WHERE source = 'chat-bot';

CREATE INDEX IF NOT EXISTS idx_ingest_jobs_state_retry_after
	ON ingest_jobs (state, retry_after);

CREATE TABLE IF NOT EXISTS ingest_events (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	job_id       UUID NOT NULL REFERENCES ingest_jobs(id) ON DELETE CASCADE,
	from_state   TEXT,
	to_state     TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	event_message TEXT,
	event_payload JSONB NOT NULL DEFAULT '{}',
	occurred_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ingest_events_job_occurred
	ON ingest_events (job_id, occurred_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	actor       TEXT NOT NULL DEFAULT 'system',
	action      TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id   UUID,
	before_json JSONB NOT NULL DEFAULT '{}',
	after_json  JSONB NOT NULL DEFAULT '{}',
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// NewCatalogPool opens a pool against dsn and applies the catalog schema.
// Schema application is best-effort idempotent DDL; it is safe to call on
// every process start. Real migrations are an external collaborator.
func NewCatalogPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := newPgPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := pool.Exec(cctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply catalog schema: %w", err)
	}
	return pool, nil
}
