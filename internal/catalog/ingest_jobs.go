package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docarchive/internal/observability"
)

// IngestJobRepo persists IngestJob rows and their append-only IngestEvent
// trail.
type IngestJobRepo struct {
	pool *pgxpool.Pool
}

func NewIngestJobRepo(pool *pgxpool.Pool) *IngestJobRepo {
	return &IngestJobRepo{pool: pool}
}

// NewJobInput is the shape accepted at API-layer enqueue time.
type NewJobInput struct {
	Source       string
	SourceRef    string
	FilePathTemp string
	Caption      string
	PayloadJSON  json.RawMessage
	MaxAttempts  int
}

// Create inserts a RECEIVED job. A caller on the chat-bot source that races
// on (source, source_ref) gets ErrDuplicate back; per spec.md §4.4 the
// caller is responsible for cleaning up the already-written temp file.
func (r *IngestJobRepo) Create(ctx context.Context, in NewJobInput) (IngestJob, error) {
	var job IngestJob
	payload := in.PayloadJSON
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO ingest_jobs (source, source_ref, state, file_path_temp, caption, payload_json, max_attempts)
		 VALUES ($1, $2, 'RECEIVED', $3, $4, $5, $6)
		 RETURNING id, source, source_ref, state, file_path_temp, caption, payload_json,
		           attempt_count, max_attempts, received_at`,
		in.Source, in.SourceRef, in.FilePathTemp, in.Caption, payload, in.MaxAttempts,
	).Scan(&job.ID, &job.Source, &job.SourceRef, &job.State, &job.FilePathTemp, &job.Caption,
		&job.PayloadJSON, &job.AttemptCount, &job.MaxAttempts, &job.ReceivedAt)
	if isUniqueViolation(err) {
		return IngestJob{}, ErrDuplicate
	}
	if err != nil {
		return IngestJob{}, fmt.Errorf("insert ingest job: %w", err)
	}
	if err := r.recordEvent(ctx, r.pool, job.ID, "", string(StateReceived), "RECEIVED", "job enqueued", nil); err != nil {
		return IngestJob{}, err
	}
	return job, nil
}

func (r *IngestJobRepo) GetByID(ctx context.Context, id uuid.UUID) (IngestJob, error) {
	var job IngestJob
	err := r.pool.QueryRow(ctx,
		`SELECT id, source, source_ref, document_id, state, file_path_temp, caption, payload_json,
		        attempt_count, max_attempts, retry_after, last_error_code, last_error_msg,
		        received_at, started_at, finished_at
		 FROM ingest_jobs WHERE id = $1`,
		id,
	).Scan(&job.ID, &job.Source, &job.SourceRef, &job.DocumentID, &job.State, &job.FilePathTemp,
		&job.Caption, &job.PayloadJSON, &job.AttemptCount, &job.MaxAttempts, &job.RetryAfter,
		&job.LastErrorCode, &job.LastErrorMsg, &job.ReceivedAt, &job.StartedAt, &job.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return IngestJob{}, ErrNotFound
	}
	if err != nil {
		return IngestJob{}, fmt.Errorf("get ingest job %s: %w", id, err)
	}
	return job, nil
}

// Transition moves a job to toState, recording the IngestEvent and
// optionally attaching documentID once it exists (the pipeline passes it at
// INDEXED and again at the terminal PUBLISHED/NEEDS_REVIEW transition).
func (r *IngestJobRepo) Transition(ctx context.Context, id uuid.UUID, fromState, toState IngestJobState, eventType, message string, payload json.RawMessage, documentID *uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	if documentID != nil {
		if _, err := tx.Exec(ctx, `UPDATE ingest_jobs SET state = $1, document_id = $2 WHERE id = $3`, string(toState), *documentID, id); err != nil {
			return fmt.Errorf("transition job %s: %w", id, err)
		}
	} else {
		if _, err := tx.Exec(ctx, `UPDATE ingest_jobs SET state = $1 WHERE id = $2`, string(toState), id); err != nil {
			return fmt.Errorf("transition job %s: %w", id, err)
		}
	}

	if TerminalStates[toState] {
		if _, err := tx.Exec(ctx, `UPDATE ingest_jobs SET finished_at = now() WHERE id = $1`, id); err != nil {
			return fmt.Errorf("mark job finished: %w", err)
		}
	}
	if toState == StateStored {
		if _, err := tx.Exec(ctx, `UPDATE ingest_jobs SET started_at = COALESCE(started_at, now()) WHERE id = $1`, id); err != nil {
			return fmt.Errorf("mark job started: %w", err)
		}
	}

	if err := r.recordEvent(ctx, tx, id, string(fromState), string(toState), eventType, message, payload); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RecordAttemptFailure increments attempt_count, stores the error, and
// either dead-letters the job to FAILED (deadLetter true; the caller
// decides this from the attempt budget and passes DLQ_MAX_ATTEMPTS as
// errorCode) or schedules a retry retryAfterSeconds from now. Returns the
// updated job, whose State is RECEIVED when a retry was scheduled and
// FAILED when it was dead-lettered.
func (r *IngestJobRepo) RecordAttemptFailure(ctx context.Context, id uuid.UUID, fromState IngestJobState, errorCode, errorMsg string, retryAfterSeconds int, deadLetter bool) (IngestJob, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return IngestJob{}, fmt.Errorf("begin record failure: %w", err)
	}
	defer tx.Rollback(ctx)

	var job IngestJob
	err = tx.QueryRow(ctx,
		`UPDATE ingest_jobs
		 SET attempt_count = attempt_count + 1, last_error_code = $1, last_error_msg = $2
		 WHERE id = $3
		 RETURNING id, source, source_ref, document_id, state, file_path_temp, caption, payload_json,
		           attempt_count, max_attempts, retry_after, last_error_code, last_error_msg,
		           received_at, started_at, finished_at`,
		errorCode, errorMsg, id,
	).Scan(&job.ID, &job.Source, &job.SourceRef, &job.DocumentID, &job.State, &job.FilePathTemp,
		&job.Caption, &job.PayloadJSON, &job.AttemptCount, &job.MaxAttempts, &job.RetryAfter,
		&job.LastErrorCode, &job.LastErrorMsg, &job.ReceivedAt, &job.StartedAt, &job.FinishedAt)
	if err != nil {
		return IngestJob{}, fmt.Errorf("record attempt failure: %w", err)
	}

	errorPayload, _ := json.Marshal(map[string]string{"error_code": errorCode})
	if err := r.recordEvent(ctx, tx, id, string(fromState), string(StateFailed), "ERROR", errorMsg, errorPayload); err != nil {
		return IngestJob{}, err
	}

	if deadLetter {
		if _, err := tx.Exec(ctx, `UPDATE ingest_jobs SET state = 'FAILED', finished_at = now() WHERE id = $1`, id); err != nil {
			return IngestJob{}, fmt.Errorf("dead-letter job %s: %w", id, err)
		}
		job.State = StateFailed
		if err := r.recordEvent(ctx, tx, id, string(fromState), string(StateFailed), "DEAD_LETTER", errorMsg, nil); err != nil {
			return IngestJob{}, err
		}
	} else {
		if _, err := tx.Exec(ctx,
			`UPDATE ingest_jobs
			 SET state = 'RECEIVED', retry_after = now() + ($1 * interval '1 second'),
			     started_at = NULL, finished_at = NULL
			 WHERE id = $2`,
			retryAfterSeconds, id,
		); err != nil {
			return IngestJob{}, fmt.Errorf("schedule retry for job %s: %w", id, err)
		}
		job.State = StateReceived
		if err := r.recordEvent(ctx, tx, id, string(fromState), string(StateReceived), "RETRY_SCHEDULED", errorMsg, nil); err != nil {
			return IngestJob{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return IngestJob{}, fmt.Errorf("commit record failure: %w", err)
	}
	return job, nil
}

// Requeue restores a job to RECEIVED, optionally zeroing attempt_count and
// clearing last_error_*, for operator-driven recovery.
func (r *IngestJobRepo) Requeue(ctx context.Context, id uuid.UUID, resetAttempts bool) error {
	query := `UPDATE ingest_jobs SET state = 'RECEIVED', retry_after = NULL, finished_at = NULL`
	if resetAttempts {
		query += `, attempt_count = 0, last_error_code = NULL, last_error_msg = NULL`
	}
	query += ` WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("requeue job %s: %w", id, err)
	}
	return r.recordEvent(ctx, r.pool, id, "", string(StateReceived), "REQUEUED", "operator requeue", nil)
}

// Recover replaces a job's temp file path and requeues it.
func (r *IngestJobRepo) Recover(ctx context.Context, id uuid.UUID, newFilePathTemp string) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE ingest_jobs SET state = 'RECEIVED', file_path_temp = $1, retry_after = NULL, finished_at = NULL WHERE id = $2`,
		newFilePathTemp, id,
	); err != nil {
		return fmt.Errorf("recover job %s: %w", id, err)
	}
	return r.recordEvent(ctx, r.pool, id, "", string(StateReceived), "RECOVERED", "operator recovery upload", nil)
}

// DueForRetry lists jobs in RECEIVED whose retry_after has elapsed.
func (r *IngestJobRepo) DueForRetry(ctx context.Context, limit int) ([]IngestJob, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, source, source_ref, document_id, state, file_path_temp, caption, payload_json,
		        attempt_count, max_attempts, retry_after, last_error_code, last_error_msg,
		        received_at, started_at, finished_at
		 FROM ingest_jobs
		 WHERE state = 'RECEIVED' AND (retry_after IS NULL OR retry_after <= now())
		 ORDER BY received_at LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	defer rows.Close()
	var jobs []IngestJob
	for rows.Next() {
		var job IngestJob
		if err := rows.Scan(&job.ID, &job.Source, &job.SourceRef, &job.DocumentID, &job.State,
			&job.FilePathTemp, &job.Caption, &job.PayloadJSON, &job.AttemptCount, &job.MaxAttempts,
			&job.RetryAfter, &job.LastErrorCode, &job.LastErrorMsg, &job.ReceivedAt, &job.StartedAt,
			&job.FinishedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Backlog summarizes the non-terminal job queue for the §6 gauges: counts
// by state, the age in seconds of the oldest non-terminal job, and the
// rolling success ratio (PUBLISHED vs PUBLISHED+FAILED) over the last hour.
type Backlog struct {
	CountsByState  map[IngestJobState]int
	OldestPendingS float64
	SuccessRatio   float64
}

func (r *IngestJobRepo) Backlog(ctx context.Context) (Backlog, error) {
	backlog := Backlog{CountsByState: map[IngestJobState]int{}}

	rows, err := r.pool.Query(ctx,
		`SELECT state, count(*) FROM ingest_jobs
		 WHERE state NOT IN ('PUBLISHED', 'NEEDS_REVIEW', 'FAILED')
		 GROUP BY state`)
	if err != nil {
		return Backlog{}, fmt.Errorf("backlog counts: %w", err)
	}
	for rows.Next() {
		var state IngestJobState
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			rows.Close()
			return Backlog{}, err
		}
		backlog.CountsByState[state] = count
	}
	if err := rows.Err(); err != nil {
		return Backlog{}, err
	}
	rows.Close()

	var oldestSeconds *float64
	if err := r.pool.QueryRow(ctx,
		`SELECT extract(epoch FROM now() - min(received_at))
		 FROM ingest_jobs
		 WHERE state NOT IN ('PUBLISHED', 'NEEDS_REVIEW', 'FAILED')`,
	).Scan(&oldestSeconds); err != nil {
		return Backlog{}, fmt.Errorf("backlog oldest pending: %w", err)
	}
	if oldestSeconds != nil {
		backlog.OldestPendingS = *oldestSeconds
	}

	var published, failed int
	if err := r.pool.QueryRow(ctx,
		`SELECT
		   count(*) FILTER (WHERE state = 'PUBLISHED'),
		   count(*) FILTER (WHERE state = 'FAILED')
		 FROM ingest_jobs
		 WHERE finished_at >= now() - interval '1 hour'`,
	).Scan(&published, &failed); err != nil {
		return Backlog{}, fmt.Errorf("backlog success ratio: %w", err)
	}
	if total := published + failed; total > 0 {
		backlog.SuccessRatio = float64(published) / float64(total)
	} else {
		backlog.SuccessRatio = 1
	}

	return backlog, nil
}

func (r *IngestJobRepo) recordEvent(ctx context.Context, q queryer, jobID uuid.UUID, fromState, toState, eventType, message string, payload json.RawMessage) error {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	} else {
		payload = observability.RedactJSON(payload)
	}
	_, err := q.Exec(ctx,
		`INSERT INTO ingest_events (job_id, from_state, to_state, event_type, event_message, event_payload)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)`,
		jobID, fromState, toState, eventType, message, payload,
	)
	if err != nil {
		return fmt.Errorf("record ingest event: %w", err)
	}
	return nil
}

// Events returns a job's full IngestEvent trail in occurrence order.
func (r *IngestJobRepo) Events(ctx context.Context, jobID uuid.UUID) ([]IngestEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, job_id, COALESCE(from_state,''), to_state, event_type, COALESCE(event_message,''),
		        event_payload, occurred_at
		 FROM ingest_events WHERE job_id = $1 ORDER BY occurred_at`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ingest events: %w", err)
	}
	defer rows.Close()
	var events []IngestEvent
	for rows.Next() {
		var ev IngestEvent
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.FromState, &ev.ToState, &ev.EventType,
			&ev.EventMessage, &ev.EventPayload, &ev.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
