// Package catalog persists Documents, their version history, link tables,
// ingest jobs/events, rule versions, and the audit log on top of a pgx pool.
package catalog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Category is a slug-unique classification bucket.
type Category struct {
	ID   uuid.UUID
	Slug string
	Name string
}

// Tag is a slug-unique label attachable to many documents.
type Tag struct {
	ID   uuid.UUID
	Slug string
	Name string
}

// File is a content-addressed blob record. StorageBackend is "disk" or
// "object-store"; StorageKey is the bucketized key under that backend.
type File struct {
	ID               uuid.UUID
	ChecksumSHA256   string
	StorageBackend   string
	Bucket           string
	StorageKey       string
	OriginalFilename string
	MimeType         string
	SizeBytes        int64
	Extension        string
	MetadataJSON     json.RawMessage
	Source           string
	SourceRef        string
	CreatedAt        time.Time
}

// ReviewStatus enumerates a Document's review workflow state.
type ReviewStatus string

const (
	ReviewStatusNone         ReviewStatus = "NONE"
	ReviewStatusNeedsReview  ReviewStatus = "NEEDS_REVIEW"
	ReviewStatusResolved     ReviewStatus = "RESOLVED"
)

// Document is the catalog's primary entity.
type Document struct {
	ID               uuid.UUID
	Source           string
	SourceRef        string
	Title            string
	Description      string
	CaptionRaw       string
	Summary          string
	CategoryID       *uuid.UUID
	EventDate        *time.Time
	IngestedAt       time.Time
	ReviewStatus     ReviewStatus
	ReviewReasons    []string
	CurrentVersionNo int
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Populated by read paths that join across link tables; not persisted
	// directly on the documents row.
	Tags     []string
	Files    []DocumentFile
	Category string
}

// DocumentVersion is an immutable snapshot written on every semantic change.
type DocumentVersion struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID
	VersionNo    int
	Title        string
	Description  string
	Summary      string
	CategoryID   *uuid.UUID
	EventDate    *time.Time
	TagsSnapshot []string
	ChangeReason string
	ChangedAt    time.Time
}

// DocumentFile links a Document to one of its Files.
type DocumentFile struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	FileID     uuid.UUID
	IsPrimary  bool
	Filename   string
}

// IngestJobState is one of the ingest state machine's named states.
type IngestJobState string

const (
	StateReceived    IngestJobState = "RECEIVED"
	StateStored      IngestJobState = "STORED"
	StateExtracted   IngestJobState = "EXTRACTED"
	StateClassified  IngestJobState = "CLASSIFIED"
	StateIndexed     IngestJobState = "INDEXED"
	StatePublished   IngestJobState = "PUBLISHED"
	StateNeedsReview IngestJobState = "NEEDS_REVIEW"
	StateFailed      IngestJobState = "FAILED"
)

// TerminalStates are the states from which no further transition occurs.
var TerminalStates = map[IngestJobState]bool{
	StatePublished:   true,
	StateNeedsReview: true,
	StateFailed:      true,
}

// IngestJob tracks one upload's progress through the pipeline.
type IngestJob struct {
	ID            uuid.UUID
	Source        string
	SourceRef     string
	DocumentID    *uuid.UUID
	State         IngestJobState
	FilePathTemp  string
	Caption       string
	PayloadJSON   json.RawMessage
	AttemptCount  int
	MaxAttempts   int
	RetryAfter    *time.Time
	LastErrorCode string
	LastErrorMsg  string
	ReceivedAt    time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
}

// IngestEvent is an append-only audit row for one job transition.
type IngestEvent struct {
	ID           uuid.UUID
	JobID        uuid.UUID
	FromState    string
	ToState      string
	EventType    string
	EventMessage string
	EventPayload json.RawMessage
	OccurredAt   time.Time
}

// RuleVersion is one published (or draft) revision of a ruleset's rules_json.
type RuleVersion struct {
	ID             uuid.UUID
	RulesetID      uuid.UUID
	VersionNo      int
	RulesJSON      json.RawMessage
	ChecksumSHA256 string
	IsActive       bool
	PublishedAt    *time.Time
	CreatedAt      time.Time
}

// AuditLog is a before/after record of a mutating operation.
type AuditLog struct {
	ID         uuid.UUID
	Actor      string
	Action     string
	TargetType string
	TargetID   *uuid.UUID
	BeforeJSON json.RawMessage
	AfterJSON  json.RawMessage
	OccurredAt time.Time
}
