// Package config loads runtime configuration for the document archive
// service from the environment. There is no YAML config file; every
// setting is an env var with a sane default, following the 12-factor
// style the rest of this codebase uses.
package config

import "time"

// DBConfig holds the Postgres catalog connection.
type DBConfig struct {
	DSN string
}

// S3SSEConfig controls server-side encryption for the S3-compatible backend.
type S3SSEConfig struct {
	// Mode is "", "sse-s3" or "sse-kms".
	Mode     string
	KMSKeyID string
}

// S3Config configures the S3-compatible object store backend.
type S3Config struct {
	Bucket                string
	Region                string
	Endpoint              string
	AccessKey             string
	SecretKey             string
	UsePathStyle          bool
	Prefix                string
	TLSInsecureSkipVerify bool
	SSE                   S3SSEConfig
}

// DiskConfig configures the local-disk object store backend.
type DiskConfig struct {
	Root string
}

// StorageConfig selects and configures the active object store backend.
type StorageConfig struct {
	// Backend is "disk" or "s3".
	Backend string
	Disk    DiskConfig
	S3      S3Config
}

// KafkaConfig configures the ingest task queue transport.
type KafkaConfig struct {
	Brokers         []string
	GroupID         string
	CommandsTopic   string
	ResponsesTopic  string
	WorkerCount     int
	DedupeTTL       time.Duration
	WorkflowTimeout time.Duration
}

// RedisConfig configures the correlation-id dedupe store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ObsConfig configures logging and OpenTelemetry export. Its shape is
// consumed as-is by internal/observability.
type ObsConfig struct {
	LogPath     string
	LogLevel    string
	OTLP        string
	ServiceName string
	ServiceVersion string
	Environment string
}

// ActionTokenConfig configures HMAC-signed out-of-band retry/reprocess tokens.
type ActionTokenConfig struct {
	Secret     string
	TTLSeconds int64
	// BaseURL is prefixed onto action endpoint paths in notifier payloads,
	// e.g. "https://archive.example.com".
	BaseURL string
}

// RetryConfig governs the ingest job state machine's retry/backoff policy.
type RetryConfig struct {
	MaxAttempts        int
	BaseBackoffSeconds int64
	MaxBackoffSeconds  int64
}

// SearchExternalConfig configures the external HTTP search service used
// when SearchSyncConfig.Backend is "external".
type SearchExternalConfig struct {
	URL            string
	APIKey         string
	IndexName      string
	TimeoutSeconds int
}

// SearchSyncConfig gates best-effort search index sync enqueueing.
type SearchSyncConfig struct {
	// Backend is "db" or "external".
	Backend  string
	AutoSync bool
	External SearchExternalConfig
}

// NotifierConfig configures the producer result callback.
type NotifierConfig struct {
	CallbackURL     string
	Enabled         bool
	TimeoutSeconds  int
	DashboardURL    string
}

// RuleEngineConfig names the active ruleset the pipeline classifies against.
type RuleEngineConfig struct {
	RulesetName string
}

// RuntimeConfig covers process-wide toggles outside the ingest hot path.
type RuntimeConfig struct {
	ReadOnlyMode         bool
	SessionMaxAgeSeconds int
	CORSAllowOrigins     []string
}

// Config is the fully resolved process configuration.
type Config struct {
	DB          DBConfig
	Storage     StorageConfig
	Kafka       KafkaConfig
	Redis       RedisConfig
	Obs         ObsConfig
	ActionToken ActionTokenConfig
	Retry       RetryConfig
	SearchSync  SearchSyncConfig
	Notifier    NotifierConfig
	RuleEngine  RuleEngineConfig
	Runtime     RuntimeConfig

	BackfillBatchSize int
}
