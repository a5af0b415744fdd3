package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	// Use Overload so .env values override existing OS environment variables,
	// so local development can deterministically pin settings.
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.DB.DSN = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.Storage.Backend = firstNonEmpty(strings.TrimSpace(os.Getenv("STORAGE_BACKEND")), "disk")
	cfg.Storage.Disk.Root = firstNonEmpty(strings.TrimSpace(os.Getenv("STORAGE_DISK_ROOT")), "./data/objects")
	cfg.Storage.S3.Bucket = strings.TrimSpace(os.Getenv("S3_BUCKET"))
	cfg.Storage.S3.Region = strings.TrimSpace(os.Getenv("S3_REGION"))
	cfg.Storage.S3.Endpoint = strings.TrimSpace(os.Getenv("S3_ENDPOINT"))
	cfg.Storage.S3.AccessKey = strings.TrimSpace(os.Getenv("S3_ACCESS_KEY"))
	cfg.Storage.S3.SecretKey = strings.TrimSpace(os.Getenv("S3_SECRET_KEY"))
	cfg.Storage.S3.Prefix = strings.TrimSpace(os.Getenv("S3_PREFIX"))
	cfg.Storage.S3.UsePathStyle = parseBool(os.Getenv("S3_USE_PATH_STYLE"), false)
	cfg.Storage.S3.TLSInsecureSkipVerify = parseBool(os.Getenv("S3_TLS_INSECURE_SKIP_VERIFY"), false)
	cfg.Storage.S3.SSE.Mode = strings.TrimSpace(os.Getenv("S3_SSE_MODE"))
	cfg.Storage.S3.SSE.KMSKeyID = strings.TrimSpace(os.Getenv("S3_SSE_KMS_KEY_ID"))

	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.Kafka.Brokers = splitCSV(v)
	}
	cfg.Kafka.GroupID = firstNonEmpty(strings.TrimSpace(os.Getenv("KAFKA_GROUP_ID")), "docarchive-ingest")
	cfg.Kafka.CommandsTopic = firstNonEmpty(strings.TrimSpace(os.Getenv("KAFKA_INGEST_TOPIC")), "ingest.jobs")
	cfg.Kafka.ResponsesTopic = firstNonEmpty(strings.TrimSpace(os.Getenv("KAFKA_INGEST_RESPONSES_TOPIC")), "ingest.jobs.responses")
	cfg.Kafka.WorkerCount = 4
	if v := strings.TrimSpace(os.Getenv("KAFKA_WORKER_COUNT")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Kafka.WorkerCount = n
		}
	}
	cfg.Kafka.DedupeTTL = 24 * time.Hour
	if v := strings.TrimSpace(os.Getenv("KAFKA_DEDUPE_TTL_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Kafka.DedupeTTL = time.Duration(n) * time.Second
		}
	}
	cfg.Kafka.WorkflowTimeout = 2 * time.Minute
	if v := strings.TrimSpace(os.Getenv("INGEST_JOB_TIMEOUT_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Kafka.WorkflowTimeout = time.Duration(n) * time.Second
		}
	}

	cfg.Redis.Addr = firstNonEmpty(strings.TrimSpace(os.Getenv("REDIS_ADDR")), "localhost:6379")
	cfg.Redis.Password = strings.TrimSpace(os.Getenv("REDIS_PASSWORD"))
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Redis.DB = n
		}
	}

	cfg.Obs.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))
	cfg.Obs.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info")
	cfg.Obs.OTLP = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	cfg.Obs.ServiceName = firstNonEmpty(strings.TrimSpace(os.Getenv("SERVICE_NAME")), "docarchive-worker")
	cfg.Obs.ServiceVersion = firstNonEmpty(strings.TrimSpace(os.Getenv("SERVICE_VERSION")), "dev")
	cfg.Obs.Environment = firstNonEmpty(strings.TrimSpace(os.Getenv("ENVIRONMENT")), "development")

	cfg.ActionToken.Secret = strings.TrimSpace(os.Getenv("ACTION_TOKEN_SECRET"))
	cfg.ActionToken.TTLSeconds = 86400
	if v := strings.TrimSpace(os.Getenv("ACTION_TOKEN_TTL_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.ActionToken.TTLSeconds = int64(n)
		}
	}
	cfg.ActionToken.BaseURL = strings.TrimSpace(os.Getenv("ACTION_TOKEN_BASE_URL"))

	cfg.Retry.MaxAttempts = 5
	if v := strings.TrimSpace(os.Getenv("INGEST_MAX_ATTEMPTS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Retry.MaxAttempts = n
		}
	}
	cfg.Retry.BaseBackoffSeconds = 30
	if v := strings.TrimSpace(os.Getenv("INGEST_RETRY_BASE_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Retry.BaseBackoffSeconds = int64(n)
		}
	}
	cfg.Retry.MaxBackoffSeconds = 1800
	if v := strings.TrimSpace(os.Getenv("INGEST_RETRY_MAX_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Retry.MaxBackoffSeconds = int64(n)
		}
	}

	cfg.SearchSync.Backend = firstNonEmpty(strings.TrimSpace(os.Getenv("SEARCH_BACKEND")), "db")
	cfg.SearchSync.AutoSync = parseBool(os.Getenv("SEARCH_AUTO_SYNC"), false)
	cfg.SearchSync.External.URL = strings.TrimSpace(os.Getenv("SEARCH_EXTERNAL_URL"))
	cfg.SearchSync.External.APIKey = strings.TrimSpace(os.Getenv("SEARCH_EXTERNAL_API_KEY"))
	cfg.SearchSync.External.IndexName = firstNonEmpty(strings.TrimSpace(os.Getenv("SEARCH_EXTERNAL_INDEX_NAME")), "documents")
	cfg.SearchSync.External.TimeoutSeconds = 3
	if v := strings.TrimSpace(os.Getenv("SEARCH_EXTERNAL_TIMEOUT_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.SearchSync.External.TimeoutSeconds = n
		}
	}

	cfg.Notifier.CallbackURL = strings.TrimSpace(os.Getenv("NOTIFY_CALLBACK_URL"))
	cfg.Notifier.Enabled = parseBool(os.Getenv("NOTIFY_ENABLED"), cfg.Notifier.CallbackURL != "")
	cfg.Notifier.TimeoutSeconds = 10
	if v := strings.TrimSpace(os.Getenv("NOTIFY_TIMEOUT_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Notifier.TimeoutSeconds = n
		}
	}
	cfg.Notifier.DashboardURL = strings.TrimSpace(os.Getenv("DASHBOARD_URL"))

	cfg.RuleEngine.RulesetName = firstNonEmpty(strings.TrimSpace(os.Getenv("RULE_ENGINE_RULESET_NAME")), "default")

	cfg.Runtime.ReadOnlyMode = parseBool(os.Getenv("READ_ONLY_MODE"), false)
	cfg.Runtime.SessionMaxAgeSeconds = 86400
	if v := strings.TrimSpace(os.Getenv("SESSION_MAX_AGE_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Runtime.SessionMaxAgeSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGINS")); v != "" {
		cfg.Runtime.CORSAllowOrigins = splitCSV(v)
	}

	cfg.BackfillBatchSize = 500
	if v := strings.TrimSpace(os.Getenv("BACKFILL_BATCH_SIZE")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.BackfillBatchSize = n
		}
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func parseBool(s string, def bool) bool {
	v := strings.TrimSpace(s)
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
