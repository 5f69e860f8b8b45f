package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string `env:"APP_NAME" env-default:"ledgerlink" validate:"required"`
	Port                          int    `env:"PORT" env-default:"3004" validate:"min=1,max=65535"`
	LogLevel                      string `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"60"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int    `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ShutdownTimeoutSeconds        int    `env:"HTTP_SERVER_SHUTDOWN_TIMEOUT_SECONDS" env-default:"15"`
	StartupMaxAttempts            int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"min=1"`

	// Store catalog; empty uses the built-in ledgers
	CatalogPath string `env:"CATALOG_PATH" env-default:""`

	// Record store
	RecordStoreBaseURL           string        `env:"RECORD_STORE_BASE_URL" env-default:"" validate:"omitempty,url"`
	RecordStoreEndpoint          string        `env:"RECORD_STORE_ENDPOINT" env-default:"/k/v1/records.json"`
	RecordStoreTimeout           time.Duration `env:"RECORD_STORE_TIMEOUT" env-default:"30s"`
	RecordStoreRequestsPerSecond float64       `env:"RECORD_STORE_RPS" env-default:"10" validate:"gte=0"`
	RecordStoreBurst             int           `env:"RECORD_STORE_BURST" env-default:"5" validate:"gte=0"`
	RecordStoreTokenHeader       string        `env:"RECORD_STORE_TOKEN_HEADER" env-default:"X-Cybozu-API-Token"`

	// Fetching
	FetchPageSize        int           `env:"FETCH_PAGE_SIZE" env-default:"500" validate:"min=1"`
	QueryBudgetBytes     int           `env:"QUERY_BUDGET_BYTES" env-default:"7000" validate:"min=1"`
	BatchMin             int           `env:"BATCH_MIN" env-default:"10" validate:"min=1"`
	BatchMax             int           `env:"BATCH_MAX" env-default:"500" validate:"gtefield=BatchMin"`
	BatchSampleSize      int           `env:"BATCH_SAMPLE_SIZE" env-default:"20" validate:"min=1"`
	FetchTimeout         time.Duration `env:"FETCH_TIMEOUT" env-default:"30s"`
	MaxOffset            int           `env:"MAX_OFFSET" env-default:"10000" validate:"gte=0"`
	MaxConcurrentFetches int           `env:"MAX_CONCURRENT_FETCHES" env-default:"4" validate:"gte=0"`

	// Search sessions
	MaxSessions    int           `env:"MAX_SESSIONS" env-default:"256" validate:"gte=0"`
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" env-default:"30m"`

	// Row cache
	RowCacheBackend string `env:"ROW_CACHE_BACKEND" env-default:"memory" validate:"oneof=memory redis"`
	RowCachePrefix  string `env:"ROW_CACHE_PREFIX" env-default:"ledgerlink"`
	RedisHost       string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort       int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword   string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB         int    `env:"REDIS_DB" env-default:"0"`

	// PostgreSQL (findings)
	AuditDatabaseEnabled          bool          `env:"AUDIT_DB_ENABLED" env-default:"false"`
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"ledgerlink"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0" validate:"gte=0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Kafka Producer (findings)
	KafkaAuditEnabled bool     `env:"KAFKA_AUDIT_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaAuditTopic   string   `env:"KAFKA_AUDIT_TOPIC" env-default:"linkage-findings"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`

	// Tracing
	OTLPEnabled  bool          `env:"OTLP_ENABLED" env-default:"false"`
	OTLPEndpoint string        `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol string        `env:"OTLP_PROTOCOL" env-default:"grpc" validate:"oneof=grpc http"`
	OTLPInsecure bool          `env:"OTLP_INSECURE" env-default:"true"`
	OTLPHeaders  []string      `env:"OTLP_HEADERS" env-default:""`
	OTLPTimeout  time.Duration `env:"OTLP_TIMEOUT" env-default:"10s"`

	// Auth
	AuthEnabled   bool   `env:"AUTH_ENABLED" env-default:"false"`
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:"" validate:"required_if=AuthEnabled true"`
	AuthClientID  string `env:"AUTH_CLIENT_ID" env-default:"" validate:"required_if=AuthEnabled true"`
}

// Load reads .env files (when present) and the environment into a validated Config.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
