package config

import (
	"os"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"

	"github.com/azuminxx/simple-redger-sub000/pkg/catalog"
	"github.com/azuminxx/simple-redger-sub000/pkg/database"
	"github.com/azuminxx/simple-redger-sub000/pkg/fetcher"
	"github.com/azuminxx/simple-redger-sub000/pkg/kafka"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/recordstore"
	"github.com/azuminxx/simple-redger-sub000/pkg/redis"
	"github.com/azuminxx/simple-redger-sub000/pkg/search"
	"github.com/azuminxx/simple-redger-sub000/pkg/tracing"
	"github.com/azuminxx/simple-redger-sub000/pkg/tracing/exporters"
)

// Catalog loads the configured catalog, or the built-in one.
func (c *Config) Catalog() (*catalog.Catalog, error) {
	if c.CatalogPath == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(c.CatalogPath)
}

// RecordStore builds the client configuration. Each store's token is read from the
// environment variable its schema names.
func (c *Config) RecordStore(cat *catalog.Catalog) recordstore.HTTPConfig {
	cfg := recordstore.DefaultHTTPConfig()
	cfg.BaseURL = c.RecordStoreBaseURL
	cfg.Endpoint = c.RecordStoreEndpoint
	cfg.Timeout = c.RecordStoreTimeout
	cfg.RequestsPerSecond = c.RecordStoreRequestsPerSecond
	cfg.Burst = c.RecordStoreBurst
	cfg.TokenHeader = c.RecordStoreTokenHeader
	cfg.Tokens = make(map[models.Store]string)
	for _, store := range cat.Declared() {
		schema, _ := cat.Schema(store)
		if schema.APITokenEnv == "" {
			continue
		}
		if token := os.Getenv(schema.APITokenEnv); token != "" {
			cfg.Tokens[store] = token
		}
	}
	return cfg
}

func (c *Config) Fetcher() fetcher.Config {
	return fetcher.Config{
		PageSize:     c.FetchPageSize,
		QueryBudget:  c.QueryBudgetBytes,
		MinBatch:     c.BatchMin,
		MaxBatch:     c.BatchMax,
		SampleSize:   c.BatchSampleSize,
		FetchTimeout: c.FetchTimeout,
		MaxOffset:    c.MaxOffset,
	}
}

func (c *Config) Search() search.Config {
	return search.Config{MaxConcurrentFetches: c.MaxConcurrentFetches}
}

func (c *Config) Sessions() search.RegistryConfig {
	return search.RegistryConfig{MaxSessions: c.MaxSessions, IdleTTL: c.SessionIdleTTL}
}

func (c *Config) Redis() redis.Config {
	return redis.Config{
		Host:        c.RedisHost,
		Port:        c.RedisPort,
		Password:    c.RedisPassword,
		DB:          c.RedisDB,
		DialTimeout: 5 * time.Second,
	}
}

func (c *Config) Database() database.Config {
	return database.Config{
		Driver:          c.DatabaseDriver,
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             uint(c.DatabaseMigrationVersion),
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) Producer() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      brokers(c.KafkaBrokers),
		Topic:        c.KafkaAuditTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

// brokers drops blanks left by "a, b," style lists.
func brokers(list []string) []string {
	trimmed := ectolinq.Map(list, strings.TrimSpace)
	return ectolinq.Filter(trimmed, func(b string) bool { return b != "" })
}

func (c *Config) Tracing() tracing.ProviderConfig {
	return tracing.ProviderConfig{
		ServiceName: c.AppName,
		OTLPEnabled: c.OTLPEnabled,
		OTLP: exporters.OTLPConfig{
			Endpoint: c.OTLPEndpoint,
			Protocol: c.OTLPProtocol,
			Insecure: c.OTLPInsecure,
			Headers:  exporters.ParseHeaders(c.OTLPHeaders),
			Timeout:  c.OTLPTimeout,
		},
	}
}
