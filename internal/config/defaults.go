package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultShutdownTimeout      = 30 * time.Second
	defaultAPITimeout           = 30 * time.Second
	defaultRequestTimeout       = 60 * time.Second
	defaultConnMaxLifetime      = 5 * time.Minute
	defaultProcessorTimeout     = 30 * time.Second
	defaultOptimizePollInterval = 5 * time.Second
	defaultSoftDeleteGrace      = 24 * time.Hour
	defaultTempFileMaxAge       = 24 * time.Hour
	defaultBadStatusMaxAge      = time.Hour
	defaultOldThumbnailMaxAge   = 90 * 24 * time.Hour
	defaultURLFetchTimeout      = 15 * time.Second
)

// GetDefaultConfig returns a Config populated entirely with default values.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in zero-valued fields with sane production defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.Profiling.Endpoint == "" {
		cfg.Telemetry.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		cfg.Telemetry.Profiling.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}

	if cfg.API.Address == "" {
		cfg.API.Address = ":8080"
	}
	if cfg.API.ReadTimeout == 0 {
		cfg.API.ReadTimeout = defaultAPITimeout
	}
	if cfg.API.WriteTimeout == 0 {
		cfg.API.WriteTimeout = defaultAPITimeout
	}
	if cfg.API.RequestTimeout == 0 {
		cfg.API.RequestTimeout = defaultRequestTimeout
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = DatabaseTypeSQLite
	}
	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = "./mediastore.db"
	}
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Postgres.MaxOpenConns == 0 {
		cfg.Database.Postgres.MaxOpenConns = 25
	}
	if cfg.Database.Postgres.MaxIdleConns == 0 {
		cfg.Database.Postgres.MaxIdleConns = 5
	}
	if cfg.Database.Postgres.ConnMaxLifetime == 0 {
		cfg.Database.Postgres.ConnMaxLifetime = defaultConnMaxLifetime
	}

	if cfg.BlobStore.Region == "" {
		cfg.BlobStore.Region = "us-east-1"
	}
	if cfg.BlobStore.Bucket == "" {
		cfg.BlobStore.Bucket = "mediastore"
	}
	if cfg.BlobStore.KeyPrefix == "" {
		cfg.BlobStore.KeyPrefix = "objects/"
	}
	if cfg.BlobStore.MaxRetries == 0 {
		cfg.BlobStore.MaxRetries = 3
	}

	if cfg.DedupCache.Path == "" {
		cfg.DedupCache.Path = "./dedup-cache"
	}

	if cfg.Upload.MaxFileSize == 0 {
		cfg.Upload.MaxFileSize = 100 * 1024 * 1024 // 100MB
	}
	if len(cfg.Upload.AllowedMimeTypes) == 0 {
		cfg.Upload.AllowedMimeTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif", "application/pdf"}
	}
	if cfg.Upload.TempKeyPrefix == "" {
		cfg.Upload.TempKeyPrefix = "tmp/"
	}

	if cfg.Optimization.Workers == 0 {
		cfg.Optimization.Workers = 4
	}
	if cfg.Optimization.ImageProcessor.Address == "" {
		cfg.Optimization.ImageProcessor.Address = "localhost:9500"
	}
	if cfg.Optimization.ImageProcessor.Timeout == 0 {
		cfg.Optimization.ImageProcessor.Timeout = defaultProcessorTimeout
	}
	if cfg.Optimization.PollInterval == 0 {
		cfg.Optimization.PollInterval = defaultOptimizePollInterval
	}
	if cfg.Optimization.MaxAttempts == 0 {
		cfg.Optimization.MaxAttempts = 3
	}
	if len(cfg.Optimization.Variants) == 0 {
		cfg.Optimization.Variants = []ThumbnailVariant{
			{Name: "thumb", Width: 200, Height: 200, MimeType: "image/webp"},
			{Name: "preview", Width: 1024, Height: 1024, MimeType: "image/webp"},
		}
	}

	if cfg.Cleanup.Schedule == "" {
		cfg.Cleanup.Schedule = "0 */6 * * *" // every 6 hours
	}
	if cfg.Cleanup.SoftDeleteGracePeriod == 0 {
		cfg.Cleanup.SoftDeleteGracePeriod = defaultSoftDeleteGrace
	}
	if cfg.Cleanup.TempFileMaxAge == 0 {
		cfg.Cleanup.TempFileMaxAge = defaultTempFileMaxAge
	}
	if cfg.Cleanup.BadStatusMaxAge == 0 {
		cfg.Cleanup.BadStatusMaxAge = defaultBadStatusMaxAge
	}
	if cfg.Cleanup.OldThumbnailMaxAge == 0 {
		cfg.Cleanup.OldThumbnailMaxAge = defaultOldThumbnailMaxAge
	}
	if cfg.Cleanup.BatchSize == 0 {
		cfg.Cleanup.BatchSize = 500
	}
	if cfg.Cleanup.MissingAuditBatchSize == 0 {
		cfg.Cleanup.MissingAuditBatchSize = 100
	}

	if cfg.URLFetch.MaxBytes == 0 {
		cfg.URLFetch.MaxBytes = 50 * 1024 * 1024 // 50MB
	}
	if cfg.URLFetch.Timeout == 0 {
		cfg.URLFetch.Timeout = defaultURLFetchTimeout
	}
	if cfg.URLFetch.MaxRedirects == 0 {
		cfg.URLFetch.MaxRedirects = 3
	}
	if len(cfg.URLFetch.AllowedSchemes) == 0 {
		cfg.URLFetch.AllowedSchemes = []string{"http", "https"}
	}
}

// Validate checks invariants that ApplyDefaults cannot satisfy on its own.
// There is no third-party validator in this dependency set (go-playground/
// validator was confirmed unused by the teacher's own code too — see
// DESIGN.md), so validation is hand-written, as the teacher's own
// gorm.Config.Validate does.
func Validate(cfg *Config) error {
	switch cfg.Database.Type {
	case DatabaseTypeSQLite, DatabaseTypePostgres:
	default:
		return fmt.Errorf("database.type must be %q or %q, got %q", DatabaseTypeSQLite, DatabaseTypePostgres, cfg.Database.Type)
	}

	if cfg.Database.Type == DatabaseTypePostgres {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required when database.type is postgres")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required when database.type is postgres")
		}
	}

	if cfg.BlobStore.Bucket == "" {
		return fmt.Errorf("blob_store.bucket is required")
	}

	if cfg.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("upload.max_file_size must be positive")
	}

	if cfg.URLFetch.MaxBytes <= 0 {
		return fmt.Errorf("url_fetch.max_bytes must be positive")
	}
	if cfg.URLFetch.MaxRedirects < 0 {
		return fmt.Errorf("url_fetch.max_redirects must be non-negative")
	}

	switch strings.ToUpper(cfg.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logging.level must be one of DEBUG, INFO, WARN, ERROR, got %q", cfg.Logging.Level)
	}

	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}

	return nil
}
