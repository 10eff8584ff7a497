// Package config loads and validates the file lifecycle engine's
// configuration from a YAML file, MEDIASTORE_* environment variables, and
// built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/bozonx/mediastore/internal/bytesize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the file lifecycle engine.
//
// Configuration sources:
//  1. Configuration file (YAML), chosen by --config or found at the default path
//  2. Environment variables (MEDIASTORE_*), which override only keys that
//     appear in that file
//  3. Default values, which fill in whatever the file leaves unset
//
// When no configuration file is found, Load returns the defaults as they are
// and reads no environment variables. No CLI flag other than --config feeds
// into the configuration.
type Config struct {
	Logging         LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Telemetry       TelemetryConfig   `mapstructure:"telemetry" yaml:"telemetry"`
	ShutdownTimeout time.Duration     `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	Database        DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Metrics         MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	API             APIConfig         `mapstructure:"api" yaml:"api"`
	BlobStore       BlobStoreConfig   `mapstructure:"blob_store" yaml:"blob_store"`
	DedupCache      DedupCacheConfig  `mapstructure:"dedup_cache" yaml:"dedup_cache"`
	Upload          UploadConfig      `mapstructure:"upload" yaml:"upload"`
	Optimization    OptimizationConfig `mapstructure:"optimization" yaml:"optimization"`
	Cleanup         CleanupConfig     `mapstructure:"cleanup" yaml:"cleanup"`
	URLFetch        URLFetchConfig    `mapstructure:"url_fetch" yaml:"url_fetch"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // DEBUG, INFO, WARN, ERROR
	Format string `mapstructure:"format" yaml:"format"` // text, json
	Output string `mapstructure:"output" yaml:"output"` // stdout, stderr, or a file path
}

// TelemetryConfig controls OpenTelemetry distributed tracing and Pyroscope profiling.
type TelemetryConfig struct {
	Enabled    bool             `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string           `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool             `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64          `mapstructure:"sample_rate" yaml:"sample_rate"`
	Profiling  ProfilingConfig  `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// APIConfig configures the HTTP API server.
type APIConfig struct {
	Address         string        `mapstructure:"address" yaml:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// DatabaseType selects the metadata store backend.
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// DatabaseConfig configures the metadata store (SQLite for dev/single-node,
// PostgreSQL for HA deployments).
type DatabaseConfig struct {
	Type     DatabaseType   `mapstructure:"type" yaml:"type"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// SQLiteConfig configures the SQLite metadata store backend.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig configures the PostgreSQL metadata store backend.
type PostgresConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	Database        string        `mapstructure:"database" yaml:"database"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password,omitempty"`
	SSLMode         string        `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	// PreferSimpleProtocol disables pgx's extended query protocol (prepared
	// statement caching), required when connecting through a transaction-mode
	// PgBouncer pool where prepared statements can't be reused across
	// connections.
	PreferSimpleProtocol bool `mapstructure:"prefer_simple_protocol" yaml:"prefer_simple_protocol"`
}

// DSN returns the PostgreSQL connection string for pgx/gorm.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode)
}

// BlobStoreConfig configures the S3-compatible content-addressed blob store.
type BlobStoreConfig struct {
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	Region          string `mapstructure:"region" yaml:"region"`
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix" yaml:"key_prefix"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
	MaxRetries      int    `mapstructure:"max_retries" yaml:"max_retries"`
}

// DedupCacheConfig configures the local badger-backed checksum lookup cache
// that short-circuits the upload pipeline's dedup check before it hits the
// metadata store.
type DedupCacheConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// UploadConfig controls the Upload Pipeline (spec §4.1).
type UploadConfig struct {
	MaxFileSize     bytesize.ByteSize `mapstructure:"max_file_size" yaml:"max_file_size"`
	AllowedMimeTypes []string         `mapstructure:"allowed_mime_types" yaml:"allowed_mime_types"`
	TempKeyPrefix   string            `mapstructure:"temp_key_prefix" yaml:"temp_key_prefix"`
}

// OptimizationConfig controls the Optimization Engine (spec §4.2).
type OptimizationConfig struct {
	Workers        int              `mapstructure:"workers" yaml:"workers"`
	ImageProcessor ImageProcessorConfig `mapstructure:"image_processor" yaml:"image_processor"`
	Variants       []ThumbnailVariant   `mapstructure:"variants" yaml:"variants"`
	PollInterval   time.Duration    `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxAttempts    int              `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// ImageProcessorConfig configures the RPC client to the image processor sidecar.
type ImageProcessorConfig struct {
	Address string        `mapstructure:"address" yaml:"address"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ThumbnailVariant names one (width, height, mimeType) transform the
// Optimization Engine produces for every eligible File.
type ThumbnailVariant struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Width    int    `mapstructure:"width" yaml:"width"`
	Height   int    `mapstructure:"height" yaml:"height"`
	MimeType string `mapstructure:"mime_type" yaml:"mime_type"`
}

// CleanupConfig controls the cron-scheduled Cleanup Reconciler (spec §4.4).
type CleanupConfig struct {
	Schedule              string        `mapstructure:"schedule" yaml:"schedule"` // cron expression
	SoftDeleteGracePeriod time.Duration `mapstructure:"soft_delete_grace_period" yaml:"soft_delete_grace_period"`
	TempFileMaxAge        time.Duration `mapstructure:"temp_file_max_age" yaml:"temp_file_max_age"`
	BadStatusMaxAge       time.Duration `mapstructure:"bad_status_max_age" yaml:"bad_status_max_age"`
	OldThumbnailMaxAge    time.Duration `mapstructure:"old_thumbnail_max_age" yaml:"old_thumbnail_max_age"`
	BatchSize             int           `mapstructure:"batch_size" yaml:"batch_size"`
	MissingAuditBatchSize int           `mapstructure:"missing_audit_batch_size" yaml:"missing_audit_batch_size"`
}

// URLFetchConfig controls the SSRF-safe URL Download pipeline (spec §4.6).
type URLFetchConfig struct {
	MaxBytes        bytesize.ByteSize `mapstructure:"max_bytes" yaml:"max_bytes"`
	Timeout         time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	MaxRedirects    int               `mapstructure:"max_redirects" yaml:"max_redirects"`
	AllowedSchemes  []string          `mapstructure:"allowed_schemes" yaml:"allowed_schemes"`
	DeniedCIDRs     []string          `mapstructure:"denied_cidrs" yaml:"denied_cidrs"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("MEDIASTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mediastore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mediastore")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
