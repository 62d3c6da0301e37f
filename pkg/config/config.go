// Package config provides the configuration system for planport.
// It defines a single Config structure shared by the CLI, the planning API
// client and every optional sink, so all components read the same settings.
//
// The configuration is organized into logical sections:
//   - Connection: planning API endpoints and request timeouts
//   - Auth: credentials and the authentication method
//   - HTTP: transport tuning, rate limiting and circuit breaking
//   - Upload: chunk size and compression for file uploads
//   - Polling: server task poll interval and overall timeout
//   - Observability: logging and tracing
//   - Status, Dumps, History: optional sinks for status lines, failure dumps and run history
//
// Example usage:
//
//	cfg := config.NewDefault()
//	cfg.Auth.Username = "integration@example.com"
//	cfg.Auth.Password = os.Getenv("PLANPORT_PASSWORD")
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"net/url"
	"time"

	"github.com/ajitpratap0/planport/pkg/errors"
)

// Authentication methods.
const (
	AuthBasic  = "basic"
	AuthToken  = "token"
	AuthOAuth2 = "oauth2"
)

// Failure dump backends.
const (
	DumpBackendNone  = "none"
	DumpBackendLocal = "local"
	DumpBackendS3    = "s3"
	DumpBackendGCS   = "gcs"
)

// Config is the single configuration structure for planport.
type Config struct {
	// Connection settings for the planning API
	Connection ConnectionConfig `yaml:"connection" json:"connection" mapstructure:"connection"`

	// Auth holds credentials and the authentication method
	Auth AuthConfig `yaml:"auth" json:"auth" mapstructure:"auth"`

	// HTTP transport settings
	HTTP HTTPConfig `yaml:"http" json:"http" mapstructure:"http"`

	// Upload settings for remote file chunks
	Upload UploadConfig `yaml:"upload" json:"upload" mapstructure:"upload"`

	// Polling settings for server tasks
	Polling PollingConfig `yaml:"polling" json:"polling" mapstructure:"polling"`

	// Observability settings for logging and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`

	// Status sink settings
	Status StatusConfig `yaml:"status" json:"status" mapstructure:"status"`

	// Dumps configures where failure dumps are archived
	Dumps DumpsConfig `yaml:"dumps" json:"dumps" mapstructure:"dumps"`

	// History configures the run history table
	History HistoryConfig `yaml:"history" json:"history" mapstructure:"history"`
}

// ConnectionConfig contains the planning API endpoints.
type ConnectionConfig struct {
	// Name labels the connection in status lines
	Name string `yaml:"name" json:"name" mapstructure:"name"`
	// BaseURL is the root of the versioned planning API
	BaseURL string `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
	// AuthURL is the root of the token service
	AuthURL string `yaml:"auth_url" json:"auth_url" mapstructure:"auth_url"`
	// RequestTimeout bounds a single HTTP request
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" mapstructure:"request_timeout"`
	// UserAgent is sent on every request
	UserAgent string `yaml:"user_agent" json:"user_agent" mapstructure:"user_agent"`
}

// AuthConfig contains authentication settings.
// Use ${VAR} references or PLANPORT_AUTH_* variables for secrets.
type AuthConfig struct {
	// Method is one of basic, token or oauth2
	Method   string `yaml:"method" json:"method" mapstructure:"method"`
	Username string `yaml:"username" json:"username" mapstructure:"username"`
	Password string `yaml:"password" json:"-" mapstructure:"password"`
	// Token is a pre-issued API token for the token method
	Token        string   `yaml:"token" json:"-" mapstructure:"token"`
	ClientID     string   `yaml:"client_id" json:"client_id" mapstructure:"client_id"`
	ClientSecret string   `yaml:"client_secret" json:"-" mapstructure:"client_secret"`
	TokenURL     string   `yaml:"token_url" json:"token_url" mapstructure:"token_url"`
	Scopes       []string `yaml:"scopes" json:"scopes" mapstructure:"scopes"`
}

// HTTPConfig contains HTTP transport settings.
type HTTPConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns" json:"max_idle_conns" mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host" mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout" json:"idle_conn_timeout" mapstructure:"idle_conn_timeout"`
	EnableHTTP2         bool          `yaml:"enable_http2" json:"enable_http2" mapstructure:"enable_http2"`
	// RateLimitPerSec limits requests per second (0 = unlimited)
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst" json:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	// CircuitBreaker enables the circuit breaker
	CircuitBreaker   bool          `yaml:"circuit_breaker" json:"circuit_breaker" mapstructure:"circuit_breaker"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" json:"reset_timeout" mapstructure:"reset_timeout"`
}

// UploadConfig contains remote file upload settings.
type UploadConfig struct {
	// ChunkSize is the maximum uncompressed size of one upload chunk in bytes
	ChunkSize int `yaml:"chunk_size" json:"chunk_size" mapstructure:"chunk_size"`
	// Compress sends chunks gzip-encoded
	Compress         bool `yaml:"compress" json:"compress" mapstructure:"compress"`
	CompressionLevel int  `yaml:"compression_level" json:"compression_level" mapstructure:"compression_level"`
}

// PollingConfig controls how server tasks are awaited.
type PollingConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval" mapstructure:"interval"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
}

// ObservabilityConfig contains logging and tracing settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	// LogEncoding is json or console
	LogEncoding   string `yaml:"log_encoding" json:"log_encoding" mapstructure:"log_encoding"`
	EnableTracing bool   `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate" mapstructure:"tracing_sample_rate"`
	ServiceName       string  `yaml:"service_name" json:"service_name" mapstructure:"service_name"`
}

// StatusConfig configures the optional Kafka status sink.
type StatusConfig struct {
	Kafka KafkaConfig `yaml:"kafka" json:"kafka" mapstructure:"kafka"`
}

// KafkaConfig contains Kafka producer settings.
type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Brokers  []string `yaml:"brokers" json:"brokers" mapstructure:"brokers"`
	Topic    string   `yaml:"topic" json:"topic" mapstructure:"topic"`
	ClientID string   `yaml:"client_id" json:"client_id" mapstructure:"client_id"`
}

// DumpsConfig configures the failure dump archive.
type DumpsConfig struct {
	// Backend is one of none, local, s3 or gcs
	Backend string `yaml:"backend" json:"backend" mapstructure:"backend"`
	// Dir is the target directory for the local backend
	Dir    string `yaml:"dir" json:"dir" mapstructure:"dir"`
	Bucket string `yaml:"bucket" json:"bucket" mapstructure:"bucket"`
	Prefix string `yaml:"prefix" json:"prefix" mapstructure:"prefix"`
	Region string `yaml:"region" json:"region" mapstructure:"region"`
	// CredentialsFile is a service account file for the gcs backend
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file" mapstructure:"credentials_file"`
}

// HistoryConfig configures the PostgreSQL run history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" json:"-" mapstructure:"dsn"`
	Table   string `yaml:"table" json:"table" mapstructure:"table"`
}

// NewDefault creates a Config with sensible defaults. Credentials are left
// empty and must be supplied before Validate succeeds.
func NewDefault() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Name:           "planport",
			BaseURL:        "https://api.anaplan.com/2/0",
			AuthURL:        "https://auth.anaplan.com",
			RequestTimeout: 60 * time.Second,
			UserAgent:      "planport",
		},
		Auth: AuthConfig{
			Method: AuthBasic,
		},
		HTTP: HTTPConfig{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			EnableHTTP2:         true,
			RateLimitPerSec:     10,
			RateLimitBurst:      20,
			CircuitBreaker:      true,
			FailureThreshold:    5,
			ResetTimeout:        30 * time.Second,
		},
		Upload: UploadConfig{
			ChunkSize:        1 << 20,
			Compress:         true,
			CompressionLevel: 6,
		},
		Polling: PollingConfig{
			Interval: 5 * time.Second,
			Timeout:  30 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogEncoding:       "json",
			EnableTracing:     false,
			TracingSampleRate: 1.0,
			ServiceName:       "planport",
		},
		Status: StatusConfig{
			Kafka: KafkaConfig{
				ClientID: "planport",
				Brokers:  []string{},
			},
		},
		Dumps: DumpsConfig{
			Backend: DumpBackendNone,
			Prefix:  "failure-dumps",
		},
		History: HistoryConfig{
			Table: "import_runs",
		},
	}
}

// Validate checks the configuration and returns the first problem found as
// a config error.
func (c *Config) Validate() error {
	if err := validateURL("connection.base_url", c.Connection.BaseURL); err != nil {
		return err
	}
	if c.Connection.RequestTimeout <= 0 {
		return invalid("connection.request_timeout", "must be positive")
	}

	switch c.Auth.Method {
	case AuthBasic:
		if c.Auth.Username == "" || c.Auth.Password == "" {
			return invalid("auth", "username and password are required for basic authentication")
		}
		if err := validateURL("connection.auth_url", c.Connection.AuthURL); err != nil {
			return err
		}
	case AuthToken:
		if c.Auth.Token == "" {
			return invalid("auth.token", "required for token authentication")
		}
	case AuthOAuth2:
		if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
			return invalid("auth", "client_id and client_secret are required for oauth2")
		}
		if err := validateURL("auth.token_url", c.Auth.TokenURL); err != nil {
			return err
		}
	default:
		return invalid("auth.method", "must be one of basic, token, oauth2")
	}

	if c.HTTP.RateLimitPerSec < 0 {
		return invalid("http.rate_limit_per_sec", "must not be negative")
	}
	if c.HTTP.CircuitBreaker && c.HTTP.FailureThreshold <= 0 {
		return invalid("http.failure_threshold", "must be positive when the circuit breaker is enabled")
	}

	if c.Upload.ChunkSize <= 0 {
		return invalid("upload.chunk_size", "must be positive")
	}
	if c.Upload.Compress && (c.Upload.CompressionLevel < 1 || c.Upload.CompressionLevel > 9) {
		return invalid("upload.compression_level", "must be between 1 and 9")
	}

	if c.Polling.Interval <= 0 {
		return invalid("polling.interval", "must be positive")
	}
	if c.Polling.Timeout < c.Polling.Interval {
		return invalid("polling.timeout", "must not be shorter than the poll interval")
	}

	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		return invalid("observability.tracing_sample_rate", "must be between 0 and 1")
	}

	if c.Status.Kafka.Enabled {
		if len(c.Status.Kafka.Brokers) == 0 || c.Status.Kafka.Topic == "" {
			return invalid("status.kafka", "brokers and topic are required when enabled")
		}
	}

	switch c.Dumps.Backend {
	case "", DumpBackendNone:
	case DumpBackendLocal:
		if c.Dumps.Dir == "" {
			return invalid("dumps.dir", "required for the local backend")
		}
	case DumpBackendS3, DumpBackendGCS:
		if c.Dumps.Bucket == "" {
			return invalid("dumps.bucket", "required for the "+c.Dumps.Backend+" backend")
		}
	default:
		return invalid("dumps.backend", "must be one of none, local, s3, gcs")
	}

	if c.History.Enabled {
		if c.History.DSN == "" {
			return invalid("history.dsn", "required when history is enabled")
		}
		if c.History.Table == "" {
			return invalid("history.table", "required when history is enabled")
		}
	}

	return nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return invalid(field, "is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid(field, "must be an absolute URL")
	}
	return nil
}

func invalid(field, msg string) error {
	return errors.New(errors.ErrorTypeConfig, field+" "+msg).WithDetail("field", field)
}
