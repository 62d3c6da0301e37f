package config

import (
	"bytes"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/planport/pkg/errors"
)

// EnvPrefix is the prefix of environment variables that override file values,
// e.g. PLANPORT_AUTH_PASSWORD for auth.password.
const EnvPrefix = "PLANPORT"

// Load reads configuration from a YAML file layered over NewDefault.
// ${VAR_NAME} references in the file are replaced with environment values
// and PLANPORT_* variables override individual keys. An empty path loads
// defaults and environment only. The result is not validated.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, NewDefault())

	if filePath != "" {
		data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", filePath)
		}
		content := substituteEnvVars(string(data))
		if err := v.ReadConfig(bytes.NewBufferString(content)); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML").
				WithDetail("path", filePath)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode configuration")
	}
	return cfg, nil
}

// Save writes a configuration to a YAML file.
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}

	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to write config file").
			WithDetail("path", filePath)
	}
	return nil
}

// setDefaults registers every key with viper so AutomaticEnv can override
// keys that are absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("connection.name", d.Connection.Name)
	v.SetDefault("connection.base_url", d.Connection.BaseURL)
	v.SetDefault("connection.auth_url", d.Connection.AuthURL)
	v.SetDefault("connection.request_timeout", d.Connection.RequestTimeout)
	v.SetDefault("connection.user_agent", d.Connection.UserAgent)

	v.SetDefault("auth.method", d.Auth.Method)
	v.SetDefault("auth.username", d.Auth.Username)
	v.SetDefault("auth.password", d.Auth.Password)
	v.SetDefault("auth.token", d.Auth.Token)
	v.SetDefault("auth.client_id", d.Auth.ClientID)
	v.SetDefault("auth.client_secret", d.Auth.ClientSecret)
	v.SetDefault("auth.token_url", d.Auth.TokenURL)
	v.SetDefault("auth.scopes", d.Auth.Scopes)

	v.SetDefault("http.max_idle_conns", d.HTTP.MaxIdleConns)
	v.SetDefault("http.max_idle_conns_per_host", d.HTTP.MaxIdleConnsPerHost)
	v.SetDefault("http.idle_conn_timeout", d.HTTP.IdleConnTimeout)
	v.SetDefault("http.enable_http2", d.HTTP.EnableHTTP2)
	v.SetDefault("http.rate_limit_per_sec", d.HTTP.RateLimitPerSec)
	v.SetDefault("http.rate_limit_burst", d.HTTP.RateLimitBurst)
	v.SetDefault("http.circuit_breaker", d.HTTP.CircuitBreaker)
	v.SetDefault("http.failure_threshold", d.HTTP.FailureThreshold)
	v.SetDefault("http.reset_timeout", d.HTTP.ResetTimeout)

	v.SetDefault("upload.chunk_size", d.Upload.ChunkSize)
	v.SetDefault("upload.compress", d.Upload.Compress)
	v.SetDefault("upload.compression_level", d.Upload.CompressionLevel)

	v.SetDefault("polling.interval", d.Polling.Interval)
	v.SetDefault("polling.timeout", d.Polling.Timeout)

	v.SetDefault("observability.log_level", d.Observability.LogLevel)
	v.SetDefault("observability.log_encoding", d.Observability.LogEncoding)
	v.SetDefault("observability.enable_tracing", d.Observability.EnableTracing)
	v.SetDefault("observability.tracing_sample_rate", d.Observability.TracingSampleRate)
	v.SetDefault("observability.service_name", d.Observability.ServiceName)

	v.SetDefault("status.kafka.enabled", d.Status.Kafka.Enabled)
	v.SetDefault("status.kafka.brokers", d.Status.Kafka.Brokers)
	v.SetDefault("status.kafka.topic", d.Status.Kafka.Topic)
	v.SetDefault("status.kafka.client_id", d.Status.Kafka.ClientID)

	v.SetDefault("dumps.backend", d.Dumps.Backend)
	v.SetDefault("dumps.dir", d.Dumps.Dir)
	v.SetDefault("dumps.bucket", d.Dumps.Bucket)
	v.SetDefault("dumps.prefix", d.Dumps.Prefix)
	v.SetDefault("dumps.region", d.Dumps.Region)
	v.SetDefault("dumps.credentials_file", d.Dumps.CredentialsFile)

	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.dsn", d.History.DSN)
	v.SetDefault("history.table", d.History.Table)
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
