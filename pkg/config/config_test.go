package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/planport/pkg/errors"
)

func validConfig() *Config {
	cfg := NewDefault()
	cfg.Auth.Username = "user@example.com"
	cfg.Auth.Password = "secret"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults with credentials", mutate: func(c *Config) {}},
		{
			name:    "missing credentials",
			mutate:  func(c *Config) { c.Auth.Password = "" },
			wantErr: "username and password",
		},
		{
			name:    "relative base url",
			mutate:  func(c *Config) { c.Connection.BaseURL = "/2/0" },
			wantErr: "connection.base_url",
		},
		{
			name:    "unknown auth method",
			mutate:  func(c *Config) { c.Auth.Method = "kerberos" },
			wantErr: "auth.method",
		},
		{
			name: "token auth",
			mutate: func(c *Config) {
				c.Auth.Method = AuthToken
				c.Auth.Token = "abc"
			},
		},
		{
			name: "oauth2 without token url",
			mutate: func(c *Config) {
				c.Auth.Method = AuthOAuth2
				c.Auth.ClientID = "id"
				c.Auth.ClientSecret = "secret"
			},
			wantErr: "auth.token_url",
		},
		{
			name:    "timeout shorter than interval",
			mutate:  func(c *Config) { c.Polling.Timeout = time.Second },
			wantErr: "polling.timeout",
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.Upload.ChunkSize = 0 },
			wantErr: "upload.chunk_size",
		},
		{
			name:    "kafka without brokers",
			mutate:  func(c *Config) { c.Status.Kafka.Enabled = true },
			wantErr: "status.kafka",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Dumps.Backend = DumpBackendS3 },
			wantErr: "dumps.bucket",
		},
		{
			name:    "unknown dump backend",
			mutate:  func(c *Config) { c.Dumps.Backend = "ftp" },
			wantErr: "dumps.backend",
		},
		{
			name:    "history without dsn",
			mutate:  func(c *Config) { c.History.Enabled = true },
			wantErr: "history.dsn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("PLANPORT_TEST_PASSWORD", "from-env")
	t.Setenv("PLANPORT_POLLING_INTERVAL", "2s")

	path := filepath.Join(t.TempDir(), "planport.yaml")
	content := `
connection:
  name: finance
auth:
  username: user@example.com
  password: ${PLANPORT_TEST_PASSWORD}
polling:
  timeout: 10m
status:
  kafka:
    enabled: true
    brokers: ["broker-1:9092", "broker-2:9092"]
    topic: import-status
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "finance", cfg.Connection.Name)
	assert.Equal(t, "from-env", cfg.Auth.Password)
	assert.Equal(t, 2*time.Second, cfg.Polling.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Polling.Timeout)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Status.Kafka.Brokers)
	assert.Equal(t, "https://api.anaplan.com/2/0", cfg.Connection.BaseURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planport.yaml")
	cfg := validConfig()
	cfg.Polling.Interval = 3 * time.Second
	cfg.Dumps.Backend = DumpBackendLocal
	cfg.Dumps.Dir = "/var/lib/planport/dumps"

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Polling, loaded.Polling)
	assert.Equal(t, cfg.Dumps, loaded.Dumps)
	assert.Equal(t, cfg.Auth.Username, loaded.Auth.Username)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("PLANPORT_A", "alpha")

	assert.Equal(t, "x alpha y", substituteEnvVars("x ${PLANPORT_A} y"))
	assert.Equal(t, "x  y", substituteEnvVars("x ${PLANPORT_UNSET_VAR} y"))
	assert.Equal(t, "unterminated ${VAR", substituteEnvVars("unterminated ${VAR"))
}
