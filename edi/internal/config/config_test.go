package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EDI_AUTH_JWT_SECRET", "secret")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.Equal(t, 500, cfg.Bundling.MaxBundleSize)
	assert.Equal(t, 30*time.Second, cfg.Bundling.Interval)
	assert.Equal(t, time.Minute, cfg.Bundling.FlushTimeout)
	assert.Equal(t, "edi-archived-messages", cfg.OpenSearch.Index)
	assert.Empty(t, cfg.OpenSearch.SigningKey)
	assert.True(t, cfg.Stats.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Stats.FlushInterval)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 100, cfg.RateLimit.Requests)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9999
  read_timeout: 30s
database:
  type: postgres
  postgres:
    host: db
    user: edi
    password: pw
    database: edi_test
bundling:
  interval: 5s
  max_bundle_size: 50
auth:
  jwt_secret: from-file
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "postgres://edi:pw@db:5432/edi_test?sslmode=disable", cfg.Database.Postgres.ConnString())
	assert.Equal(t, 5*time.Second, cfg.Bundling.Interval)
	assert.Equal(t, 50, cfg.Bundling.MaxBundleSize)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9999\nauth:\n  jwt_secret: from-file\n")
	t.Setenv("EDI_SERVER_PORT", "7000")
	t.Setenv("EDI_BUNDLING_MAX_BUNDLE_SIZE", "20")
	t.Setenv("EDI_OPENSEARCH_SIGNING_KEY", "archive-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Bundling.MaxBundleSize)
	assert.Equal(t, "archive-key", cfg.OpenSearch.SigningKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing secret", "database:\n  type: memory\n"},
		{"unknown database", "database:\n  type: sqlite\nauth:\n  jwt_secret: s\n"},
		{"zero interval", "bundling:\n  interval: 0s\nauth:\n  jwt_secret: s\n"},
		{"zero scan limit", "bundling:\n  scan_limit: 0\nauth:\n  jwt_secret: s\n"},
		{"zero rate", "ratelimit:\n  requests: 0\nauth:\n  jwt_secret: s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}
