package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenDuration)
	assert.Equal(t, 100, cfg.Ranking.Limit)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Empty(t, cfg.Admin.Username)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BANANA_SERVER_PORT", "9090")
	t.Setenv("BANANA_STORAGE_BACKEND", "sqlite")
	t.Setenv("BANANA_STORAGE_SQLITE_PATH", "/tmp/clicks.db")
	t.Setenv("BANANA_AUTH_TOKEN_DURATION", "90m")
	t.Setenv("BANANA_ADMIN_USERNAME", "root")
	t.Setenv("BANANA_ADMIN_PASSWORD", "hunter22")
	t.Setenv("BANANA_CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("BANANA_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/clicks.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 90*time.Minute, cfg.Auth.TokenDuration)
	assert.Equal(t, "root", cfg.Admin.Username)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bananaclick.yaml")
	content := `
server:
  port: 7000
storage:
  backend: redis
  redis_url: redis://cache:6379/2
ranking:
  limit: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("BANANA_SERVER_PORT", "7001")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Environment wins over the file
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis://cache:6379/2", cfg.Storage.RedisURL)
	assert.Equal(t, 10, cfg.Ranking.Limit)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown backend",
			env:     map[string]string{"BANANA_STORAGE_BACKEND": "postgres"},
			wantErr: "invalid storage backend",
		},
		{
			name:    "admin without password",
			env:     map[string]string{"BANANA_ADMIN_USERNAME": "root"},
			wantErr: "admin username and password",
		},
		{
			name:    "bad log level",
			env:     map[string]string{"BANANA_LOG_LEVEL": "loud"},
			wantErr: "invalid log level",
		},
		{
			name:    "negative ranking limit",
			env:     map[string]string{"BANANA_RANKING_LIMIT": "-1"},
			wantErr: "invalid ranking limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
