package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"APP_ENV", "LOG_LEVEL", "PORT", "DATABASE_URL", "REDIS_ADDR", "LOCK_TTL", "MIGRATE_ON_START"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Empty(t, cfg.Database.URL)
	assert.True(t, cfg.Database.MigrateOnStart)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 10*time.Second, cfg.Redis.LockTTL)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/ophtha?sslmode=disable")
	t.Setenv("MIGRATE_ON_START", "false")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOCK_TTL", "30s")
	t.Setenv("KNOWLEDGE_BASE_PATH", "/etc/ophtha/tree.yaml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr())
	assert.Equal(t, "postgres://u:p@db:5432/ophtha?sslmode=disable", cfg.Database.URL)
	assert.False(t, cfg.Database.MigrateOnStart)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, "/etc/ophtha/tree.yaml", cfg.Data.KnowledgeBasePath)
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("LOCK_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Redis.LockTTL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string][2]string{
		"unknown env":  {"APP_ENV", "qa"},
		"port range":   {"PORT", "70000"},
		"bad level":    {"LOG_LEVEL", "loud"},
		"short ttl":    {"LOCK_TTL", "10ms"},
		"redis target": {"REDIS_ADDR", "no port here"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
