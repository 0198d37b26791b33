package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STORE_BACKEND", "DATABASE_URL", "MYSQL_DSN", "REDIS_ADDR",
		"LOW_STOCK_THRESHOLD", "COMMIT_RETRIES", "TIMEZONE", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, "Asia/Jakarta", cfg.Timezone)
	assert.Equal(t, 10, cfg.LowStockThreshold)
	assert.Equal(t, 5, cfg.CommitRetries)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.Address())
	require.NoError(t, cfg.Validate())
}

func TestLoadInfersBackendFromConnectionSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("MYSQL_DSN", "pos:pos@tcp(127.0.0.1:3306)/pos")

	assert.Equal(t, BackendMySQL, Load().StoreBackend)

	t.Setenv("DATABASE_URL", "postgres://pos@localhost/pos")
	assert.Equal(t, BackendPostgres, Load().StoreBackend)
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOW_STOCK_THRESHOLD", "banyak")
	t.Setenv("COMMIT_RETRIES", "0")

	cfg := Load()
	assert.Equal(t, 10, cfg.LowStockThreshold)
	assert.Equal(t, 5, cfg.CommitRetries)
}

func TestValidateRequiresBackendSettings(t *testing.T) {
	cases := []Config{
		{StoreBackend: BackendPostgres},
		{StoreBackend: BackendMySQL},
		{StoreBackend: BackendRedis},
		{StoreBackend: "sqlite"},
	}
	for _, cfg := range cases {
		assert.Error(t, cfg.Validate(), cfg.StoreBackend)
	}
}
