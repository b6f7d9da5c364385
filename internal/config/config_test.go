package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("INDEXER_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 3, cfg.Indexer.MaxAttempts)
	assert.Equal(t, 10, cfg.Chains.SyncAttempts)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: production
listen_addr: ":9000"
indexer:
  url: https://indexer.example
  timeout: 3s
  max_attempts: 5
redis:
  addr: localhost:6379
  ttl: 1m
chains:
  rpc_urls:
    10: https://optimism.example
  sync_attempts: 4
  sync_interval: 250ms
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LISTEN_ADDR", ":7000")
	t.Setenv("INDEXER_MAX_ATTEMPTS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.Equal(t, "https://indexer.example", cfg.Indexer.URL)
	assert.Equal(t, 3*time.Second, cfg.Indexer.Timeout)
	assert.Equal(t, 2, cfg.Indexer.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Redis.TTL)
	assert.Equal(t, map[int64]string{10: "https://optimism.example"}, cfg.Chains.RPCURLs)
	assert.Equal(t, 250*time.Millisecond, cfg.Chains.SyncInterval)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REFRESH_WORKERS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REFRESH_WORKERS")
}

func TestLoad_WorkersNeedDatabase(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REFRESH_WORKERS", "2")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestParseRPCURLs(t *testing.T) {
	got, err := ParseRPCURLs("10=https://op.example, 42161=https://arb.example,")
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{
		10:    "https://op.example",
		42161: "https://arb.example",
	}, got)

	_, err = ParseRPCURLs("ten=https://op.example")
	assert.Error(t, err)
	_, err = ParseRPCURLs("10")
	assert.Error(t, err)
}
