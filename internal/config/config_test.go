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
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":20000", cfg.Server.ListenAddr)
	assert.Equal(t, 32, cfg.Server.MaxConnections)
	assert.Equal(t, 5*time.Second, cfg.Server.StopTimeout)
	assert.False(t, cfg.Server.TestFill)
	assert.Equal(t, "none", cfg.Store.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":21000"
  stop_timeout: 10s
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":21000", cfg.Server.ListenAddr)
	assert.Equal(t, 10*time.Second, cfg.Server.StopTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, 32, cfg.Server.MaxConnections)
	assert.Equal(t, ":9102", cfg.Admin.ListenAddr)
}

func TestLoad_StoreBackends(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: redis
  redis:
    addr: redis.internal:6379
    db: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
	assert.Equal(t, "tsexpr:", cfg.Store.Redis.Prefix)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad backend":     "store:\n  backend: etcd\n",
		"bad level":       "log:\n  level: verbose\n",
		"zero conn limit": "server:\n  max_connections: 0\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  listen_addr: \":21000\"\n")
	t.Setenv("TSEXPR_LISTEN_ADDR", ":22000")
	t.Setenv("TSEXPR_STORE_BACKEND", "badger")
	t.Setenv("TSEXPR_BADGER_PATH", "/var/lib/tsexpr")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":22000", cfg.Server.ListenAddr)
	assert.Equal(t, "badger", cfg.Store.Backend)
	assert.Equal(t, "/var/lib/tsexpr", cfg.Store.Badger.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
