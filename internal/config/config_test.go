package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: DEV
db:
  host: db.internal
  port: 6543
  name: audits
store:
  driver: memory
auth:
  okta_domain: https://example.okta.com/oauth2/default/
workflows:
  cache_size: 16
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "DEV", cfg.Environment)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 6543, cfg.DB.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "https://example.okta.com/oauth2/default", cfg.Auth.OktaDomain)
	assert.Equal(t, 16, cfg.Workflows.CacheSize)
	// defaults fill the rest
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "disable", cfg.DB.SSLMode)
	assert.Equal(t, "host=db.internal port=6543 user=themis password= dbname=audits sslmode=disable", cfg.DSN())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("THEMIS_DB_HOST", "pg.local")
	t.Setenv("THEMIS_LOG_LEVEL", "debug")
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "pg.local", cfg.DB.Host)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
