package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "DH", cfg.Orders.TokenPrefix)
	assert.Equal(t, 0.05, cfg.Orders.TaxRate)
	assert.Equal(t, 20*time.Second, cfg.Staff.RefreshInterval())
	assert.Equal(t, 25*time.Millisecond, cfg.Orders.AllocBackoff())
	assert.Equal(t, "surface", cfg.Staff.StalePolicy)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db.internal
  database: cafeteria_prod
orders:
  token_prefix: ZW
  tax_rate: 0.12
staff:
  refresh_interval_seconds: 30
  stale_policy: retry
outlets:
  - id: bites
    name: Campus Bites
    active: true
  - id: old-canteen
    name: Old Canteen
    active: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "cafeteria_prod", cfg.Database.Database)
	assert.Equal(t, "ZW", cfg.Orders.TokenPrefix)
	assert.Equal(t, 0.12, cfg.Orders.TaxRate)
	assert.Equal(t, 30*time.Second, cfg.Staff.RefreshInterval())
	assert.Equal(t, "retry", cfg.Staff.StalePolicy)

	outlet, ok := cfg.Outlet("bites")
	require.True(t, ok)
	assert.True(t, outlet.Active)
	outlet, ok = cfg.Outlet("old-canteen")
	require.True(t, ok)
	assert.False(t, outlet.Active)
	_, ok = cfg.Outlet("ghost")
	assert.False(t, ok)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DB_PASSWORD", "s3cret")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func TestLoad_InvalidStalePolicy(t *testing.T) {
	path := writeConfig(t, "staff:\n  stale_policy: guess\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_InvalidTaxRate(t *testing.T) {
	path := writeConfig(t, "orders:\n  tax_rate: 1.5\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}
