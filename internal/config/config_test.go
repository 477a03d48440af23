package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the config directory at a temp dir and runs the test from
// another temp dir so no stray .env file is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Chdir(t.TempDir())
	return filepath.Join(xdg, "aurtrust")
}

func TestDirRespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg/aurtrust", dir)
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "ledger.yaml"), cfg.LedgerPath)
	assert.Equal(t, "https://aur.archlinux.org/rpc/", cfg.RPCURL)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2, cfg.Retries)
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff)
	assert.Equal(t, time.Hour, cfg.WatchInterval)
	assert.Empty(t, cfg.ConfigFile)
	assert.Empty(t, cfg.TrustedMaintainers)
	assert.Empty(t, cfg.CAFile)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".aurtrust", "audit.db"), cfg.DBPath)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
concurrency: 4
retries: 5
timeout: 1m
ignore:
  - aur/local-build
`), 0644))

	t.Setenv("AURTRUST_RETRIES", "1")
	t.Setenv("AURTRUST_LEDGER", "/srv/trust/ledger.yaml")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 1, cfg.Retries, "environment overrides the config file")
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.Equal(t, "/srv/trust/ledger.yaml", cfg.LedgerPath)
	assert.Equal(t, []string{"aur/local-build"}, cfg.Ignore)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), cfg.ConfigFile)
}

func TestLoadTrustedMaintainersAndCAFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
trusted_maintainers:
  - Alad
  - swsnr
ca_file: /etc/aurtrust/isrgrootx1.pem
`), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alad", "swsnr"}, cfg.TrustedMaintainers)
	assert.Equal(t, "/etc/aurtrust/isrgrootx1.pem", cfg.CAFile)

	t.Setenv("AURTRUST_TRUSTED_MAINTAINERS", "jguer Morganamilo")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"jguer", "Morganamilo"}, cfg.TrustedMaintainers)
}

func TestLoadEnvFile(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(".env", []byte("AURTRUST_CONCURRENCY=3\n"), 0644))
	require.NoError(t, os.WriteFile(".env.local", []byte("AURTRUST_CONCURRENCY=2\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("AURTRUST_CONCURRENCY") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Concurrency, ".env.local takes precedence over .env")
}

func TestLoadExplicitConfigMustExist(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			LedgerPath:     "/tmp/ledger.yaml",
			Concurrency:    1,
			Timeout:        time.Second,
			RequestTimeout: time.Second,
			WatchInterval:  time.Hour,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty ledger", func(c *Config) { c.LedgerPath = "" }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"negative retries", func(c *Config) { c.Retries = -1 }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"tiny watch interval", func(c *Config) { c.WatchInterval = time.Second }},
	}

	base := valid()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
