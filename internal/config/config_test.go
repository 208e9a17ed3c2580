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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []int{1, 2, 3, 5}, cfg.Lifecycle.RenewalYears)
	assert.Equal(t, 30, cfg.Lifecycle.GracePeriodDays)
	assert.Equal(t, 4, cfg.Sync.Workers)
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
  mode: release
registrars:
  - name: acme
    api_url: https://registrar.example/api
    api_key: k
    timeout: 5s
lifecycle:
  renewal_years: [1, 2]
  default_registrar: acme
sync:
  check_interval: "*/5 * * * *"
  workers: 8
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, []int{1, 2}, cfg.Lifecycle.RenewalYears)
	assert.Equal(t, 8, cfg.Sync.Workers)
	// untouched fields keep defaults
	assert.Equal(t, 30, cfg.Lifecycle.RedemptionDays)

	require.Len(t, cfg.Registrars, 1)
	timeout, err := cfg.Registrars[0].TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, timeout)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DOMAINS_SERVER_PORT", "7070")
	t.Setenv("DOMAINS_SYNC_WORKERS", "2")
	t.Setenv("DOMAINS_SYNC_ENABLED", "false")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, 2, cfg.Sync.Workers)
	assert.False(t, cfg.Sync.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad db type", func(c *Config) { c.Database.Type = "mysql" }, "unsupported database type"},
		{"empty years", func(c *Config) { c.Lifecycle.RenewalYears = nil }, "renewal_years"},
		{"zero year", func(c *Config) { c.Lifecycle.RenewalYears = []int{0} }, "invalid value 0"},
		{"no workers", func(c *Config) { c.Sync.Workers = 0 }, "sync.workers"},
		{"bad cron", func(c *Config) { c.Sync.CheckInterval = "every day" }, "check_interval"},
		{"bad advance cron", func(c *Config) { c.Lifecycle.AdvanceInterval = "nope" }, "advance_interval"},
		{"registrar missing url", func(c *Config) { c.Registrars = []RegistrarConfig{{Name: "a"}} }, "name and api_url"},
		{"duplicate registrar", func(c *Config) {
			c.Registrars = []RegistrarConfig{{Name: "a", APIURL: "http://x"}, {Name: "a", APIURL: "http://y"}}
		}, "duplicate registrar"},
		{"bad timeout", func(c *Config) {
			c.Registrars = []RegistrarConfig{{Name: "a", APIURL: "http://x", Timeout: "soon"}}
		}, "invalid duration"},
		{"unknown default registrar", func(c *Config) { c.Lifecycle.DefaultRegistrar = "ghost" }, "not configured"},
		{"notify without url", func(c *Config) { c.Notify.Enabled = true }, "notify.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	assert.NoError(t, Default().Validate())
}
