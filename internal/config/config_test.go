package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfigFile(t *testing.T, dir string, values map[string]interface{}) {
	t.Helper()
	data, err := yaml.Marshal(values)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "codewarden.yaml"), data, 0644))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultMaxConnections, cfg.MaxConnections)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimit)
	assert.Equal(t, time.Duration(DefaultRatePeriodSec)*time.Second, cfg.RatePeriod)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.False(t, cfg.AuthEnabled())
	assert.False(t, cfg.IPFilterEnabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/test.db")
	t.Setenv("API_KEYS", "key-a, key-b,")
	t.Setenv("ALLOWED_IPS", "127.0.0.1,10.0.0.5")
	t.Setenv("RATE_LIMIT", "5")
	t.Setenv("RATE_PERIOD_SEC", "10")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.APIKeys)
	assert.Equal(t, []string{"127.0.0.1", "10.0.0.5"}, cfg.AllowedIPs)
	assert.Equal(t, 5, cfg.RateLimit)
	assert.Equal(t, 10*time.Second, cfg.RatePeriod)
	assert.True(t, cfg.AuthEnabled())
	assert.True(t, cfg.IPFilterEnabled())
}

func TestLoadDBURLAlias(t *testing.T) {
	t.Setenv("DB_URL", "/tmp/alias.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/alias.db", cfg.DBPath)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, map[string]interface{}{
		"db_path":    "/tmp/from-file.db",
		"rate_limit": 42,
		"log_level":  "debug",
	})

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-file.db", cfg.DBPath)
	assert.Equal(t, 42, cfg.RateLimit)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestEnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, map[string]interface{}{"rate_limit": 42})
	t.Setenv("RATE_LIMIT", "7")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RateLimit)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"zero max connections", func(c *Config) { c.MaxConnections = 0 }},
		{"negative rate limit", func(c *Config) { c.RateLimit = -1 }},
		{"bad allowed ip", func(c *Config) { c.AllowedIPs = []string{"not-an-ip"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				DBPath:         "x.db",
				MaxConnections: 1,
				RateLimit:      1,
				RatePeriod:     time.Second,
				RequestTimeout: time.Second,
			}
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
