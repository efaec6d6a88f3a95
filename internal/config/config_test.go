package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Providers.Timeout)

	assert.True(t, cfg.Security.RateLimiting.Enabled)
	assert.Equal(t, 60, cfg.Security.RateLimiting.MaxRequestsPerMinute)
	assert.Equal(t, 1000, cfg.Security.RateLimiting.MaxRequestsPerHour)
	assert.Equal(t, 4.0, cfg.Security.ACEGate.Threshold)
	assert.Equal(t, []string{"chatbot"}, cfg.Security.ACEGate.Applications)
	assert.Contains(t, cfg.Security.ContentFiltering.CrisisTriggers, "suicide")

	assert.Equal(t, 30*time.Minute, cfg.Session.Timeout)
	assert.Equal(t, 5, cfg.Session.MaxConcurrentSessions)
	assert.Equal(t, 20, cfg.Context.MaxHistory)
	assert.Equal(t, 24*time.Hour, cfg.Context.Retention)

	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "en", cfg.I18n.DefaultLanguage)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Security.RateLimiting.MaxRequestsPerMinute)
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
session:
  timeout: 10m
security:
  ace_gate:
    threshold: 2.5
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 10*time.Minute, cfg.Session.Timeout)
	assert.Equal(t, 2.5, cfg.Security.ACEGate.Threshold)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5, cfg.Session.MaxConcurrentSessions)
}

func TestLoadConfig_EndpointsFromEnv(t *testing.T) {
	t.Setenv("PROVIDER_ENDPOINTS", "openai, spare")
	t.Setenv("OPENAI_BASE_URL", "https://api.openai.com/v1")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("SPARE_BASE_URL", "https://spare.example.com")
	t.Setenv("SPARE_API_KEY", "key2")
	t.Setenv("SPARE_TYPE", "anthropic")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	require.Len(t, cfg.Providers.Endpoints, 2)
	assert.Equal(t, "openai", cfg.Providers.Endpoints[0].Name)
	assert.Equal(t, "openai", cfg.Providers.Endpoints[0].Type)
	assert.Equal(t, "gpt-4o-mini", cfg.Providers.Endpoints[0].Model)
	assert.True(t, cfg.Providers.Endpoints[0].Enabled)
	assert.Equal(t, "anthropic", cfg.Providers.Endpoints[1].Type)
}

func TestLoadConfig_EndpointWithoutKeySkipped(t *testing.T) {
	t.Setenv("PROVIDER_ENDPOINTS", "half")
	t.Setenv("HALF_BASE_URL", "https://half.example.com")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Providers.Endpoints)
}

func TestValidateConfig(t *testing.T) {
	cfg := Default()
	cfg.Providers.Endpoints = []ProviderEndpoint{{Name: "x", Type: "telegraph"}}
	assert.Error(t, validateConfig(cfg))

	cfg = Default()
	cfg.Session.MaxConcurrentSessions = 0
	assert.Error(t, validateConfig(cfg))

	cfg = Default()
	cfg.Providers.Endpoints = []ProviderEndpoint{{Type: "openai"}}
	assert.Error(t, validateConfig(cfg), "endpoint name is required")
}
