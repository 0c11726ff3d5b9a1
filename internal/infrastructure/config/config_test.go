package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.Server.Port)
	assert.Equal(t, "filesystem", cfg.Storage.Mode)
	assert.Equal(t, 2000, cfg.Identity.DebounceMS)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORAGE_MODE", "cloud")
	t.Setenv("AUTH_DEBOUNCE_MS", "500")
	t.Setenv("OAUTH_PROXY_URL", "http://proxy:9100")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "cloud", cfg.Storage.Mode)
	assert.Equal(t, 500, cfg.Identity.DebounceMS)
	assert.Equal(t, "http://proxy:9100", cfg.Identity.ProxyURL)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestDefaultMatchesLoad(t *testing.T) {
	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), loaded)
}
