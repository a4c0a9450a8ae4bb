package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "file:dealroom.db?cache=shared&mode=rwc", cfg.DatabaseURL)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, "dealroom:", cfg.AuditKeyPrefix)
	assert.Equal(t, DefaultSigningKey, cfg.AgentSigningKey)
	assert.Equal(t, 10, cfg.MaxRounds)
	assert.Equal(t, 3, cfg.MaxCounterOffers)
	assert.Equal(t, 500*time.Millisecond, cfg.RoundDelay)
	assert.Equal(t, time.Minute, cfg.SessionTimeout)
	assert.Equal(t, 120.0, cfg.DemoMaxBudget)
	assert.Equal(t, 80.0, cfg.DemoMinPrice)
	assert.Equal(t, 5.0, cfg.StartRateLimit)
	assert.Equal(t, 30*time.Second, cfg.WSPingInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("MAX_ROUNDS", "4")
	t.Setenv("ROUND_DELAY_MS", "0")
	t.Setenv("DEMO_MAX_BUDGET", "150.5")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 4, cfg.MaxRounds)
	assert.Equal(t, time.Duration(0), cfg.RoundDelay)
	assert.Equal(t, 150.5, cfg.DemoMaxBudget)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoadConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	content := "MAX_COUNTER_OFFERS: 5\nLOG_FORMAT: console\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dealroom.yaml"), []byte(content), 0o600))
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxCounterOffers)
	assert.Equal(t, "json", cfg.LogFormat, "environment wins over the file")
}

func TestLoadRejectsInvalidLimits(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MAX_ROUNDS", "0")

	_, err := Load()
	assert.Error(t, err)
}
