package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.SessionTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.RoomTimeout)
	assert.Equal(t, time.Hour, cfg.ReapInterval)
	assert.Equal(t, 100, cfg.HistoryLimit)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SESSION_TIMEOUT", "1h")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9000, cfg.Port)
	assert.Len(t, cfg.AllowedOrigins, 2)
	assert.Equal(t, time.Hour, cfg.SessionTimeout)
}

func TestLoadConfigRejectsPrivilegedPort(t *testing.T) {
	t.Setenv("PORT", "80")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsNonPositiveTimers(t *testing.T) {
	t.Setenv("SESSION_TIMEOUT", "0s")

	_, err := LoadConfig()
	assert.Error(t, err)
}
