package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carecompanion/n1/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"N1_DB_PATH", "N1_PORT", "N1_USER_ID", "ENV", "N1_LOG_LEVEL", "N1_TZ", "N1_SERVER_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "./n1.db", cfg.DBPath)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Production())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("N1_DB_PATH", "/tmp/n1-test.db")
	t.Setenv("N1_PORT", "9090")
	t.Setenv("N1_USER_ID", "alex")
	t.Setenv("ENV", "production")
	t.Setenv("N1_TZ", "America/New_York")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/n1-test.db", cfg.DBPath)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "alex", cfg.UserID)
	assert.True(t, cfg.Production())
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("N1_PORT", "eighty")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	loc, err := config.Config{Timezone: "Local"}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = config.Config{Timezone: "UTC"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = config.Config{Timezone: "Mars/Olympus_Mons"}.Location()
	assert.Error(t, err)
}
