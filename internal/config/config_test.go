package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("NOTIFY_WORKERS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 90*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 2, cfg.NotifyWorkers)
	assert.Equal(t, "0 9 * * *", cfg.ReminderSchedule)
}

func TestValidate(t *testing.T) {
	base := Config{DatabaseDriver: "sqlite3", DatabaseURL: "file.db", JWTSecret: "0123456789abcdef", NotifyWorkers: 1}
	require.NoError(t, base.Validate())

	bad := base
	bad.DatabaseDriver = "mysql"
	assert.Error(t, bad.Validate())

	bad = base
	bad.JWTSecret = "short"
	assert.Error(t, bad.Validate())

	bad = base
	bad.NotifyWorkers = 0
	assert.Error(t, bad.Validate())
}

func TestNewLogger(t *testing.T) {
	cfg := Config{LogLevel: "debug", LogFormat: "console"}
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.LogLevel = "loud"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
