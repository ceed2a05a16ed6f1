package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"CUSTODY_ADDR", "SESSION_TTL", "OTP_TTL", "KEY_DIR", "DATABASE_URL", "REDIS_URL",
		"BATCH_VERIFY_CONCURRENCY", "SEED_CUSTODIAN_EMAIL", "SEED_CUSTODIAN_PASSWORD"} {
		t.Setenv(k, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 10*time.Minute, cfg.OTPTTL)
	assert.Equal(t, "./var/keys", cfg.KeyDir)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 4, cfg.BatchVerifyConcurrency)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CUSTODY_ADDR", ":9090")
	t.Setenv("OTP_TTL", "2m")
	t.Setenv("BATCH_VERIFY_CONCURRENCY", "8")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 2*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 8, cfg.BatchVerifyConcurrency)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestFromEnvRejectsInvalid(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("OTP_TTL", "soon")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("half-configured custodian seed", func(t *testing.T) {
		t.Setenv("SEED_CUSTODIAN_EMAIL", "admin@example.com")
		t.Setenv("SEED_CUSTODIAN_PASSWORD", "")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("non-positive concurrency", func(t *testing.T) {
		t.Setenv("BATCH_VERIFY_CONCURRENCY", "0")
		_, err := FromEnv()
		assert.Error(t, err)
	})
}
