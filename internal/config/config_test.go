package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "warden", cfg.Issuer)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.MFATokenTTL)
	assert.Equal(t, bcrypt.DefaultCost, cfg.BcryptCost)
	assert.Equal(t, 5, cfg.LockoutThreshold)
	assert.Equal(t, 2*time.Hour, cfg.LockoutDuration)
	assert.Equal(t, time.Hour, cfg.ResetTokenTTL)
	assert.Equal(t, 8, cfg.BackupCodeSize)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("LOCKOUT_THRESHOLD", "3")
	t.Setenv("LOCKOUT_DURATION", "30m")
	t.Setenv("BCRYPT_COST", "12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 3, cfg.LockoutThreshold)
	assert.Equal(t, 30*time.Minute, cfg.LockoutDuration)
	assert.Equal(t, 12, cfg.BcryptCost)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("ACCESS_TOKEN_TTL", "not-a-duration")
	t.Setenv("LOCKOUT_THRESHOLD", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 5, cfg.LockoutThreshold)
}

func TestLoad_MissingSecrets(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "")
	t.Setenv("REFRESH_TOKEN_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_IdenticalSecretsRejected(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "same")
	t.Setenv("REFRESH_TOKEN_SECRET", "same")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BcryptCostOutOfRange(t *testing.T) {
	setRequired(t)
	t.Setenv("BCRYPT_COST", "99")

	_, err := Load()
	assert.Error(t, err)
}
