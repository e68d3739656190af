package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_USER", "auth")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "hospital_auth")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "30")
	t.Setenv("BCRYPT_COST", "10")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg := Load()
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Equal(t, 30, cfg.RefreshTTLDays)
	assert.Equal(t, 25, cfg.DBMaxOpenConns)
	assert.Equal(t, 25, cfg.DBMaxIdleConns)
	assert.Equal(t, 30*time.Minute, cfg.DBConnLifetime)
	assert.Equal(t, "http://localhost:3000", cfg.InviteBaseURL)
	assert.Empty(t, cfg.DBPass, "password may be empty")
}

func TestLoad_PoolOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_MAX_OPEN_CONNS", "50")
	t.Setenv("DB_MAX_IDLE_CONNS", "10")
	t.Setenv("DB_CONN_LIFETIME", "5m")
	t.Setenv("INVITE_BASE_URL", "https://portal.example.com")

	cfg := Load()
	assert.Equal(t, 50, cfg.DBMaxOpenConns)
	assert.Equal(t, 10, cfg.DBMaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.DBConnLifetime)
	assert.Equal(t, "https://portal.example.com", cfg.InviteBaseURL)
}

func TestLoadRateLimitConfig_ClampsFloors(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_TOKENS", "-1")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 5*cfg.RefillInterval, cfg.TTL, "TTL never drops below five refill intervals")
}
