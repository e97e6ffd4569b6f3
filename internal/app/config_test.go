package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/padma-erp/padma-erp/internal/testing/guard"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, 30*time.Second, cfg.OrderLockTTL)
	require.Equal(t, 720*time.Hour, cfg.IdempotencyRetention)
	require.False(t, cfg.IsProduction())
}

func TestConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "10")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 10, cfg.RateLimitPerMinute)
}

func TestInTestMode(t *testing.T) {
	// the guard import pins PADMA_TEST_MODE for the whole test binary
	RefreshTestMode()
	require.True(t, InTestMode())
}
