package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8008", cfg.Port)
	require.Equal(t, 60*time.Second, cfg.HeartbeatInterval)
	require.Equal(t, 5*time.Second, cfg.DeliveryTimeout)
	require.Equal(t, 64, cfg.MaxParallelDeliveries)
	require.False(t, cfg.WSRequireToken)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HEARTBEAT_INTERVAL", "30s")
	t.Setenv("WS_REQUIRE_TOKEN", "true")
	t.Setenv("MAX_PARALLEL_DELIVERIES", "8")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	require.True(t, cfg.WSRequireToken)
	require.Equal(t, 8, cfg.MaxParallelDeliveries)
}

func TestLoad_RejectsPingSlowerThanPong(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WS_PING_INTERVAL", "90s")

	_, err := Load()
	require.ErrorContains(t, err, "WS_PING_INTERVAL")
}

func TestLoad_RejectsShortSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()
	require.ErrorContains(t, err, "JWT_SECRET")
}
