package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, "conference.localhost", cfg.MUC.Domain)
	assert.True(t, cfg.MUC.RegistrationEnabled)
	assert.True(t, cfg.MUC.RoomDefaults.Public)
	assert.Equal(t, 30, cfg.MUC.RoomDefaults.MaxUsers)
	assert.Equal(t, 256, cfg.Search.CacheSize)
	assert.Equal(t, 30*time.Second, cfg.Search.CacheTTL)
	assert.Equal(t, time.Second, cfg.Rate.Interval)
	assert.Empty(t, cfg.Store.Path)
	assert.False(t, cfg.Cluster.Enabled())
	assert.NotEmpty(t, cfg.Cluster.NodeID)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("MUCD_PORT", "9090")
	t.Setenv("MUCD_MUC_DOMAIN", "rooms.example.org")
	t.Setenv("MUCD_MUC_SKIP_INVITE", "true")
	t.Setenv("MUCD_CLUSTER_NODE_ID", "node-7")
	t.Setenv("MUCD_SEARCH_CACHE_TTL", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "rooms.example.org", cfg.MUC.Domain)
	assert.True(t, cfg.MUC.SkipInvite)
	assert.Equal(t, "node-7", cfg.Cluster.NodeID)
	assert.Equal(t, 2*time.Minute, cfg.Search.CacheTTL)
}
