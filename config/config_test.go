package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Matchmaking/internal/domain"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8082", c.Server.Port)
	assert.Equal(t, "redis", c.Storage.Driver)
	assert.Equal(t, 1500*time.Millisecond, c.Matchmaking.MatchInterval)
	assert.Equal(t, 30*time.Minute, c.Matchmaking.QueueExpiry)
	assert.Equal(t, 2*time.Hour, c.Matchmaking.RoomExpiry)
	assert.Equal(t, 5*time.Minute, c.Cleanup.Interval)
	assert.Equal(t, 1000, c.Cleanup.ScanLimit)
	assert.Equal(t, "rooms:index", c.Keys.RoomIndex)
	assert.Equal(t, "room.notifications", c.Channels.RoomNotifications)
	assert.Equal(t, 10, c.RateLimit.PerMinute)
	assert.Equal(t, 10*time.Minute, c.RateLimit.Idle)

	p := c.Policy()
	assert.Equal(t, 2, p.MinPlayersForRoom)
	assert.Equal(t, 2, p.Capacity(domain.ModePVP))
	assert.Equal(t, 4, p.Capacity(domain.ModeBoss))
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "matchmaking:\n  maxPlayersBoss: 6\n  matchInterval: 250ms\nstorage:\n  driver: memory\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("REDIS_ADDR", "cache:6380")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, c.Matchmaking.MaxPlayersBoss)
	assert.Equal(t, 250*time.Millisecond, c.Matchmaking.MatchInterval)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, "cache:6380", c.Redis.Addr)
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	cases := map[string]string{
		"capacity below minimum": "matchmaking:\n  minPlayersForRoom: 5\n",
		"single player rooms":    "matchmaking:\n  minPlayersForRoom: 1\n",
		"zero lock ttl":          "matchmaking:\n  lockTTL: 0s\n",
		"negative lock ttl":      "matchmaking:\n  lockTTL: -1s\n",
		"unknown driver":         "storage:\n  driver: postgres\n",
	}
	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsBadPolicyFromEnv(t *testing.T) {
	t.Setenv("MATCHMAKING_MINPLAYERSFORROOM", "1")
	_, err := Load("")
	assert.Error(t, err)
}
