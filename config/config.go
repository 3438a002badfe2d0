package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"Matchmaking/internal/domain"
)

type Config struct {
	Server struct {
		Port        string
		APIPrefix   string   `mapstructure:"apiPrefix"`
		CorsOrigins []string `mapstructure:"corsOrigins"`
	}
	Storage struct {
		Driver string // redis | memory
	}
	Redis struct {
		Addr        string
		Password    string
		DB          int
		DialTimeout time.Duration `mapstructure:"dialTimeout"`
	}
	Matchmaking struct {
		MatchInterval     time.Duration `mapstructure:"matchInterval"`
		StatsInterval     time.Duration `mapstructure:"statsInterval"`
		QueueExpiry       time.Duration `mapstructure:"queueExpiry"`
		RoomExpiry        time.Duration `mapstructure:"roomExpiry"`
		MaxPlayersPvp     int           `mapstructure:"maxPlayersPvp"`
		MaxPlayersBoss    int           `mapstructure:"maxPlayersBoss"`
		MinPlayersForRoom int           `mapstructure:"minPlayersForRoom"`
		LockTTL           time.Duration `mapstructure:"lockTTL"`
	}
	Cleanup struct {
		Interval     time.Duration
		AbandonAfter time.Duration `mapstructure:"abandonAfter"`
		ScanLimit    int           `mapstructure:"scanLimit"`
	}
	Keys struct {
		QueuePrefix      string `mapstructure:"queuePrefix"`
		RoomPrefix       string `mapstructure:"roomPrefix"`
		RoomIndex        string `mapstructure:"roomIndex"`
		PlayerRoomPrefix string `mapstructure:"playerRoomPrefix"`
		LockPrefix       string `mapstructure:"lockPrefix"`
	}
	Channels struct {
		RoomNotifications string `mapstructure:"roomNotifications"`
	}
	JWT struct {
		Secret string
	}
	RateLimit struct {
		PerMinute        int `mapstructure:"perMinute"`
		Burst            int
		GeneralPerMinute int           `mapstructure:"generalPerMinute"`
		GeneralBurst     int           `mapstructure:"generalBurst"`
		Idle             time.Duration `mapstructure:"idle"`
	}
	Log struct {
		Level string
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8082")
	v.SetDefault("server.apiPrefix", "/api")
	v.SetDefault("server.corsOrigins", []string{"*"})

	v.SetDefault("storage.driver", "redis")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dialTimeout", 2*time.Second)

	v.SetDefault("matchmaking.matchInterval", 1500*time.Millisecond)
	v.SetDefault("matchmaking.statsInterval", 10*time.Second)
	v.SetDefault("matchmaking.queueExpiry", 30*time.Minute)
	v.SetDefault("matchmaking.roomExpiry", 2*time.Hour)
	v.SetDefault("matchmaking.maxPlayersPvp", 2)
	v.SetDefault("matchmaking.maxPlayersBoss", 4)
	v.SetDefault("matchmaking.minPlayersForRoom", 2)
	v.SetDefault("matchmaking.lockTTL", 10*time.Second)

	v.SetDefault("cleanup.interval", 5*time.Minute)
	v.SetDefault("cleanup.abandonAfter", 30*time.Minute)
	v.SetDefault("cleanup.scanLimit", 1000)

	v.SetDefault("keys.queuePrefix", "queue:")
	v.SetDefault("keys.roomPrefix", "room:")
	v.SetDefault("keys.roomIndex", "rooms:index")
	v.SetDefault("keys.playerRoomPrefix", "player:room:")
	v.SetDefault("keys.lockPrefix", "matchmaking:lock:")

	v.SetDefault("channels.roomNotifications", "room.notifications")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("rateLimit.perMinute", 10)
	v.SetDefault("rateLimit.burst", 5)
	v.SetDefault("rateLimit.generalPerMinute", 100)
	v.SetDefault("rateLimit.generalBurst", 100)
	v.SetDefault("rateLimit.idle", 10*time.Minute)

	v.SetDefault("log.level", "info")
}

// Load reads path if it exists; env vars override (MATCHMAKING_MATCHINTERVAL, REDIS_ADDR, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	m := c.Matchmaking
	// a room needs at least two players to ever become READY
	if m.MinPlayersForRoom < 2 {
		return fmt.Errorf("matchmaking.minPlayersForRoom must be >= 2")
	}
	if m.LockTTL <= 0 {
		return fmt.Errorf("matchmaking.lockTTL must be positive")
	}
	if m.MaxPlayersPvp < m.MinPlayersForRoom || m.MaxPlayersBoss < m.MinPlayersForRoom {
		return fmt.Errorf("mode capacity must be >= matchmaking.minPlayersForRoom (%d)", m.MinPlayersForRoom)
	}
	if m.MatchInterval <= 0 || m.StatsInterval <= 0 || c.Cleanup.Interval <= 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}
	switch c.Storage.Driver {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	return nil
}

func (c *Config) Policy() domain.Policy {
	return domain.Policy{
		MinPlayersForRoom: c.Matchmaking.MinPlayersForRoom,
		MaxPlayers: map[domain.Mode]int{
			domain.ModePVP:  c.Matchmaking.MaxPlayersPvp,
			domain.ModeBoss: c.Matchmaking.MaxPlayersBoss,
		},
	}
}
