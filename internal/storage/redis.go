package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"Matchmaking/internal/domain"
)

type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// NewRedis connects and pings once; the caller owns Close.
func NewRedis(ctx context.Context, o RedisOptions) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        o.Addr,
		Password:    o.Password,
		DB:          o.DB,
		DialTimeout: o.DialTimeout,
	})
	if err := Ping(ctx, rdb); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// Ping is used by the readiness probe.
func Ping(ctx context.Context, rdb redis.UniversalClient) error {
	return domain.StoreError(rdb.Ping(ctx).Err(), "ping")
}
