package db

import (
	"context"
	"errors"
	"fmt"

	"backend-stoperica/internal/config"

	"github.com/redis/go-redis/v9"
)

var ErrNoRedis = errors.New("REDIS_ADDR is not set")

// ConnectRedis returns nil when no address is configured; live sessions and
// the stream bridge are then disabled.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

// DialRedis is ConnectRedis plus a ping, for callers that need Redis now.
func DialRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	rdb := ConnectRedis(cfg)
	if rdb == nil {
		return nil, ErrNoRedis
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}
