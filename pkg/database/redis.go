package database

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/ekaya-projections/pkg/config"
)

const (
	redisClientName  = "ekaya-projections"
	redisDialTimeout = 3 * time.Second
	redisIOTimeout   = time.Second
)

// RedisOptions maps the loaded settings to go-redis options. Cache reads and
// writes use short timeouts so a slow Redis degrades to a cache miss.
func RedisOptions(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   redisClientName,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisIOTimeout,
		WriteTimeout: redisIOTimeout,
	}
}

// NewRedisClient connects to Redis and pings it. It returns nil, nil when
// no host is configured, which disables the import cache.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(RedisOptions(cfg))

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", client.Options().Addr, err)
	}

	return client, nil
}
