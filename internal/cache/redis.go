package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"plantops/portal/internal/config"
	"plantops/portal/internal/database"
)

// RedisOptions maps cfg onto the client options, naming the connection after the
// portal so it shows up in CLIENT LIST.
func RedisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   config.ApplicationName,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// NewRedisClient connects the client shared by the kv store and the audit stream.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(RedisOptions(cfg))

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	release := func() { _ = client.Close() }
	if err := database.Verify(ctx, "redis", cfg.DialTimeout, ping, release); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Addr, err)
	}
	return client, nil
}
