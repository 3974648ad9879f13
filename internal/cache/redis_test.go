package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantops/portal/internal/config"
)

func TestNewRedisClient(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: server.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "ping", "pong", 0).Err())
	server.CheckGet(t, "ping", "pong")

	name, err := client.ClientGetName(context.Background()).Result()
	require.NoError(t, err)
	assert.Equal(t, config.ApplicationName, name)
}

func TestRedisOptions(t *testing.T) {
	opts := RedisOptions(config.RedisConfig{Addr: "cache:6379", DB: 2, DialTimeout: time.Second, ReadTimeout: 2 * time.Second})

	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, config.ApplicationName, opts.ClientName)
	assert.Equal(t, time.Second, opts.DialTimeout)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	_, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
