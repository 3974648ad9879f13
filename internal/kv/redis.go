package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore stores every key under prefix in client's selected database.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrKeyRequired
	}
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value string) error {
	if key == "" {
		return ErrKeyRequired
	}
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Mutate runs fn inside WATCH/MULTI and retries when another client touched the key
// between the read and the write.
func (s *RedisStore) Mutate(ctx context.Context, key string, fn MutateFunc) error {
	if key == "" {
		return ErrKeyRequired
	}
	fullKey := s.prefix + key

	for attempt := 0; attempt < MaxMutateAttempts; attempt++ {
		var fnErr error
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, fullKey).Result()
			ok := true
			if errors.Is(err, redis.Nil) {
				current, ok = "", false
			} else if err != nil {
				return err
			}

			next, err := fn(current, ok)
			if err != nil {
				fnErr = err
				return err
			}
			if ok && next == current {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, fullKey, next, 0)
				return nil
			})
			return err
		}, fullKey)

		switch {
		case fnErr != nil:
			return fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		case err != nil:
			return fmt.Errorf("redis mutate %s: %w", key, err)
		default:
			return nil
		}
	}
	return fmt.Errorf("redis mutate %s: %w", key, ErrConflict)
}
