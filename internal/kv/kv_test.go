package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "plantops:"), mr
}

func TestStores(t *testing.T) {
	redisStore, _ := newRedisStore(t)
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "currentUser")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "currentUser", `{"id":"1"}`))
			value, ok, err := store.Get(ctx, "currentUser")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `{"id":"1"}`, value)

			require.NoError(t, store.Remove(ctx, "currentUser"))
			require.NoError(t, store.Remove(ctx, "currentUser"))
			_, ok, err = store.Get(ctx, "currentUser")
			require.NoError(t, err)
			assert.False(t, ok)

			assert.ErrorIs(t, store.Set(ctx, "", "x"), ErrKeyRequired)
		})
	}
}

func TestRedisStorePrefix(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, store.Set(context.Background(), "users", "[]"))

	value, err := mr.Get("plantops:users")
	require.NoError(t, err)
	assert.Equal(t, "[]", value)
}

func TestDeviceScopeIsolatesDevices(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	first := DeviceScope(base, "dev-a")
	second := DeviceScope(base, "dev-b")

	require.NoError(t, first.Set(ctx, "currentUser", "a"))
	_, ok, err := second.Get(ctx, "currentUser")
	require.NoError(t, err)
	assert.False(t, ok)

	value, ok, err := base.Get(ctx, "device:dev-a:currentUser")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", value)
}

func TestMutate(t *testing.T) {
	redisStore, _ := newRedisStore(t)
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
		"scoped": Scope(NewMemoryStore(), "credentials:"),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Mutate(ctx, "counter", func(current string, ok bool) (string, error) {
				assert.False(t, ok)
				return current + "a", nil
			}))
			require.NoError(t, store.Mutate(ctx, "counter", func(current string, ok bool) (string, error) {
				assert.True(t, ok)
				return current + "b", nil
			}))

			abort := errors.New("abort")
			err := store.Mutate(ctx, "counter", func(string, bool) (string, error) { return "lost", abort })
			assert.ErrorIs(t, err, abort)

			value, _, err := store.Get(ctx, "counter")
			require.NoError(t, err)
			assert.Equal(t, "ab", value)

			assert.ErrorIs(t, store.Mutate(ctx, "", func(c string, _ bool) (string, error) { return c, nil }), ErrKeyRequired)
		})
	}
}

func TestRedisMutateRetriesOnConcurrentWrite(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "users", "v1"))

	calls := 0
	err := store.Mutate(ctx, "users", func(current string, ok bool) (string, error) {
		calls++
		if calls == 1 {
			// Another client writes between our read and our EXEC.
			mr.Set("plantops:users", "v2")
		}
		return current + "+mine", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	value, err := mr.Get("plantops:users")
	require.NoError(t, err)
	assert.Equal(t, "v2+mine", value)
}
