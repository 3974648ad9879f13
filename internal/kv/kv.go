// Package kv is the persistent key-value boundary the session and credential stores
// are written against.
package kv

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrKeyRequired = errors.New("kv: key required")
	// ErrConflict means other writers kept changing the key until Mutate gave up.
	ErrConflict = errors.New("kv: too many concurrent updates")
)

// MaxMutateAttempts bounds the optimistic retries of stores that implement Mutate
// with compare-and-set.
const MaxMutateAttempts = 64

// MutateFunc receives the current value (ok is false when the key is absent) and
// returns the value to store. An error aborts the mutation and is returned as is.
// Stores may call it more than once.
type MutateFunc func(current string, ok bool) (string, error)

type Store interface {
	// Get returns the value stored under key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Mutate replaces the value of key with fn's result, atomically with respect to
	// every other writer of the key. Returning the current value unchanged writes nothing.
	Mutate(ctx context.Context, key string, fn MutateFunc) error
}

type scoped struct {
	store  Store
	prefix string
}

// Scope namespaces every key of store under prefix.
func Scope(store Store, prefix string) Store {
	return scoped{store: store, prefix: prefix}
}

// DeviceScope namespaces store to a single device, the unit that holds one session.
func DeviceScope(store Store, deviceID string) Store {
	return Scope(store, fmt.Sprintf("device:%s:", deviceID))
}

func (s scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.store.Get(ctx, s.prefix+key)
}

func (s scoped) Set(ctx context.Context, key string, value string) error {
	return s.store.Set(ctx, s.prefix+key, value)
}

func (s scoped) Remove(ctx context.Context, key string) error {
	return s.store.Remove(ctx, s.prefix+key)
}

func (s scoped) Mutate(ctx context.Context, key string, fn MutateFunc) error {
	return s.store.Mutate(ctx, s.prefix+key, fn)
}
