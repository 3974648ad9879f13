package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"plantops/portal/internal/kv"
)

const sessionsSchema = `
	CREATE TABLE IF NOT EXISTS device_sessions (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

// SessionRepository is a kv.Store over Postgres, for deployments that keep device
// sessions next to the credential table instead of in Redis.
type SessionRepository struct {
	pool *pgxpool.Pool
}

var _ kv.Store = (*SessionRepository)(nil)

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, sessionsSchema); err != nil {
		return fmt.Errorf("ensure sessions schema: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, kv.ErrKeyRequired
	}
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM device_sessions WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get session %s: %w", key, err)
	}
	return value, true, nil
}

func (r *SessionRepository) Set(ctx context.Context, key string, value string) error {
	if key == "" {
		return kv.ErrKeyRequired
	}
	const query = `
		INSERT INTO device_sessions (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("set session %s: %w", key, err)
	}
	return nil
}

func (r *SessionRepository) Remove(ctx context.Context, key string) error {
	if key == "" {
		return kv.ErrKeyRequired
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM device_sessions WHERE key = $1`, key); err != nil {
		return fmt.Errorf("remove session %s: %w", key, err)
	}
	return nil
}

// Mutate is compare-and-set on the row: the write only lands if the value read is
// still the stored one, otherwise fn runs again on the fresh value.
func (r *SessionRepository) Mutate(ctx context.Context, key string, fn kv.MutateFunc) error {
	if key == "" {
		return kv.ErrKeyRequired
	}

	for attempt := 0; attempt < kv.MaxMutateAttempts; attempt++ {
		current, ok, err := r.Get(ctx, key)
		if err != nil {
			return err
		}
		next, err := fn(current, ok)
		if err != nil {
			return err
		}
		if ok && next == current {
			return nil
		}

		var tag pgconn.CommandTag
		if ok {
			tag, err = r.pool.Exec(ctx,
				`UPDATE device_sessions SET value = $2, updated_at = NOW() WHERE key = $1 AND value = $3`,
				key, next, current)
		} else {
			tag, err = r.pool.Exec(ctx,
				`INSERT INTO device_sessions (key, value, updated_at) VALUES ($1, $2, NOW()) ON CONFLICT (key) DO NOTHING`,
				key, next)
		}
		if err != nil {
			return fmt.Errorf("mutate session %s: %w", key, err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
	}
	return fmt.Errorf("mutate session %s: %w", key, kv.ErrConflict)
}
