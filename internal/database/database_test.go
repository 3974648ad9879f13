package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantops/portal/internal/config"
)

func TestPostgresPoolConfig(t *testing.T) {
	poolConfig, err := PostgresPoolConfig(config.PostgresConfig{
		DSN:              "postgres://portal:secret@db:5432/plantops",
		MaxOpen:          12,
		MaxIdle:          4,
		ConnMaxLifetime:  time.Minute,
		ConnectTimeout:   3 * time.Second,
		StatementTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	assert.EqualValues(t, 12, poolConfig.MaxConns)
	assert.EqualValues(t, 4, poolConfig.MinConns)
	assert.Equal(t, time.Minute, poolConfig.MaxConnLifetime)
	assert.Equal(t, 3*time.Second, poolConfig.ConnConfig.ConnectTimeout)
	assert.Equal(t, config.ApplicationName, poolConfig.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "5000", poolConfig.ConnConfig.RuntimeParams["statement_timeout"])
}

func TestPostgresPoolConfigKeepsDSNSettings(t *testing.T) {
	poolConfig, err := PostgresPoolConfig(config.PostgresConfig{
		DSN: "postgres://portal@db/plantops?application_name=reporting&pool_max_conns=3",
	})
	require.NoError(t, err)

	assert.EqualValues(t, 3, poolConfig.MaxConns)
	assert.Equal(t, "reporting", poolConfig.ConnConfig.RuntimeParams["application_name"])
	assert.NotContains(t, poolConfig.ConnConfig.RuntimeParams, "statement_timeout")
}

func TestPostgresPoolConfigBadDSN(t *testing.T) {
	_, err := PostgresPoolConfig(config.PostgresConfig{DSN: "postgres://db:notaport/x"})
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	released := false
	err := Verify(context.Background(), "redis", time.Second,
		func(context.Context) error { return errors.New("refused") },
		func() { released = true },
	)
	assert.EqualError(t, err, "redis ping: refused")
	assert.True(t, released)

	released = false
	err = Verify(context.Background(), "redis", 0,
		func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			return nil
		},
		func() { released = true },
	)
	assert.NoError(t, err)
	assert.False(t, released)
}
