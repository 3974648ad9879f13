package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"plantops/portal/internal/ids"
	"plantops/portal/internal/models"
)

const uniqueViolation = "23505"

const usersSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		username      TEXT NOT NULL,
		nik           TEXT NOT NULL,
		password_hash BYTEA NOT NULL,
		role          TEXT NOT NULL,
		location      TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower_idx ON users (LOWER(username));
	CREATE UNIQUE INDEX IF NOT EXISTS users_nik_lower_idx ON users (LOWER(nik));
`

const userColumns = `id, username, nik, password_hash, role, location, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, usersSchema); err != nil {
		return fmt.Errorf("ensure users schema: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.NIK,
		&user.PasswordHash,
		&user.Role,
		&user.Location,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY LOWER(username)`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.User{}, ErrUserNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users
		WHERE LOWER(username) = LOWER($1) OR LOWER(nik) = LOWER($1)
		ORDER BY LOWER(username) = LOWER($1) DESC
		LIMIT 1`

	return scanUser(r.pool.QueryRow(ctx, query, identifier))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// collides checks the cross-field identifier invariant against every other row.
func collides(ctx context.Context, q pgx.Tx, user models.User) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE id <> $1 AND (
				LOWER(username) IN (LOWER($2), LOWER($3)) OR
				LOWER(nik) IN (LOWER($2), LOWER($3))
			)
		)
	`
	var exists bool
	if err := q.QueryRow(ctx, query, user.ID, user.Username, user.NIK).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *UserRepository) Add(ctx context.Context, user models.User) (models.User, error) {
	user.ID = ids.New()

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		exists, err := collides(ctx, tx, user)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdentifier
		}

		query := `
			INSERT INTO users (id, username, nik, password_hash, role, location, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			RETURNING ` + userColumns
		stored, err := scanUser(tx.QueryRow(ctx, query,
			user.ID,
			user.Username,
			user.NIK,
			user.PasswordHash,
			user.Role,
			user.Location,
		))
		if err != nil {
			return err
		}
		user = stored
		return nil
	})
	if err != nil {
		return models.User{}, mapWriteError(err)
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, id string, patch models.UserPatch) (models.User, error) {
	var updated models.User

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		merged := patch.Apply(current)
		exists, err := collides(ctx, tx, merged)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdentifier
		}

		query := `
			UPDATE users
			SET username = $2, nik = $3, password_hash = $4, role = $5, location = $6, updated_at = NOW()
			WHERE id = $1
			RETURNING ` + userColumns
		updated, err = scanUser(tx.QueryRow(ctx, query,
			merged.ID,
			merged.Username,
			merged.NIK,
			merged.PasswordHash,
			merged.Role,
			merged.Location,
		))
		return err
	})
	if err != nil {
		return models.User{}, mapWriteError(err)
	}
	return updated, nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateIdentifier
	}
	return err
}
