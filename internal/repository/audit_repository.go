package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"plantops/portal/internal/models"
)

const auditSchema = `
	CREATE TABLE IF NOT EXISTS auth_audit (
		id          BIGSERIAL PRIMARY KEY,
		type        TEXT NOT NULL,
		user_id     TEXT NOT NULL DEFAULT '',
		identifier  TEXT NOT NULL DEFAULT '',
		device_id   TEXT NOT NULL DEFAULT '',
		actor_id    TEXT NOT NULL DEFAULT '',
		at          TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS auth_audit_at_idx ON auth_audit (at DESC);
`

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, auditSchema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (r *AuditRepository) Insert(ctx context.Context, entry models.AuditEntry) error {
	const query = `
		INSERT INTO auth_audit (type, user_id, identifier, device_id, actor_id, at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.Type,
		entry.UserID,
		entry.Identifier,
		entry.DeviceID,
		entry.ActorID,
		entry.At,
	)
	return err
}

func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	const query = `
		SELECT id, type, user_id, identifier, device_id, actor_id, at
		FROM auth_audit
		ORDER BY at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Type,
			&entry.UserID,
			&entry.Identifier,
			&entry.DeviceID,
			&entry.ActorID,
			&entry.At,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
