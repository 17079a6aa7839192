package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afp-labs/mailgrant/internal/store/core"
)

type accessLogRepo struct {
	pool *pgxpool.Pool
}

func (r *accessLogRepo) Insert(ctx context.Context, ev *core.AccessEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO access_log (
			id, user_id, credential_id, action, success, error_message, ip_address, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::inet, NOW())
		RETURNING created_at
	`
	return r.pool.QueryRow(ctx, query,
		ev.ID, ev.UserID, ev.CredentialID, ev.Action, ev.Success,
		nullIfEmpty(ev.ErrorMessage), nullIfEmpty(ev.IPAddress),
	).Scan(&ev.CreatedAt)
}
