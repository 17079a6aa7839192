package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afp-labs/mailgrant/internal/store/core"
)

type userRepo struct {
	pool *pgxpool.Pool
}

func (r *userRepo) Create(ctx context.Context, u *core.User) error {
	const query = `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, lower($2), $3, NOW())
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query, u.ID, u.Email, u.PasswordHash).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return core.ErrConflict
	}
	return err
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*core.User, error) {
	const query = `
		SELECT id, email, password_hash, created_at
		FROM users WHERE email = lower($1)
	`
	var u core.User
	err := r.pool.QueryRow(ctx, query, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*core.User, error) {
	const query = `
		SELECT id, email, password_hash, created_at
		FROM users WHERE id = $1
	`
	var u core.User
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
