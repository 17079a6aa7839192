package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afp-labs/mailgrant/internal/store/core"
)

type credentialRepo struct {
	pool *pgxpool.Pool
}

const credentialColumns = `
	id, user_id, email_address, provider,
	encrypted_access_token, COALESCE(encrypted_refresh_token, ''), scopes,
	token_expires_at, is_active, created_at, updated_at
`

func scanCredential(row pgx.Row) (*core.Credential, error) {
	var c core.Credential
	err := row.Scan(
		&c.ID, &c.UserID, &c.EmailAddress, &c.Provider,
		&c.EncryptedAccessToken, &c.EncryptedRefreshToken, &c.Scopes,
		&c.TokenExpiresAt, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *credentialRepo) Upsert(ctx context.Context, userID, emailAddress, provider string, expiresAt time.Time, scopes []string) (*core.Credential, error) {
	const query = `
		INSERT INTO email_credentials (
			id, user_id, email_address, provider,
			encrypted_access_token, scopes, token_expires_at,
			is_active, created_at, updated_at
		) VALUES ($1, $2, lower($3), $4, '', $5, $6, TRUE, NOW(), NOW())
		ON CONFLICT (user_id, email_address, provider) DO UPDATE
			SET scopes = $5, token_expires_at = $6, is_active = TRUE, updated_at = NOW()
		RETURNING ` + credentialColumns
	return scanCredential(r.pool.QueryRow(ctx, query,
		uuid.NewString(), userID, emailAddress, provider, scopes, expiresAt,
	))
}

func (r *credentialRepo) UpdateTokens(ctx context.Context, id string, encAccess string, encRefresh *string, expiresAt *time.Time) error {
	const query = `
		UPDATE email_credentials
		SET encrypted_access_token = $2,
		    encrypted_refresh_token = COALESCE($3, encrypted_refresh_token),
		    token_expires_at = COALESCE($4, token_expires_at),
		    is_active = TRUE,
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, encAccess, encRefresh, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *credentialRepo) GetByID(ctx context.Context, id string) (*core.Credential, error) {
	const query = `SELECT ` + credentialColumns + ` FROM email_credentials WHERE id = $1`
	return scanCredential(r.pool.QueryRow(ctx, query, id))
}

func (r *credentialRepo) ListActive(ctx context.Context, userID string) ([]*core.Credential, error) {
	const query = `
		SELECT ` + credentialColumns + `
		FROM email_credentials
		WHERE user_id = $1 AND is_active
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *credentialRepo) ListExpiring(ctx context.Context, before time.Time) ([]*core.Credential, error) {
	const query = `
		SELECT ` + credentialColumns + `
		FROM email_credentials
		WHERE is_active AND token_expires_at < $1
		ORDER BY token_expires_at
	`
	rows, err := r.pool.Query(ctx, query, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *credentialRepo) SetActive(ctx context.Context, id string, active bool) error {
	const query = `
		UPDATE email_credentials SET is_active = $2, updated_at = NOW() WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
