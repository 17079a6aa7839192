package core

import (
	"context"
	"time"
)

// Repository aggregates the persistence surface. Implemented by the pg
// adapter for production and the memory adapter for tests and dev.
type Repository interface {
	Ping(ctx context.Context) error
	Close()

	Users() UserRepository
	Credentials() CredentialRepository
	AccessLog() AccessLogRepository
}

type UserRepository interface {
	// Create inserts a new user. ErrConflict on duplicate email.
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

type CredentialRepository interface {
	// Upsert is get-or-create on the unique (user, email, provider) triple.
	// Re-authorizing an existing triple updates expiry/scopes and reactivates
	// the row instead of duplicating it. Tokens are not touched here.
	Upsert(ctx context.Context, userID, emailAddress, provider string, expiresAt time.Time, scopes []string) (*Credential, error)

	// UpdateTokens persists fresh ciphertext and marks the row active.
	// encRefresh and expiresAt are optional: nil leaves the stored value.
	UpdateTokens(ctx context.Context, id string, encAccess string, encRefresh *string, expiresAt *time.Time) error

	GetByID(ctx context.Context, id string) (*Credential, error)

	// ListActive returns the owner's active credentials ordered by creation.
	ListActive(ctx context.Context, userID string) ([]*Credential, error)

	// ListExpiring returns active credentials whose tokens expire before the
	// cutoff. Used by the refresh sweeper.
	ListExpiring(ctx context.Context, before time.Time) ([]*Credential, error)

	// SetActive flips the soft-delete flag. Ciphertext is preserved.
	SetActive(ctx context.Context, id string, active bool) error
}

type AccessLogRepository interface {
	// Insert appends one event. The log is append-only; there is no update
	// or delete path.
	Insert(ctx context.Context, ev *AccessEvent) error
}
