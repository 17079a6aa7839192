package core

import "time"

// User is an account holder of the finance product.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Credential is one authorized mailbox connection. Token columns only ever
// hold ciphertext; encryption and decryption happen above the store.
type Credential struct {
	ID           string
	UserID       string
	EmailAddress string
	Provider     string

	EncryptedAccessToken  string
	EncryptedRefreshToken string // empty sentinel = no refresh token
	Scopes                []string
	TokenExpiresAt        time.Time

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Access-log action kinds.
const (
	ActionAuthSuccess  = "auth_success"
	ActionAuthError    = "auth_error"
	ActionTokenRefresh = "token_refresh"
	ActionDisconnect   = "disconnect"
)

// AccessEvent is one immutable audit record. Written synchronously with the
// credential action it describes, never mutated or deleted.
type AccessEvent struct {
	ID           string
	UserID       string
	CredentialID *string
	Action       string
	Success      bool
	ErrorMessage string
	IPAddress    string
	CreatedAt    time.Time
}
