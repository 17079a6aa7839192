// Package credentials is the domain layer over the credential store: it owns
// token encryption, freshness, and deactivation. Callers above this package
// never see ciphertext; the store below it never sees plaintext.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/afp-labs/mailgrant/internal/security/secretbox"
	"github.com/afp-labs/mailgrant/internal/store/core"
)

// ErrNoRefreshToken is returned when a credential was stored without an
// offline grant and a refresh is required.
var ErrNoRefreshToken = errors.New("credentials: no refresh token stored")

// Store wraps the credential repository with the token cipher.
type Store struct {
	repo   core.CredentialRepository
	cipher *secretbox.Cipher
}

func NewStore(repo core.CredentialRepository, cipher *secretbox.Cipher) *Store {
	return &Store{repo: repo, cipher: cipher}
}

// Upsert registers a mailbox connection for the owner. Idempotent on the
// (owner, email, provider) triple: re-authorizing updates expiry and scopes
// and reactivates the row instead of creating a duplicate.
func (s *Store) Upsert(ctx context.Context, userID, emailAddress, provider string, expiresAt time.Time, scopes []string) (*core.Credential, error) {
	return s.repo.Upsert(ctx, userID, emailAddress, provider, expiresAt, scopes)
}

// SetTokens encrypts and persists fresh tokens and marks the credential
// active. refresh may be nil to keep the stored refresh token, as Google
// omits it from refresh-grant responses. The in-memory credential is updated
// to match what was persisted; the caller must not share cred with other
// goroutines while calling this.
func (s *Store) SetTokens(ctx context.Context, cred *core.Credential, access string, refresh *string, expiresAt *time.Time) error {
	encAccess, err := s.cipher.Encrypt(access)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}

	var encRefresh *string
	if refresh != nil {
		enc, err := s.cipher.Encrypt(*refresh)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		encRefresh = &enc
	}

	if err := s.repo.UpdateTokens(ctx, cred.ID, encAccess, encRefresh, expiresAt); err != nil {
		return err
	}

	cred.EncryptedAccessToken = encAccess
	if encRefresh != nil {
		cred.EncryptedRefreshToken = *encRefresh
	}
	if expiresAt != nil {
		cred.TokenExpiresAt = *expiresAt
	}
	cred.IsActive = true
	return nil
}

// AccessToken decrypts the stored access token.
func (s *Store) AccessToken(cred *core.Credential) (string, error) {
	return s.cipher.Decrypt(cred.EncryptedAccessToken)
}

// RefreshToken decrypts the stored refresh token. ErrNoRefreshToken when the
// grant carried none.
func (s *Store) RefreshToken(cred *core.Credential) (string, error) {
	if cred.EncryptedRefreshToken == "" {
		return "", ErrNoRefreshToken
	}
	return s.cipher.Decrypt(cred.EncryptedRefreshToken)
}

// Deactivate soft-deletes the credential. Ciphertext stays in place so a
// later re-authorization reuses the same row.
func (s *Store) Deactivate(ctx context.Context, cred *core.Credential) error {
	if err := s.repo.SetActive(ctx, cred.ID, false); err != nil {
		return err
	}
	cred.IsActive = false
	return nil
}

// Get fetches a credential by id without ownership checks. The repository
// returns a fresh copy, so the result is safe to mutate.
func (s *Store) Get(ctx context.Context, credentialID string) (*core.Credential, error) {
	return s.repo.GetByID(ctx, credentialID)
}

// ListActive returns the owner's active credentials, oldest first.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*core.Credential, error) {
	return s.repo.ListActive(ctx, userID)
}

// GetOwned fetches a credential and enforces ownership. A credential that
// exists but belongs to someone else, or that is already inactive, reports
// core.ErrNotFound so callers cannot enumerate foreign ids.
func (s *Store) GetOwned(ctx context.Context, userID, credentialID string) (*core.Credential, error) {
	cred, err := s.repo.GetByID(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if cred.UserID != userID || !cred.IsActive {
		return nil, core.ErrNotFound
	}
	return cred, nil
}

// ListExpiring exposes the sweep query for the refresh worker.
func (s *Store) ListExpiring(ctx context.Context, before time.Time) ([]*core.Credential, error) {
	return s.repo.ListExpiring(ctx, before)
}
