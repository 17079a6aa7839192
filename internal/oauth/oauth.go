// Package oauth defines the provider-neutral surface of the authorization
// code flow: the token bundle, the provider contract, and the error
// taxonomy shared by the concrete clients under this directory.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Token is the result of a code exchange or a refresh.
type Token struct {
	// AccessToken and RefreshToken are plaintext here; persistence encrypts
	// them before they touch the store. Never log either value.
	AccessToken  string
	RefreshToken string // may be empty on refresh responses
	ExpiresAt    time.Time

	// Email is the authenticated mailbox identity, present on code
	// exchanges only.
	Email string
}

// Provider is one configured OAuth identity/mail provider.
type Provider interface {
	// Name is the stable provider key stored with credentials ("gmail").
	Name() string

	// Scopes is the fixed scope set requested on every authorization.
	Scopes() []string

	// AuthCodeURL builds the provider authorization URL carrying state.
	// Offline access and a consent prompt are always requested so a
	// refresh token is issued even on re-authorization.
	AuthCodeURL(state string) string

	// Exchange swaps an authorization code for tokens plus identity.
	// Codes are single-use: exactly one attempt per callback; a failure
	// means the whole authorization flow restarts.
	Exchange(ctx context.Context, code string) (*Token, error)

	// Refresh mints a new access token from a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}

// ErrExchange marks any provider-side failure of Exchange or Refresh,
// including timeouts. Wraps ProviderError when the provider answered.
var ErrExchange = errors.New("oauth: provider exchange failed")

// ProviderError carries the provider's structured rejection.
type ProviderError struct {
	StatusCode  int
	Code        string // e.g. "invalid_grant"
	Description string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("oauth: provider http %d: %s %s", e.StatusCode, e.Code, e.Description)
}

func (e *ProviderError) Unwrap() error { return ErrExchange }

// IsInvalidGrant reports a provider-stated permanent denial: the grant is
// revoked or expired and no retry will succeed. Transport failures and
// timeouts are NOT invalid grants.
func IsInvalidGrant(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case "invalid_grant", "unauthorized_client":
		return true
	}
	return false
}
