// Package jwt issues and verifies the service's own session tokens.
// Not to be confused with the provider OAuth tokens managed by the
// credentials package.
package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("jwt: invalid token")

// SessionClaims is what a bearer token carries.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	jwtv5.RegisteredClaims
}

// Issuer signs and parses HS256 session tokens.
type Issuer struct {
	secret    []byte
	iss       string
	accessTTL time.Duration
}

func NewIssuer(secret []byte, iss string, accessTTL time.Duration) *Issuer {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	return &Issuer{secret: secret, iss: iss, accessTTL: accessTTL}
}

func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// IssueAccess signs an access token for the user.
func (i *Issuer) IssueAccess(userID, email string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(i.accessTTL)

	claims := SessionClaims{
		Email: email,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.iss,
			Subject:   userID,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	signed, err := tk.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// Parse validates signature, issuer, and expiry.
func (i *Issuer) Parse(raw string) (*SessionClaims, error) {
	var claims SessionClaims
	_, err := jwtv5.ParseWithClaims(raw, &claims,
		func(t *jwtv5.Token) (any, error) { return i.secret, nil },
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithIssuer(i.iss),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &claims, nil
}
