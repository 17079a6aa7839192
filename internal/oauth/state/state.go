// Package state signs and validates the opaque `state` parameter that
// round-trips through the external OAuth provider. The token is the only
// link between a callback and the user who initiated the flow, so it is a
// signed JWT rather than a bare random value.
package state

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// stateAudience separates state tokens from session tokens signed with the
// same secret.
const stateAudience = "connect-state"

// expiryGrace absorbs small clock skew against the provider round-trip.
const expiryGrace = 30 * time.Second

// Claims is the decoded AuthorizationState.
type Claims struct {
	UserID   string
	Provider string
	Nonce    string
	IssuedAt time.Time
}

// ErrInvalidState covers malformed, forged, and expired state tokens.
// Callers treat it as an unauthenticated callback attempt, never retry.
var ErrInvalidState = errors.New("state: invalid or expired")

// Signer issues and parses state tokens with an HS256 secret.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewSigner(secret, issuer string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Signer{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Sign issues a fresh state token for the given user and provider. Each
// call generates a new nonce, so two authorizations for the same user
// never share a state value.
func (s *Signer) Sign(userID, provider string) (token, nonce string, err error) {
	now := time.Now().UTC()
	nonce = uuid.NewString()

	claims := jwtv5.MapClaims{
		"iss":      s.issuer,
		"aud":      stateAudience,
		"sub":      userID,
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
		"exp":      now.Add(s.ttl).Unix(),
		"provider": provider,
		"nonce":    nonce,
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	token, err = tk.SignedString(s.secret)
	return token, nonce, err
}

// Parse validates signature, issuer, audience, and the bounded expiry
// window, then returns the claims.
func (s *Signer) Parse(token string) (*Claims, error) {
	tk, err := jwtv5.Parse(token,
		func(t *jwtv5.Token) (any, error) { return s.secret, nil },
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithIssuer(s.issuer),
		jwtv5.WithAudience(stateAudience),
		jwtv5.WithLeeway(expiryGrace),
	)
	if err != nil || !tk.Valid {
		return nil, ErrInvalidState
	}

	mc, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidState
	}

	c := &Claims{
		UserID:   getString(mc, "sub"),
		Provider: getString(mc, "provider"),
		Nonce:    getString(mc, "nonce"),
	}
	if iat, ok := mc["iat"].(float64); ok {
		c.IssuedAt = time.Unix(int64(iat), 0).UTC()
	}
	if c.UserID == "" || c.Provider == "" || c.Nonce == "" {
		return nil, ErrInvalidState
	}
	return c, nil
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
