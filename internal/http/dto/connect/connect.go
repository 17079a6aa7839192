// Package connect defines the wire types for the mailbox connection flow.
package connect

import "time"

// AuthURLResponse is the body of GET /v1/connect/{provider}/url.
type AuthURLResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	Success          bool   `json:"success"`
}

// Account is one connected mailbox as shown to the owner. Token material is
// never part of this shape.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccountsResponse is the body of GET /v1/connect/accounts.
type AccountsResponse struct {
	Accounts []Account `json:"accounts"`
	Success  bool      `json:"success"`
}

// DisconnectResponse is the body of DELETE /v1/connect/accounts/{id}.
type DisconnectResponse struct {
	Success bool `json:"success"`
}
