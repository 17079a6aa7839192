// Package memory implements the store repositories in process memory.
// Used by tests and by dev setups without Postgres. Semantics mirror the pg
// adapter: same uniqueness, ordering, and error mapping.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/afp-labs/mailgrant/internal/store/core"
)

type Adapter struct {
	mu sync.RWMutex

	usersByID    map[string]*core.User
	usersByEmail map[string]string // email -> id

	credentials map[string]*core.Credential
	// triple "user|email|provider" -> credential id
	credentialsByTriple map[string]string

	events []*core.AccessEvent
}

// New returns an empty in-memory Repository.
func New() *Adapter {
	return &Adapter{
		usersByID:           make(map[string]*core.User),
		usersByEmail:        make(map[string]string),
		credentials:         make(map[string]*core.Credential),
		credentialsByTriple: make(map[string]string),
	}
}

func (a *Adapter) Ping(ctx context.Context) error { return nil }
func (a *Adapter) Close()                         {}

func (a *Adapter) Users() core.UserRepository             { return (*userRepo)(a) }
func (a *Adapter) Credentials() core.CredentialRepository { return (*credentialRepo)(a) }
func (a *Adapter) AccessLog() core.AccessLogRepository    { return (*accessLogRepo)(a) }

func tripleKey(userID, email, provider string) string {
	return userID + "|" + strings.ToLower(email) + "|" + provider
}

func copyCredential(c *core.Credential) *core.Credential {
	out := *c
	out.Scopes = append([]string(nil), c.Scopes...)
	return &out
}

// ─── UserRepository ───

type userRepo Adapter

func (r *userRepo) Create(ctx context.Context, u *core.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, ok := r.usersByEmail[email]; ok {
		return core.ErrConflict
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = email
	u.CreatedAt = time.Now().UTC()

	cp := *u
	r.usersByID[u.ID] = &cp
	r.usersByEmail[email] = u.ID
	return nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*core.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *r.usersByID[id]
	return &cp, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*core.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.usersByID[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// ─── CredentialRepository ───

type credentialRepo Adapter

func (r *credentialRepo) Upsert(ctx context.Context, userID, emailAddress, provider string, expiresAt time.Time, scopes []string) (*core.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	key := tripleKey(userID, emailAddress, provider)

	if id, ok := r.credentialsByTriple[key]; ok {
		c := r.credentials[id]
		c.Scopes = append([]string(nil), scopes...)
		c.TokenExpiresAt = expiresAt
		c.IsActive = true
		c.UpdatedAt = now
		return copyCredential(c), nil
	}

	c := &core.Credential{
		ID:             uuid.NewString(),
		UserID:         userID,
		EmailAddress:   strings.ToLower(emailAddress),
		Provider:       provider,
		Scopes:         append([]string(nil), scopes...),
		TokenExpiresAt: expiresAt,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.credentials[c.ID] = c
	r.credentialsByTriple[key] = c.ID
	return copyCredential(c), nil
}

func (r *credentialRepo) UpdateTokens(ctx context.Context, id string, encAccess string, encRefresh *string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.credentials[id]
	if !ok {
		return core.ErrNotFound
	}
	c.EncryptedAccessToken = encAccess
	if encRefresh != nil {
		c.EncryptedRefreshToken = *encRefresh
	}
	if expiresAt != nil {
		c.TokenExpiresAt = *expiresAt
	}
	c.IsActive = true
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *credentialRepo) GetByID(ctx context.Context, id string) (*core.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.credentials[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return copyCredential(c), nil
}

func (r *credentialRepo) ListActive(ctx context.Context, userID string) ([]*core.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*core.Credential
	for _, c := range r.credentials {
		if c.UserID == userID && c.IsActive {
			out = append(out, copyCredential(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *credentialRepo) ListExpiring(ctx context.Context, before time.Time) ([]*core.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*core.Credential
	for _, c := range r.credentials {
		if c.IsActive && c.TokenExpiresAt.Before(before) {
			out = append(out, copyCredential(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenExpiresAt.Before(out[j].TokenExpiresAt) })
	return out, nil
}

func (r *credentialRepo) SetActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.credentials[id]
	if !ok {
		return core.ErrNotFound
	}
	c.IsActive = active
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ─── AccessLogRepository ───

type accessLogRepo Adapter

func (r *accessLogRepo) Insert(ctx context.Context, ev *core.AccessEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.CreatedAt = time.Now().UTC()
	cp := *ev
	r.events = append(r.events, &cp)
	return nil
}

// Events returns a snapshot of recorded events. Test helper only; the
// production surface is append-only.
func (a *Adapter) Events() []*core.AccessEvent {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]*core.AccessEvent, len(a.events))
	for i, ev := range a.events {
		cp := *ev
		out[i] = &cp
	}
	return out
}
