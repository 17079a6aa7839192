package credentials

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afp-labs/mailgrant/internal/audit"
	"github.com/afp-labs/mailgrant/internal/oauth"
	"github.com/afp-labs/mailgrant/internal/store/adapters/memory"
	"github.com/afp-labs/mailgrant/internal/store/core"
)

type fakeProvider struct {
	refreshFn func(ctx context.Context, refreshToken string) (*oauth.Token, error)
	calls     atomic.Int32
}

func (f *fakeProvider) Name() string                  { return "gmail" }
func (f *fakeProvider) Scopes() []string              { return nil }
func (f *fakeProvider) AuthCodeURL(state string) string { return "https://example.com?state=" + state }

func (f *fakeProvider) Exchange(ctx context.Context, code string) (*oauth.Token, error) {
	return nil, errors.New("not used")
}

func (f *fakeProvider) Refresh(ctx context.Context, refreshToken string) (*oauth.Token, error) {
	f.calls.Add(1)
	return f.refreshFn(ctx, refreshToken)
}

type guardFixture struct {
	guard    *Guard
	store    *Store
	adapter  *memory.Adapter
	provider *fakeProvider
	cred     *core.Credential
}

// newGuardFixture seeds one active gmail credential whose token expires at
// the given instant.
func newGuardFixture(t *testing.T, expiresAt time.Time, hasRefresh bool) *guardFixture {
	t.Helper()

	s, adapter := newTestStore(t)
	cred, err := s.Upsert(context.Background(), "user-1", "box@example.com", "gmail", expiresAt, []string{"gmail.readonly"})
	require.NoError(t, err)

	var refresh *string
	if hasRefresh {
		rt := "refresh-plain"
		refresh = &rt
	}
	exp := expiresAt
	require.NoError(t, s.SetTokens(context.Background(), cred, "access-plain", refresh, &exp))

	prov := &fakeProvider{}
	rec := audit.NewRecorder(adapter.AccessLog())
	g := NewGuard(s, map[string]oauth.Provider{"gmail": prov}, rec, 5*time.Minute)

	return &guardFixture{guard: g, store: s, adapter: adapter, provider: prov, cred: cred}
}

func TestValidTokenFreshNoNetworkCall(t *testing.T) {
	f := newGuardFixture(t, time.Now().UTC().Add(time.Hour), true)

	tok, err := f.guard.ValidToken(context.Background(), f.cred)
	require.NoError(t, err)
	assert.Equal(t, "access-plain", tok)
	assert.Zero(t, f.provider.calls.Load())
}

func TestValidTokenFreshnessBoundary(t *testing.T) {
	now := time.Now().UTC()
	f := newGuardFixture(t, now.Add(5*time.Minute+time.Second), true)
	f.guard.now = func() time.Time { return now }
	f.provider.refreshFn = func(ctx context.Context, rt string) (*oauth.Token, error) {
		return &oauth.Token{AccessToken: "access-new", ExpiresAt: now.Add(time.Hour)}, nil
	}

	// Just outside the skew: still fresh.
	_, err := f.guard.ValidToken(context.Background(), f.cred)
	require.NoError(t, err)
	assert.Zero(t, f.provider.calls.Load())

	// Just inside the skew: must refresh.
	f.guard.now = func() time.Time { return now.Add(2 * time.Second) }
	tok, err := f.guard.ValidToken(context.Background(), f.cred)
	require.NoError(t, err)
	assert.Equal(t, "access-new", tok)
	assert.Equal(t, int32(1), f.provider.calls.Load())
}

func TestValidTokenRefreshPersists(t *testing.T) {
	f := newGuardFixture(t, time.Now().UTC().Add(-time.Minute), true)
	newExp := time.Now().UTC().Add(time.Hour)
	f.provider.refreshFn = func(ctx context.Context, rt string) (*oauth.Token, error) {
		assert.Equal(t, "refresh-plain", rt)
		return &oauth.Token{AccessToken: "access-new", ExpiresAt: newExp}, nil
	}

	tok, err := f.guard.ValidToken(context.Background(), f.cred)
	require.NoError(t, err)
	assert.Equal(t, "access-new", tok)

	stored, err := f.adapter.Credentials().GetByID(context.Background(), f.cred.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, newExp, stored.TokenExpiresAt, time.Second)
	assert.NotEmpty(t, stored.EncryptedRefreshToken, "refresh token must survive a rotation-free refresh")

	got, err := f.store.AccessToken(stored)
	require.NoError(t, err)
	assert.Equal(t, "access-new", got)

	events := f.adapter.Events()
	require.Len(t, events, 1)
	assert.Equal(t, core.ActionTokenRefresh, events[0].Action)
	assert.True(t, events[0].Success)
}

func TestValidTokenInvalidGrantDeactivates(t *testing.T) {
	f := newGuardFixture(t, time.Now().UTC().Add(-time.Minute), true)
	f.provider.refreshFn = func(ctx context.Context, rt string) (*oauth.Token, error) {
		return nil, &oauth.ProviderError{StatusCode: http.StatusBadRequest, Code: "invalid_grant"}
	}

	_, err := f.guard.ValidToken(context.Background(), f.cred)
	assert.ErrorIs(t, err, ErrTokenRefresh)
	assert.ErrorIs(t, err, ErrInactive)

	stored, err := f.adapter.Credentials().GetByID(context.Background(), f.cred.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	events := f.adapter.Events()
	require.Len(t, events, 1)
	assert.Equal(t, core.ActionTokenRefresh, events[0].Action)
	assert.False(t, events[0].Success)
}

func TestValidTokenTransientFailureKeepsActive(t *testing.T) {
	f := newGuardFixture(t, time.Now().UTC().Add(-time.Minute), true)
	f.provider.refreshFn = func(ctx context.Context, rt string) (*oauth.Token, error) {
		return nil, errors.New("dial tcp: i/o timeout")
	}

	_, err := f.guard.ValidToken(context.Background(), f.cred)
	assert.ErrorIs(t, err, ErrTokenRefresh)
	assert.NotErrorIs(t, err, ErrInactive, "transient failures must not read as a dead connection")

	stored, err := f.adapter.Credentials().GetByID(context.Background(), f.cred.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive, "transient failure must not deactivate")
}

func TestValidTokenNoRefreshTokenDeactivates(t *testing.T) {
	f := newGuardFixture(t, time.Now().UTC().Add(-time.Minute), false)

	_, err := f.guard.ValidToken(context.Background(), f.cred)
	assert.ErrorIs(t, err, ErrTokenRefresh)
	assert.ErrorIs(t, err, ErrInactive)
	assert.Zero(t, f.provider.calls.Load())

	stored, err := f.adapter.Credentials().GetByID(context.Background(), f.cred.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestValidTokenInactiveCredential(t *testing.T) {
	f := newGuardFixture(t, time.Now().UTC().Add(time.Hour), true)
	require.NoError(t, f.store.Deactivate(context.Background(), f.cred))

	_, err := f.guard.ValidToken(context.Background(), f.cred)
	assert.ErrorIs(t, err, ErrInactive)
	assert.ErrorIs(t, err, ErrTokenRefresh, "a dead connection must read as a refresh failure")
	assert.Zero(t, f.provider.calls.Load(), "inactive credentials must not reach the provider")
}

func TestValidTokenDoesNotMutateCallerStruct(t *testing.T) {
	f := newGuardFixture(t, time.Now().UTC().Add(-time.Minute), true)
	f.provider.refreshFn = func(ctx context.Context, rt string) (*oauth.Token, error) {
		return &oauth.Token{AccessToken: "access-new", ExpiresAt: time.Now().UTC().Add(time.Hour)}, nil
	}

	beforeExp := f.cred.TokenExpiresAt
	beforeCT := f.cred.EncryptedAccessToken

	tok, err := f.guard.ValidToken(context.Background(), f.cred)
	require.NoError(t, err)
	assert.Equal(t, "access-new", tok)

	// Refreshed state lands in the store, never in the shared struct.
	assert.Equal(t, beforeExp, f.cred.TokenExpiresAt)
	assert.Equal(t, beforeCT, f.cred.EncryptedAccessToken)

	stored, err := f.adapter.Credentials().GetByID(context.Background(), f.cred.ID)
	require.NoError(t, err)
	assert.True(t, stored.TokenExpiresAt.After(beforeExp))
	assert.NotEqual(t, beforeCT, stored.EncryptedAccessToken)
}

func TestValidTokenStaleStructSkipsSecondRefresh(t *testing.T) {
	f := newGuardFixture(t, time.Now().UTC().Add(-time.Minute), true)
	f.provider.refreshFn = func(ctx context.Context, rt string) (*oauth.Token, error) {
		return &oauth.Token{AccessToken: "access-new", ExpiresAt: time.Now().UTC().Add(time.Hour)}, nil
	}

	_, err := f.guard.ValidToken(context.Background(), f.cred)
	require.NoError(t, err)

	// The caller still holds the expired struct; the guard must notice the
	// persisted refresh instead of calling the provider again.
	tok, err := f.guard.ValidToken(context.Background(), f.cred)
	require.NoError(t, err)
	assert.Equal(t, "access-new", tok)
	assert.Equal(t, int32(1), f.provider.calls.Load())
}

func TestValidTokenConcurrentSharesOneRefresh(t *testing.T) {
	f := newGuardFixture(t, time.Now().UTC().Add(-time.Minute), true)

	release := make(chan struct{})
	f.provider.refreshFn = func(ctx context.Context, rt string) (*oauth.Token, error) {
		<-release
		return &oauth.Token{AccessToken: "access-new", ExpiresAt: time.Now().UTC().Add(time.Hour)}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = f.guard.ValidToken(context.Background(), f.cred)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-new", tokens[i])
	}
	assert.Equal(t, int32(1), f.provider.calls.Load(), "concurrent callers must share one provider call")
}
