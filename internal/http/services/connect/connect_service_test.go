package connect

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afp-labs/mailgrant/internal/audit"
	"github.com/afp-labs/mailgrant/internal/cache"
	"github.com/afp-labs/mailgrant/internal/credentials"
	"github.com/afp-labs/mailgrant/internal/oauth"
	"github.com/afp-labs/mailgrant/internal/oauth/state"
	"github.com/afp-labs/mailgrant/internal/security/secretbox"
	"github.com/afp-labs/mailgrant/internal/store/adapters/memory"
	"github.com/afp-labs/mailgrant/internal/store/core"
)

type fakeProvider struct {
	exchangeFn func(ctx context.Context, code string) (*oauth.Token, error)
}

func (f *fakeProvider) Name() string     { return "gmail" }
func (f *fakeProvider) Scopes() []string { return []string{"gmail.readonly"} }

func (f *fakeProvider) AuthCodeURL(st string) string {
	return "https://provider.example.com/auth?state=" + st
}

func (f *fakeProvider) Exchange(ctx context.Context, code string) (*oauth.Token, error) {
	return f.exchangeFn(ctx, code)
}

func (f *fakeProvider) Refresh(ctx context.Context, rt string) (*oauth.Token, error) {
	return nil, errors.New("not used")
}

type fixture struct {
	svc      *Service
	adapter  *memory.Adapter
	provider *fakeProvider
	signer   *state.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	keyB64, err := secretbox.GenerateKey()
	require.NoError(t, err)
	cipher, err := secretbox.New(keyB64)
	require.NoError(t, err)

	adapter := memory.New()
	store := credentials.NewStore(adapter.Credentials(), cipher)
	prov := &fakeProvider{
		exchangeFn: func(ctx context.Context, code string) (*oauth.Token, error) {
			return &oauth.Token{
				AccessToken:  "access-1",
				RefreshToken: "refresh-1",
				ExpiresAt:    time.Now().UTC().Add(time.Hour),
				Email:        "box@example.com",
			}, nil
		},
	}
	signer := state.NewSigner("test-secret", "mailgrant-test", 10*time.Minute)
	rec := audit.NewRecorder(adapter.AccessLog())

	svc := NewService(store,
		map[string]oauth.Provider{"gmail": prov},
		signer,
		cache.NewMemory("test", time.Minute),
		rec,
	)
	return &fixture{svc: svc, adapter: adapter, provider: prov, signer: signer}
}

func (f *fixture) startAuth(t *testing.T, userID string) (stateToken string) {
	t.Helper()
	url, appErr := f.svc.AuthURL(context.Background(), userID, "gmail")
	require.Nil(t, appErr)
	i := strings.Index(url, "state=")
	require.Greater(t, i, 0)
	return url[i+len("state="):]
}

func TestAuthURLUnknownProvider(t *testing.T) {
	f := newFixture(t)
	_, appErr := f.svc.AuthURL(context.Background(), "user-1", "outlook")
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
}

func TestCallbackSuccessStoresCredential(t *testing.T) {
	f := newFixture(t)
	stateToken := f.startAuth(t, "user-1")

	result := f.svc.Callback(context.Background(), "code-1", stateToken, "", "203.0.113.9")
	assert.Equal(t, CallbackSuccess, result.Status)

	creds, err := f.adapter.Credentials().ListActive(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "box@example.com", creds[0].EmailAddress)
	assert.Equal(t, "gmail", creds[0].Provider)
	assert.NotEqual(t, "access-1", creds[0].EncryptedAccessToken, "tokens must be stored encrypted")

	events := f.adapter.Events()
	require.Len(t, events, 1)
	assert.Equal(t, core.ActionAuthSuccess, events[0].Action)
	assert.True(t, events[0].Success)
	assert.Equal(t, "203.0.113.9", events[0].IPAddress)
}

func TestCallbackForgedState(t *testing.T) {
	f := newFixture(t)

	foreign := state.NewSigner("attacker-secret", "mailgrant-test", 10*time.Minute)
	forged, _, err := foreign.Sign("user-1", "gmail")
	require.NoError(t, err)

	result := f.svc.Callback(context.Background(), "code-1", forged, "", "")
	assert.Equal(t, CallbackInvalid, result.Status)

	creds, _ := f.adapter.Credentials().ListActive(context.Background(), "user-1")
	assert.Empty(t, creds)
	// No trusted identity, so nothing to audit either.
	assert.Empty(t, f.adapter.Events())
}

func TestCallbackReplayRejected(t *testing.T) {
	f := newFixture(t)
	stateToken := f.startAuth(t, "user-1")

	first := f.svc.Callback(context.Background(), "code-1", stateToken, "", "")
	require.Equal(t, CallbackSuccess, first.Status)

	second := f.svc.Callback(context.Background(), "code-2", stateToken, "", "")
	assert.Equal(t, CallbackInvalid, second.Status)

	creds, _ := f.adapter.Credentials().ListActive(context.Background(), "user-1")
	assert.Len(t, creds, 1)
}

func TestCallbackUserDenied(t *testing.T) {
	f := newFixture(t)
	stateToken := f.startAuth(t, "user-1")

	result := f.svc.Callback(context.Background(), "", stateToken, "access_denied", "")
	assert.Equal(t, CallbackDenied, result.Status)

	events := f.adapter.Events()
	require.Len(t, events, 1)
	assert.Equal(t, core.ActionAuthError, events[0].Action)
	assert.Contains(t, events[0].ErrorMessage, "access_denied")
}

func TestCallbackProviderRejection(t *testing.T) {
	f := newFixture(t)
	f.provider.exchangeFn = func(ctx context.Context, code string) (*oauth.Token, error) {
		return nil, &oauth.ProviderError{StatusCode: http.StatusBadRequest, Code: "invalid_grant"}
	}
	stateToken := f.startAuth(t, "user-1")

	result := f.svc.Callback(context.Background(), "stale-code", stateToken, "", "")
	assert.Equal(t, CallbackRejected, result.Status)

	creds, _ := f.adapter.Credentials().ListActive(context.Background(), "user-1")
	assert.Empty(t, creds)

	events := f.adapter.Events()
	require.Len(t, events, 1)
	assert.Equal(t, core.ActionAuthError, events[0].Action)
}

func TestReconnectSameMailboxKeepsOneCredential(t *testing.T) {
	f := newFixture(t)

	first := f.svc.Callback(context.Background(), "code-1", f.startAuth(t, "user-1"), "", "")
	require.Equal(t, CallbackSuccess, first.Status)
	second := f.svc.Callback(context.Background(), "code-2", f.startAuth(t, "user-1"), "", "")
	require.Equal(t, CallbackSuccess, second.Status)

	creds, err := f.adapter.Credentials().ListActive(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, creds, 1)
}

func TestDisconnectSecondDeleteNotFound(t *testing.T) {
	f := newFixture(t)
	result := f.svc.Callback(context.Background(), "code-1", f.startAuth(t, "user-1"), "", "")
	require.Equal(t, CallbackSuccess, result.Status)

	creds, err := f.adapter.Credentials().ListActive(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, creds, 1)
	id := creds[0].ID

	appErr := f.svc.Disconnect(context.Background(), "user-1", id, "")
	require.Nil(t, appErr)

	appErr = f.svc.Disconnect(context.Background(), "user-1", id, "")
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
}

func TestDisconnectForeignCredentialNotFound(t *testing.T) {
	f := newFixture(t)
	result := f.svc.Callback(context.Background(), "code-1", f.startAuth(t, "user-1"), "", "")
	require.Equal(t, CallbackSuccess, result.Status)

	creds, _ := f.adapter.Credentials().ListActive(context.Background(), "user-1")
	require.Len(t, creds, 1)

	appErr := f.svc.Disconnect(context.Background(), "user-2", creds[0].ID, "")
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
}
