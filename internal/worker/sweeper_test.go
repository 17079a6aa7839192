package worker

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afp-labs/mailgrant/internal/audit"
	"github.com/afp-labs/mailgrant/internal/credentials"
	"github.com/afp-labs/mailgrant/internal/email"
	"github.com/afp-labs/mailgrant/internal/oauth"
	"github.com/afp-labs/mailgrant/internal/security/secretbox"
	"github.com/afp-labs/mailgrant/internal/store/adapters/memory"
	"github.com/afp-labs/mailgrant/internal/store/core"
)

type fakeProvider struct {
	refreshFn func(ctx context.Context, rt string) (*oauth.Token, error)
}

func (f *fakeProvider) Name() string                    { return "gmail" }
func (f *fakeProvider) Scopes() []string                { return nil }
func (f *fakeProvider) AuthCodeURL(state string) string { return "" }

func (f *fakeProvider) Exchange(ctx context.Context, code string) (*oauth.Token, error) {
	panic("sweeper never exchanges codes")
}

func (f *fakeProvider) Refresh(ctx context.Context, rt string) (*oauth.Token, error) {
	return f.refreshFn(ctx, rt)
}

type captureSender struct {
	mu   sync.Mutex
	sent []string // recipient addresses
}

func (c *captureSender) Send(to, subject, htmlBody, textBody string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, to)
	return nil
}

type sweepFixture struct {
	sweeper  *Sweeper
	adapter  *memory.Adapter
	store    *credentials.Store
	provider *fakeProvider
	sender   *captureSender
	user     *core.User
	cred     *core.Credential
}

func newSweepFixture(t *testing.T, expiresAt time.Time) *sweepFixture {
	t.Helper()
	ctx := context.Background()

	keyB64, err := secretbox.GenerateKey()
	require.NoError(t, err)
	cipher, err := secretbox.New(keyB64)
	require.NoError(t, err)

	adapter := memory.New()
	user := &core.User{Email: "owner@example.com", PasswordHash: "x"}
	require.NoError(t, adapter.Users().Create(ctx, user))

	store := credentials.NewStore(adapter.Credentials(), cipher)
	cred, err := store.Upsert(ctx, user.ID, "box@example.com", "gmail", expiresAt, nil)
	require.NoError(t, err)

	rt := "refresh-plain"
	exp := expiresAt
	require.NoError(t, store.SetTokens(ctx, cred, "access-plain", &rt, &exp))

	prov := &fakeProvider{}
	rec := audit.NewRecorder(adapter.AccessLog())
	guard := credentials.NewGuard(store, map[string]oauth.Provider{"gmail": prov}, rec, 5*time.Minute)
	sender := &captureSender{}

	sweeper := New(Config{
		Store:     store,
		Guard:     guard,
		Users:     adapter.Users(),
		Notifier:  email.NewNotifier(sender),
		Interval:  time.Minute,
		Lookahead: 10 * time.Minute,
	})
	return &sweepFixture{
		sweeper:  sweeper,
		adapter:  adapter,
		store:    store,
		provider: prov,
		sender:   sender,
		user:     user,
		cred:     cred,
	}
}

func TestSweepRefreshesExpiring(t *testing.T) {
	f := newSweepFixture(t, time.Now().UTC().Add(2*time.Minute))
	f.provider.refreshFn = func(ctx context.Context, rt string) (*oauth.Token, error) {
		assert.Equal(t, "refresh-plain", rt)
		return &oauth.Token{AccessToken: "access-new", ExpiresAt: time.Now().UTC().Add(time.Hour)}, nil
	}

	f.sweeper.Sweep(context.Background())

	stored, err := f.adapter.Credentials().GetByID(context.Background(), f.cred.ID)
	require.NoError(t, err)
	assert.True(t, stored.TokenExpiresAt.After(time.Now().UTC().Add(30*time.Minute)))
	assert.True(t, stored.IsActive)
	assert.Empty(t, f.sender.sent)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.sweeper.refreshedTotal))
}

func TestSweepCountsOnlyActualRefreshes(t *testing.T) {
	// Inside the lookahead but outside the guard skew: swept, left alone.
	f := newSweepFixture(t, time.Now().UTC().Add(8*time.Minute))
	f.provider.refreshFn = func(ctx context.Context, rt string) (*oauth.Token, error) {
		t.Fatal("credential outside the skew must not be refreshed")
		return nil, nil
	}

	f.sweeper.Sweep(context.Background())

	assert.Zero(t, testutil.ToFloat64(f.sweeper.refreshedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.sweeper.sweepsTotal))
}

func TestSweepSkipsFresh(t *testing.T) {
	f := newSweepFixture(t, time.Now().UTC().Add(2*time.Hour))
	f.provider.refreshFn = func(ctx context.Context, rt string) (*oauth.Token, error) {
		t.Fatal("fresh credential must not be refreshed")
		return nil, nil
	}

	f.sweeper.Sweep(context.Background())
}

func TestSweepNotifiesOnDeadGrant(t *testing.T) {
	f := newSweepFixture(t, time.Now().UTC().Add(2*time.Minute))
	f.provider.refreshFn = func(ctx context.Context, rt string) (*oauth.Token, error) {
		return nil, &oauth.ProviderError{StatusCode: http.StatusBadRequest, Code: "invalid_grant"}
	}

	f.sweeper.Sweep(context.Background())

	stored, err := f.adapter.Credentials().GetByID(context.Background(), f.cred.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "owner@example.com", f.sender.sent[0])
}

func TestSweepTransientFailureNoNotice(t *testing.T) {
	f := newSweepFixture(t, time.Now().UTC().Add(2*time.Minute))
	f.provider.refreshFn = func(ctx context.Context, rt string) (*oauth.Token, error) {
		return nil, context.DeadlineExceeded
	}

	f.sweeper.Sweep(context.Background())

	stored, err := f.adapter.Credentials().GetByID(context.Background(), f.cred.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive, "transient failures must not kill the connection")
	assert.Empty(t, f.sender.sent)
}
