package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/afp-labs/mailgrant/internal/audit"
	"github.com/afp-labs/mailgrant/internal/oauth"
	"github.com/afp-labs/mailgrant/internal/observability/logger"
	"github.com/afp-labs/mailgrant/internal/store/core"
)

// DefaultRefreshSkew is how long before expiry a token stops counting as
// fresh. Wide enough that a token handed to a consumer survives the work it
// was fetched for.
const DefaultRefreshSkew = 5 * time.Minute

// ErrTokenRefresh is returned when a stale token could not be refreshed.
// The credential may or may not have been deactivated; see Guard.ValidToken.
var ErrTokenRefresh = errors.New("credentials: token refresh failed")

// ErrInactive reports a disconnected credential. It wraps ErrTokenRefresh so
// callers that only test for refresh failure treat a dead connection the same
// way, without a second sentinel check.
var ErrInactive = fmt.Errorf("%w: credential is inactive", ErrTokenRefresh)

// Guard hands out access tokens that are guaranteed fresh for at least the
// configured skew, refreshing through the provider when needed.
type Guard struct {
	store     *Store
	providers map[string]oauth.Provider
	audit     *audit.Recorder
	skew      time.Duration

	group singleflight.Group
	log   *zap.Logger
	now   func() time.Time
}

func NewGuard(store *Store, providers map[string]oauth.Provider, rec *audit.Recorder, skew time.Duration) *Guard {
	if skew <= 0 {
		skew = DefaultRefreshSkew
	}
	return &Guard{
		store:     store,
		providers: providers,
		audit:     rec,
		skew:      skew,
		log:       logger.Named("guard"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Skew reports how long before expiry a token stops counting as fresh.
func (g *Guard) Skew() time.Duration { return g.skew }

// ValidToken returns a plaintext access token valid for at least the skew.
// A fresh stored token is decrypted and returned without any network call.
// A stale one is refreshed through the provider; concurrent callers for the
// same credential share a single refresh. Permanent provider rejections
// (invalid_grant, unauthorized_client) deactivate the credential and surface
// errors matching ErrInactive; transient failures leave it active and only
// surface ErrTokenRefresh.
//
// The guard never writes through cred. Callers may share one credential
// struct across goroutines; refreshed state is persisted via the store and
// picked up by the next load.
func (g *Guard) ValidToken(ctx context.Context, cred *core.Credential) (string, error) {
	if !cred.IsActive {
		return "", ErrInactive
	}
	if g.now().Add(g.skew).Before(cred.TokenExpiresAt) {
		return g.store.AccessToken(cred)
	}

	v, err, _ := g.group.Do(cred.ID, func() (any, error) {
		return g.refresh(ctx, cred.ID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// refresh works on a private copy loaded inside the flight so the shared
// struct is never mutated under a concurrent reader.
func (g *Guard) refresh(ctx context.Context, credentialID string) (string, error) {
	cred, err := g.store.Get(ctx, credentialID)
	if err != nil {
		return "", fmt.Errorf("%w: load credential: %v", ErrTokenRefresh, err)
	}
	if !cred.IsActive {
		return "", ErrInactive
	}
	// A caller holding a stale struct may arrive after an earlier flight
	// already refreshed and persisted. Serve the stored token instead of
	// spending another provider call.
	if g.now().Add(g.skew).Before(cred.TokenExpiresAt) {
		return g.store.AccessToken(cred)
	}

	prov, ok := g.providers[cred.Provider]
	if !ok {
		return "", fmt.Errorf("%w: unknown provider %q", ErrTokenRefresh, cred.Provider)
	}

	refreshToken, err := g.store.RefreshToken(cred)
	switch {
	case errors.Is(err, ErrNoRefreshToken):
		// Nothing to refresh with. The connection is dead until the user
		// re-authorizes.
		g.deactivate(ctx, cred, "no refresh token stored")
		return "", fmt.Errorf("%w: no refresh token stored", ErrInactive)
	case err != nil:
		// Decrypt failures propagate untouched.
		return "", err
	}

	tok, err := prov.Refresh(ctx, refreshToken)
	if err != nil {
		if oauth.IsInvalidGrant(err) {
			g.deactivate(ctx, cred, err.Error())
			return "", fmt.Errorf("%w: grant revoked: %v", ErrInactive, err)
		}
		g.audit.TokenRefresh(ctx, cred.UserID, cred.ID, false, err.Error())
		g.log.Warn("token refresh failed",
			logger.CredentialID(cred.ID),
			logger.Provider(cred.Provider),
			logger.Err(err))
		return "", fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}

	var newRefresh *string
	if tok.RefreshToken != "" {
		newRefresh = &tok.RefreshToken
	}
	expiresAt := tok.ExpiresAt
	if err := g.store.SetTokens(ctx, cred, tok.AccessToken, newRefresh, &expiresAt); err != nil {
		return "", fmt.Errorf("%w: persist refreshed tokens: %v", ErrTokenRefresh, err)
	}

	g.audit.TokenRefresh(ctx, cred.UserID, cred.ID, true, "")
	return tok.AccessToken, nil
}

func (g *Guard) deactivate(ctx context.Context, cred *core.Credential, reason string) {
	g.audit.TokenRefresh(ctx, cred.UserID, cred.ID, false, reason)
	if err := g.store.Deactivate(ctx, cred); err != nil {
		g.log.Error("deactivate after refresh failure",
			logger.CredentialID(cred.ID),
			logger.Err(err))
		return
	}
	g.log.Info("credential deactivated",
		logger.CredentialID(cred.ID),
		logger.Provider(cred.Provider),
		logger.String("reason", reason))
}
