// Package connect implements the mailbox connection flow: issuing
// authorization URLs, consuming provider callbacks, and managing the
// resulting credentials.
package connect

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/afp-labs/mailgrant/internal/audit"
	"github.com/afp-labs/mailgrant/internal/cache"
	"github.com/afp-labs/mailgrant/internal/credentials"
	dto "github.com/afp-labs/mailgrant/internal/http/dto/connect"
	httperrors "github.com/afp-labs/mailgrant/internal/http/errors"
	"github.com/afp-labs/mailgrant/internal/oauth"
	"github.com/afp-labs/mailgrant/internal/oauth/state"
	"github.com/afp-labs/mailgrant/internal/observability/logger"
	"github.com/afp-labs/mailgrant/internal/store/core"
	"github.com/afp-labs/mailgrant/internal/util"
)

// CallbackStatus classifies a callback outcome for the popup page.
type CallbackStatus string

const (
	CallbackSuccess  CallbackStatus = "success"
	CallbackDenied   CallbackStatus = "denied"
	CallbackInvalid  CallbackStatus = "invalid"
	CallbackRejected CallbackStatus = "rejected"
)

// CallbackResult is what the popup page renders and posts to the opener.
type CallbackResult struct {
	Status  CallbackStatus
	Email   string // connected mailbox, masked for display, success only
	Message string
}

// replayTTL keeps consumed nonces around long enough to outlive any state
// token still in flight (state TTL plus parse leeway).
const replayTTL = 11 * time.Minute

// Service drives the connection flow end to end.
type Service struct {
	store     *credentials.Store
	providers map[string]oauth.Provider
	signer    *state.Signer
	cache     cache.Client
	audit     *audit.Recorder
	log       *zap.Logger
}

func NewService(store *credentials.Store, providers map[string]oauth.Provider, signer *state.Signer, cacheClient cache.Client, rec *audit.Recorder) *Service {
	return &Service{
		store:     store,
		providers: providers,
		signer:    signer,
		cache:     cacheClient,
		audit:     rec,
		log:       logger.Named("connect"),
	}
}

// AuthURL starts an authorization attempt: signs a fresh state token and
// builds the provider's consent URL around it.
func (s *Service) AuthURL(ctx context.Context, userID, provider string) (string, *httperrors.AppError) {
	prov, ok := s.providers[provider]
	if !ok {
		return "", httperrors.ErrUnknownProvider.WithDetail(provider)
	}

	stateToken, nonce, err := s.signer.Sign(userID, provider)
	if err != nil {
		return "", httperrors.ErrInternalServerError.WithCause(err)
	}

	s.log.Debug("authorization started",
		logger.UserID(userID),
		logger.Provider(provider),
		logger.String("nonce", nonce),
	)
	return prov.AuthCodeURL(stateToken), nil
}

// Callback consumes one provider redirect. Every path is terminal: a failed
// attempt is never retried server-side, the user starts over from AuthURL.
func (s *Service) Callback(ctx context.Context, code, stateToken, errParam, clientIP string) CallbackResult {
	log := logger.From(ctx)

	claims, err := s.signer.Parse(stateToken)
	if err != nil {
		// Forged, malformed, or expired state. There is no trusted user
		// identity to audit against.
		log.Warn("callback with invalid state", logger.Err(err))
		return CallbackResult{Status: CallbackInvalid, Message: "The authorization link is invalid or has expired."}
	}

	prov, ok := s.providers[claims.Provider]
	if !ok {
		log.Warn("callback for unknown provider", logger.Provider(claims.Provider))
		return CallbackResult{Status: CallbackInvalid, Message: "The authorization link is invalid or has expired."}
	}

	// Single-use nonce: the first consumer wins, replays fail.
	won, err := s.cache.SetNX(ctx, "state:"+claims.Nonce, "used", replayTTL)
	if err != nil {
		log.Error("replay guard unavailable", logger.Err(err))
		return CallbackResult{Status: CallbackInvalid, Message: "The authorization could not be completed. Please try again."}
	}
	if !won {
		log.Warn("state replay detected",
			logger.UserID(claims.UserID),
			logger.String("nonce", claims.Nonce),
		)
		s.audit.AuthError(ctx, claims.UserID, clientIP, "state replay")
		return CallbackResult{Status: CallbackInvalid, Message: "The authorization link was already used."}
	}

	if errParam != "" {
		// The user clicked deny at the consent screen.
		s.audit.AuthError(ctx, claims.UserID, clientIP, "provider error: "+errParam)
		return CallbackResult{Status: CallbackDenied, Message: "Access was denied. You can connect the mailbox at any time."}
	}
	if code == "" {
		s.audit.AuthError(ctx, claims.UserID, clientIP, "callback without code")
		return CallbackResult{Status: CallbackInvalid, Message: "The authorization link is invalid or has expired."}
	}

	tok, err := prov.Exchange(ctx, code)
	if err != nil {
		log.Warn("code exchange failed",
			logger.UserID(claims.UserID),
			logger.Provider(claims.Provider),
			logger.Err(err),
		)
		s.audit.AuthError(ctx, claims.UserID, clientIP, "exchange failed: "+err.Error())
		return CallbackResult{Status: CallbackRejected, Message: "The provider rejected the authorization. Please try again."}
	}

	cred, err := s.store.Upsert(ctx, claims.UserID, tok.Email, claims.Provider, tok.ExpiresAt, prov.Scopes())
	if err != nil {
		log.Error("credential upsert failed", logger.UserID(claims.UserID), logger.Err(err))
		s.audit.AuthError(ctx, claims.UserID, clientIP, "store failure")
		return CallbackResult{Status: CallbackRejected, Message: "The authorization could not be saved. Please try again."}
	}

	var refresh *string
	if tok.RefreshToken != "" {
		refresh = &tok.RefreshToken
	}
	exp := tok.ExpiresAt
	if err := s.store.SetTokens(ctx, cred, tok.AccessToken, refresh, &exp); err != nil {
		log.Error("token persist failed", logger.CredentialID(cred.ID), logger.Err(err))
		s.audit.AuthError(ctx, claims.UserID, clientIP, "store failure")
		return CallbackResult{Status: CallbackRejected, Message: "The authorization could not be saved. Please try again."}
	}

	s.audit.AuthSuccess(ctx, claims.UserID, cred.ID, clientIP)
	log.Info("mailbox connected",
		logger.UserID(claims.UserID),
		logger.CredentialID(cred.ID),
		logger.Provider(claims.Provider),
		logger.Email(util.MaskEmail(tok.Email)),
	)
	return CallbackResult{
		Status: CallbackSuccess,
		Email:  util.MaskEmail(tok.Email),
	}
}

// Accounts lists the owner's active connections, oldest first.
func (s *Service) Accounts(ctx context.Context, userID string) ([]dto.Account, *httperrors.AppError) {
	creds, err := s.store.ListActive(ctx, userID)
	if err != nil {
		return nil, httperrors.ErrInternalServerError.WithCause(err)
	}

	out := make([]dto.Account, 0, len(creds))
	for _, c := range creds {
		out = append(out, dto.Account{
			ID:        c.ID,
			Email:     c.EmailAddress,
			Provider:  c.Provider,
			CreatedAt: c.CreatedAt,
			ExpiresAt: c.TokenExpiresAt,
		})
	}
	return out, nil
}

// Disconnect deactivates one of the owner's connections. Missing, foreign,
// and already-disconnected ids are indistinguishable: all report not found.
func (s *Service) Disconnect(ctx context.Context, userID, credentialID, clientIP string) *httperrors.AppError {
	cred, err := s.store.GetOwned(ctx, userID, credentialID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return httperrors.ErrNotFound
		}
		return httperrors.ErrInternalServerError.WithCause(err)
	}

	if err := s.store.Deactivate(ctx, cred); err != nil {
		return httperrors.ErrInternalServerError.WithCause(err)
	}

	s.audit.Disconnect(ctx, userID, cred.ID, clientIP)
	logger.From(ctx).Info("mailbox disconnected",
		logger.UserID(userID),
		logger.CredentialID(cred.ID),
	)
	return nil
}
