// Package audit records access events for connected mailboxes. The log is
// append only and writes are best effort: a failed insert is logged and
// swallowed so that auditing never breaks the operation it describes.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/afp-labs/mailgrant/internal/observability/logger"
	"github.com/afp-labs/mailgrant/internal/store/core"
)

// Recorder appends access events to the store.
type Recorder struct {
	repo core.AccessLogRepository
	log  *zap.Logger
}

func NewRecorder(repo core.AccessLogRepository) *Recorder {
	return &Recorder{
		repo: repo,
		log:  logger.Named("audit"),
	}
}

// Event carries the per-call parts of an access event.
type Event struct {
	UserID       string
	CredentialID *string
	Action       string
	Success      bool
	ErrorMessage string
	IPAddress    string
}

// Record appends one event. CredentialID may be nil for failures that
// happen before a credential row exists.
func (r *Recorder) Record(ctx context.Context, e Event) {
	ev := &core.AccessEvent{
		ID:           uuid.NewString(),
		UserID:       e.UserID,
		CredentialID: e.CredentialID,
		Action:       e.Action,
		Success:      e.Success,
		ErrorMessage: e.ErrorMessage,
		IPAddress:    e.IPAddress,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.repo.Insert(ctx, ev); err != nil {
		r.log.Warn("access event write failed",
			logger.UserID(e.UserID),
			logger.Action(e.Action),
			logger.Err(err))
	}
}

// AuthSuccess records a completed authorization for a credential.
func (r *Recorder) AuthSuccess(ctx context.Context, userID, credentialID, ip string) {
	r.Record(ctx, Event{
		UserID:       userID,
		CredentialID: &credentialID,
		Action:       core.ActionAuthSuccess,
		Success:      true,
		IPAddress:    ip,
	})
}

// AuthError records a failed authorization attempt.
func (r *Recorder) AuthError(ctx context.Context, userID, ip, reason string) {
	r.Record(ctx, Event{
		UserID:       userID,
		Action:       core.ActionAuthError,
		ErrorMessage: reason,
		IPAddress:    ip,
	})
}

// TokenRefresh records the outcome of a token refresh.
func (r *Recorder) TokenRefresh(ctx context.Context, userID, credentialID string, ok bool, reason string) {
	r.Record(ctx, Event{
		UserID:       userID,
		CredentialID: &credentialID,
		Action:       core.ActionTokenRefresh,
		Success:      ok,
		ErrorMessage: reason,
	})
}

// Disconnect records a credential deactivation.
func (r *Recorder) Disconnect(ctx context.Context, userID, credentialID, ip string) {
	r.Record(ctx, Event{
		UserID:       userID,
		CredentialID: &credentialID,
		Action:       core.ActionDisconnect,
		Success:      true,
		IPAddress:    ip,
	})
}
