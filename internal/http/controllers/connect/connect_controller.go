// Package connect exposes the mailbox connection endpoints.
package connect

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"

	dto "github.com/afp-labs/mailgrant/internal/http/dto/connect"
	httperrors "github.com/afp-labs/mailgrant/internal/http/errors"
	"github.com/afp-labs/mailgrant/internal/http/helpers"
	"github.com/afp-labs/mailgrant/internal/http/middlewares"
	svc "github.com/afp-labs/mailgrant/internal/http/services/connect"
	"github.com/afp-labs/mailgrant/internal/observability/logger"
)

// Controller handles the /v1/connect routes.
type Controller struct {
	service     *svc.Service
	popupOrigin string
}

func NewController(service *svc.Service, popupOrigin string) *Controller {
	return &Controller{service: service, popupOrigin: popupOrigin}
}

// AuthURL handles GET /v1/connect/{provider}/url.
func (c *Controller) AuthURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middlewares.GetUserID(ctx)
	provider := chi.URLParam(r, "provider")

	url, appErr := c.service.AuthURL(ctx, userID, provider)
	if appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.AuthURLResponse{
		AuthorizationURL: url,
		Success:          true,
	})
}

// Callback handles GET /v1/connect/{provider}/callback. The response is an
// HTML page that posts the outcome to the opener window and closes itself;
// the provider redirects the user's browser here, so there is no JSON client
// on the other end.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	result := c.service.Callback(ctx,
		q.Get("code"),
		q.Get("state"),
		q.Get("error"),
		helpers.ClientIP(r),
	)

	msgType := "GMAIL_AUTH_ERROR"
	message := result.Message
	if result.Status == svc.CallbackSuccess {
		msgType = "GMAIL_AUTH_SUCCESS"
		message = "Connected " + result.Email
	}

	var buf bytes.Buffer
	err := popupPage.Execute(&buf, popupData{
		Type:    msgType,
		Message: message,
		Origin:  c.popupOrigin,
	})
	if err != nil {
		logger.From(ctx).Error("popup render failed", logger.Err(err))
		http.Error(w, "authorization completed; close this window", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Accounts handles GET /v1/connect/accounts.
func (c *Controller) Accounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middlewares.GetUserID(ctx)

	accounts, appErr := c.service.Accounts(ctx, userID)
	if appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.AccountsResponse{
		Accounts: accounts,
		Success:  true,
	})
}

// Disconnect handles DELETE /v1/connect/accounts/{id}.
func (c *Controller) Disconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middlewares.GetUserID(ctx)
	credentialID := chi.URLParam(r, "id")

	if appErr := c.service.Disconnect(ctx, userID, credentialID, helpers.ClientIP(r)); appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.DisconnectResponse{Success: true})
}
