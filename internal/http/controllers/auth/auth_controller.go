// Package auth exposes registration and login endpoints.
package auth

import (
	"net/http"

	dto "github.com/afp-labs/mailgrant/internal/http/dto/auth"
	httperrors "github.com/afp-labs/mailgrant/internal/http/errors"
	"github.com/afp-labs/mailgrant/internal/http/helpers"
	svc "github.com/afp-labs/mailgrant/internal/http/services/auth"
)

// Controller handles the /v1/auth routes.
type Controller struct {
	service *svc.Service
}

func NewController(service *svc.Service) *Controller {
	return &Controller{service: service}
}

// Register handles POST /v1/auth/register.
func (c *Controller) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}

	resp, appErr := c.service.Register(r.Context(), req)
	if appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, resp)
}

// Login handles POST /v1/auth/login.
func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}

	resp, appErr := c.service.Login(r.Context(), req)
	if appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}
