// Package health exposes liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/afp-labs/mailgrant/internal/cache"
	"github.com/afp-labs/mailgrant/internal/http/helpers"
	"github.com/afp-labs/mailgrant/internal/observability/logger"
	"github.com/afp-labs/mailgrant/internal/store/core"
)

type componentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok | unavailable
}

type response struct {
	Status     string            `json:"status"` // ready | degraded | unavailable
	Components []componentStatus `json:"components,omitempty"`
}

// Controller handles /healthz and /readyz.
type Controller struct {
	repo  core.Repository
	cache cache.Client
}

func NewController(repo core.Repository, cacheClient cache.Client) *Controller {
	return &Controller{repo: repo, cache: cacheClient}
}

// Healthz reports process liveness only.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, response{Status: "ready"})
}

// Readyz pings the store and cache with a short deadline. Any failing
// component makes the service not ready.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := response{Status: "ready"}

	storeStatus := "ok"
	if err := c.repo.Ping(ctx); err != nil {
		storeStatus = "unavailable"
		resp.Status = "unavailable"
		logger.From(ctx).Warn("store not ready", logger.Err(err))
	}
	resp.Components = append(resp.Components, componentStatus{Name: "store", Status: storeStatus})

	cacheStatus := "ok"
	if err := c.cache.Ping(ctx); err != nil {
		cacheStatus = "unavailable"
		if resp.Status == "ready" {
			resp.Status = "degraded"
		}
		logger.From(ctx).Warn("cache not ready", logger.Err(err))
	}
	resp.Components = append(resp.Components, componentStatus{Name: "cache", Status: cacheStatus})

	status := http.StatusOK
	if resp.Status == "unavailable" {
		status = http.StatusServiceUnavailable
	}
	helpers.WriteJSON(w, status, resp)
}
