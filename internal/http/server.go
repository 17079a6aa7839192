// Package http hosts the service's HTTP server, metrics, and the packages
// beneath it (router, controllers, services, middlewares).
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/afp-labs/mailgrant/internal/observability/logger"
)

// Server wraps http.Server with sane timeouts and graceful shutdown.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start blocks serving requests until Stop is called or the listener fails.
func (s *Server) Start() error {
	logger.L().Info("http server listening", logger.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests until the context expires.
func (s *Server) Stop(ctx context.Context) error {
	logger.L().Info("http server stopping")
	return s.srv.Shutdown(ctx)
}
