// Package router assembles the chi route tree.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authctrl "github.com/afp-labs/mailgrant/internal/http/controllers/auth"
	connectctrl "github.com/afp-labs/mailgrant/internal/http/controllers/connect"
	healthctrl "github.com/afp-labs/mailgrant/internal/http/controllers/health"
	mw "github.com/afp-labs/mailgrant/internal/http/middlewares"
)

// Deps carries everything the route tree needs.
type Deps struct {
	Connect *connectctrl.Controller
	Auth    *authctrl.Controller
	Health  *healthctrl.Controller

	AuthMiddleware    mw.Middleware // bearer session validation
	MetricsMiddleware mw.Middleware
	MetricsHandler    http.Handler
	CORSOrigins       []string
}

// New builds the router. Middleware order: request id first so everything
// downstream logs with it, then logging, recover, metrics, CORS.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	outer := []mw.Middleware{mw.WithRequestID(), mw.WithLogging(), mw.WithRecover()}
	if deps.MetricsMiddleware != nil {
		outer = append(outer, deps.MetricsMiddleware)
	}
	outer = append(outer, mw.WithCORS(deps.CORSOrigins))

	r.Get("/healthz", deps.Health.Healthz)
	r.Get("/readyz", deps.Health.Readyz)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(mw.WithNoStore())
			r.Post("/register", deps.Auth.Register)
			r.Post("/login", deps.Auth.Login)
		})

		r.Route("/connect", func(r chi.Router) {
			// The provider redirects the browser here; no bearer token is
			// possible. Identity comes from the signed state parameter.
			r.Get("/{provider}/callback", deps.Connect.Callback)

			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware)
				r.Use(mw.WithNoStore())
				r.Get("/{provider}/url", deps.Connect.AuthURL)
				r.Get("/accounts", deps.Connect.Accounts)
				r.Delete("/accounts/{id}", deps.Connect.Disconnect)
			})
		})
	})

	// None of the outer middlewares need chi's route context, so they wrap
	// the finished mux and also cover unmatched paths.
	return mw.Chain(r, outer...)
}
