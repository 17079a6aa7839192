// Package middlewares holds the HTTP middleware set and the request context
// accessors shared by controllers and services.
package middlewares

import "net/http"

// Middleware decorates an http.Handler. Compatible with chi's Use.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares left to right: Chain(h, A, B) runs A -> B -> h.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
