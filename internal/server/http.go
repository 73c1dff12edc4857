// Package server assembles the HTTP API router and the ops gRPC server.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	cachehandler "org-access-core/backend/internal/cache/handler"
	"org-access-core/backend/internal/server/middleware"
)

// Routable is implemented by every HTTP handler package.
type Routable interface {
	Routes(r chi.Router)
}

// NewRouter returns the API router with the standard middleware chain and every handler mounted.
func NewRouter(log *zap.Logger, handlers ...Routable) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.ClientInfo)
	r.Use(middleware.RequestLogger(log, map[string]bool{cachehandler.StreamPath: true}))
	r.Use(chimw.Recoverer)
	for _, h := range handlers {
		h.Routes(r)
	}
	return r
}
