/*
Package handler provides the HTTP handlers and routing setup for the local status server.

This file defines the main Router, applying the logging, recovery and CORS middleware before
delegating to the health, metrics and session endpoints.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"stompchat/internal/metrics"
	"stompchat/internal/pkg/logx"
	"stompchat/internal/pkg/resp"
)

// Router sets up the routing table of the status server.
// In development any origin may read the health and metrics endpoints; the session endpoints
// are only ever readable from the configured origins.
func Router(deps *AppDeps) http.Handler {
	r := chi.NewRouter()

	publicOrigins := deps.Config.AllowedOrigins
	if deps.Config.IsDevelopment() {
		publicOrigins = []string{"*"}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Group(func(pub chi.Router) {
		pub.Use(newCORS(publicOrigins).Handler)

		pub.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			data := map[string]string{
				"status":  "ok",
				"service": "stompchat",
			}
			resp.RespondSuccess(w, r, data)
		})

		pub.Handle("/metrics", metrics.Handler())
	})

	// session data includes private messages: only configured origins, never a wildcard
	r.Route("/api", func(api chi.Router) {
		api.Use(newCORS(withoutWildcard(deps.Config.AllowedOrigins)).Handler)

		api.Get("/session", HandleSession(deps))
		api.Get("/session/roster", HandleRoster(deps))
	})

	return r
}

// newCORS allows exactly origins. An empty list allows none; rs/cors would otherwise
// treat it as a wildcard.
func newCORS(origins []string) *cors.Cors {
	opts := cors.Options{
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}

	if len(origins) == 0 {
		opts.AllowOriginFunc = func(string) bool { return false }
	} else {
		opts.AllowedOrigins = origins
	}
	return cors.New(opts)
}

func withoutWildcard(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o != "*" {
			out = append(out, o)
		}
	}
	return out
}
