package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kernpunkt/llm-mem/internal/memservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *memservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/memories", func(r chi.Router) {
		r.Get("/", h.ListMemories)
		r.Post("/", h.CreateMemory)
		r.Get("/lookup", h.LookupMemory)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetMemory)
			r.Patch("/", h.UpdateMemory)
			r.Delete("/", h.DeleteMemory)
			r.Post("/review", h.ReviewMemory)
			r.Post("/links", h.Link)
			r.Delete("/links/{targetID}", h.Unlink)
			r.Get("/backlinks", h.Backlinks)
		})
	})

	r.Get("/search", h.Search)
	r.Get("/graph", h.Graph)
	r.Get("/audit", h.Audit)
	r.Post("/reindex", h.Reindex)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
